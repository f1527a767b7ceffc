package tsclient

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/typescript-language-server/tsla/internal/tsproto"
)

// pipePair gives a Codec a live io.Reader/io.Writer loop without a real
// child process, modeled on how gopls's jsonrpc2_v2 tests stand up an
// in-memory transport.
type pipePair struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func newPipePair() (pipePair, pipePair) {
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	return pipePair{r: cr, w: cw}, pipePair{r: sr, w: sw}
}

// fakeServer answers every request it reads with an immediate success
// response carrying the same seq back, unless told otherwise.
type fakeServer struct {
	codec *tsproto.Codec
	mu sync.Mutex
	handler func(req *tsproto.Request) *tsproto.Response
}

func newFakeServer(r io.Reader, w io.Writer) *fakeServer {
	fs := &fakeServer{codec: tsproto.NewCodec(tsproto.HeaderFramer(), r, w)}
	fs.handler = func(req *tsproto.Request) *tsproto.Response {
		return &tsproto.Response{Seq: req.Seq + 1000, RequestSeq: req.Seq, Success: true, Command: req.Command}
	}
	return fs
}

func (fs *fakeServer) run(t *testing.T) {
	go func() {
		for {
			msg, err := fs.codec.Read(context.Background())
			if err != nil {
				return
			}
			req, ok := msg.(*tsproto.Request)
			if !ok {
				continue
			}
			resp := fs.handler(req)
			if resp == nil {
				continue
			}
			if err := fs.codec.Write(context.Background(), resp); err != nil {
				return
			}
		}
	}()
}

func newTestClient(t *testing.T) (*Client, *fakeServer) {
	toClient, toServer := newPipePair()
	server := newFakeServer(toServer.r, toServer.w)
	server.run(t)

	c := New(logrus.New(), tsproto.HeaderFramer(), toClient.r, toClient.w, nil, nil)
	go c.ReadLoop(context.Background(), ExecutionTargetSemantic)
	return c, server
}

func TestExecuteRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	outcome := c.Execute(ctx, "quickinfo", map[string]any{"file": "/a.ts", "line": 1, "offset": 1}, Config{})
	if outcome.Err != nil {
		t.Fatalf("Execute returned an error outcome: %v", outcome.Err)
	}
	if !outcome.IsNoContent() {
		t.Fatalf("expected a NoContent outcome for an empty body, got %v", outcome.Body)
	}
}

func TestExecuteSurfacesServerError(t *testing.T) {
	c, server := newTestClient(t)
	server.handler = func(req *tsproto.Request) *tsproto.Response {
		return &tsproto.Response{Seq: req.Seq + 1, RequestSeq: req.Seq, Success: false, Command: req.Command, Message: "boom"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome := c.Execute(ctx, "definition", map[string]any{}, Config{})
	if outcome.Err == nil {
		t.Fatal("expected a ServerError outcome")
	}
}

func TestNotifyIgnoresNoContent(t *testing.T) {
	c, _ := newTestClient(t)
	if err := c.Notify(context.Background(), "open", map[string]any{"file": "/a.ts"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}

func TestCancelForResourceWritesCancelPipe(t *testing.T) {
	c, server := newTestClient(t)
	// never reply, so the request stays inflight long enough to cancel.
	server.handler = func(req *tsproto.Request) *tsproto.Response { return nil }

	var cancelled bytesBuffer
	c.SetCancellationPipe(&cancelled)

	// the fake server never replies, so this stays inflight until the test
	// process exits; we only care that cancellation reaches the pipe, not
	// that Execute itself returns (that requires tsserver's own eventual
	// error response).
	go c.Execute(context.Background(), "references", map[string]any{"file": "/a.ts"}, Config{CancelOnResourceURI: "/a.ts"})

	// give pump a moment to admit the request before cancelling it.
	time.Sleep(50 * time.Millisecond)
	c.CancelForResource("/a.ts")
	time.Sleep(50 * time.Millisecond)

	if cancelled.String() == "" {
		t.Fatal("expected a seq to be written to the cancellation pipe")
	}
}

func TestExecuteAsyncCompletesOnRequestCompletedEvent(t *testing.T) {
	c, server := newTestClient(t)
	server.handler = func(req *tsproto.Request) *tsproto.Response {
		// geterr has no direct response; completion arrives via an event.
		go func() {
			body, _ := json.Marshal(map[string]any{"request_seq": int64(req.Seq)})
			server.codec.Write(context.Background(), &tsproto.Event{Event: "requestCompleted", Body: body})
		}()
		return nil
	}

	seq, resultCh, err := c.ExecuteAsync(context.Background(), "geterr", map[string]any{"files": []string{"/a.ts"}}, Config{})
	if err != nil {
		t.Fatalf("ExecuteAsync: %v", err)
	}
	if seq == 0 {
		t.Fatal("expected a non-zero seq")
	}

	select {
	case outcome := <-resultCh:
		if outcome.Err != nil {
			t.Fatalf("unexpected error outcome: %v", outcome.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the async outcome")
	}
}

// bytesBuffer is a tiny concurrency-safe io.Writer, since bytes.Buffer is not
// safe for the goroutine in TestCancelForResourceWritesCancelPipe.
type bytesBuffer struct {
	mu sync.Mutex
	buf []byte
}

func (b *bytesBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *bytesBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
