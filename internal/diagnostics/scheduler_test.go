package diagnostics

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/typescript-language-server/tsla/internal/tsclient"
	"github.com/typescript-language-server/tsla/internal/tserr"
	"github.com/typescript-language-server/tsla/internal/tsproto"
)

type fakeRequester struct {
	mu sync.Mutex
	nextSeq tsproto.Seq
	issued []string // one entry per geterr command issued, joined args files
	cancelled []tsproto.Seq
	resultChs map[tsproto.Seq]chan tserr.Outcome
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{resultChs: make(map[tsproto.Seq]chan tserr.Outcome)}
}

func (f *fakeRequester) ExecuteAsync(ctx context.Context, command string, args any, cfg tsclient.Config) (tsproto.Seq, <-chan tserr.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSeq++
	seq := f.nextSeq
	raw, _ := json.Marshal(args)
	f.issued = append(f.issued, string(raw))
	ch := make(chan tserr.Outcome, 1)
	f.resultChs[seq] = ch
	return seq, ch, nil
}

func (f *fakeRequester) CancelRequest(seq tsproto.Seq) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, seq)
}

func (f *fakeRequester) complete(seq tsproto.Seq) {
	f.mu.Lock()
	ch := f.resultChs[seq]
	f.mu.Unlock()
	if ch != nil {
		ch <- tserr.OK(nil)
	}
}

type fakePaths struct {
	uris map[string]string
	lines map[string]int
	open []string
}

func (p *fakePaths) URIForPath(fp string) (string, bool) { u, ok := p.uris[fp]; return u, ok }
func (p *fakePaths) OpenFilePaths() []string { return p.open }
func (p *fakePaths) LineCountForPath(fp string) (int, bool) {
	n, ok := p.lines[fp]
	return n, ok
}

func TestBufferDebounceClamping(t *testing.T) {
	cases := []struct {
		lines int
		want time.Duration
	}{
		{lines: 1, want: 300 * time.Millisecond},
		{lines: 40, want: 300 * time.Millisecond},
		{lines: 100, want: 300 * time.Millisecond},
		{lines: 20000, want: 800 * time.Millisecond},
	}
	for _, c := range cases {
		if got := bufferDebounce(c.lines); got != c.want {
			t.Errorf("bufferDebounce(%d) = %v, want %v", c.lines, got, c.want)
		}
	}
}

func TestEnqueueFiresGetErrWithMergedOpenFiles(t *testing.T) {
	req := newFakeRequester()
	paths := &fakePaths{uris: map[string]string{}, lines: map[string]int{"/a.ts": 1}, open: []string{"/a.ts", "/b.ts"}}
	var published []string
	var mu sync.Mutex
	sched := New(logrus.New(), req, paths, nil, func(uri string, diags []Diagnostic) {
		mu.Lock()
		published = append(published, uri)
		mu.Unlock()
	})

	sched.Enqueue("/a.ts")

	deadline := time.After(2 * time.Second)
	for {
		req.mu.Lock()
		n := len(req.issued)
		req.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("geterr was never issued")
		case <-time.After(10 * time.Millisecond):
		}
	}

	req.mu.Lock()
	issued := req.issued[0]
	req.mu.Unlock()
	if !containsAll(issued, "/a.ts", "/b.ts") {
		t.Fatalf("geterr args %q did not include both open files", issued)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !jsonContains(s, sub) {
			return false
		}
	}
	return true
}

func jsonContains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestHandleEventPublishesMergedDiagnosticsAndFiltersIgnored(t *testing.T) {
	req := newFakeRequester()
	paths := &fakePaths{uris: map[string]string{"/a.ts": "file:///a.ts"}, lines: map[string]int{}}
	var got []Diagnostic
	sched := New(logrus.New(), req, paths, []int{2304}, func(uri string, diags []Diagnostic) {
		got = diags
	})

	body, _ := json.Marshal(map[string]any{
		"file": "/a.ts",
		"diagnostics": []map[string]any{
			{"start": map[string]int{"line": 1, "offset": 1}, "end": map[string]int{"line": 1, "offset": 5}, "text": "kept", "code": 2345, "category": "error"},
			{"start": map[string]int{"line": 2, "offset": 1}, "end": map[string]int{"line": 2, "offset": 5}, "text": "dropped", "code": 2304, "category": "error"},
		},
	})
	sched.HandleEvent(&tsproto.Event{Event: "syntaxDiag", Body: body})

	if len(got) != 1 {
		t.Fatalf("expected exactly 1 diagnostic after ignoredCodes filtering, got %d", len(got))
	}
	if got[0].Message != "kept" {
		t.Errorf("message = %q, want %q", got[0].Message, "kept")
	}
	if got[0].Range.Start.Line != 0 || got[0].Range.Start.Character != 0 {
		t.Errorf("range not translated to zero-based LSP coordinates: %+v", got[0].Range)
	}
}

func TestHandleEventMergesAcrossCategories(t *testing.T) {
	req := newFakeRequester()
	paths := &fakePaths{uris: map[string]string{"/a.ts": "file:///a.ts"}}
	var got []Diagnostic
	sched := New(logrus.New(), req, paths, nil, func(uri string, diags []Diagnostic) { got = diags })

	syntaxBody, _ := json.Marshal(map[string]any{
		"file": "/a.ts",
		"diagnostics": []map[string]any{{"start": map[string]int{"line": 1, "offset": 1}, "end": map[string]int{"line": 1, "offset": 2}, "text": "syn", "code": 1, "category": "error"}},
	})
	sched.HandleEvent(&tsproto.Event{Event: "syntaxDiag", Body: syntaxBody})

	semanticBody, _ := json.Marshal(map[string]any{
		"file": "/a.ts",
		"diagnostics": []map[string]any{{"start": map[string]int{"line": 1, "offset": 1}, "end": map[string]int{"line": 1, "offset": 2}, "text": "sem", "code": 2, "category": "warning"}},
	})
	sched.HandleEvent(&tsproto.Event{Event: "semanticDiag", Body: semanticBody})

	if len(got) != 2 {
		t.Fatalf("expected the semanticDiag publish to include the earlier syntaxDiag too, got %d", len(got))
	}
}

func TestInterruptGetErrCancelsRunsSynchronouslyThenReschedules(t *testing.T) {
	req := newFakeRequester()
	paths := &fakePaths{uris: map[string]string{}, open: []string{"/a.ts"}}
	sched := New(logrus.New(), req, paths, nil, func(string, []Diagnostic) {})

	sched.Enqueue("/a.ts")
	time.Sleep(350 * time.Millisecond) // let the initial debounce fire

	ran := false
	sched.InterruptGetErr(func() { ran = true })
	if !ran {
		t.Fatal("InterruptGetErr did not run its callback synchronously")
	}

	req.mu.Lock()
	n := len(req.issued)
	req.mu.Unlock()
	if n < 2 {
		t.Fatalf("expected InterruptGetErr to reschedule a fresh geterr, issued count = %d", n)
	}
}
