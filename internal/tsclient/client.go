// Package tsclient is the typed façade over the tsserver process pair:
// execute, executeAsync, notify, and cancellation, plus event dispatch.
package tsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/typescript-language-server/tsla/internal/tsmsg"
	"github.com/typescript-language-server/tsla/internal/tsproto"
	"github.com/typescript-language-server/tsla/internal/tsqueue"
	"github.com/typescript-language-server/tsla/internal/tserr"
	"github.com/typescript-language-server/tsla/internal/tsrouter"
)

// ExecutionTarget lets a caller pin a command to a specific physical server,
// overriding tsrouter's classification
type ExecutionTarget = tsrouter.Target

const (
	ExecutionTargetSemantic = tsrouter.TargetSemantic
	ExecutionTargetSyntax = tsrouter.TargetSyntax
	ExecutionTargetBoth = tsrouter.TargetBoth
)

// Config mirrors the per-request options tsserver's own protocol exposes.
type Config struct {
	LowPriority bool
	NonRecoverable bool
	CancelOnResourceURI string
	HasExecutionTarget bool
	ExecutionTarget ExecutionTarget
}

// wire is the minimal transport surface a physical server needs: write a
// request, and be told when the peer has gone away so the client can
// escalate via onFatalError.
type wire struct {
	codec *tsproto.Codec
	queue *tsqueue.Queue
}

// Client is the TsServerClient façade. It owns one or two wire instances
// (semantic, and optionally syntax) behind the SyntaxRouter.
type Client struct {
	log logrus.FieldLogger
	router *tsrouter.Router

	semantic *wire
	syntax *wire // nil when no syntax server is running

	onFatalError func(error)
	onEvent func(ev *tsproto.Event)

	mu sync.Mutex
	cancelPipe io.Writer // nil until the cancellation pipe is wired up
}

// New builds a Client. semanticRW/syntaxRW are the already-spawned child
// processes' stdio pipes (framed); syntaxRW is nil when there
// is no syntax-only server.
func New(log logrus.FieldLogger, framer tsproto.Framer, semanticR io.Reader, semanticW io.Writer, syntaxR io.Reader, syntaxW io.Writer) *Client {
	c := &Client{log: log}
	c.router = tsrouter.New(syntaxR != nil)

	c.semantic = newWire(framer, semanticR, semanticW)
	if syntaxR != nil {
		c.syntax = newWire(framer, syntaxR, syntaxW)
	}
	return c
}

func newWire(framer tsproto.Framer, r io.Reader, w io.Writer) *wire {
	codec := tsproto.NewCodec(framer, r, w)
	wr := &wire{codec: codec}
	wr.queue = tsqueue.New(func(ctx context.Context, req *tsproto.Request) error {
		return codec.Write(ctx, req)
	})
	return wr
}

// SetCancellationPipe wires the named pipe writer used to cancel inflight
// requests.
func (c *Client) SetCancellationPipe(w io.Writer) {
	c.mu.Lock()
	c.cancelPipe = w
	c.mu.Unlock()
}

// OnFatalError registers the callback invoked when the two servers diverge
// on a shared command's outcome; the caller (session) is expected to kill and
// restart. Transport errors, a ProtocolError included, do not invoke it: they
// end ReadLoop, which returns them.
func (c *Client) OnFatalError(f func(error)) { c.onFatalError = f }

// OnEvent registers the callback invoked for every decoded tsserver event.
func (c *Client) OnEvent(f func(*tsproto.Event)) { c.onEvent = f }

func (c *Client) targetWires(command string, cfg Config) []*wire {
	target := c.router.Route(command, cfg.ExecutionTarget, cfg.HasExecutionTarget)
	switch target {
	case tsrouter.TargetSyntax:
		if c.syntax != nil {
			return []*wire{c.syntax}
		}
		return []*wire{c.semantic}
	case tsrouter.TargetBoth:
		if c.syntax != nil {
			return []*wire{c.semantic, c.syntax}
		}
		return []*wire{c.semantic}
	default:
		return []*wire{c.semantic}
	}
}

func classFor(cfg Config, fence bool) tsqueue.Class {
	switch {
	case fence:
		return tsqueue.Fence
	case cfg.LowPriority:
		return tsqueue.LowPriority
	default:
		return tsqueue.Normal
	}
}

// fenceCommands mirrors Fence discipline.
var fenceCommands = map[string]bool{
	"open": true, "close": true, "change": true, "updateOpen": true, "configure": true,
}

// Execute sends a synchronous request and waits for its outcome.
func (c *Client) Execute(ctx context.Context, command string, args any, cfg Config) tserr.Outcome {
	wires := c.targetWires(command, cfg)
	if len(wires) == 0 {
		return tserr.Fail(tserr.NoServer())
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return tserr.Fail(tserr.Protocol("marshalling %s arguments: %v", command, err))
	}
	fence := fenceCommands[command]
	class := classFor(cfg, fence)

	if len(wires) == 1 {
		return c.executeOn(ctx, wires[0], command, raw, class, cfg)
	}
	return c.executeShared(ctx, wires, command, raw, class, cfg)
}

func (c *Client) executeOn(ctx context.Context, w *wire, command string, raw json.RawMessage, class tsqueue.Class, cfg Config) tserr.Outcome {
	resultCh := make(chan tserr.Outcome, 1)
	seq := w.queue.Submit(ctx, class, command, raw, false, cfg.CancelOnResourceURI, func(o tserr.Outcome) {
		resultCh <- o
	})
	select {
	case o := <-resultCh:
		return o
	case <-ctx.Done():
		w.queue.Cancel(seq)
		c.writeCancelPipe(seq)
		return tserr.Fail(tserr.Cancelled("context done"))
	}
}

// executeShared fans a command out to both servers : the first
// reply is authoritative, and if the two diverge (one success, one error)
// onFatalError is invoked so the session restarts the pair.
func (c *Client) executeShared(ctx context.Context, wires []*wire, command string, raw json.RawMessage, class tsqueue.Class, cfg Config) tserr.Outcome {
	type result struct {
		idx int
		o tserr.Outcome
	}
	results := make(chan result, len(wires))
	for i, w := range wires {
		i, w := i, w
		w.queue.Submit(ctx, class, command, raw, false, cfg.CancelOnResourceURI, func(o tserr.Outcome) {
			results <- result{idx: i, o: o}
		})
	}

	first := <-results
	go func() {
		// drain the rest asynchronously so we can compare without blocking
		// the caller on the slower server.
		for i := 1; i < len(wires); i++ {
			other := <-results
			if (other.o.Err == nil) != (first.o.Err == nil) {
				if c.onFatalError != nil {
					c.onFatalError(fmt.Errorf("tsclient: shared command %q diverged between servers", command))
				}
			}
		}
	}()
	return first.o
}

// ExecuteAsync issues an async request (geterr/geterrForProject); its
// completion is later signalled by a requestCompleted event matched to
// request_seq
func (c *Client) ExecuteAsync(ctx context.Context, command string, args any, cfg Config) (tsproto.Seq, <-chan tserr.Outcome, error) {
	wires := c.targetWires(command, cfg)
	if len(wires) == 0 {
		return 0, nil, fmt.Errorf("tsclient: no server available for %s", command)
	}
	w := wires[0]
	raw, err := json.Marshal(args)
	if err != nil {
		return 0, nil, fmt.Errorf("tsclient: marshalling %s arguments: %w", command, err)
	}
	resultCh := make(chan tserr.Outcome, 1)
	seq := w.queue.Submit(ctx, classFor(cfg, false), command, raw, true, cfg.CancelOnResourceURI, func(o tserr.Outcome) {
		resultCh <- o
	})
	return seq, resultCh, nil
}

// Notify sends a fire-and-forget fence command with no reply expected
// (open/close/change/updateOpen/configure)
func (c *Client) Notify(ctx context.Context, command string, args any) error {
	outcome := c.Execute(ctx, command, args, Config{})
	if outcome.Err != nil && outcome.Err.Kind != tserr.KindNoContent {
		return outcome.Err
	}
	return nil
}

// NotifyFence implements docsync.Sender.
func (c *Client) NotifyFence(ctx context.Context, command string, args any) error {
	return c.Notify(ctx, command, args)
}

// CancelForResource implements docsync.Sender: cancels every inflight
// request on both wires whose cancelOnResourceChange target matches uri.
func (c *Client) CancelForResource(uri string) {
	for _, w := range []*wire{c.semantic, c.syntax} {
		if w == nil {
			continue
		}
		for _, seq := range w.queue.CancelResource(uri) {
			c.writeCancelPipe(seq)
		}
	}
}

// CancelRequest cancels seq, a request previously returned by ExecuteAsync.
// geterr/geterrForProject are semantic-only per the router's static tables,
// so the semantic wire's queue is always where an async request lives; if it
// has already been sent, its seq is also written to the cancellation pipe
// for tsserver to acknowledge.
func (c *Client) CancelRequest(seq tsproto.Seq) {
	c.semantic.queue.Cancel(seq)
	c.writeCancelPipe(seq)
}

// CompleteAsync is called by the event-reading loop when a requestCompleted
// event arrives for seq.
func (c *Client) CompleteAsync(w *wire, seq tsproto.Seq) {
	w.queue.Complete(seq, tserr.OK(nil))
}

// completeResponse is called by the event-reading loop when a *tsproto.Response
// arrives.
func (c *Client) completeResponse(w *wire, resp *tsproto.Response) {
	if !resp.Success {
		if msg, isErr := tsmsg.IsErrorBody(resp.Body); isErr {
			w.queue.Complete(resp.RequestSeq, tserr.Fail(tserr.Server(msg, 0)))
			return
		}
		w.queue.Complete(resp.RequestSeq, tserr.Fail(tserr.Server(resp.Message, 0)))
		return
	}
	w.queue.Complete(resp.RequestSeq, tserr.OK(resp.Body))
}

// writeCancelPipe writes seq to the cancellation pipe.
func (c *Client) writeCancelPipe(seq tsproto.Seq) {
	c.mu.Lock()
	w := c.cancelPipe
	c.mu.Unlock()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "%d\n", seq)
}

// ReadLoop drains one wire's codec until it errs, dispatching responses to
// the queue and events to onEvent/requestCompleted handling. The caller
// (session) runs one of these per physical server as its own task.
func (c *Client) ReadLoop(ctx context.Context, which ExecutionTarget) error {
	w := c.semantic
	if which == tsrouter.TargetSyntax && c.syntax != nil {
		w = c.syntax
	}
	for {
		msg, err := w.codec.Read(ctx)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *tsproto.Response:
			c.completeResponse(w, m)
		case *tsproto.Event:
			switch tsmsg.ClassifyEvent(m.Event) {
			case tsmsg.EventRequestCompleted:
				if seq, ok := tsmsg.CompletedRequestSeq(m.Body); ok {
					c.CompleteAsync(w, tsproto.Seq(seq))
				}
			case tsmsg.EventProjectLoadingStart:
				c.router.SetProjectLoading(true)
			case tsmsg.EventProjectLoadingFin, tsmsg.EventSyntaxDiag, tsmsg.EventSemanticDiag, tsmsg.EventSuggestionDiag:
				// project-loading ends on an explicit Finish event, or
				// implicitly on the first diagnostic event
				c.router.SetProjectLoading(false)
			case tsmsg.EventUnknown:
				c.log.WithField("event", m.Event).Debug("tsclient: unknown tsserver event, discarding")
				continue
			}
			if c.onEvent != nil {
				c.onEvent(m)
			}
		case *tsproto.Request:
			// tsserver never sends us a request; log and ignore rather than
			// crash on an unknown event kind.
			c.log.WithField("command", m.Command).Debug("tsclient: unexpected inbound request from tsserver, ignoring")
		}
	}
}

// Shutdown drains both wires' queues with a Cancelled outcome.
func (c *Client) Shutdown(reason string) {
	for _, w := range []*wire{c.semantic, c.syntax} {
		if w != nil {
			w.queue.DrainWithError(tserr.Fail(tserr.Cancelled(reason)))
		}
	}
}
