// Package tsqueue implements the outgoing request queue and the
// seq-correlated callback map: three queueing classes (Fence, Normal,
// LowPriority), FIFO-per-class admission, and async requests that complete
// via a later event rather than blocking the pending-response counter.
package tsqueue

import (
	"context"
	"sync"
	"time"

	"github.com/typescript-language-server/tsla/internal/tserr"
	"github.com/typescript-language-server/tsla/internal/tsproto"
)

// Class is the queueing discipline for a single outgoing request.
type Class int

const (
	Normal Class = iota
	Fence
	LowPriority
)

// pending is one queued or in-flight request, plus the bookkeeping tsqueue
// needs to dispatch and complete it.
type pending struct {
	seq tsproto.Seq
	command string
	args []byte
	class Class
	isAsync bool
	enqueueTime time.Time
	resourceURI string // cancelOnResourceChange target, if any; "" if none
	onComplete func(tserr.Outcome)
	cancelRequested bool
}

// Queue sequences outgoing requests and correlates responses by seq. It does
// not own the transport; New is given a send function supplied by the owning
// TsServerClient so tsqueue stays transport-agnostic and testable
// in isolation.
type Queue struct {
	mu sync.Mutex

	nextSeq tsproto.Seq

	fifo []*pending // Fence and Normal share one FIFO in submission order
	low []*pending // LowPriority, admitted only when fifo is empty

	inFlight map[tsproto.Seq]*pending // sync requests awaiting a response
	async map[tsproto.Seq]*pending // async requests (geterr*) awaiting requestCompleted

	// responseOutstanding is true while a synchronous request has been sent
	// and no response has arrived yet. Async requests do not set this, since
	// they complete via a later event instead of blocking admission.
	responseOutstanding bool

	send func(ctx context.Context, req *tsproto.Request) error
}

// New builds a Queue. send performs the actual transport write; it is called
// with the queue's internal lock released.
func New(send func(ctx context.Context, req *tsproto.Request) error) *Queue {
	return &Queue{
		inFlight: make(map[tsproto.Seq]*pending),
		async: make(map[tsproto.Seq]*pending),
		send: send,
	}
}

// Submit enqueues a request for command/args under the given class, invoking
// onComplete exactly once when the outcome is known (response, cancellation,
// or shutdown). isAsync marks geterr/geterrForProject-style requests whose
// completion arrives via a later requestCompleted event, not a Response.
func (q *Queue) Submit(ctx context.Context, class Class, command string, args []byte, isAsync bool, resourceURI string, onComplete func(tserr.Outcome)) tsproto.Seq {
	q.mu.Lock()
	q.nextSeq++
	seq := q.nextSeq
	p := &pending{
		seq: seq,
		command: command,
		args: args,
		class: class,
		isAsync: isAsync,
		enqueueTime: time.Now(),
		resourceURI: resourceURI,
		onComplete: onComplete,
	}
	if class == LowPriority {
		q.low = append(q.low, p)
	} else {
		q.fifo = append(q.fifo, p)
	}
	q.mu.Unlock()

	q.pump(ctx)
	return seq
}

// pump admits requests while the head of the active queue is sendable: no
// response is outstanding, and either the head is a Fence/Normal request, or
// the fifo is empty and the head is a LowPriority request.
func (q *Queue) pump(ctx context.Context) {
	for {
		q.mu.Lock()
		if q.responseOutstanding {
			q.mu.Unlock()
			return
		}
		var next *pending
		switch {
		case len(q.fifo) > 0:
			next = q.fifo[0]
			q.fifo = q.fifo[1:]
		case len(q.low) > 0:
			next = q.low[0]
			q.low = q.low[1:]
		default:
			q.mu.Unlock()
			return
		}
		if next.cancelRequested {
			// removed from the queue before it was ever sent; complete locally
			q.mu.Unlock()
			next.onComplete(tserr.Fail(tserr.Cancelled("removed from queue before send")))
			continue
		}
		if next.isAsync {
			q.async[next.seq] = next
		} else {
			q.inFlight[next.seq] = next
			q.responseOutstanding = true
		}
		q.mu.Unlock()

		req := &tsproto.Request{Seq: next.seq, Command: next.command}
		if len(next.args) > 0 {
			req.Arguments = next.args
		}
		if err := q.send(ctx, req); err != nil {
			q.Complete(next.seq, tserr.Fail(tserr.Protocol("sending %s (seq %d): %v", next.command, next.seq, err)))
		}
	}
}

// Complete resolves seq's callback, whether it was a sync response or an
// async requestCompleted, and unblocks the next sync admission.
func (q *Queue) Complete(seq tsproto.Seq, outcome tserr.Outcome) {
	q.mu.Lock()
	p, wasSync := q.inFlight[seq]
	if wasSync {
		delete(q.inFlight, seq)
		q.responseOutstanding = false
	} else if ap, ok := q.async[seq]; ok {
		p = ap
		delete(q.async, seq)
	}
	q.mu.Unlock()

	if p != nil && p.onComplete != nil {
		p.onComplete(outcome)
	}
	if wasSync {
		q.pump(context.Background())
	}
}

// Cancel marks seq cancelled. If it is still queued it is removed and
// completed locally with no network round trip; if it is already in flight
// the caller (TsServerClient) is responsible for writing the seq to the
// cancellation pipe and waiting for tsserver's eventual error response.
func (q *Queue) Cancel(seq tsproto.Seq) (stillQueued bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.fifo {
		if p.seq == seq {
			p.cancelRequested = true
			return true
		}
	}
	for _, p := range q.low {
		if p.seq == seq {
			p.cancelRequested = true
			return true
		}
	}
	return false
}

// CancelResource cancels every inflight or queued request whose
// cancelOnResourceChange target matches uri. It returns the seqs that were inflight (already sent, so
// the caller must still write them to the cancellation pipe).
func (q *Queue) CancelResource(uri string) (inflightSeqs []tsproto.Seq) {
	q.mu.Lock()
	defer q.mu.Unlock()

	remaining := q.fifo[:0]
	for _, p := range q.fifo {
		if p.resourceURI == uri {
			p.cancelRequested = true
		}
		remaining = append(remaining, p)
	}
	q.fifo = remaining

	remainingLow := q.low[:0]
	for _, p := range q.low {
		if p.resourceURI == uri {
			p.cancelRequested = true
		}
		remainingLow = append(remainingLow, p)
	}
	q.low = remainingLow

	for seq, p := range q.inFlight {
		if p.resourceURI == uri {
			inflightSeqs = append(inflightSeqs, seq)
		}
	}
	for seq, p := range q.async {
		if p.resourceURI == uri {
			inflightSeqs = append(inflightSeqs, seq)
		}
	}
	return inflightSeqs
}

// DrainWithError completes every pending entry (queued, in flight and async)
// with outcome, used on server dispose/exit.
func (q *Queue) DrainWithError(outcome tserr.Outcome) {
	q.mu.Lock()
	all := append([]*pending{}, q.fifo...)
	all = append(all, q.low...)
	for _, p := range q.inFlight {
		all = append(all, p)
	}
	for _, p := range q.async {
		all = append(all, p)
	}
	q.fifo = nil
	q.low = nil
	q.inFlight = make(map[tsproto.Seq]*pending)
	q.async = make(map[tsproto.Seq]*pending)
	q.responseOutstanding = false
	q.mu.Unlock()

	for _, p := range all {
		if p.onComplete != nil {
			p.onComplete(outcome)
		}
	}
}

// PendingCount reports the total number of entries across every partition,
// for tests asserting that a seq appears in at most one of
// queue|inFlight|completed.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo) + len(q.low) + len(q.inFlight) + len(q.async)
}
