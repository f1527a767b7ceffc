package tsqueue

import (
	"context"
	"sync"
	"testing"

	"github.com/typescript-language-server/tsla/internal/tserr"
	"github.com/typescript-language-server/tsla/internal/tsproto"
)

func newTestQueue(t *testing.T) (*Queue, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var sent []string
	q := New(func(ctx context.Context, req *tsproto.Request) error {
		mu.Lock()
		sent = append(sent, req.Command)
		mu.Unlock()
		return nil
	})
	return q, &sent
}

func TestFIFOOrderingWithinClass(t *testing.T) {
	q, sent := newTestQueue(t)
	ctx := context.Background()

	q.Submit(ctx, Fence, "open", nil, false, "file:///a.ts", func(tserr.Outcome) {})
	q.Submit(ctx, Fence, "change", nil, false, "file:///a.ts", func(tserr.Outcome) {})
	// the head ("open") has no response yet, so only it should have been sent
	if len(*sent) != 1 || (*sent)[0] != "open" {
		t.Fatalf("sent = %v, want [open]", *sent)
	}

	q.Complete(1, tserr.OK(nil))
	if len(*sent) != 2 || (*sent)[1] != "change" {
		t.Fatalf("sent = %v, want [open change]", *sent)
	}
}

func TestLowPriorityStarvesBehindNormal(t *testing.T) {
	q, sent := newTestQueue(t)
	ctx := context.Background()

	q.Submit(ctx, LowPriority, "navto", nil, false, "", func(tserr.Outcome) {})
	if len(*sent) != 1 {
		t.Fatalf("low priority alone should still send immediately, got %v", *sent)
	}
	q.Submit(ctx, LowPriority, "navto", nil, false, "", func(tserr.Outcome) {})
	q.Submit(ctx, Normal, "quickinfo", nil, false, "", func(tserr.Outcome) {})
	// the first navto's response is still outstanding, so both later
	// requests queue; once it completes, quickinfo (Normal) is admitted
	// ahead of the earlier-submitted, still-queued low-priority navto.
	q.Complete(1, tserr.OK(nil))
	if len(*sent) != 2 {
		t.Fatalf("want 2 sent so far, got %v", *sent)
	}
	if (*sent)[1] != "quickinfo" {
		t.Fatalf("normal request should be admitted before a queued low-priority one, got %v", *sent)
	}
}

func TestAsyncDoesNotBlockPendingCounter(t *testing.T) {
	q, sent := newTestQueue(t)
	ctx := context.Background()

	q.Submit(ctx, Normal, "geterr", nil, true, "", func(tserr.Outcome) {})
	q.Submit(ctx, Normal, "quickinfo", nil, false, "", func(tserr.Outcome) {})
	if len(*sent) != 2 {
		t.Fatalf("async geterr must not block the next sync request, got %v", *sent)
	}
}

func TestCancelQueuedRequestCompletesLocally(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	var got tserr.Outcome
	q.Submit(ctx, Fence, "open", nil, false, "file:///a.ts", func(tserr.Outcome) {})
	seq := q.Submit(ctx, Fence, "change", nil, false, "file:///a.ts", func(o tserr.Outcome) { got = o })

	if ok := q.Cancel(seq); !ok {
		t.Fatal("expected change to still be queued")
	}
	q.Complete(1, tserr.OK(nil)) // completes "open", which should trigger pump and skip the cancelled "change"

	if got.Err == nil || got.Err.Kind != tserr.KindCancelled {
		t.Fatalf("got %+v, want a Cancelled outcome", got)
	}
}

func TestDrainWithErrorCompletesEverything(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	var completions int
	var mu sync.Mutex
	cb := func(tserr.Outcome) {
		mu.Lock()
		completions++
		mu.Unlock()
	}
	q.Submit(ctx, Fence, "open", nil, false, "", cb)
	q.Submit(ctx, Fence, "change", nil, false, "", cb)
	q.Submit(ctx, Normal, "geterr", nil, true, "", cb)

	q.DrainWithError(tserr.Fail(tserr.Cancelled("server disposed")))

	mu.Lock()
	defer mu.Unlock()
	if completions != 3 {
		t.Fatalf("completions = %d, want 3", completions)
	}
	if q.PendingCount() != 0 {
		t.Fatalf("PendingCount() = %d, want 0 after drain", q.PendingCount())
	}
}
