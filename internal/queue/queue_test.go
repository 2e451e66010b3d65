package queue

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestQueue(t *testing.T) *FileQueue {
	t.Helper()
	q, err := NewFileQueue(t.TempDir(), "order-events", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileQueue() error: %v", err)
	}
	return q
}

func jsonFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestEnqueueDequeueComplete(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	env, err := NewEnvelope(TypeOrderEvent, OrderEvent{
		OrderNumber:   "ORD-1700000000000",
		EventType:     "OrderCreated",
		OrderID:       1,
		CustomerEmail: "alice@example.com",
		CustomerName:  "Alice",
		TotalCents:    2997,
	})
	if err != nil {
		t.Fatalf("NewEnvelope() error: %v", err)
	}
	env.TraceParent = "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"

	if err := q.Enqueue(ctx, env); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	n, err := q.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount() error: %v", err)
	}
	if n != 1 {
		t.Errorf("pending count = %d, want 1", n)
	}

	got, token, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if got == nil {
		t.Fatal("Dequeue() returned no message")
	}
	if token == "" {
		t.Fatal("Dequeue() returned empty claim token")
	}
	if got.MessageID != env.MessageID {
		t.Errorf("message id = %q, want %q", got.MessageID, env.MessageID)
	}
	if got.TraceParent != env.TraceParent {
		t.Errorf("traceParent = %q, want %q", got.TraceParent, env.TraceParent)
	}

	var evt OrderEvent
	if err := got.Decode(&evt); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if evt.OrderNumber != "ORD-1700000000000" || evt.TotalCents != 2997 {
		t.Errorf("decoded event = %+v", evt)
	}

	if err := q.Complete(token); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	// The envelope must end up in exactly one folder.
	counts, err := q.FolderCounts()
	if err != nil {
		t.Fatalf("FolderCounts() error: %v", err)
	}
	if counts.Pending != 0 || counts.Processing != 0 || counts.Failed != 0 {
		t.Errorf("counts after complete = %+v", counts)
	}
	if counts.Completed != 1 {
		t.Errorf("completed count = %d, want 1", counts.Completed)
	}
}

func TestDequeueEmptyQueue(t *testing.T) {
	q := newTestQueue(t)

	env, token, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if env != nil {
		t.Errorf("got message %v from empty queue", env)
	}
	if token != "" {
		t.Errorf("got claim token %q from empty queue", token)
	}
}

func TestFailDeadLetters(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	env, err := NewEnvelope(TypeFulfillmentEvent, FulfillmentEvent{OrderNumber: "ORD-2"})
	if err != nil {
		t.Fatalf("NewEnvelope() error: %v", err)
	}
	if err := q.Enqueue(ctx, env); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	_, token, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if err := q.Fail(token); err != nil {
		t.Fatalf("Fail() error: %v", err)
	}

	if got := len(jsonFiles(t, q.failed)); got != 1 {
		t.Errorf("failed folder has %d files, want 1", got)
	}
	if got := len(jsonFiles(t, q.processing)); got != 0 {
		t.Errorf("processing folder has %d files, want 0", got)
	}
}

func TestCompleteAndFailEmptyTokenAreNoops(t *testing.T) {
	q := newTestQueue(t)

	if err := q.Complete(""); err != nil {
		t.Errorf("Complete(\"\") error: %v", err)
	}
	if err := q.Fail(""); err != nil {
		t.Errorf("Fail(\"\") error: %v", err)
	}
}

func TestDequeueOrderFollowsEnqueueTime(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	want := []string{"first", "second", "third"}
	for i, n := range want {
		env, err := NewEnvelope(TypeOrderEvent, OrderEvent{OrderNumber: n})
		if err != nil {
			t.Fatalf("NewEnvelope() error: %v", err)
		}
		env.EnqueuedAt = base.Add(time.Duration(i) * time.Second)
		if err := q.Enqueue(ctx, env); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
	}

	for _, n := range want {
		env, token, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue() error: %v", err)
		}
		if env == nil {
			t.Fatal("queue drained early")
		}
		var evt OrderEvent
		if err := env.Decode(&evt); err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		if evt.OrderNumber != n {
			t.Errorf("dequeued %q, want %q", evt.OrderNumber, n)
		}
		if err := q.Complete(token); err != nil {
			t.Fatalf("Complete() error: %v", err)
		}
	}
}

func TestConcurrentConsumersClaimEachMessageOnce(t *testing.T) {
	base := t.TempDir()
	producer, err := NewFileQueue(base, "order-events", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileQueue() error: %v", err)
	}
	ctx := context.Background()

	const total = 40
	sent := make(map[string]bool, total)
	for i := 0; i < total; i++ {
		env, err := NewEnvelope(TypeOrderEvent, OrderEvent{OrderID: int64(i)})
		if err != nil {
			t.Fatalf("NewEnvelope() error: %v", err)
		}
		if err := producer.Enqueue(ctx, env); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
		sent[env.MessageID] = true
	}

	// Independent consumers racing on the same directories, as separate
	// worker processes would.
	const consumers = 4
	var mu sync.Mutex
	claimed := make(map[string]int, total)
	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		q, err := NewFileQueue(base, "order-events", zerolog.Nop())
		if err != nil {
			t.Fatalf("NewFileQueue() error: %v", err)
		}
		wg.Add(1)
		go func(q *FileQueue) {
			defer wg.Done()
			for {
				env, token, err := q.Dequeue(ctx)
				if err != nil {
					t.Errorf("Dequeue() error: %v", err)
					return
				}
				if env == nil {
					return
				}
				mu.Lock()
				claimed[env.MessageID]++
				mu.Unlock()
				if err := q.Complete(token); err != nil {
					t.Errorf("Complete() error: %v", err)
				}
			}
		}(q)
	}
	wg.Wait()

	if len(claimed) != total {
		t.Errorf("claimed %d distinct messages, want %d", len(claimed), total)
	}
	for id, n := range claimed {
		if n != 1 {
			t.Errorf("message %s claimed %d times", id, n)
		}
		if !sent[id] {
			t.Errorf("claimed unknown message %s", id)
		}
	}
}

func TestDequeueDecodeErrorReturnsClaimToken(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	bad := filepath.Join(q.pending, "20250301120000000_garbage.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing poison file: %v", err)
	}

	env, token, err := q.Dequeue(ctx)
	if err == nil {
		t.Fatal("Dequeue() succeeded on poison message")
	}
	if env != nil {
		t.Errorf("got envelope %v for poison message", env)
	}
	if token == "" {
		t.Fatal("no claim token for poison message")
	}

	// The caller dead-letters it so it cannot be claimed again.
	if err := q.Fail(token); err != nil {
		t.Fatalf("Fail() error: %v", err)
	}
	if got := len(jsonFiles(t, q.failed)); got != 1 {
		t.Errorf("failed folder has %d files, want 1", got)
	}
}
