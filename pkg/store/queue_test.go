package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tablevox/tablevox/pkg/core/ordering"
)

type fakeBackend struct {
	mu      sync.Mutex
	saved   []string
	fail    map[string]error
	history []ordering.OrderSummary

	// started is signaled at SaveOrder entry; release, when non-nil, blocks
	// SaveOrder until closed. Both let tests pin the worker mid-save.
	started chan struct{}
	release chan struct{}
}

func (b *fakeBackend) SaveOrder(ctx context.Context, order *ordering.Order) error {
	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.release != nil {
		<-b.release
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail[order.ID]; err != nil {
		return err
	}
	b.saved = append(b.saved, order.ID)
	return nil
}

func (b *fakeBackend) RecentOrders(ctx context.Context, phone string, limit int) ([]ordering.OrderSummary, error) {
	return b.history, nil
}

func (b *fakeBackend) savedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.saved))
	copy(out, b.saved)
	return out
}

func testOrder(id string) *ordering.Order {
	return &ordering.Order{
		ID:            id,
		RestaurantID:  "rest_1",
		CustomerName:  "Asha",
		CustomerPhone: "9876543210",
		Type:          ordering.OrderTypePickup,
		PaymentMethod: ordering.PaymentCash,
		Status:        ordering.StatusConfirmed,
		CreatedAt:     time.Unix(1700000000, 0),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestQueuePersistsInBackground(t *testing.T) {
	backend := &fakeBackend{}
	q := NewQueue(backend, discardLogger(), nil, QueueConfig{})

	if !q.EnqueueOrder(testOrder("ord_1")) {
		t.Fatalf("enqueue returned false on an empty queue")
	}
	waitFor(t, "order to persist", func() bool {
		ids := backend.savedIDs()
		return len(ids) == 1 && ids[0] == "ord_1"
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestQueueFullDropsWithoutBlocking(t *testing.T) {
	backend := &fakeBackend{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	q := NewQueue(backend, discardLogger(), nil, QueueConfig{Size: 1})

	if !q.EnqueueOrder(testOrder("ord_a")) {
		t.Fatalf("enqueue ord_a returned false")
	}
	<-backend.started

	if !q.EnqueueOrder(testOrder("ord_b")) {
		t.Fatalf("enqueue ord_b returned false with an empty buffer")
	}
	if q.EnqueueOrder(testOrder("ord_c")) {
		t.Fatalf("enqueue ord_c succeeded on a full buffer")
	}

	close(backend.release)
	waitFor(t, "both surviving orders to persist", func() bool {
		return len(backend.savedIDs()) == 2
	})

	ids := backend.savedIDs()
	if ids[0] != "ord_a" || ids[1] != "ord_b" {
		t.Fatalf("saved=%v, want [ord_a ord_b]", ids)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestQueueWorkerFailureIsContained(t *testing.T) {
	backend := &fakeBackend{
		fail: map[string]error{"ord_bad": errors.New("connection reset")},
	}
	q := NewQueue(backend, discardLogger(), nil, QueueConfig{})

	q.EnqueueOrder(testOrder("ord_bad"))
	q.EnqueueOrder(testOrder("ord_good"))

	waitFor(t, "the good order to persist", func() bool {
		ids := backend.savedIDs()
		return len(ids) == 1 && ids[0] == "ord_good"
	})

	if !q.EnqueueOrder(testOrder("ord_after")) {
		t.Fatalf("queue stopped accepting after a worker failure")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestQueueCloseDrainsRemaining(t *testing.T) {
	backend := &fakeBackend{}
	q := NewQueue(backend, discardLogger(), nil, QueueConfig{Size: 8})

	for _, id := range []string{"ord_1", "ord_2", "ord_3"} {
		if !q.EnqueueOrder(testOrder(id)) {
			t.Fatalf("enqueue %s returned false", id)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := len(backend.savedIDs()); got != 3 {
		t.Fatalf("saved %d orders, want 3", got)
	}

	if q.EnqueueOrder(testOrder("ord_late")) {
		t.Fatalf("enqueue succeeded after close")
	}
}

func TestQueueRecentOrdersPassThrough(t *testing.T) {
	backend := &fakeBackend{
		history: []ordering.OrderSummary{{ID: "ord_7", Total: 52400, Status: "confirmed"}},
	}
	q := NewQueue(backend, discardLogger(), nil, QueueConfig{})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = q.Close(ctx)
	}()

	got, err := q.RecentOrders(context.Background(), "9876543210", 5)
	if err != nil {
		t.Fatalf("recent orders: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ord_7" {
		t.Fatalf("history=%v, want the backend's single summary", got)
	}
}
