package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tablevox/tablevox/pkg/core/customer"
	"github.com/tablevox/tablevox/pkg/core/menu"
	"github.com/tablevox/tablevox/pkg/core/ordering"
	"github.com/tablevox/tablevox/pkg/core/providers/gemini"
	"github.com/tablevox/tablevox/pkg/gateway/tools"
)

func testRegistry() *tools.Registry {
	return tools.NewRegistry(tools.Deps{
		SessionID:    "sess_1",
		RestaurantID: "rest_1",
		Currency:     "inr",
		Catalog: menu.NewCatalog([]menu.Dish{
			{ID: "d1", Name: "Paneer Tikka", Price: 24900, Available: true, Category: "starters"},
		}),
		Cart:    ordering.NewCart(ordering.CartConfig{TaxRate: 0.05}),
		Profile: &customer.Profile{},
		Circles: ordering.NewCircles(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func cartCall(id string) gemini.FunctionCall {
	return gemini.FunctionCall{ID: id, Name: "get_cart_items", Args: json.RawMessage(`{}`)}
}

func awaitResult(t *testing.T, d *dispatcher) tools.Outcome {
	t.Helper()
	select {
	case out := <-d.Results():
		return out
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a tool result")
		return tools.Outcome{}
	}
}

func TestDispatcherAnswersInArrivalOrder(t *testing.T) {
	d := newDispatcher(testRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)), nil, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	if !d.Enqueue(cartCall("fc_1")) {
		t.Fatalf("first enqueue refused")
	}
	if !d.Enqueue(cartCall("fc_2")) {
		t.Fatalf("second enqueue refused")
	}

	first := awaitResult(t, d)
	if first.Result.ID != "fc_1" {
		t.Fatalf("first result ID=%q, want fc_1", first.Result.ID)
	}
	second := awaitResult(t, d)
	if second.Result.ID != "fc_2" {
		t.Fatalf("second result ID=%q, want fc_2", second.Result.ID)
	}
}

func TestDispatcherAbsorbsDuplicateCallID(t *testing.T) {
	d := newDispatcher(testRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)), nil, 8)

	if !d.Enqueue(cartCall("fc_dup")) {
		t.Fatalf("enqueue refused")
	}
	if !d.Enqueue(cartCall("fc_dup")) {
		t.Fatalf("duplicate should be absorbed, not refused")
	}
	if got := len(d.jobs); got != 1 {
		t.Fatalf("queued jobs=%d, want 1", got)
	}
}

func TestDispatcherSkipsCanceledCall(t *testing.T) {
	d := newDispatcher(testRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)), nil, 8)

	if !d.Enqueue(cartCall("fc_canceled")) {
		t.Fatalf("enqueue refused")
	}
	if !d.Enqueue(cartCall("fc_kept")) {
		t.Fatalf("enqueue refused")
	}
	d.CancelIDs([]string{"fc_canceled", "", "  "})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	out := awaitResult(t, d)
	if out.Result.ID != "fc_kept" {
		t.Fatalf("result ID=%q, want fc_kept (canceled call must not answer)", out.Result.ID)
	}
	select {
	case extra := <-d.Results():
		t.Fatalf("unexpected extra result %q", extra.Result.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherQueueFullRefusesAndForgets(t *testing.T) {
	d := newDispatcher(testRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)), nil, 1)

	if !d.Enqueue(cartCall("fc_a")) {
		t.Fatalf("enqueue refused with empty queue")
	}
	if d.Enqueue(cartCall("fc_b")) {
		t.Fatalf("expected refusal with a full queue")
	}

	// The refused ID must be forgotten so a later retry is not treated as a
	// duplicate.
	<-d.jobs
	if !d.Enqueue(cartCall("fc_b")) {
		t.Fatalf("retry after refusal should be admitted")
	}

	// The admitted ID stays remembered even after its job drained.
	if !d.Enqueue(cartCall("fc_a")) {
		t.Fatalf("repeat of an admitted ID should be absorbed")
	}
	if got := len(d.jobs); got != 1 {
		t.Fatalf("queued jobs=%d, want 1", got)
	}
}
