package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/tablevox/tablevox/pkg/core/customer"
	"github.com/tablevox/tablevox/pkg/core/menu"
	"github.com/tablevox/tablevox/pkg/core/ordering"
	"github.com/tablevox/tablevox/pkg/core/providers/gemini"
	"github.com/tablevox/tablevox/pkg/gateway/geocode"
	"github.com/tablevox/tablevox/pkg/gateway/live/protocol"
	"github.com/tablevox/tablevox/pkg/gateway/payments"
)

type fakeGeocoder struct {
	res    geocode.Result
	err    error
	gotReq geocode.Request
}

func (f *fakeGeocoder) Verify(ctx context.Context, req geocode.Request) (geocode.Result, error) {
	f.gotReq = req
	return f.res, f.err
}

type fakePayments struct {
	enabled bool
	intent  payments.Intent
	err     error
	gotReq  payments.IntentRequest
}

func (f *fakePayments) Enabled() bool { return f.enabled }

func (f *fakePayments) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	f.gotReq = req
	return f.intent, f.err
}

type fakeOrderStore struct {
	full       bool
	enqueued   []*ordering.Order
	history    []ordering.OrderSummary
	historyErr error
}

func (f *fakeOrderStore) EnqueueOrder(o *ordering.Order) bool {
	if f.full {
		return false
	}
	f.enqueued = append(f.enqueued, o)
	return true
}

func (f *fakeOrderStore) RecentOrders(ctx context.Context, phone string, limit int) ([]ordering.OrderSummary, error) {
	return f.history, f.historyErr
}

func testCatalog() *menu.Catalog {
	return menu.NewCatalog([]menu.Dish{
		{ID: "d1", Name: "Paneer Tikka", Price: 24900, Available: true, Category: "starters"},
		{ID: "d2", Name: "Butter Naan", Price: 6500, Available: true, Category: "breads"},
		{ID: "d3", Name: "Butter Chicken", Price: 32900, Available: true, Category: "mains"},
	})
}

func newTestRegistry(t *testing.T, mutate func(*Deps)) *Registry {
	t.Helper()
	deps := Deps{
		SessionID:    "sess_1",
		RestaurantID: "rest_1",
		Currency:     "inr",
		Catalog:      testCatalog(),
		Cart:         ordering.NewCart(ordering.CartConfig{TaxRate: 0.05}),
		Profile:      &customer.Profile{},
		Circles:      ordering.NewCircles(),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewRegistry(deps)
}

func dispatch(t *testing.T, r *Registry, name string, args map[string]any) Outcome {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return r.Dispatch(context.Background(), gemini.FunctionCall{
		ID:   "fc_" + name,
		Name: name,
		Args: raw,
	})
}

func wantSuccess(t *testing.T, out Outcome) map[string]any {
	t.Helper()
	if out.IsError {
		t.Fatalf("unexpected tool error: %v", out.Result.Response["error"])
	}
	if out.Result.Response["success"] != true {
		t.Fatalf("success=%v, want true", out.Result.Response["success"])
	}
	return out.Result.Response
}

func wantError(t *testing.T, out Outcome) string {
	t.Helper()
	if !out.IsError {
		t.Fatalf("expected a tool error, got %v", out.Result.Response)
	}
	if out.Result.Response["success"] != false {
		t.Fatalf("success=%v, want false", out.Result.Response["success"])
	}
	msg, _ := out.Result.Response["error"].(string)
	if msg == "" {
		t.Fatal("error result has no message")
	}
	return msg
}

func wantDisplay(t *testing.T, out Outcome, event protocol.DisplayEvent) Display {
	t.Helper()
	for _, d := range out.Displays {
		if d.Event == event {
			return d
		}
	}
	t.Fatalf("no %s display among %d displays", event, len(out.Displays))
	return Display{}
}

func TestDispatchUnknownToolIsStructuredError(t *testing.T) {
	r := newTestRegistry(t, nil)

	out := dispatch(t, r, "launch_rocket", nil)
	msg := wantError(t, out)
	if out.Result.ID != "fc_launch_rocket" {
		t.Fatalf("result id=%q, want the call id", out.Result.ID)
	}
	if msg != `unknown tool "launch_rocket"` {
		t.Fatalf("message=%q", msg)
	}
	if _, ok := out.Result.Response["known_facts"]; !ok {
		t.Fatal("error results must still carry known_facts")
	}
}

func TestDispatchHandlerPanicBecomesErrorResult(t *testing.T) {
	r := newTestRegistry(t, nil)
	r.handlers["boom"] = func(ctx context.Context, args map[string]any) (map[string]any, []Display, error) {
		panic("kaboom")
	}

	out := r.Dispatch(context.Background(), gemini.FunctionCall{ID: "fc_1", Name: "boom"})
	if !out.IsError {
		t.Fatal("panic should surface as an error result")
	}
	if out.Result.ID != "fc_1" {
		t.Fatalf("result id=%q, want fc_1", out.Result.ID)
	}
}

func TestDispatchMalformedArgsIsStructuredError(t *testing.T) {
	r := newTestRegistry(t, nil)

	out := r.Dispatch(context.Background(), gemini.FunctionCall{
		ID:   "fc_bad",
		Name: "add_to_cart_verbal",
		Args: json.RawMessage(`{"dish_name": `),
	})
	wantError(t, out)
}

func TestDispatchLegacyNameAndKeysTranslate(t *testing.T) {
	r := newTestRegistry(t, nil)

	out := dispatch(t, r, "add_to_cart", map[string]any{
		"dishName": "paneer tikka",
		"quantity": 2,
	})
	resp := wantSuccess(t, out)
	if resp["cart_count"] != 1 {
		t.Fatalf("cart_count=%v, want 1", resp["cart_count"])
	}
	item := resp["item"].(ordering.CartItem)
	if item.DishID != "d1" || item.Quantity != 2 {
		t.Fatalf("item=%+v, want d1 x2", item)
	}
	// The result echoes the caller's name, legacy or not.
	if out.Result.Name != "add_to_cart" {
		t.Fatalf("result name=%q, want add_to_cart", out.Result.Name)
	}
}

func TestDispatchCanonicalKeyWinsOverLegacyTwin(t *testing.T) {
	r := newTestRegistry(t, nil)

	out := dispatch(t, r, "show_dish", map[string]any{
		"dish_name": "butter naan",
		"dishName":  "butter chicken",
	})
	resp := wantSuccess(t, out)
	dish := resp["dish"].(map[string]any)
	if dish["id"] != "d2" {
		t.Fatalf("dish id=%v, want d2 (canonical key should win)", dish["id"])
	}
}

func TestKnownFactsFollowSessionState(t *testing.T) {
	store := &fakeOrderStore{history: []ordering.OrderSummary{{ID: "ord_0", Total: 5000, Status: "confirmed"}}}
	r := newTestRegistry(t, func(d *Deps) { d.Orders = store })

	out := dispatch(t, r, "capture_customer_info", map[string]any{
		"name":  "Asha",
		"phone": "98765 43210",
	})
	resp := wantSuccess(t, out)

	facts := resp["known_facts"].(map[string]any)
	cust := facts["customer"].(map[string]any)
	if cust["name"] != "Asha" || cust["phone"] != "9876543210" {
		t.Fatalf("customer facts=%v", cust)
	}

	history := facts["recent_orders"].([]ordering.OrderSummary)
	if len(history) != 1 || history[0].ID != "ord_0" {
		t.Fatalf("recent_orders=%v, want the stored history", history)
	}

	out = dispatch(t, r, "add_to_cart_verbal", map[string]any{"dish_name": "paneer tikka"})
	resp = wantSuccess(t, out)
	facts = resp["known_facts"].(map[string]any)
	cart := facts["cart"].(map[string]any)
	if cart["total"] != int64(26145) {
		t.Fatalf("cart total=%v, want 26145", cart["total"])
	}
}

func TestArgHelpersAcceptModelShapes(t *testing.T) {
	args := map[string]any{
		"quantity_num": float64(3),
		"quantity_str": "4",
		"customs_list": []any{"extra spicy", " no onion "},
		"customs_csv":  "extra spicy, no onion",
	}

	if got := argInt(args, "quantity_num", 1); got != 3 {
		t.Fatalf("argInt(float)=%d, want 3", got)
	}
	if got := argInt(args, "quantity_str", 1); got != 4 {
		t.Fatalf("argInt(string)=%d, want 4", got)
	}
	if got := argInt(args, "missing", 7); got != 7 {
		t.Fatalf("argInt(missing)=%d, want fallback 7", got)
	}

	want := []string{"extra spicy", "no onion"}
	if got := argStringSlice(args, "customs_list"); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("argStringSlice(list)=%v, want %v", got, want)
	}
	if got := argStringSlice(args, "customs_csv"); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("argStringSlice(csv)=%v, want %v", got, want)
	}
}
