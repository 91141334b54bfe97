package tools

import (
	"strings"
	"testing"

	"github.com/tablevox/tablevox/pkg/core/ordering"
	"github.com/tablevox/tablevox/pkg/gateway/live/protocol"
)

func TestAddToCartMatchesFuzzyAndEmitsDisplay(t *testing.T) {
	r := newTestRegistry(t, nil)

	out := dispatch(t, r, "add_to_cart_verbal", map[string]any{
		"dish_name":      "tikka",
		"quantity":       2,
		"customizations": []any{"extra spicy"},
	})
	resp := wantSuccess(t, out)

	item := resp["item"].(ordering.CartItem)
	if item.DishID != "d1" {
		t.Fatalf("matched dish %q, want d1 for a containment query", item.DishID)
	}
	if item.Quantity != 2 || item.LineTotal != 49800 {
		t.Fatalf("item=%+v, want quantity 2 line total 49800", item)
	}
	if got := item.Customizations; len(got) != 1 || got[0] != "extra spicy" {
		t.Fatalf("customizations=%v", got)
	}

	d := wantDisplay(t, out, protocol.EventCartItemAdded)
	data := d.Data.(map[string]any)
	if data["merged"] != false {
		t.Fatalf("merged=%v, want false on a first add", data["merged"])
	}
}

func TestAddToCartMergesRepeatWithinWindow(t *testing.T) {
	r := newTestRegistry(t, nil)

	wantSuccess(t, dispatch(t, r, "add_to_cart_verbal", map[string]any{"dish_name": "butter naan"}))
	out := dispatch(t, r, "add_to_cart_verbal", map[string]any{"dish_name": "butter naan"})
	resp := wantSuccess(t, out)

	if resp["merged"] != true {
		t.Fatalf("merged=%v, want true for an immediate repeat", resp["merged"])
	}
	if resp["cart_count"] != 1 {
		t.Fatalf("cart_count=%v, want a single merged line", resp["cart_count"])
	}
	item := resp["item"].(ordering.CartItem)
	if item.Quantity != 2 {
		t.Fatalf("quantity=%d, want 2 after the merge", item.Quantity)
	}
}

func TestAddToCartUnknownDish(t *testing.T) {
	r := newTestRegistry(t, nil)

	out := dispatch(t, r, "add_to_cart_verbal", map[string]any{"dish_name": "sushi platter"})
	msg := wantError(t, out)
	if !strings.Contains(msg, "sushi platter") {
		t.Fatalf("message=%q, should name the failing query", msg)
	}
}

func TestUpdateCartItemActions(t *testing.T) {
	r := newTestRegistry(t, nil)
	resp := wantSuccess(t, dispatch(t, r, "add_to_cart_verbal", map[string]any{"dish_name": "butter chicken"}))
	itemID := resp["item"].(ordering.CartItem).ID

	resp = wantSuccess(t, dispatch(t, r, "update_cart_item", map[string]any{"item_id": itemID, "action": "increase"}))
	if got := resp["item"].(ordering.CartItem).Quantity; got != 2 {
		t.Fatalf("after increase quantity=%d, want 2", got)
	}

	resp = wantSuccess(t, dispatch(t, r, "update_cart_item", map[string]any{"item_id": itemID, "action": "set_quantity", "new_quantity": 5}))
	if got := resp["item"].(ordering.CartItem).Quantity; got != 5 {
		t.Fatalf("after set_quantity quantity=%d, want 5", got)
	}

	resp = wantSuccess(t, dispatch(t, r, "update_cart_item", map[string]any{"item_id": itemID, "action": "decrease"}))
	if got := resp["item"].(ordering.CartItem).Quantity; got != 4 {
		t.Fatalf("after decrease quantity=%d, want 4", got)
	}

	out := dispatch(t, r, "update_cart_item", map[string]any{"item_id": itemID, "action": "remove"})
	resp = wantSuccess(t, out)
	if resp["cart_count"] != 0 {
		t.Fatalf("cart_count=%v, want an empty cart after remove", resp["cart_count"])
	}
	wantDisplay(t, out, protocol.EventCartUpdated)
}

func TestUpdateCartItemRejectsBadInput(t *testing.T) {
	r := newTestRegistry(t, nil)
	resp := wantSuccess(t, dispatch(t, r, "add_to_cart_verbal", map[string]any{"dish_name": "butter naan"}))
	itemID := resp["item"].(ordering.CartItem).ID

	wantError(t, dispatch(t, r, "update_cart_item", map[string]any{"item_id": itemID, "action": "explode"}))
	wantError(t, dispatch(t, r, "update_cart_item", map[string]any{"item_id": itemID, "action": "set_quantity"}))
	wantError(t, dispatch(t, r, "update_cart_item", map[string]any{"item_id": "nope", "action": "increase"}))

	resp = wantSuccess(t, dispatch(t, r, "get_cart_items", nil))
	items := resp["items"].([]ordering.CartItem)
	if len(items) != 1 || items[0].Quantity != 1 {
		t.Fatalf("items=%v, want the single untouched line", items)
	}
}

func TestShowCartSummaryDisplaysTotals(t *testing.T) {
	r := newTestRegistry(t, nil)
	wantSuccess(t, dispatch(t, r, "add_to_cart_verbal", map[string]any{"dish_name": "paneer tikka"}))
	wantSuccess(t, dispatch(t, r, "add_to_cart_verbal", map[string]any{"dish_name": "butter naan", "quantity": 2}))

	out := dispatch(t, r, "show_cart_summary", nil)
	resp := wantSuccess(t, out)
	totals := resp["totals"].(ordering.Totals)
	if totals.Subtotal != 37900 {
		t.Fatalf("subtotal=%d, want 37900", totals.Subtotal)
	}
	if totals.Total != totals.Subtotal+totals.Tax {
		t.Fatalf("totals=%+v, want total = subtotal + tax", totals)
	}

	d := wantDisplay(t, out, protocol.EventOrderSummary)
	data := d.Data.(map[string]any)
	if data["currency"] != "inr" {
		t.Fatalf("currency=%v, want inr", data["currency"])
	}
}
