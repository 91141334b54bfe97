package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tablevox/tablevox/pkg/core/ordering"
	"github.com/tablevox/tablevox/pkg/gateway/live/protocol"
)

func (r *Registry) addToCartVerbal(ctx context.Context, args map[string]any) (map[string]any, []Display, error) {
	query := argString(args, "dish_name")
	if query == "" {
		return nil, nil, fmt.Errorf("dish_name is required")
	}
	quantity := argInt(args, "quantity", 1)
	customizations := argStringSlice(args, "customizations")

	match, ok := r.deps.Catalog.Best(query)
	if !ok {
		return nil, nil, fmt.Errorf("no dish matching %q on the menu", query)
	}

	item, merged, err := r.deps.Cart.Add(match.Dish, quantity, customizations, "voice")
	if err != nil {
		return nil, nil, err
	}

	totals := r.deps.Cart.Totals()
	payload := map[string]any{
		"item":       item,
		"merged":     merged,
		"cart_count": r.deps.Cart.Len(),
		"totals":     totals,
	}
	displays := []Display{{
		Event: protocol.EventCartItemAdded,
		Data: map[string]any{
			"item":   item,
			"merged": merged,
			"totals": totals,
		},
	}}
	return payload, displays, nil
}

func (r *Registry) updateCartItem(ctx context.Context, args map[string]any) (map[string]any, []Display, error) {
	itemID := argString(args, "item_id")
	if itemID == "" {
		return nil, nil, fmt.Errorf("item_id is required")
	}
	action := strings.ToLower(argString(args, "action"))

	var (
		item ordering.CartItem
		err  error
	)
	switch action {
	case "increase":
		item, err = r.deps.Cart.Increase(itemID)
	case "decrease":
		item, err = r.deps.Cart.Decrease(itemID)
	case "remove":
		item, err = r.deps.Cart.Remove(itemID)
	case "set_quantity":
		quantity := argInt(args, "new_quantity", 0)
		if quantity <= 0 {
			return nil, nil, fmt.Errorf("new_quantity must be a positive number")
		}
		item, err = r.deps.Cart.SetQuantity(itemID, quantity)
	default:
		return nil, nil, fmt.Errorf("unknown action %q, expected increase, decrease, remove or set_quantity", action)
	}
	if err != nil {
		return nil, nil, err
	}

	totals := r.deps.Cart.Totals()
	payload := map[string]any{
		"item":       item,
		"action":     action,
		"cart_count": r.deps.Cart.Len(),
		"totals":     totals,
	}
	displays := []Display{{
		Event: protocol.EventCartUpdated,
		Data: map[string]any{
			"item":   item,
			"action": action,
			"totals": totals,
		},
	}}
	return payload, displays, nil
}

func (r *Registry) getCartItems(ctx context.Context, args map[string]any) (map[string]any, []Display, error) {
	return map[string]any{
		"items":  r.deps.Cart.Items(),
		"count":  r.deps.Cart.Len(),
		"totals": r.deps.Cart.Totals(),
	}, nil, nil
}

func (r *Registry) showCartSummary(ctx context.Context, args map[string]any) (map[string]any, []Display, error) {
	items := r.deps.Cart.Items()
	totals := r.deps.Cart.Totals()

	payload := map[string]any{
		"items":  items,
		"count":  len(items),
		"totals": totals,
	}
	displays := []Display{{
		Event: protocol.EventOrderSummary,
		Data: map[string]any{
			"items":    items,
			"totals":   totals,
			"currency": r.deps.Currency,
		},
	}}
	return payload, displays, nil
}
