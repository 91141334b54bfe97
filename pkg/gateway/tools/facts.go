package tools

import (
	"context"
	"time"

	"github.com/tablevox/tablevox/pkg/core/ordering"
)

const recentOrderLimit = 3

// knownFacts summarizes what the gateway already knows: captured customer
// info, the live cart, recent order history and circle membership. It rides
// on every tool result so the model never has to ask twice.
func (r *Registry) knownFacts(ctx context.Context) map[string]any {
	facts := make(map[string]any, 5)

	if profile := r.deps.Profile; profile != nil {
		cust := map[string]any{"missing": profile.Missing()}
		if profile.Name != "" {
			cust["name"] = profile.Name
		}
		if profile.Phone != "" {
			cust["phone"] = profile.Phone
		}
		if profile.Email != "" {
			cust["email"] = profile.Email
		}
		if profile.Address != "" {
			cust["address"] = profile.Address
		}
		facts["customer"] = cust
	}

	if cart := r.deps.Cart; cart != nil {
		items := cart.Items()
		lines := make([]map[string]any, 0, len(items))
		for _, item := range items {
			lines = append(lines, map[string]any{
				"item_id":    item.ID,
				"name":       item.Name,
				"quantity":   item.Quantity,
				"line_total": item.LineTotal,
			})
		}
		totals := cart.Totals()
		facts["cart"] = map[string]any{
			"items":    lines,
			"subtotal": totals.Subtotal,
			"tax":      totals.Tax,
			"total":    totals.Total,
			"currency": r.deps.Currency,
		}
	}

	if history := r.orderHistory(ctx); len(history) > 0 {
		facts["recent_orders"] = history
	}

	if r.circleCode != "" {
		facts["circle_code"] = r.circleCode
	}
	if r.verifiedAddress != nil {
		facts["verified_address"] = r.verifiedAddress.FormattedAddress
	}

	return facts
}

// orderHistory loads the caller's recent orders once per session, as soon as
// a phone number is known. A load failure is logged and read as empty.
func (r *Registry) orderHistory(ctx context.Context) []ordering.OrderSummary {
	if r.historyLoaded {
		return r.recentOrders
	}
	if r.deps.Orders == nil || r.deps.Profile == nil || r.deps.Profile.Phone == "" {
		return nil
	}

	r.historyLoaded = true
	loadCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	history, err := r.deps.Orders.RecentOrders(loadCtx, r.deps.Profile.Phone, recentOrderLimit)
	if err != nil {
		r.deps.Logger.Warn("recent order lookup failed", "error", err)
		return nil
	}
	r.recentOrders = history
	return r.recentOrders
}

// recordOrder prepends a just-finalized order to the cached history.
func (r *Registry) recordOrder(order *ordering.Order) {
	r.recentOrders = append([]ordering.OrderSummary{order.Summary()}, r.recentOrders...)
	if len(r.recentOrders) > recentOrderLimit {
		r.recentOrders = r.recentOrders[:recentOrderLimit]
	}
	r.historyLoaded = true
}
