package tools

import (
	"context"
	"fmt"

	"github.com/tablevox/tablevox/pkg/core/ordering"
	"github.com/tablevox/tablevox/pkg/gateway/live/protocol"
	"github.com/tablevox/tablevox/pkg/gateway/payments"
)

func (r *Registry) finalizeOrder(ctx context.Context, args map[string]any) (map[string]any, []Display, error) {
	orderType, err := ordering.ParseOrderType(argString(args, "order_type"))
	if err != nil {
		return nil, nil, err
	}
	method, err := ordering.ParsePaymentMethod(argString(args, "payment_method"))
	if err != nil {
		return nil, nil, err
	}
	if !r.deps.Profile.HasContact() {
		return nil, nil, ordering.ErrMissingCustomer
	}

	deliveryAddress, err := r.deliveryAddress(orderType)
	if err != nil {
		return nil, nil, err
	}

	order, err := ordering.Finalize(r.deps.Cart, ordering.FinalizeParams{
		RestaurantID:        r.deps.RestaurantID,
		Type:                orderType,
		PaymentMethod:       method,
		CustomerName:        r.deps.Profile.Name,
		CustomerPhone:       r.deps.Profile.Phone,
		DeliveryAddress:     deliveryAddress,
		ScheduledFor:        argString(args, "delivery_time"),
		SpecialInstructions: argString(args, "special_instructions"),
		Now:                 r.deps.Now,
	})
	if err != nil {
		return nil, nil, err
	}

	displays := []Display{{
		Event: protocol.EventCheckoutSummary,
		Data: map[string]any{
			"order_id":       order.ID,
			"items":          order.Items,
			"totals":         order.Totals,
			"order_type":     order.Type,
			"payment_method": order.PaymentMethod,
			"currency":       r.deps.Currency,
		},
	}}

	paymentNote := ""
	if order.Status == ordering.StatusPaymentPending {
		if r.deps.Payments != nil && r.deps.Payments.Enabled() {
			intent, perr := r.deps.Payments.CreateIntent(ctx, payments.IntentRequest{
				Amount:   order.Totals.Total,
				Currency: r.deps.Currency,
				Method:   string(order.PaymentMethod),
				Metadata: map[string]string{
					"order_id":      order.ID,
					"restaurant_id": order.RestaurantID,
				},
			})
			if perr != nil {
				r.deps.Logger.Warn("payment intent creation failed", "order_id", order.ID, "error", perr)
				return nil, nil, fmt.Errorf("couldn't start the %s payment, offer cash or retry", order.PaymentMethod)
			}
			order.PaymentRef = intent.ID
		} else {
			paymentNote = "payment will be collected offline"
		}
		displays = append(displays, Display{
			Event: protocol.EventPaymentPending,
			Data: map[string]any{
				"order_id":       order.ID,
				"payment_method": order.PaymentMethod,
				"payment_ref":    order.PaymentRef,
				"amount":         order.Totals.Total,
				"currency":       r.deps.Currency,
				"note":           paymentNote,
			},
		})
	} else {
		displays = append(displays, Display{
			Event: protocol.EventOrderConfirmed,
			Data: map[string]any{
				"order_id":   order.ID,
				"order_type": order.Type,
				"total":      order.Totals.Total,
				"currency":   r.deps.Currency,
			},
		})
	}

	if r.deps.Orders != nil {
		if !r.deps.Orders.EnqueueOrder(order) {
			r.deps.Logger.Warn("persistence queue full, order dropped", "order_id", order.ID)
		}
	}

	r.deps.Cart.Clear()
	r.recordOrder(order)
	r.deps.Metrics.RecordOrderFinalized(string(order.Type))

	payload := map[string]any{
		"order_id":       order.ID,
		"status":         order.Status,
		"order_type":     order.Type,
		"payment_method": order.PaymentMethod,
		"totals":         order.Totals,
	}
	if order.PaymentRef != "" {
		payload["payment_ref"] = order.PaymentRef
	}
	if paymentNote != "" {
		payload["payment_note"] = paymentNote
	}
	return payload, displays, nil
}

// deliveryAddress resolves the address a delivery order ships to. With a
// geocoder wired, the address must have been verified; without one, the raw
// captured address is accepted.
func (r *Registry) deliveryAddress(orderType ordering.OrderType) (string, error) {
	if orderType != ordering.OrderTypeDelivery {
		return "", nil
	}
	if r.verifiedAddress != nil {
		return r.verifiedAddress.FormattedAddress, nil
	}
	if r.deps.Profile.Address == "" {
		return "", ordering.ErrMissingAddress
	}
	if r.deps.Geocoder != nil {
		return "", fmt.Errorf("verify the delivery address before finalizing")
	}
	return r.deps.Profile.Address, nil
}
