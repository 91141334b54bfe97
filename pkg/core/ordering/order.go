package ordering

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OrderType string

const (
	OrderTypeDelivery OrderType = "delivery"
	OrderTypePickup   OrderType = "pickup"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
	PaymentUPI  PaymentMethod = "upi"
)

type OrderStatus string

const (
	// StatusConfirmed is a cash order, done at placement.
	StatusConfirmed OrderStatus = "confirmed"
	// StatusPaymentPending is a card or UPI order waiting on the payment
	// collaborator.
	StatusPaymentPending OrderStatus = "payment_pending"
)

var (
	ErrMissingCustomer = errors.New("customer name and phone are required")
	ErrMissingAddress  = errors.New("delivery orders require an address")
)

// Order is the immutable record produced by finalization. Items are a
// snapshot of the cart at that moment.
type Order struct {
	ID                  string        `json:"id"`
	RestaurantID        string        `json:"restaurant_id"`
	Items               []CartItem    `json:"items"`
	Totals              Totals        `json:"totals"`
	Type                OrderType     `json:"type"`
	PaymentMethod       PaymentMethod `json:"payment_method"`
	Status              OrderStatus   `json:"status"`
	PaymentRef          string        `json:"payment_ref,omitempty"`
	CustomerName        string        `json:"customer_name"`
	CustomerPhone       string        `json:"customer_phone"`
	DeliveryAddress     string        `json:"delivery_address,omitempty"`
	ScheduledFor        string        `json:"scheduled_for,omitempty"`
	SpecialInstructions string        `json:"special_instructions,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
}

// FinalizeParams carries everything finalization needs beyond the cart.
type FinalizeParams struct {
	RestaurantID        string
	Type                OrderType
	PaymentMethod       PaymentMethod
	CustomerName        string
	CustomerPhone       string
	DeliveryAddress     string
	ScheduledFor        string
	SpecialInstructions string
	Now                 func() time.Time
}

// Finalize validates the cart and parameters and produces the order record.
// The cart itself is not cleared; the caller does that once persistence has
// been handed off.
func Finalize(cart *Cart, p FinalizeParams) (*Order, error) {
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if p.CustomerName == "" || p.CustomerPhone == "" {
		return nil, ErrMissingCustomer
	}
	if p.Type == OrderTypeDelivery && p.DeliveryAddress == "" {
		return nil, ErrMissingAddress
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	status := StatusConfirmed
	if p.PaymentMethod == PaymentCard || p.PaymentMethod == PaymentUPI {
		status = StatusPaymentPending
	}

	return &Order{
		ID:                  uuid.NewString(),
		RestaurantID:        p.RestaurantID,
		Items:               cart.Items(),
		Totals:              cart.Totals(),
		Type:                p.Type,
		PaymentMethod:       p.PaymentMethod,
		Status:              status,
		CustomerName:        p.CustomerName,
		CustomerPhone:       p.CustomerPhone,
		DeliveryAddress:     p.DeliveryAddress,
		ScheduledFor:        p.ScheduledFor,
		SpecialInstructions: p.SpecialInstructions,
		CreatedAt:           now(),
	}, nil
}

// OrderSummary is the compact order-history view surfaced to the model as
// part of the known facts.
type OrderSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Total     int64     `json:"total"`
	Status    string    `json:"status"`
	ItemNames []string  `json:"item_names,omitempty"`
}

// Summary reduces an order to its history view.
func (o *Order) Summary() OrderSummary {
	names := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		names = append(names, item.Name)
	}
	return OrderSummary{
		ID:        o.ID,
		CreatedAt: o.CreatedAt,
		Total:     o.Totals.Total,
		Status:    string(o.Status),
		ItemNames: names,
	}
}

// ParseOrderType accepts the wire strings for an order type.
func ParseOrderType(s string) (OrderType, error) {
	switch OrderType(s) {
	case OrderTypeDelivery, OrderTypePickup:
		return OrderType(s), nil
	}
	return "", fmt.Errorf("unknown order type %q", s)
}

// ParsePaymentMethod accepts the wire strings for a payment method.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentCash, PaymentCard, PaymentUPI:
		return PaymentMethod(s), nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}
