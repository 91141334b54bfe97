// Package tools implements the model's function-call surface: the canonical
// declarations sent in setup, per-session handlers over cart and customer
// state, the legacy-name adapter, and the known-facts summary appended to
// every result.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tablevox/tablevox/pkg/core/customer"
	"github.com/tablevox/tablevox/pkg/core/menu"
	"github.com/tablevox/tablevox/pkg/core/ordering"
	"github.com/tablevox/tablevox/pkg/core/providers/gemini"
	"github.com/tablevox/tablevox/pkg/gateway/geocode"
	"github.com/tablevox/tablevox/pkg/gateway/live/protocol"
	"github.com/tablevox/tablevox/pkg/gateway/metrics"
	"github.com/tablevox/tablevox/pkg/gateway/payments"
)

// Display is one UI event produced by a handler.
type Display struct {
	Event protocol.DisplayEvent
	Data  any
}

// Outcome is everything one tool call produced: exactly one model-facing
// result plus any display events for the client.
type Outcome struct {
	Result   gemini.ToolResult
	Displays []Display
	IsError  bool
}

// Geocoder resolves spoken delivery addresses.
type Geocoder interface {
	Verify(ctx context.Context, req geocode.Request) (geocode.Result, error)
}

// Payments creates payment intents for card and upi checkouts.
type Payments interface {
	Enabled() bool
	CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error)
}

// OrderStore hands finalized orders to persistence and serves order history.
// EnqueueOrder must never block; false means the order was dropped.
type OrderStore interface {
	EnqueueOrder(order *ordering.Order) bool
	RecentOrders(ctx context.Context, phone string, limit int) ([]ordering.OrderSummary, error)
}

// Deps wires one session's state and collaborators into a Registry. Catalog,
// Cart, Profile and Circles are required; the collaborators are optional and
// degrade to user-facing tool errors when absent.
type Deps struct {
	SessionID    string
	RestaurantID string
	Currency     string

	Catalog *menu.Catalog
	Cart    *ordering.Cart
	Profile *customer.Profile
	Circles *ordering.Circles

	Geocoder Geocoder
	Payments Payments
	Orders   OrderStore

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type handlerFunc func(ctx context.Context, args map[string]any) (map[string]any, []Display, error)

// Registry dispatches function calls for one session. The session's single
// dispatch worker drives it; it is not safe for concurrent use.
type Registry struct {
	deps     Deps
	handlers map[string]handlerFunc

	circleCode      string
	verifiedAddress *geocode.Result
	recentOrders    []ordering.OrderSummary
	historyLoaded   bool
}

func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Currency == "" {
		deps.Currency = "inr"
	}

	r := &Registry{deps: deps}
	r.handlers = map[string]handlerFunc{
		"capture_customer_info":   r.captureCustomerInfo,
		"show_dish_details":       r.showDishDetails,
		"add_to_cart_verbal":      r.addToCartVerbal,
		"update_cart_item":        r.updateCartItem,
		"get_cart_items":          r.getCartItems,
		"show_cart_summary":       r.showCartSummary,
		"verify_delivery_address": r.verifyDeliveryAddress,
		"finalize_order":          r.finalizeOrder,
		"create_order_circle":     r.createOrderCircle,
		"join_order_circle":       r.joinOrderCircle,
		"share_cart_to_circle":    r.shareCartToCircle,
		"show_circle_status":      r.showCircleStatus,
	}
	return r
}

// Dispatch runs one function call to completion and always produces exactly
// one result. Unknown names, bad arguments, handler errors and panics all
// become structured error results; a handler can never kill the session.
func (r *Registry) Dispatch(ctx context.Context, call gemini.FunctionCall) (out Outcome) {
	defer func() {
		if v := recover(); v != nil {
			r.deps.Logger.Error("tool handler panic", "tool", call.Name, "panic", v)
			out = r.buildOutcome(ctx, call, nil, nil, fmt.Errorf("internal error handling %s", call.Name))
		}
	}()

	name, args, err := canonicalize(call)
	if err != nil {
		return r.buildOutcome(ctx, call, nil, nil, err)
	}

	handler, ok := r.handlers[name]
	if !ok {
		return r.buildOutcome(ctx, call, nil, nil, fmt.Errorf("unknown tool %q", call.Name))
	}

	payload, displays, err := handler(ctx, args)
	return r.buildOutcome(ctx, call, payload, displays, err)
}

// buildOutcome shapes the single result for a call. Every result, error or
// not, carries the known-facts summary so the model stays grounded.
func (r *Registry) buildOutcome(ctx context.Context, call gemini.FunctionCall, payload map[string]any, displays []Display, err error) Outcome {
	response := make(map[string]any, len(payload)+3)
	if err != nil {
		response["success"] = false
		response["error"] = err.Error()
	} else {
		response["success"] = true
		for k, v := range payload {
			response[k] = v
		}
	}
	response["known_facts"] = r.knownFacts(ctx)

	return Outcome{
		Result:   gemini.ToolResult{ID: call.ID, Name: call.Name, Response: response},
		Displays: displays,
		IsError:  err != nil,
	}
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func argInt(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

// argStringSlice accepts both a JSON array and a comma-joined string; speech
// models produce either shape for customizations.
func argStringSlice(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}
