// Package ordering holds the per-session cart state machine, finalized order
// types, and the collaborative order circles. All money is in minor currency
// units.
package ordering

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tablevox/tablevox/pkg/core/menu"
)

var (
	ErrItemNotFound    = errors.New("cart item not found")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrEmptyCart       = errors.New("cart is empty")
)

// CartItem is one line of the cart. LineTotal is always UnitPrice * Quantity;
// it is recomputed inside every mutation, never lazily.
type CartItem struct {
	ID             string    `json:"id"`
	DishID         string    `json:"dish_id"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPrice      int64     `json:"unit_price"`
	LineTotal      int64     `json:"line_total"`
	Customizations []string  `json:"customizations,omitempty"`
	AddedAt        time.Time `json:"added_at"`
	Source         string    `json:"source"`
}

// Totals are the derived cart amounts. Total == Subtotal + Tax.
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

// CartConfig tunes a cart. The zero value gets production defaults.
type CartConfig struct {
	// TaxRate is the fixed tax fraction applied to the subtotal.
	TaxRate float64

	// DedupWindow merges a repeated add of the same dish (same
	// customizations) into the existing line instead of creating a
	// duplicate. Guards against the model calling add twice for one
	// utterance.
	DedupWindow time.Duration

	// Now is injectable for tests.
	Now func() time.Time
}

// Cart is the authoritative order state of one session. It is owned by the
// session's dispatch goroutine and is not safe for concurrent use.
type Cart struct {
	cfg CartConfig

	items       []CartItem
	totals      Totals
	lastUpdated time.Time
}

func NewCart(cfg CartConfig) *Cart {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TaxRate < 0 {
		cfg.TaxRate = 0
	}
	return &Cart{cfg: cfg}
}

// Add appends a line for the dish, or merges into an existing line when the
// same dish with the same customizations was added within the dedup window.
// Returns the resulting line and whether a merge happened.
func (c *Cart) Add(dish menu.Dish, quantity int, customizations []string, source string) (CartItem, bool, error) {
	if quantity <= 0 {
		return CartItem{}, false, ErrInvalidQuantity
	}

	now := c.cfg.Now()
	for i := range c.items {
		line := &c.items[i]
		if line.DishID != dish.ID {
			continue
		}
		if !equalCustomizations(line.Customizations, customizations) {
			continue
		}
		if now.Sub(line.AddedAt) > c.cfg.DedupWindow {
			continue
		}
		line.Quantity += quantity
		c.recompute(now)
		return *line, true, nil
	}

	item := CartItem{
		ID:             uuid.NewString(),
		DishID:         dish.ID,
		Name:           dish.Name,
		Quantity:       quantity,
		UnitPrice:      dish.Price,
		Customizations: append([]string(nil), customizations...),
		AddedAt:        now,
		Source:         source,
	}
	c.items = append(c.items, item)
	c.recompute(now)
	return c.items[len(c.items)-1], false, nil
}

// Increase bumps a line's quantity by one.
func (c *Cart) Increase(itemID string) (CartItem, error) {
	idx := c.find(itemID)
	if idx < 0 {
		return CartItem{}, ErrItemNotFound
	}
	c.items[idx].Quantity++
	c.recompute(c.cfg.Now())
	return c.items[idx], nil
}

// Decrease lowers a line's quantity by one; at quantity one the line is
// removed. The returned item reflects the state after the mutation
// (Quantity 0 means the line is gone).
func (c *Cart) Decrease(itemID string) (CartItem, error) {
	idx := c.find(itemID)
	if idx < 0 {
		return CartItem{}, ErrItemNotFound
	}
	if c.items[idx].Quantity <= 1 {
		removed := c.items[idx]
		removed.Quantity = 0
		removed.LineTotal = 0
		c.items = append(c.items[:idx], c.items[idx+1:]...)
		c.recompute(c.cfg.Now())
		return removed, nil
	}
	c.items[idx].Quantity--
	c.recompute(c.cfg.Now())
	return c.items[idx], nil
}

// Remove deletes a line.
func (c *Cart) Remove(itemID string) (CartItem, error) {
	idx := c.find(itemID)
	if idx < 0 {
		return CartItem{}, ErrItemNotFound
	}
	removed := c.items[idx]
	c.items = append(c.items[:idx], c.items[idx+1:]...)
	c.recompute(c.cfg.Now())
	return removed, nil
}

// SetQuantity sets a line's quantity to an exact positive value.
func (c *Cart) SetQuantity(itemID string, quantity int) (CartItem, error) {
	if quantity <= 0 {
		return CartItem{}, ErrInvalidQuantity
	}
	idx := c.find(itemID)
	if idx < 0 {
		return CartItem{}, ErrItemNotFound
	}
	c.items[idx].Quantity = quantity
	c.recompute(c.cfg.Now())
	return c.items[idx], nil
}

// Items returns a copy of the lines in add order.
func (c *Cart) Items() []CartItem {
	out := make([]CartItem, len(c.items))
	copy(out, c.items)
	return out
}

// Totals returns the current derived amounts.
func (c *Cart) Totals() Totals {
	return c.totals
}

// LastUpdated returns the time of the most recent mutation.
func (c *Cart) LastUpdated() time.Time {
	return c.lastUpdated
}

func (c *Cart) Len() int {
	return len(c.items)
}

func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// Clear empties the cart, e.g. after an order is finalized.
func (c *Cart) Clear() {
	c.items = c.items[:0]
	c.recompute(c.cfg.Now())
}

func (c *Cart) find(itemID string) int {
	for i := range c.items {
		if c.items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// recompute is part of every mutation: line totals, subtotal, tax, and total
// are never read stale.
func (c *Cart) recompute(now time.Time) {
	var subtotal int64
	for i := range c.items {
		c.items[i].LineTotal = c.items[i].UnitPrice * int64(c.items[i].Quantity)
		subtotal += c.items[i].LineTotal
	}
	tax := int64(math.Round(float64(subtotal) * c.cfg.TaxRate))
	c.totals = Totals{Subtotal: subtotal, Tax: tax, Total: subtotal + tax}
	c.lastUpdated = now
}

func equalCustomizations(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
