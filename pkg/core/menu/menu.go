// Package menu holds the dish catalog a session orders against and the fuzzy
// name matcher used to resolve spoken dish names.
package menu

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Dish is one orderable menu entry. Price is in minor currency units.
type Dish struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Category       string   `json:"category,omitempty"`
	Price          int64    `json:"price"`
	Veg            bool     `json:"veg,omitempty"`
	Available      bool     `json:"available"`
	Customizations []string `json:"customizations,omitempty"`
	ImageURL       string   `json:"image_url,omitempty"`
}

// Catalog is an in-memory dish set. Reads vastly outnumber writes; writes
// happen only on cache refresh.
type Catalog struct {
	mu     sync.RWMutex
	dishes []Dish
	byID   map[string]Dish
}

func NewCatalog(dishes []Dish) *Catalog {
	c := &Catalog{}
	c.Replace(dishes)
	return c
}

// Replace swaps the full dish set, e.g. after a store or cache refresh.
func (c *Catalog) Replace(dishes []Dish) {
	byID := make(map[string]Dish, len(dishes))
	copied := make([]Dish, len(dishes))
	copy(copied, dishes)
	for _, d := range copied {
		byID[d.ID] = d
	}

	c.mu.Lock()
	c.dishes = copied
	c.byID = byID
	c.mu.Unlock()
}

// Dish returns the dish with the given ID.
func (c *Catalog) Dish(id string) (Dish, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byID[id]
	return d, ok
}

// Dishes returns a copy of the catalog in stable (category, name) order.
func (c *Catalog) Dishes() []Dish {
	c.mu.RLock()
	out := make([]Dish, len(c.dishes))
	copy(out, c.dishes)
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.dishes)
}

// LoadFile reads a catalog from a JSON file holding an array of dishes.
// Dishes that do not state availability default to available.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read menu file %q: %w", path, err)
	}

	var entries []struct {
		Dish
		Available *bool `json:"available"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse menu file %q: %w", path, err)
	}

	dishes := make([]Dish, 0, len(entries))
	for i, e := range entries {
		d := e.Dish
		if strings.TrimSpace(d.ID) == "" {
			return nil, fmt.Errorf("menu file %q: dish %d has no id", path, i)
		}
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("menu file %q: dish %q has no name", path, d.ID)
		}
		d.Available = e.Available == nil || *e.Available
		dishes = append(dishes, d)
	}
	return NewCatalog(dishes), nil
}
