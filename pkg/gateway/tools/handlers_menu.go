package tools

import (
	"context"
	"fmt"

	"github.com/tablevox/tablevox/pkg/gateway/live/protocol"
)

func (r *Registry) showDishDetails(ctx context.Context, args map[string]any) (map[string]any, []Display, error) {
	query := argString(args, "dish_name")
	if query == "" {
		return nil, nil, fmt.Errorf("dish_name is required")
	}

	match, ok := r.deps.Catalog.Best(query)
	if !ok {
		return nil, nil, fmt.Errorf("no dish matching %q on the menu", query)
	}

	dish := match.Dish
	payload := map[string]any{
		"dish": map[string]any{
			"id":             dish.ID,
			"name":           dish.Name,
			"description":    dish.Description,
			"category":       dish.Category,
			"price":          dish.Price,
			"veg":            dish.Veg,
			"customizations": dish.Customizations,
		},
		"match_rule": string(match.Rule),
	}
	displays := []Display{{Event: protocol.EventDishCard, Data: dish}}
	return payload, displays, nil
}
