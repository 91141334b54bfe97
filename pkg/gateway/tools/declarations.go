package tools

import "github.com/tablevox/tablevox/pkg/core/providers/gemini"

// Declarations returns the canonical function declarations sent to the model
// in setup. Legacy names are never declared; the adapter folds them onto this
// schema when a stale prompt still emits one.
func Declarations() []gemini.ToolDeclaration {
	return []gemini.ToolDeclaration{
		{
			Name:        "capture_customer_info",
			Description: "Record the caller's contact details as soon as they are heard. Fields fill once; repeat calls only fill gaps.",
			Parameters: objectSchema(map[string]any{
				"name":             stringProp("Customer's name"),
				"phone":            stringProp("Phone number, exactly 10 digits"),
				"email":            stringProp("Email address, if offered"),
				"delivery_address": stringProp("Delivery address, if offered"),
			}, nil),
		},
		{
			Name:        "show_dish_details",
			Description: "Look up one dish by its spoken name and show it on the display.",
			Parameters: objectSchema(map[string]any{
				"dish_name": stringProp("Dish name as the caller said it"),
			}, []string{"dish_name"}),
		},
		{
			Name:        "add_to_cart_verbal",
			Description: "Add a dish the caller asked for to the cart. Repeating the same dish within a few seconds merges into the existing line.",
			Parameters: objectSchema(map[string]any{
				"dish_name":      stringProp("Dish name as the caller said it"),
				"quantity":       intProp("How many; defaults to 1"),
				"customizations": arrayOfStrings("Customizations such as 'extra spicy' or 'no onion'"),
			}, []string{"dish_name"}),
		},
		{
			Name:        "update_cart_item",
			Description: "Change one cart line. Use the item_id from the cart in known_facts.",
			Parameters: objectSchema(map[string]any{
				"item_id":      stringProp("Cart line identifier"),
				"action":       enumProp("What to do with the line", "increase", "decrease", "remove", "set_quantity"),
				"new_quantity": intProp("Target quantity, only for set_quantity"),
			}, []string{"item_id", "action"}),
		},
		{
			Name:        "get_cart_items",
			Description: "Read the current cart without changing anything.",
			Parameters:  objectSchema(map[string]any{}, nil),
		},
		{
			Name:        "show_cart_summary",
			Description: "Show the cart with totals on the display, e.g. before checkout.",
			Parameters:  objectSchema(map[string]any{}, nil),
		},
		{
			Name:        "verify_delivery_address",
			Description: "Geocode and confirm a spoken delivery address before a delivery order.",
			Parameters: objectSchema(map[string]any{
				"address_description": stringProp("The address as the caller described it"),
				"landmark":            stringProp("Nearby landmark, if mentioned"),
				"pincode":             stringProp("Postal code, if mentioned"),
			}, []string{"address_description"}),
		},
		{
			Name:        "finalize_order",
			Description: "Place the order once the caller confirms. Requires contact details and a non-empty cart; delivery also requires an address.",
			Parameters: objectSchema(map[string]any{
				"order_type":           enumProp("How the order is fulfilled", "delivery", "pickup"),
				"payment_method":       enumProp("How the caller pays", "cash", "card", "upi"),
				"delivery_time":        stringProp("Requested time, if any"),
				"special_instructions": stringProp("Free-form instructions for the kitchen or rider"),
			}, []string{"order_type", "payment_method"}),
		},
		{
			Name:        "create_order_circle",
			Description: "Start a shared order circle and get a code friends can join with.",
			Parameters: objectSchema(map[string]any{
				"circle_name": stringProp("A name for the group order"),
			}, []string{"circle_name"}),
		},
		{
			Name:        "join_order_circle",
			Description: "Join an existing order circle by its 6-character code.",
			Parameters: objectSchema(map[string]any{
				"circle_code": stringProp("The code, letters and digits"),
				"member_name": stringProp("Name to show in the circle, if stated"),
			}, []string{"circle_code"}),
		},
		{
			Name:        "share_cart_to_circle",
			Description: "Copy the caller's current cart lines into their circle so everyone sees them.",
			Parameters:  objectSchema(map[string]any{}, nil),
		},
		{
			Name:        "show_circle_status",
			Description: "Show who is in the circle and what everyone has shared so far.",
			Parameters:  objectSchema(map[string]any{}, nil),
		},
	}
}

func objectSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func arrayOfStrings(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

func enumProp(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values, "description": description}
}
