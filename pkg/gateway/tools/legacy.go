package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tablevox/tablevox/pkg/core/providers/gemini"
)

// legacyNames maps retired tool names onto the canonical schema. The old
// prompt era declared both spellings; only the canonical set is implemented.
var legacyNames = map[string]string{
	"add_to_cart":              "add_to_cart_verbal",
	"show_dish":                "show_dish_details",
	"collect_customer_details": "capture_customer_info",
	"verify_address":           "verify_delivery_address",
}

// legacyKeys maps the retired camelCase argument keys onto snake_case.
var legacyKeys = map[string]string{
	"dishName":            "dish_name",
	"itemId":              "item_id",
	"newQuantity":         "new_quantity",
	"customerName":        "name",
	"phoneNumber":         "phone",
	"emailAddress":        "email",
	"deliveryAddress":     "delivery_address",
	"addressDescription":  "address_description",
	"orderType":           "order_type",
	"paymentMethod":       "payment_method",
	"deliveryTime":        "delivery_time",
	"specialInstructions": "special_instructions",
	"circleName":          "circle_name",
	"circleCode":          "circle_code",
	"memberName":          "member_name",
}

// canonicalize resolves legacy call shapes onto the canonical schema and
// decodes the arguments. A canonical key always wins over its legacy twin.
func canonicalize(call gemini.FunctionCall) (string, map[string]any, error) {
	name := strings.TrimSpace(call.Name)
	if mapped, ok := legacyNames[name]; ok {
		name = mapped
	}

	args := map[string]any{}
	if len(call.Args) > 0 {
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return name, nil, fmt.Errorf("invalid arguments for %s", name)
		}
	}

	for legacy, canonical := range legacyKeys {
		v, ok := args[legacy]
		if !ok {
			continue
		}
		if _, exists := args[canonical]; !exists {
			args[canonical] = v
		}
		delete(args, legacy)
	}

	return name, args, nil
}
