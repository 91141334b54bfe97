package handlers

import (
	"fmt"
	"strings"

	"github.com/tablevox/tablevox/pkg/core/menu"
	"github.com/tablevox/tablevox/pkg/gateway/live/protocol"
)

// systemPrompt assembles the model's standing instructions for one call:
// the waiter persona, the house rules for tool use, and a compact menu
// summary so common questions never need a tool round trip.
func systemPrompt(hello protocol.ClientHello, catalog *menu.Catalog, currency string) string {
	var b strings.Builder

	b.WriteString("You are a friendly, efficient voice waiter taking a phone order for a restaurant. ")
	b.WriteString("Keep replies short and natural for speech: one or two sentences, no lists, no markdown. ")
	if lang := strings.TrimSpace(hello.Language); lang != "" {
		fmt.Fprintf(&b, "Speak %s. ", lang)
	}
	if hello.Caller != nil && strings.TrimSpace(hello.Caller.Name) != "" {
		fmt.Fprintf(&b, "The caller's name is %s; greet them by name. ", strings.TrimSpace(hello.Caller.Name))
	}
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Every cart change, checkout step and lookup goes through a tool call. Never claim an item was added or an order placed unless the tool succeeded.\n")
	b.WriteString("- Offer only dishes from the menu below. If something is unavailable or unknown, say so and suggest an alternative.\n")
	b.WriteString("- Tool results include the facts already captured (customer details, cart, recent orders). Do not ask for information listed there.\n")
	b.WriteString("- Before finalizing, read back the order and the total, and confirm the order type, payment method and any delivery address.\n")
	b.WriteString("- Quantities, customizations and prices come from tool results, never from memory.\n")

	dishes := catalog.Dishes()
	if len(dishes) == 0 {
		b.WriteString("\nThe menu is not loaded; use the menu tools to look dishes up before promising anything.\n")
		return b.String()
	}

	b.WriteString("\nMenu:\n")
	category := ""
	for _, d := range dishes {
		if !d.Available {
			continue
		}
		if d.Category != category {
			category = d.Category
			fmt.Fprintf(&b, "%s:\n", category)
		}
		fmt.Fprintf(&b, "- %s (%s)", d.Name, formatMinor(d.Price, currency))
		if d.Veg {
			b.WriteString(" [veg]")
		}
		if len(d.Customizations) > 0 {
			fmt.Fprintf(&b, " options: %s", strings.Join(d.Customizations, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatMinor(amount int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", strings.ToUpper(currency), amount/100, amount%100)
}
