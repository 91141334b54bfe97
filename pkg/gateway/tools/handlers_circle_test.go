package tools

import (
	"strings"
	"testing"

	"github.com/tablevox/tablevox/pkg/core/customer"
	"github.com/tablevox/tablevox/pkg/core/ordering"
	"github.com/tablevox/tablevox/pkg/gateway/live/protocol"
)

func TestCircleCreateShareStatus(t *testing.T) {
	circles := ordering.NewCircles()
	r := newTestRegistry(t, func(d *Deps) {
		d.Circles = circles
		d.Profile = &customer.Profile{Name: "Asha"}
	})
	wantSuccess(t, dispatch(t, r, "add_to_cart_verbal", map[string]any{"dish_name": "paneer tikka"}))

	out := dispatch(t, r, "create_order_circle", map[string]any{"circle_name": "friday dinner"})
	resp := wantSuccess(t, out)
	code := resp["circle_code"].(string)
	if len(code) != 6 {
		t.Fatalf("circle code %q, want six characters", code)
	}
	for _, c := range code {
		if !strings.ContainsRune("ABCDEFGHJKMNPQRSTUVWXYZ23456789", c) {
			t.Fatalf("circle code %q uses ambiguous character %q", code, c)
		}
	}
	wantDisplay(t, out, protocol.EventCircleUpdate)

	resp = wantSuccess(t, dispatch(t, r, "share_cart_to_circle", nil))
	view := resp["circle"].(ordering.CircleView)
	if len(view.Lines) != 1 || view.Lines[0].MemberName != "Asha" {
		t.Fatalf("lines=%v", view.Lines)
	}
	if view.Subtotal != 24900 {
		t.Fatalf("subtotal=%d, want 24900", view.Subtotal)
	}

	// A second session joins through its own registry and sees the share.
	r2 := newTestRegistry(t, func(d *Deps) {
		d.SessionID = "sess_2"
		d.Circles = circles
	})
	resp = wantSuccess(t, dispatch(t, r2, "join_order_circle", map[string]any{
		"circle_code": strings.ToLower(code),
		"member_name": "Ravi",
	}))
	view = resp["circle"].(ordering.CircleView)
	if len(view.Members) != 2 {
		t.Fatalf("members=%v, want host plus joiner", view.Members)
	}

	resp = wantSuccess(t, dispatch(t, r2, "show_circle_status", nil))
	view = resp["circle"].(ordering.CircleView)
	if len(view.Lines) != 1 {
		t.Fatalf("the joiner should see the host's share, got %v", view.Lines)
	}
}

func TestCircleShareReplacesEarlierShare(t *testing.T) {
	circles := ordering.NewCircles()
	r := newTestRegistry(t, func(d *Deps) {
		d.Circles = circles
		d.Profile = &customer.Profile{Name: "Asha"}
	})
	wantSuccess(t, dispatch(t, r, "create_order_circle", map[string]any{"circle_name": "team lunch"}))
	wantSuccess(t, dispatch(t, r, "add_to_cart_verbal", map[string]any{"dish_name": "paneer tikka"}))
	wantSuccess(t, dispatch(t, r, "share_cart_to_circle", nil))

	wantSuccess(t, dispatch(t, r, "add_to_cart_verbal", map[string]any{"dish_name": "butter naan"}))
	resp := wantSuccess(t, dispatch(t, r, "share_cart_to_circle", nil))
	view := resp["circle"].(ordering.CircleView)
	if len(view.Lines) != 2 {
		t.Fatalf("lines=%d, want the replacement share's two lines", len(view.Lines))
	}
}

func TestCircleShareRequiresMembership(t *testing.T) {
	r := newTestRegistry(t, nil)

	msg := wantError(t, dispatch(t, r, "share_cart_to_circle", nil))
	if !strings.Contains(msg, "create or join") {
		t.Fatalf("message=%q", msg)
	}
	wantError(t, dispatch(t, r, "show_circle_status", nil))
}

func TestCircleJoinUnknownCode(t *testing.T) {
	r := newTestRegistry(t, nil)

	out := dispatch(t, r, "join_order_circle", map[string]any{"circle_code": "XXXXXX"})
	if msg := wantError(t, out); msg != ordering.ErrCircleNotFound.Error() {
		t.Fatalf("message=%q", msg)
	}
	if r.circleCode != "" {
		t.Fatal("a failed join must not set the session's circle")
	}
}
