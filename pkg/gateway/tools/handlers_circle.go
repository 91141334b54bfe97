package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tablevox/tablevox/pkg/gateway/live/protocol"
)

// memberName picks the display name for this session inside a circle.
func (r *Registry) memberName(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if r.deps.Profile != nil && r.deps.Profile.Name != "" {
		return r.deps.Profile.Name
	}
	return "Guest"
}

func (r *Registry) createOrderCircle(ctx context.Context, args map[string]any) (map[string]any, []Display, error) {
	name := argString(args, "circle_name")
	if name == "" {
		return nil, nil, fmt.Errorf("circle_name is required")
	}

	view, err := r.deps.Circles.Create(name, r.deps.SessionID, r.memberName(""))
	if err != nil {
		return nil, nil, err
	}
	r.circleCode = view.Code

	payload := map[string]any{
		"circle_code": view.Code,
		"circle":      view,
	}
	displays := []Display{{Event: protocol.EventCircleUpdate, Data: view}}
	return payload, displays, nil
}

func (r *Registry) joinOrderCircle(ctx context.Context, args map[string]any) (map[string]any, []Display, error) {
	code := strings.ToUpper(argString(args, "circle_code"))
	if code == "" {
		return nil, nil, fmt.Errorf("circle_code is required")
	}

	view, err := r.deps.Circles.Join(code, r.deps.SessionID, r.memberName(argString(args, "member_name")))
	if err != nil {
		return nil, nil, err
	}
	r.circleCode = view.Code

	payload := map[string]any{
		"circle_code": view.Code,
		"circle":      view,
	}
	displays := []Display{{Event: protocol.EventCircleUpdate, Data: view}}
	return payload, displays, nil
}

func (r *Registry) shareCartToCircle(ctx context.Context, args map[string]any) (map[string]any, []Display, error) {
	if r.circleCode == "" {
		return nil, nil, fmt.Errorf("create or join an order circle first")
	}

	view, err := r.deps.Circles.Share(r.circleCode, r.deps.SessionID, r.deps.Cart.Items())
	if err != nil {
		return nil, nil, err
	}

	payload := map[string]any{
		"circle_code": view.Code,
		"circle":      view,
	}
	displays := []Display{{Event: protocol.EventCircleUpdate, Data: view}}
	return payload, displays, nil
}

func (r *Registry) showCircleStatus(ctx context.Context, args map[string]any) (map[string]any, []Display, error) {
	if r.circleCode == "" {
		return nil, nil, fmt.Errorf("create or join an order circle first")
	}

	view, err := r.deps.Circles.Status(r.circleCode)
	if err != nil {
		return nil, nil, err
	}

	payload := map[string]any{
		"circle_code": view.Code,
		"circle":      view,
	}
	displays := []Display{{Event: protocol.EventCircleUpdate, Data: view}}
	return payload, displays, nil
}
