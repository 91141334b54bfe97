package tools

import (
	"context"
	"fmt"

	"github.com/tablevox/tablevox/pkg/core/customer"
	"github.com/tablevox/tablevox/pkg/gateway/geocode"
	"github.com/tablevox/tablevox/pkg/gateway/live/protocol"
)

func (r *Registry) captureCustomerInfo(ctx context.Context, args map[string]any) (map[string]any, []Display, error) {
	fields := customer.Fields{
		Name:    argString(args, "name"),
		Phone:   argString(args, "phone"),
		Email:   argString(args, "email"),
		Address: argString(args, "delivery_address"),
	}
	if fields == (customer.Fields{}) {
		return nil, nil, fmt.Errorf("no customer details provided")
	}

	captured, err := r.deps.Profile.Apply(fields)
	if err != nil {
		return nil, nil, err
	}

	return map[string]any{
		"captured": append([]string{}, captured...),
		"missing":  r.deps.Profile.Missing(),
	}, nil, nil
}

func (r *Registry) verifyDeliveryAddress(ctx context.Context, args map[string]any) (map[string]any, []Display, error) {
	description := argString(args, "address_description")
	if description == "" {
		return nil, nil, fmt.Errorf("address_description is required")
	}
	if r.deps.Geocoder == nil {
		return nil, nil, fmt.Errorf("address verification is not available right now")
	}

	res, err := r.deps.Geocoder.Verify(ctx, geocode.Request{
		Description: description,
		Landmark:    argString(args, "landmark"),
		Pincode:     argString(args, "pincode"),
	})
	if err != nil {
		r.deps.Logger.Warn("address verification failed", "error", err)
		return nil, nil, fmt.Errorf("couldn't verify that address, please confirm it with the caller")
	}

	r.verifiedAddress = &res
	if r.deps.Profile.Address == "" {
		r.deps.Profile.Address = res.FormattedAddress
	}

	payload := map[string]any{
		"formatted_address": res.FormattedAddress,
		"lat":               res.Lat,
		"lng":               res.Lng,
	}
	displays := []Display{{
		Event: protocol.EventAddressVerification,
		Data: map[string]any{
			"formatted_address": res.FormattedAddress,
			"lat":               res.Lat,
			"lng":               res.Lng,
			"components":        res.Components,
		},
	}}
	return payload, displays, nil
}
