package auth

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestParseBearer(t *testing.T) {
	cases := []struct {
		name   string
		header string
		token  string
		ok     bool
	}{
		{name: "standard scheme", header: "Bearer tvx_sk_live", token: "tvx_sk_live", ok: true},
		{name: "lowercase scheme", header: "bearer tvx_sk_live", token: "tvx_sk_live", ok: true},
		{name: "padded token", header: "Bearer   tvx_sk_live  ", token: "tvx_sk_live", ok: true},
		{name: "missing header", header: "", ok: false},
		{name: "empty token", header: "Bearer   ", ok: false},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", ok: false},
		{name: "scheme only", header: "Bearer", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/voice", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			token, ok := ParseBearer(r)
			if ok != tc.ok {
				t.Fatalf("ok=%v, want %v", ok, tc.ok)
			}
			if token != tc.token {
				t.Fatalf("token=%q, want %q", token, tc.token)
			}
		})
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFrom(ctx); ok {
		t.Fatal("empty context should carry no principal")
	}

	ctx = WithPrincipal(ctx, &Principal{APIKey: "tvx_sk_live"})
	p, ok := PrincipalFrom(ctx)
	if !ok {
		t.Fatal("expected principal")
	}
	if p.APIKey != "tvx_sk_live" {
		t.Fatalf("api_key=%q", p.APIKey)
	}

	if _, ok := PrincipalFrom(WithPrincipal(context.Background(), nil)); ok {
		t.Fatal("nil principal should not be reported as present")
	}
}
