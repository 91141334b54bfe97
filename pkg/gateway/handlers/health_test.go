package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tablevox/tablevox/pkg/gateway/config"
	"github.com/tablevox/tablevox/pkg/gateway/lifecycle"
)

func TestHealthz_AlwaysOK(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Body.String() != "ok\n" {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func decodeReady(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return resp
}

func TestReadyz_ReportsCapabilities(t *testing.T) {
	h := ReadyHandler{
		Config: config.Config{
			AuthMode:        config.AuthModeDisabled,
			DatabaseURL:     "postgres://localhost/tablevox",
			StripeAPIKey:    "sk_test",
			GeocoderBaseURL: "",
		},
		Lifecycle: &lifecycle.Lifecycle{},
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	resp := decodeReady(t, rr.Body.Bytes())
	if resp["ok"] != true || resp["draining"] != false {
		t.Fatalf("resp=%v", resp)
	}
	if resp["menu_source"] != "postgres" {
		t.Fatalf("menu_source=%v", resp["menu_source"])
	}
	if resp["persistence_enabled"] != true {
		t.Fatalf("persistence_enabled=%v", resp["persistence_enabled"])
	}
	if resp["payments_enabled"] != true {
		t.Fatalf("payments_enabled=%v", resp["payments_enabled"])
	}
	if resp["geocoder_enabled"] != false {
		t.Fatalf("geocoder_enabled=%v", resp["geocoder_enabled"])
	}
}

func TestReadyz_DrainingIs503(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	h := ReadyHandler{
		Config:    config.Config{AuthMode: config.AuthModeDisabled},
		Lifecycle: lc,
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
	resp := decodeReady(t, rr.Body.Bytes())
	if resp["ok"] != false || resp["draining"] != true {
		t.Fatalf("resp=%v", resp)
	}
}

func TestReadyz_FlagsMisconfiguredAuth(t *testing.T) {
	h := ReadyHandler{
		Config:    config.Config{AuthMode: config.AuthModeRequired},
		Lifecycle: &lifecycle.Lifecycle{},
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
	resp := decodeReady(t, rr.Body.Bytes())
	issues, _ := resp["issues"].([]any)
	if len(issues) == 0 {
		t.Fatalf("expected issues, resp=%v", resp)
	}
}

func TestReadyz_MenuSourceFile(t *testing.T) {
	h := ReadyHandler{
		Config:    config.Config{AuthMode: config.AuthModeDisabled, MenuPath: "menu.json"},
		Lifecycle: &lifecycle.Lifecycle{},
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	resp := decodeReady(t, rr.Body.Bytes())
	if resp["menu_source"] != "file" {
		t.Fatalf("menu_source=%v", resp["menu_source"])
	}
}

func TestNotFound_JSONEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	NotFoundHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Error.Code != "not_found" {
		t.Fatalf("code=%q", env.Error.Code)
	}
}
