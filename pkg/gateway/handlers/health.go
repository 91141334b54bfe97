package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tablevox/tablevox/pkg/gateway/config"
	"github.com/tablevox/tablevox/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether the gateway should receive new sessions.
// Draining flips it to 503 so load balancers stop routing here while the
// process finishes its live calls.
type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK                 bool     `json:"ok"`
		Draining           bool     `json:"draining"`
		AuthMode           string   `json:"auth_mode"`
		MenuSource         string   `json:"menu_source"`
		PersistenceEnabled bool     `json:"persistence_enabled"`
		MenuCacheEnabled   bool     `json:"menu_cache_enabled"`
		PaymentsEnabled    bool     `json:"payments_enabled"`
		GeocoderEnabled    bool     `json:"geocoder_enabled"`
		Issues             []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 2)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}

	menuSource := "none"
	switch {
	case h.Config.DatabaseURL != "":
		menuSource = "postgres"
	case h.Config.MenuPath != "":
		menuSource = "file"
	}

	draining := h.Lifecycle.IsDraining()
	ok := len(issues) == 0 && !draining
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:                 ok,
		Draining:           draining,
		AuthMode:           string(h.Config.AuthMode),
		MenuSource:         menuSource,
		PersistenceEnabled: h.Config.DatabaseURL != "",
		MenuCacheEnabled:   h.Config.RedisAddr != "",
		PaymentsEnabled:    h.Config.StripeAPIKey != "",
		GeocoderEnabled:    h.Config.GeocoderBaseURL != "",
		Issues:             issues,
	})
}
