package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tablevox/tablevox/pkg/gateway/config"
)

func testConfig() config.Config {
	return config.Config{
		AuthMode:           config.AuthModeDisabled,
		APIKeys:            map[string]struct{}{},
		CORSAllowedOrigins: map[string]struct{}{},

		GeminiAPIKey:      "test-key",
		GeminiModel:       "models/gemini-2.0-flash-exp",
		VoiceName:         "Puck",
		ConnectTimeout:    time.Second,
		SetupTimeout:      time.Second,
		KeepaliveInterval: 25 * time.Second,

		SilenceDuration:       800 * time.Millisecond,
		PostSpeechFrames:      10,
		SpeechRMSThreshold:    0.02,
		InterruptRMSThreshold: 0.05,

		DedupWindow: 5 * time.Second,
		TaxRate:     0.05,
		Currency:    "inr",

		MaxAudioFrameBytes:      8192,
		MaxSessionsPerPrincipal: 2,
		MaxSessionDuration:      time.Minute,
		HandshakeTimeout:        time.Second,
		WriteTimeout:            time.Second,
		PingInterval:            20 * time.Second,

		PersistQueueSize:    16,
		ShutdownGracePeriod: time.Second,
		ReadHeaderTimeout:   time.Second,
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s, err := New(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func TestServer_UnknownRoute_ReturnsJSON404(t *testing.T) {
	s := newTestServer(t, nil)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"code":"not_found"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestServer_HealthRoutes_Reachable(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status=%d body=%q", path, rr.Code, rr.Body.String())
		}
	}
}

func TestServer_MetricsRoute_Reachable(t *testing.T) {
	s := newTestServer(t, nil)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "tablevox_sessions_active") {
		t.Fatalf("metrics output missing gauge: %q", rr.Body.String()[:min(len(rr.Body.String()), 200)])
	}
}

func TestServer_VoiceRoute_Reachable(t *testing.T) {
	s := newTestServer(t, nil)

	// A plain GET is not a websocket handshake; the route must answer with
	// an upgrade failure, not a 404.
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/voice", nil))
	if rr.Code == http.StatusNotFound {
		t.Fatalf("/v1/voice unexpectedly returned 404")
	}
}

func TestServer_RequiredAuthLeavesProbesOpen(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.AuthMode = config.AuthModeRequired
		cfg.APIKeys = map[string]struct{}{"tvx_sk_test": {}}
	})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/voice", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("voice without key: status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestServer_ResponsesCarryRequestID(t *testing.T) {
	s := newTestServer(t, nil)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if id := rr.Header().Get("X-Request-ID"); !strings.HasPrefix(id, "req_") {
		t.Fatalf("X-Request-ID=%q", id)
	}
}
