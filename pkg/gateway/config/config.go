// Package config loads gateway settings from TABLEVOX_* environment
// variables. Every validation error names the variable it rejects.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// CORS for the websocket upgrade and HTTP surface; empty disables the
	// origin check.
	CORSAllowedOrigins map[string]struct{}

	// If true, client identity may be derived from proxy headers like
	// X-Forwarded-For. Only enable behind a trusted proxy or LB.
	TrustProxyHeaders bool

	// Model transport.
	GeminiAPIKey      string
	GeminiModel       string
	VoiceName         string
	ConnectTimeout    time.Duration
	SetupTimeout      time.Duration
	KeepaliveInterval time.Duration

	// Speech gate.
	SilenceDuration       time.Duration
	PostSpeechFrames      int
	SpeechRMSThreshold    float64
	InterruptRMSThreshold float64
	GateDisabled          bool

	// Ordering.
	DedupWindow time.Duration
	TaxRate     float64
	Currency    string

	// Client websocket.
	MaxAudioFrameBytes      int
	MaxAudioFPS             int
	MaxAudioBytesPerSecond  int64
	InboundBurstSeconds     int
	MaxSessionsPerPrincipal int
	MaxSessionDuration      time.Duration
	HandshakeTimeout        time.Duration
	WriteTimeout            time.Duration
	PingInterval            time.Duration

	// Collaborators; all optional, each absence degrades one capability.
	DatabaseURL     string
	RedisAddr       string
	MenuPath        string
	StripeAPIKey    string
	GeocoderBaseURL string

	PersistQueueSize    int
	ShutdownGracePeriod time.Duration
	ReadHeaderTimeout   time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("TABLEVOX_ADDR", ":8080"),
		AuthMode:                AuthMode(envOr("TABLEVOX_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                 make(map[string]struct{}),
		CORSAllowedOrigins:      make(map[string]struct{}),
		TrustProxyHeaders:       envBoolOr("TABLEVOX_TRUST_PROXY_HEADERS", false),
		GeminiAPIKey:            strings.TrimSpace(os.Getenv("TABLEVOX_GEMINI_API_KEY")),
		GeminiModel:             envOr("TABLEVOX_GEMINI_MODEL", "models/gemini-2.0-flash-exp"),
		VoiceName:               envOr("TABLEVOX_VOICE_NAME", "Puck"),
		ConnectTimeout:          envDurationOr("TABLEVOX_CONNECT_TIMEOUT", 10*time.Second),
		SetupTimeout:            envDurationOr("TABLEVOX_SETUP_TIMEOUT", 15*time.Second),
		KeepaliveInterval:       envDurationOr("TABLEVOX_KEEPALIVE_INTERVAL", 25*time.Second),
		SilenceDuration:         envDurationOr("TABLEVOX_SILENCE_DURATION", 800*time.Millisecond),
		PostSpeechFrames:        envIntOr("TABLEVOX_POST_SPEECH_FRAMES", 10),
		SpeechRMSThreshold:      envFloat64Or("TABLEVOX_SPEECH_RMS_THRESHOLD", 0.02),
		InterruptRMSThreshold:   envFloat64Or("TABLEVOX_INTERRUPT_RMS_THRESHOLD", 0.05),
		GateDisabled:            envBoolOr("TABLEVOX_GATE_DISABLED", false),
		DedupWindow:             envDurationOr("TABLEVOX_DEDUP_WINDOW", 5*time.Second),
		TaxRate:                 envFloat64Or("TABLEVOX_TAX_RATE", 0.05),
		Currency:                strings.ToLower(envOr("TABLEVOX_CURRENCY", "inr")),
		MaxAudioFrameBytes:      envIntOr("TABLEVOX_MAX_AUDIO_FRAME_BYTES", 8192),
		MaxAudioFPS:             envIntOr("TABLEVOX_MAX_AUDIO_FPS", 120),
		MaxAudioBytesPerSecond:  envInt64Or("TABLEVOX_MAX_AUDIO_BPS", 128*1024),
		InboundBurstSeconds:     envIntOr("TABLEVOX_INBOUND_BURST_SECONDS", 2),
		MaxSessionsPerPrincipal: envIntOr("TABLEVOX_MAX_SESSIONS_PER_PRINCIPAL", 2),
		MaxSessionDuration:      envDurationOr("TABLEVOX_MAX_SESSION_DURATION", 2*time.Hour),
		HandshakeTimeout:        envDurationOr("TABLEVOX_HANDSHAKE_TIMEOUT", 5*time.Second),
		WriteTimeout:            envDurationOr("TABLEVOX_WRITE_TIMEOUT", 5*time.Second),
		PingInterval:            envDurationOr("TABLEVOX_PING_INTERVAL", 20*time.Second),
		DatabaseURL:             strings.TrimSpace(os.Getenv("TABLEVOX_DATABASE_URL")),
		RedisAddr:               strings.TrimSpace(os.Getenv("TABLEVOX_REDIS_ADDR")),
		MenuPath:                strings.TrimSpace(os.Getenv("TABLEVOX_MENU_PATH")),
		StripeAPIKey:            strings.TrimSpace(os.Getenv("TABLEVOX_STRIPE_API_KEY")),
		GeocoderBaseURL:         strings.TrimSpace(os.Getenv("TABLEVOX_GEOCODER_BASE_URL")),
		PersistQueueSize:        envIntOr("TABLEVOX_PERSIST_QUEUE_SIZE", 256),
		ShutdownGracePeriod:     envDurationOr("TABLEVOX_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		ReadHeaderTimeout:       envDurationOr("TABLEVOX_READ_HEADER_TIMEOUT", 10*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("TABLEVOX_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("TABLEVOX_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}
	for _, origin := range splitCSV(os.Getenv("TABLEVOX_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("TABLEVOX_API_KEYS must be set when TABLEVOX_AUTH_MODE=required")
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("TABLEVOX_GEMINI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.GeminiModel) == "" {
		return Config{}, fmt.Errorf("TABLEVOX_GEMINI_MODEL must not be empty")
	}
	if strings.TrimSpace(cfg.VoiceName) == "" {
		return Config{}, fmt.Errorf("TABLEVOX_VOICE_NAME must not be empty")
	}
	if cfg.ConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.SetupTimeout <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_SETUP_TIMEOUT must be > 0")
	}
	if cfg.KeepaliveInterval <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_KEEPALIVE_INTERVAL must be > 0")
	}
	if cfg.SilenceDuration <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_SILENCE_DURATION must be > 0")
	}
	if cfg.PostSpeechFrames < 0 {
		return Config{}, fmt.Errorf("TABLEVOX_POST_SPEECH_FRAMES must be >= 0")
	}
	if cfg.SpeechRMSThreshold <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_SPEECH_RMS_THRESHOLD must be > 0")
	}
	if cfg.InterruptRMSThreshold <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_INTERRUPT_RMS_THRESHOLD must be > 0")
	}
	if cfg.DedupWindow <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_DEDUP_WINDOW must be > 0")
	}
	if cfg.TaxRate < 0 || cfg.TaxRate >= 1 {
		return Config{}, fmt.Errorf("TABLEVOX_TAX_RATE must be in [0, 1)")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return Config{}, fmt.Errorf("TABLEVOX_CURRENCY must not be empty")
	}
	if cfg.MaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.MaxAudioFPS < 0 {
		return Config{}, fmt.Errorf("TABLEVOX_MAX_AUDIO_FPS must be >= 0")
	}
	if cfg.MaxAudioBytesPerSecond < 0 {
		return Config{}, fmt.Errorf("TABLEVOX_MAX_AUDIO_BPS must be >= 0")
	}
	if cfg.InboundBurstSeconds < 0 {
		return Config{}, fmt.Errorf("TABLEVOX_INBOUND_BURST_SECONDS must be >= 0")
	}
	if (cfg.MaxAudioFPS > 0 || cfg.MaxAudioBytesPerSecond > 0) && cfg.InboundBurstSeconds < 1 {
		return Config{}, fmt.Errorf("TABLEVOX_INBOUND_BURST_SECONDS must be >= 1 when inbound audio limits are enabled")
	}
	if cfg.MaxSessionsPerPrincipal < 0 {
		return Config{}, fmt.Errorf("TABLEVOX_MAX_SESSIONS_PER_PRINCIPAL must be >= 0")
	}
	if cfg.MaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_MAX_SESSION_DURATION must be > 0")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.WriteTimeout <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_WRITE_TIMEOUT must be > 0")
	}
	if cfg.PingInterval <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_PING_INTERVAL must be > 0")
	}
	if cfg.PersistQueueSize <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_PERSIST_QUEUE_SIZE must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("TABLEVOX_READ_HEADER_TIMEOUT must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
