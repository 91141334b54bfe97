package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tablevox/tablevox/pkg/core/customer"
	"github.com/tablevox/tablevox/pkg/core/gate"
	"github.com/tablevox/tablevox/pkg/core/menu"
	"github.com/tablevox/tablevox/pkg/core/ordering"
	"github.com/tablevox/tablevox/pkg/core/providers/gemini"
	"github.com/tablevox/tablevox/pkg/gateway/apierror"
	"github.com/tablevox/tablevox/pkg/gateway/config"
	"github.com/tablevox/tablevox/pkg/gateway/lifecycle"
	"github.com/tablevox/tablevox/pkg/gateway/live/protocol"
	"github.com/tablevox/tablevox/pkg/gateway/live/session"
	"github.com/tablevox/tablevox/pkg/gateway/live/sessions"
	"github.com/tablevox/tablevox/pkg/gateway/metrics"
	"github.com/tablevox/tablevox/pkg/gateway/mw"
	"github.com/tablevox/tablevox/pkg/gateway/principal"
	"github.com/tablevox/tablevox/pkg/gateway/tools"
	"github.com/tablevox/tablevox/pkg/store"
)

const menuLoadTimeout = 5 * time.Second

// ModelDialer opens the upstream speech-to-speech session. Tests substitute
// a scripted model; production dials Gemini Live.
type ModelDialer func(hello protocol.ClientHello, prompt string, logger *slog.Logger) (session.Model, error)

// VoiceHandler owns /v1/voice: it upgrades the socket, validates the hello,
// assembles the per-session collaborators, dials the model, and hands the
// connection to the session engine.
type VoiceHandler struct {
	Config    config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Manager

	// Menu serves the per-restaurant catalog; nil without a store. FileCatalog
	// is the storeless fallback; nil unless a menu file is configured.
	Menu        store.MenuSource
	FileCatalog *menu.Catalog

	Geocoder tools.Geocoder
	Payments tools.Payments
	Orders   tools.OrderStore

	NewModel ModelDialer
}

func (h VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		apierror.Write(w, http.StatusMethodNotAllowed, &apierror.Error{
			Code: "method_not_allowed", Message: "method not allowed", RequestID: reqID,
		})
		return
	}
	if h.Lifecycle.IsDraining() {
		apierror.Write(w, http.StatusServiceUnavailable, &apierror.Error{
			Code: "draining", Message: "gateway is draining", RequestID: reqID,
		})
		return
	}
	if !h.originAllowed(r) {
		apierror.Write(w, http.StatusForbidden, &apierror.Error{
			Code: "origin_forbidden", Message: "origin is not allowed", Param: "Origin", RequestID: reqID,
		})
		return
	}

	prin := principal.Resolve(r, h.Config)

	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.Config.HandshakeTimeout,
		// Origin was vetted above; telephony bridges send none at all.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	handshake := h.Config.HandshakeTimeout
	if handshake <= 0 {
		handshake = 5 * time.Second
	}
	conn.SetReadLimit(int64(h.Config.MaxAudioFrameBytes)*2 + 1024)
	_ = conn.SetReadDeadline(time.Now().Add(handshake))

	messageType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		h.writeWSError(conn, "bad_request", "failed to read hello")
		return
	}
	if messageType != websocket.TextMessage {
		h.writeWSError(conn, "bad_request", "first frame must be a hello text frame")
		return
	}

	decoded, err := protocol.DecodeClientMessage(firstFrame)
	if err != nil {
		code, message := decodeErrorParts(err)
		h.writeWSError(conn, code, message)
		return
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeWSError(conn, "bad_request", "first frame must be hello")
		return
	}

	if limit := h.Config.MaxSessionsPerPrincipal; limit > 0 && h.Sessions.CountFor(prin.Key) >= limit {
		h.writeWSError(conn, "too_many_sessions", "too many concurrent sessions")
		return
	}

	sessionID := "s_" + randHex(8)
	logger := h.logger().With("session_id", sessionID)
	logger.Info("voice session starting", "request_id", reqID, "principal", prin.Key, "hello", hello.RedactedForLog())

	catalog := h.loadCatalog(hello.RestaurantID, logger)

	prompt := systemPrompt(hello, catalog, h.Config.Currency)
	model, err := h.dialModel(hello, prompt, logger)
	if err != nil {
		h.Metrics.RecordSetupFailure(setupFailureReason(err))
		logger.Warn("model session could not be established", "error", err)
		h.writeWSError(conn, "upstream_error", "model session could not be established")
		return
	}

	profile := profileFromHello(hello, logger)
	registry := tools.NewRegistry(tools.Deps{
		SessionID:    sessionID,
		RestaurantID: hello.RestaurantID,
		Currency:     h.Config.Currency,
		Catalog:      catalog,
		Cart: ordering.NewCart(ordering.CartConfig{
			TaxRate:     h.Config.TaxRate,
			DedupWindow: h.Config.DedupWindow,
		}),
		Profile:  profile,
		Circles:  ordering.NewCircles(),
		Geocoder: h.Geocoder,
		Payments: h.Payments,
		Orders:   h.Orders,
		Logger:   logger,
		Metrics:  h.Metrics,
	})

	sess, err := session.New(session.Dependencies{
		Conn:      conn,
		Model:     model,
		Gate:      gate.New(h.gateConfig()),
		Tools:     registry,
		Hello:     hello,
		SessionID: sessionID,
		Logger:    logger,
		Metrics:   h.Metrics,
		Config: session.Config{
			MaxAudioFrameBytes:     h.Config.MaxAudioFrameBytes,
			MaxAudioFPS:            h.Config.MaxAudioFPS,
			MaxAudioBytesPerSecond: h.Config.MaxAudioBytesPerSecond,
			InboundBurstSeconds:    h.Config.InboundBurstSeconds,
			PingInterval:           h.Config.PingInterval,
			WriteTimeout:           h.Config.WriteTimeout,
			MaxSessionDuration:     h.Config.MaxSessionDuration,
		},
	})
	if err != nil {
		_ = model.Close()
		logger.Warn("failed to initialize session", "error", err)
		h.writeWSError(conn, "internal", "failed to initialize session")
		return
	}

	unregister, err := h.Sessions.Register(sessionID, prin.Key, sessions.Handle{
		Cancel: sess.Cancel,
		Warn:   sess.SendWarning,
	})
	if err != nil {
		_ = model.Close()
		if errors.Is(err, sessions.ErrPrincipalLimit) {
			h.writeWSError(conn, "too_many_sessions", "too many concurrent sessions")
		} else {
			h.writeWSError(conn, "internal", "failed to register session")
		}
		return
	}
	defer unregister()

	if err := sess.Run(); err != nil {
		logger.Warn("voice session ended with error", "request_id", reqID, "error", err)
	}
}

func (h VoiceHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

// loadCatalog prefers the store (per-restaurant, cache in front), then the
// configured menu file, then an empty catalog the menu tools answer from.
func (h VoiceHandler) loadCatalog(restaurantID string, logger *slog.Logger) *menu.Catalog {
	if h.Menu != nil {
		ctx, cancel := context.WithTimeout(context.Background(), menuLoadTimeout)
		defer cancel()
		dishes, err := h.Menu.LoadMenu(ctx, restaurantID)
		if err == nil {
			return menu.NewCatalog(dishes)
		}
		logger.Warn("menu load failed, falling back", "restaurant_id", restaurantID, "error", err)
	}
	if h.FileCatalog != nil {
		return h.FileCatalog
	}
	return menu.NewCatalog(nil)
}

func (h VoiceHandler) dialModel(hello protocol.ClientHello, prompt string, logger *slog.Logger) (session.Model, error) {
	if h.NewModel != nil {
		return h.NewModel(hello, prompt, logger)
	}
	client := gemini.NewClient(h.Config.GeminiAPIKey,
		gemini.WithModel(h.Config.GeminiModel),
		gemini.WithVoice(h.Config.VoiceName),
		gemini.WithSystemPrompt(prompt),
		gemini.WithTools(tools.Declarations()),
		gemini.WithConnectTimeout(h.Config.ConnectTimeout),
		gemini.WithSetupTimeout(h.Config.SetupTimeout),
		gemini.WithKeepaliveInterval(h.Config.KeepaliveInterval),
		gemini.WithLogger(logger),
	)
	if err := client.Dial(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func (h VoiceHandler) gateConfig() gate.Config {
	cfg := gate.DefaultConfig()
	cfg.SpeechThreshold = h.Config.SpeechRMSThreshold
	cfg.InterruptThreshold = h.Config.InterruptRMSThreshold
	cfg.SilenceDuration = h.Config.SilenceDuration
	cfg.PostSpeechFrames = h.Config.PostSpeechFrames
	cfg.Disabled = h.Config.GateDisabled
	return cfg
}

func (h VoiceHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h VoiceHandler) writeWSError(conn *websocket.Conn, code, message string) {
	wait := h.Config.WriteTimeout
	if wait <= 0 {
		wait = 2 * time.Second
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wait))
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Code: code, Message: message, Close: true})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(wait))
}

// profileFromHello seeds the customer profile with caller ID data so the
// model does not re-ask for what telephony already provided.
func profileFromHello(hello protocol.ClientHello, logger *slog.Logger) *customer.Profile {
	profile := &customer.Profile{}
	if hello.Caller == nil {
		return profile
	}
	if name := strings.TrimSpace(hello.Caller.Name); name != "" {
		profile.Name = name
	}
	if phone := strings.TrimSpace(hello.Caller.Phone); phone != "" {
		normalized, err := customer.NormalizePhone(phone)
		if err != nil {
			logger.Warn("ignoring caller phone from hello", "error", err)
		} else {
			profile.Phone = normalized
		}
	}
	return profile
}

func decodeErrorParts(err error) (code, message string) {
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		return de.Code, de.Message
	}
	return "bad_request", "invalid hello frame"
}

func setupFailureReason(err error) string {
	if errors.Is(err, gemini.ErrSetupTimeout) {
		return "setup_timeout"
	}
	return "connect"
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
