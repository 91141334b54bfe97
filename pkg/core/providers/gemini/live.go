// Package gemini implements the Gemini Live speech-to-speech client over the
// BidiGenerateContent websocket protocol. One Client is one upstream session:
// it dials, configures the model, then relays audio and tool traffic until
// either side hangs up. There is no reconnect; the owner starts a new Client
// for a new session.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultEndpoint is the Gemini Live websocket endpoint.
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultModel is used when no model is configured.
	DefaultModel = "models/gemini-2.0-flash-exp"

	// DefaultVoice is the prebuilt voice used when none is configured.
	DefaultVoice = "Puck"

	// DefaultConnectTimeout bounds the websocket handshake.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultSetupTimeout bounds the wait for the setup acknowledgement.
	DefaultSetupTimeout = 15 * time.Second

	// DefaultKeepaliveInterval is how long the connection may sit idle
	// before we send an empty audio chunk to keep the server from
	// reaping the session.
	DefaultKeepaliveInterval = 25 * time.Second

	inputMimeType = "audio/pcm;rate=16000"

	eventBuffer = 64
)

// State is the lifecycle position of a live session.
type State string

const (
	StateConnecting State = "connecting"
	StateSetupSent  State = "setup_sent"
	StateActive     State = "active"
	StateClosing    State = "closing"
)

// Client is a single Gemini Live session. Sends are safe for concurrent use;
// Events must be drained by exactly one consumer until the channel closes.
type Client struct {
	apiKey         string
	endpoint       string
	model          string
	voice          string
	systemPrompt   string
	tools          []ToolDeclaration
	connectTimeout time.Duration
	setupTimeout   time.Duration
	keepalive      time.Duration
	logger         *slog.Logger

	ws       *websocket.Conn
	wsMu     sync.Mutex // serializes writes, guards lastSend
	lastSend time.Time

	mu    sync.RWMutex
	state State

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient builds an unconnected client. Call Dial to start the session.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:         apiKey,
		endpoint:       DefaultEndpoint,
		model:          DefaultModel,
		voice:          DefaultVoice,
		connectTimeout: DefaultConnectTimeout,
		setupTimeout:   DefaultSetupTimeout,
		keepalive:      DefaultKeepaliveInterval,
		logger:         slog.Default(),
		state:          StateConnecting,
		events:         make(chan Event, eventBuffer),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Events returns the demuxed server stream. The channel closes after a
// terminal ClosedEvent.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Dial connects, sends setup, and blocks until the server acknowledges it.
// On return the session is active and Events is flowing. The context bounds
// only the handshake, not the session.
func (c *Client) Dial(ctx context.Context) error {
	c.setState(StateConnecting)

	u := c.endpoint + "?key=" + url.QueryEscape(c.apiKey)
	dialer := websocket.Dialer{HandshakeTimeout: c.connectTimeout}
	ws, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("gemini: connect: %w", err)
	}
	c.ws = ws

	if err := c.writeJSON(c.buildSetup()); err != nil {
		ws.Close()
		return fmt.Errorf("gemini: send setup: %w", err)
	}
	c.setState(StateSetupSent)

	// Nothing may flow until the server acknowledges the setup.
	ws.SetReadDeadline(time.Now().Add(c.setupTimeout))
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			ws.Close()
			var ne net.Error
			if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
				return ErrSetupTimeout
			}
			return fmt.Errorf("gemini: waiting for setup ack: %w", err)
		}
		var msg serverMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.SetupComplete != nil {
			break
		}
	}
	ws.SetReadDeadline(time.Time{})
	c.setState(StateActive)

	go c.readLoop()
	go c.keepaliveLoop()
	return nil
}

// SendAudio forwards one capture frame of 16kHz PCM. A zero-length frame is
// the idle keepalive. Returns ErrInactive outside the active state; the
// frame is dropped, never queued.
func (c *Client) SendAudio(pcm []byte) error {
	if c.State() != StateActive {
		return ErrInactive
	}
	msg := realtimeInputMessage{RealtimeInput: realtimeInput{MediaChunks: []mediaChunk{{
		Data:     base64.StdEncoding.EncodeToString(pcm),
		MimeType: inputMimeType,
	}}}}
	return c.writeJSON(msg)
}

// SendToolResults returns function results to the model, one per call ID.
func (c *Client) SendToolResults(results []ToolResult) error {
	if c.State() != StateActive {
		return ErrInactive
	}
	if len(results) == 0 {
		return nil
	}
	frs := make([]functionResponse, 0, len(results))
	for _, r := range results {
		frs = append(frs, functionResponse{ID: r.ID, Name: r.Name, Response: r.Response})
	}
	return c.writeJSON(toolResponseMessage{ToolResponse: toolResponse{FunctionResponses: frs}})
}

// Close ends the session. Safe to call more than once. The event channel
// closes once the read loop observes the connection going down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		close(c.done)
		if c.ws != nil {
			deadline := time.Now().Add(time.Second)
			c.wsMu.Lock()
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			c.wsMu.Unlock()
			err = c.ws.Close()
		}
	})
	return err
}

func (c *Client) buildSetup() setupMessage {
	s := setupPayload{
		Model: c.model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: c.voice},
			}},
		},
	}
	if c.systemPrompt != "" {
		s.SystemInstruction = &systemInstruction{Parts: []textPart{{Text: c.systemPrompt}}}
	}
	if len(c.tools) > 0 {
		s.Tools = []toolsPayload{{FunctionDeclarations: c.tools}}
	}
	return setupMessage{Setup: s}
}

func (c *Client) writeJSON(v any) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if c.ws == nil {
		return ErrInactive
	}
	c.lastSend = time.Now()
	return c.ws.WriteJSON(v)
}

// keepaliveLoop sends the empty chunk whenever the write side has been idle
// for the keepalive interval.
func (c *Client) keepaliveLoop() {
	timer := time.NewTimer(c.keepalive)
	defer timer.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-timer.C:
			c.wsMu.Lock()
			idle := time.Since(c.lastSend)
			c.wsMu.Unlock()
			if idle < c.keepalive {
				timer.Reset(c.keepalive - idle)
				continue
			}
			if err := c.SendAudio(nil); err != nil {
				return
			}
			timer.Reset(c.keepalive)
		}
	}
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if c.State() == StateClosing {
				c.events <- &ClosedEvent{}
			} else {
				c.setState(StateClosing)
				c.events <- &ClosedEvent{Err: classifyClose(err)}
			}
			return
		}
		var msg serverMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Debug("gemini: dropping unparseable server message", "error", err)
			continue
		}
		c.demux(&msg)
	}
}

func (c *Client) demux(msg *serverMessage) {
	switch {
	case msg.SetupComplete != nil:
		// duplicate ack after activation, nothing to do

	case msg.ServerContent != nil:
		sc := msg.ServerContent
		if sc.Interrupted {
			c.events <- &InterruptedEvent{}
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData != nil && strings.HasPrefix(p.InlineData.MimeType, "audio/pcm") {
					pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
					if err == nil && len(pcm) > 0 {
						c.events <- &AudioEvent{PCM: pcm}
					}
				}
				if p.Text != "" {
					c.events <- &TextEvent{Text: p.Text}
				}
			}
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			c.events <- &TranscriptEvent{Text: sc.InputTranscription.Text, Input: true}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			c.events <- &TranscriptEvent{Text: sc.OutputTranscription.Text, Input: false}
		}
		if sc.TurnComplete {
			c.events <- &TurnCompleteEvent{}
		}

	case msg.ToolCall != nil:
		if len(msg.ToolCall.FunctionCalls) > 0 {
			c.events <- &ToolCallsEvent{Calls: msg.ToolCall.FunctionCalls}
		}

	case msg.ToolCallCancellation != nil:
		if len(msg.ToolCallCancellation.IDs) > 0 {
			c.events <- &ToolCancelEvent{IDs: msg.ToolCallCancellation.IDs}
		}
	}
}
