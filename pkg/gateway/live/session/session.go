// Package session runs one live voice-ordering call: it relays caller audio
// through the speech gate to the model, streams assistant audio and display
// events back over the websocket, and drives tool calls through a single
// dispatch worker. One goroutine owns the websocket reads, one owns the
// writes, and Run owns everything in between.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tablevox/tablevox/pkg/core/audio"
	"github.com/tablevox/tablevox/pkg/core/gate"
	"github.com/tablevox/tablevox/pkg/core/providers/gemini"
	"github.com/tablevox/tablevox/pkg/gateway/live/protocol"
	"github.com/tablevox/tablevox/pkg/gateway/metrics"
	"github.com/tablevox/tablevox/pkg/gateway/tools"
)

const (
	outboundPriorityQueueSize = 8

	// slack added to the playback horizon before declaring the turn over, so
	// a chunk arriving right at the boundary doesn't flap the turn state
	playbackIdleSlack = 60 * time.Millisecond
)

var errBackpressure = errors.New("outbound queue full")

// Model is the upstream speech-to-speech session the gateway relays to.
// A *gemini.Client satisfies it; tests substitute a scripted fake.
type Model interface {
	SendAudio(pcm []byte) error
	SendToolResults(results []gemini.ToolResult) error
	Events() <-chan gemini.Event
	Close() error
}

// Config bounds one session's resource usage. Zero values pick safe defaults.
type Config struct {
	MaxAudioFrameBytes     int
	MaxJSONMessageBytes    int64
	MaxAudioFPS            int
	MaxAudioBytesPerSecond int64
	InboundBurstSeconds    int
	PingInterval           time.Duration
	WriteTimeout           time.Duration
	ReadTimeout            time.Duration
	MaxSessionDuration     time.Duration
	OutboundQueueSize      int
	ToolQueueSize          int
}

// Dependencies carries everything a session needs. Conn, Model and Tools are
// required; the rest default sensibly.
type Dependencies struct {
	Conn      *websocket.Conn
	Model     Model
	Gate      *gate.Gate
	Tools     *tools.Registry
	Hello     protocol.ClientHello
	SessionID string
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Config    Config
	Now       func() time.Time
}

// LiveSession relays one caller between their websocket and the model. Run
// blocks until either side ends the call.
type LiveSession struct {
	conn       *websocket.Conn
	model      Model
	gate       *gate.Gate
	dispatcher *dispatcher
	hello      protocol.ClientHello
	sessionID  string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	cfg        Config
	startTime  time.Time
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	playbackFormat audio.Config
	playback       *playbackCursor

	// speaking is the turn state last announced to the client; modelTurn is
	// true while an assistant response is streaming in. Both belong to Run.
	speaking  bool
	modelTurn bool

	// generation stamps outgoing assistant audio; the writer drops any chunk
	// stamped at or below the barge-in watermark. Only Run mutates generation.
	generation       int64
	bargeInWatermark atomic.Int64
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

func New(deps Dependencies) (*LiveSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("websocket connection is required")
	}
	if deps.Model == nil {
		return nil, fmt.Errorf("model session is required")
	}
	if deps.Tools == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if deps.Gate == nil {
		deps.Gate = gate.New(gate.DefaultConfig())
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.MaxAudioFrameBytes <= 0 {
		deps.Config.MaxAudioFrameBytes = 8192
	}
	if deps.Config.MaxJSONMessageBytes <= 0 {
		// base64 inflates a frame by a third; leave envelope headroom
		deps.Config.MaxJSONMessageBytes = int64(deps.Config.MaxAudioFrameBytes)*2 + 1024
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 128
	}
	if deps.Config.ToolQueueSize <= 0 {
		deps.Config.ToolQueueSize = 16
	}
	if deps.Config.PingInterval <= 0 {
		deps.Config.PingInterval = 20 * time.Second
	}
	if deps.Config.WriteTimeout <= 0 {
		deps.Config.WriteTimeout = 5 * time.Second
	}
	if deps.Config.ReadTimeout <= 0 {
		deps.Config.ReadTimeout = 75 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &LiveSession{
		conn:             deps.Conn,
		model:            deps.Model,
		gate:             deps.Gate,
		hello:            deps.Hello,
		sessionID:        deps.SessionID,
		logger:           deps.Logger,
		metrics:          deps.Metrics,
		cfg:              deps.Config,
		startTime:        deps.Now(),
		now:              deps.Now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, outboundPriorityQueueSize),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		playbackFormat:   audio.PlaybackConfig(),
	}
	s.playback = newPlaybackCursor(s.playbackFormat, deps.Now)
	s.dispatcher = newDispatcher(deps.Tools, deps.Logger, deps.Metrics, deps.Config.ToolQueueSize)
	return s, nil
}

// Cancel tears the session down from outside, typically during shutdown.
func (s *LiveSession) Cancel() {
	s.cancel()
}

// SendWarning delivers an advisory frame to the client, for example a drain
// notice before shutdown.
func (s *LiveSession) SendWarning(code, message string) error {
	return s.sendWarning(code, message)
}

func (s *LiveSession) Run() (err error) {
	status := "completed"
	s.metrics.RecordSessionStart()

	var wg sync.WaitGroup
	defer func() {
		s.cancel()
		wg.Wait()
		_ = s.model.Close()
		if err != nil {
			status = "error"
		}
		s.metrics.RecordSessionEnd(status, s.now().Sub(s.startTime))
	}()

	if s.cfg.MaxJSONMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxJSONMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 64)
	go s.readLoop(readCh)

	writerErrCh := make(chan error, 1)
	go func() {
		w := outboundWriter{
			ws:         s.conn,
			ctx:        s.ctx,
			cfg:        s.cfg,
			priority:   s.outboundPriority,
			normal:     s.outboundNormal,
			staleAudio: s.isStaleAudio,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.dispatcher.Run(s.ctx)
	}()

	// flushAndClose gives the writer a moment to drain priority frames
	// (typically a final error) before the connection drops.
	flushAndClose := func() error {
		s.cancel()
		wait := 100 * time.Millisecond
		if s.cfg.WriteTimeout > 0 && s.cfg.WriteTimeout < wait {
			wait = s.cfg.WriteTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-writerErrCh:
		case <-timer.C:
		}
		return nil
	}

	if err := s.sendJSON(protocol.ServerHelloAck{
		Type:      "hello_ack",
		SessionID: s.sessionID,
		AudioOut:  protocol.PlaybackFormat(),
		Limits:    protocol.HelloAckLimits{MaxAudioFrameBytes: s.cfg.MaxAudioFrameBytes},
	}); err != nil {
		return err
	}

	limiter := newInboundAudioLimiter(s.now, s.cfg.MaxAudioFPS, s.cfg.MaxAudioBytesPerSecond, s.cfg.InboundBurstSeconds)

	var idleTimer *time.Timer
	idleActive := false
	armIdle := func(d time.Duration) {
		if d <= 0 {
			d = time.Millisecond
		}
		if idleTimer == nil {
			idleTimer = time.NewTimer(d)
			idleActive = true
			return
		}
		if !idleTimer.Stop() {
			select {
			case <-idleTimer.C:
			default:
			}
		}
		idleTimer.Reset(d)
		idleActive = true
	}
	idleCh := func() <-chan time.Time {
		if !idleActive || idleTimer == nil {
			return nil
		}
		return idleTimer.C
	}
	defer func() {
		if idleTimer != nil {
			idleTimer.Stop()
		}
	}()

	var sessionTimer *time.Timer
	if s.cfg.MaxSessionDuration > 0 {
		sessionTimer = time.NewTimer(s.cfg.MaxSessionDuration)
		defer sessionTimer.Stop()
	}
	sessionTimerCh := func() <-chan time.Time {
		if sessionTimer == nil {
			return nil
		}
		return sessionTimer.C
	}

	for {
		select {
		case <-s.ctx.Done():
			return nil

		case werr := <-writerErrCh:
			if werr != nil {
				return fmt.Errorf("writer: %w", werr)
			}
			return nil

		case <-sessionTimerCh():
			status = "timeout"
			s.logger.Info("session reached maximum duration")
			_ = s.sendSessionError("session_timeout", "maximum session duration reached", true)
			return flushAndClose()

		case <-idleCh():
			idleActive = false
			if s.playback.Speaking() {
				armIdle(s.playback.Remaining() + playbackIdleSlack)
				break
			}
			if err := s.setTurn(protocol.TurnListening); err != nil {
				return err
			}

		case frame, ok := <-readCh:
			if !ok || frame.err != nil {
				s.logger.Info("client disconnected")
				return nil
			}
			if frame.messageType == websocket.BinaryMessage {
				_ = s.sendSessionError("bad_request", "binary frames are not supported", true)
				return flushAndClose()
			}
			if frame.messageType != websocket.TextMessage {
				break
			}

			msg, decErr := protocol.DecodeClientMessage(frame.data)
			if decErr != nil {
				var de *protocol.DecodeError
				code, message := "bad_request", "malformed frame"
				if errors.As(decErr, &de) {
					code, message = de.Code, de.Message
				}
				_ = s.sendSessionError(code, message, true)
				return flushAndClose()
			}

			switch m := msg.(type) {
			case protocol.ClientHello:
				_ = s.sendSessionError("bad_request", "hello is only valid as the first frame", true)
				return flushAndClose()

			case protocol.ClientControl:
				// only end_session decodes
				s.logger.Info("session ended by client")
				_ = s.sendJSONPriority(protocol.ServerWarning{Type: "warning", Code: "session_end", Message: "ending session at client request"})
				return flushAndClose()

			case protocol.ClientAudioFrame:
				pcm, b64Err := base64.StdEncoding.DecodeString(m.DataB64)
				if b64Err != nil {
					_ = s.sendSessionError("bad_request", "audio_frame.data_b64 is not valid base64", true)
					return flushAndClose()
				}
				if len(pcm) > s.cfg.MaxAudioFrameBytes {
					_ = s.sendSessionError("bad_request", "audio frame exceeds negotiated maximum", true)
					return flushAndClose()
				}
				if limiter != nil && !limiter.Allow(len(pcm)) {
					_ = s.sendSessionError("rate_limited", "inbound audio rate exceeded", true)
					return flushAndClose()
				}
				s.metrics.RecordAudio("in", len(pcm))

				var speech *bool
				if s.hello.Features.SpeechFlags {
					speech = m.Speech
				}
				d := s.gate.Feed(pcm, speech)
				if d.Interrupt && s.playback.Speaking() {
					if err := s.bargeIn("gate"); err != nil {
						return err
					}
				}
				if d.SpeechStart {
					s.logger.Debug("speech start", "rms", d.RMS)
				}
				if !d.Forward {
					s.metrics.RecordFrameGated()
					break
				}
				if sendErr := s.model.SendAudio(pcm); sendErr != nil {
					if errors.Is(sendErr, gemini.ErrInactive) {
						// model is gone; its ClosedEvent ends the session
						break
					}
					_ = s.sendSessionError("upstream_error", "failed to forward audio", true)
					_ = flushAndClose()
					return fmt.Errorf("forward audio: %w", sendErr)
				}
				s.metrics.RecordFrameForwarded()
			}

		case ev, ok := <-s.model.Events():
			if !ok {
				return nil
			}
			switch e := ev.(type) {
			case *gemini.AudioEvent:
				if err := s.handleModelAudio(e.PCM); err != nil {
					return err
				}
				if s.playback.Speaking() {
					armIdle(s.playback.Remaining() + playbackIdleSlack)
				}

			case *gemini.TextEvent:
				if err := s.sendDisplay(protocol.EventTranscription, map[string]any{
					"speaker": "assistant",
					"text":    e.Text,
				}); err != nil {
					return err
				}

			case *gemini.TranscriptEvent:
				speaker := "assistant"
				if e.Input {
					speaker = "caller"
				}
				if err := s.sendDisplay(protocol.EventTranscription, map[string]any{
					"speaker": speaker,
					"text":    e.Text,
				}); err != nil {
					return err
				}

			case *gemini.InterruptedEvent:
				s.modelTurn = false
				if err := s.bargeIn("model"); err != nil {
					return err
				}

			case *gemini.TurnCompleteEvent:
				s.modelTurn = false
				if s.playback.Speaking() {
					armIdle(s.playback.Remaining() + playbackIdleSlack)
				} else if err := s.setTurn(protocol.TurnListening); err != nil {
					return err
				}

			case *gemini.ToolCallsEvent:
				for _, call := range e.Calls {
					if s.dispatcher.Enqueue(call) {
						continue
					}
					s.logger.Warn("tool queue full, refusing call", "tool", call.Name, "id", call.ID)
					s.metrics.RecordToolCall(call.Name, "dropped")
					if sendErr := s.model.SendToolResults([]gemini.ToolResult{{
						ID:   call.ID,
						Name: call.Name,
						Response: map[string]any{
							"success": false,
							"error":   "busy handling earlier requests, ask again in a moment",
						},
					}}); sendErr != nil && !errors.Is(sendErr, gemini.ErrInactive) {
						return fmt.Errorf("send tool refusal: %w", sendErr)
					}
				}

			case *gemini.ToolCancelEvent:
				s.dispatcher.CancelIDs(e.IDs)

			case *gemini.ClosedEvent:
				if e.Err != nil {
					_ = s.sendSessionError("upstream_error", "model session ended unexpectedly", true)
					_ = flushAndClose()
					return fmt.Errorf("model session closed: %w", e.Err)
				}
				s.logger.Info("model ended the session")
				_ = s.sendJSONPriority(protocol.ServerWarning{Type: "warning", Code: "session_end", Message: "assistant ended the session"})
				return flushAndClose()
			}

		case out := <-s.dispatcher.Results():
			if sendErr := s.model.SendToolResults([]gemini.ToolResult{out.Result}); sendErr != nil {
				if !errors.Is(sendErr, gemini.ErrInactive) {
					return fmt.Errorf("send tool result: %w", sendErr)
				}
			}
			for _, d := range out.Displays {
				if err := s.sendDisplay(d.Event, d.Data); err != nil {
					return err
				}
			}
		}
	}
}

func (s *LiveSession) readLoop(out chan<- inboundFrame) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		select {
		case out <- inboundFrame{messageType: messageType, data: data, err: err}:
		case <-s.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// handleModelAudio relays one assistant chunk: stamp it with the response
// generation, queue it for the writer, and advance the playback cursor. The
// first chunk of a fresh response opens a new generation past any earlier
// barge-in watermark; chunks still streaming for an interrupted response are
// dropped here.
func (s *LiveSession) handleModelAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	if !s.modelTurn {
		s.modelTurn = true
		s.generation++
	}
	if s.generation <= s.bargeInWatermark.Load() {
		return nil
	}

	wasSpeaking := s.playback.Speaking()
	payload, err := json.Marshal(protocol.ServerAudioChunk{
		Type:       "audio_chunk",
		DataB64:    base64.StdEncoding.EncodeToString(pcm),
		DurationMS: int64(s.playbackFormat.DurationMS(len(pcm))),
	})
	if err != nil {
		return err
	}
	if err := s.enqueueNormal(outboundFrame{payload: payload, audioGeneration: s.generation}); err != nil {
		if errors.Is(err, errBackpressure) {
			s.logger.Warn("dropping assistant audio, outbound queue full")
			return nil
		}
		return err
	}
	s.metrics.RecordAudio("out", len(pcm))
	s.playback.Schedule(pcm)
	if !wasSpeaking {
		return s.setTurn(protocol.TurnSpeaking)
	}
	return nil
}

// bargeIn cancels the response currently playing: reset the client sink, mark
// queued audio stale, and hand the turn back to the caller. Hitting it twice
// for the same response is a no-op.
func (s *LiveSession) bargeIn(source string) error {
	if s.generation <= s.bargeInWatermark.Load() {
		return nil
	}
	unplayed := s.playback.Reset()
	s.bargeInWatermark.Store(s.generation)
	if err := s.sendJSONPriority(protocol.ServerPlaybackReset{
		Type:   "playback_reset",
		Reason: protocol.ResetReasonBargeIn,
	}); err != nil && !errors.Is(err, errBackpressure) {
		return err
	}
	s.metrics.RecordInterruption()
	s.logger.Info("barge-in, playback reset",
		"source", source,
		"unplayed_ms", unplayed.Milliseconds())
	return s.setTurn(protocol.TurnListening)
}

// setTurn announces a turn change to the client, once per transition.
func (s *LiveSession) setTurn(state string) error {
	want := state == protocol.TurnSpeaking
	if want == s.speaking {
		return nil
	}
	s.speaking = want
	if err := s.sendJSON(protocol.ServerTurn{Type: "turn", State: state}); err != nil {
		if errors.Is(err, errBackpressure) {
			return nil
		}
		return err
	}
	return nil
}

func (s *LiveSession) isStaleAudio(generation int64) bool {
	return generation <= s.bargeInWatermark.Load()
}

func (s *LiveSession) sessionTimeMS() int64 {
	return s.now().Sub(s.startTime).Milliseconds()
}

// sendDisplay emits a fire-and-forget UI event. Backpressure drops the event
// rather than the session.
func (s *LiveSession) sendDisplay(event protocol.DisplayEvent, data any) error {
	err := s.sendJSON(protocol.ServerDisplay{
		Type:        "display",
		Event:       event,
		Data:        data,
		TimestampMS: s.sessionTimeMS(),
	})
	if err != nil {
		if errors.Is(err, errBackpressure) {
			s.logger.Warn("dropping display event, outbound queue full", "event", string(event))
			return nil
		}
		return err
	}
	s.metrics.RecordDisplayEvent(string(event))
	return nil
}

func (s *LiveSession) sendWarning(code, message string) error {
	return s.sendJSON(protocol.ServerWarning{Type: "warning", Code: code, Message: message})
}

func (s *LiveSession) sendSessionError(code, message string, close bool) error {
	frame := protocol.ServerError{Type: "error", Code: code, Message: message, Close: close}
	if close {
		return s.sendJSONPriority(frame)
	}
	return s.sendJSON(frame)
}

func (s *LiveSession) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueueNormal(outboundFrame{payload: payload})
}

func (s *LiveSession) sendJSONPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueuePriority(outboundFrame{payload: payload})
}

func (s *LiveSession) enqueueNormal(frame outboundFrame) error {
	select {
	case s.outboundNormal <- frame:
		return nil
	default:
		return errBackpressure
	}
}

// enqueuePriority evicts the oldest queued priority frame rather than drop
// the new one; error and reset frames are worth more than whatever preceded
// them.
func (s *LiveSession) enqueuePriority(frame outboundFrame) error {
	for i := 0; i < 4; i++ {
		select {
		case s.outboundPriority <- frame:
			return nil
		default:
		}
		select {
		case <-s.outboundPriority:
		default:
		}
	}
	select {
	case s.outboundPriority <- frame:
		return nil
	default:
		return errBackpressure
	}
}
