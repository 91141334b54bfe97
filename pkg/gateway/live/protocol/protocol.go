// Package protocol defines the wire format of the client/display channel:
// JSON text frames, snake_case fields, every frame tagged with "type". The
// client streams capture audio and receives display events plus synthesized
// speech on the same socket.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ProtocolVersion1 = "1"

	// EncodingPCM16 is the only audio encoding the channel carries.
	EncodingPCM16 = "pcm_s16le"

	// CaptureSampleRateHz is the fixed client microphone rate.
	CaptureSampleRateHz = 16000

	// PlaybackSampleRateHz is the fixed synthesized speech rate.
	PlaybackSampleRateHz = 24000
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes one direction of the audio contract.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// CaptureFormat is the required client-to-server audio shape.
func CaptureFormat() AudioFormat {
	return AudioFormat{Encoding: EncodingPCM16, SampleRateHz: CaptureSampleRateHz, Channels: 1}
}

// PlaybackFormat is the server-to-client audio shape.
func PlaybackFormat() AudioFormat {
	return AudioFormat{Encoding: EncodingPCM16, SampleRateHz: PlaybackSampleRateHz, Channels: 1}
}

// HelloCaller optionally pre-fills the customer profile from caller ID.
type HelloCaller struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type HelloFeatures struct {
	// SpeechFlags announces that audio frames carry a client-side speech
	// classifier flag. Without it the server classifies by energy.
	SpeechFlags bool `json:"speech_flags,omitempty"`
}

// ClientHello must be the first frame on the socket.
type ClientHello struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	RestaurantID    string        `json:"restaurant_id"`
	Language        string        `json:"language,omitempty"`
	Caller          *HelloCaller  `json:"caller,omitempty"`
	AudioIn         AudioFormat   `json:"audio_in"`
	Features        HelloFeatures `json:"features,omitempty"`
}

// RedactedForLog returns a loggable view of the hello. The caller's phone
// number never reaches the logs.
func (h ClientHello) RedactedForLog() map[string]any {
	return map[string]any{
		"type":             h.Type,
		"protocol_version": h.ProtocolVersion,
		"restaurant_id":    h.RestaurantID,
		"language":         h.Language,
		"audio_in":         h.AudioIn,
		"features":         h.Features,
		"has_caller_name":  h.Caller != nil && strings.TrimSpace(h.Caller.Name) != "",
		"has_caller_phone": h.Caller != nil && strings.TrimSpace(h.Caller.Phone) != "",
	}
}

// ClientAudioFrame carries one fixed-size capture frame. Speech is the
// optional classifier flag; nil means the server decides by energy.
type ClientAudioFrame struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq,omitempty"`
	DataB64 string `json:"data_b64"`
	Speech  *bool  `json:"speech,omitempty"`
}

type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

// DecodeClientMessage parses and validates one inbound frame. Unknown types
// and malformed payloads are rejected with a *DecodeError.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "audio_frame":
		var msg ClientAudioFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_frame.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control", "")
		}
		op := strings.TrimSpace(msg.Op)
		if op == "" {
			return nil, badRequest("control.op is required", "op")
		}
		if op != "end_session" {
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// ValidateHello enforces the fixed audio contract: 16kHz mono pcm_s16le in.
func ValidateHello(msg ClientHello) error {
	version := strings.TrimSpace(msg.ProtocolVersion)
	if version == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	if version != ProtocolVersion1 {
		return unsupported("unsupported protocol version", "protocol_version")
	}
	if strings.TrimSpace(msg.RestaurantID) == "" {
		return badRequest("hello.restaurant_id is required", "restaurant_id")
	}
	in := msg.AudioIn
	if strings.TrimSpace(in.Encoding) == "" {
		return badRequest("hello.audio_in.encoding is required", "audio_in.encoding")
	}
	if in.Encoding != EncodingPCM16 || in.SampleRateHz != CaptureSampleRateHz || in.Channels != 1 {
		return unsupported("audio_in must be pcm_s16le mono at 16000 Hz", "audio_in")
	}
	return nil
}

// DisplayEvent names the UI-facing event kinds.
type DisplayEvent string

const (
	EventTranscription       DisplayEvent = "transcription"
	EventDishCard            DisplayEvent = "dish_card"
	EventOrderSummary        DisplayEvent = "order_summary"
	EventCartItemAdded       DisplayEvent = "cart_item_added"
	EventCartUpdated         DisplayEvent = "cart_updated"
	EventCheckoutSummary     DisplayEvent = "checkout_summary"
	EventPaymentPending      DisplayEvent = "payment_pending"
	EventOrderConfirmed      DisplayEvent = "order_confirmed"
	EventAddressVerification DisplayEvent = "address_verification"
	EventCircleUpdate        DisplayEvent = "circle_update"
)

type HelloAckLimits struct {
	MaxAudioFrameBytes int `json:"max_audio_frame_bytes"`
}

type ServerHelloAck struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	AudioOut  AudioFormat    `json:"audio_out"`
	Limits    HelloAckLimits `json:"limits"`
}

// ServerDisplay is a fire-and-forget UI event. Data is event-specific.
type ServerDisplay struct {
	Type        string       `json:"type"`
	Event       DisplayEvent `json:"event"`
	Data        any          `json:"data"`
	TimestampMS int64        `json:"timestamp_ms"`
}

// ServerAudioChunk relays synthesized speech for playback.
type ServerAudioChunk struct {
	Type       string `json:"type"`
	DataB64    string `json:"data_b64"`
	DurationMS int64  `json:"duration_ms"`
}

const ResetReasonBargeIn = "barge_in"

// ServerPlaybackReset tells the client to stop its sink and discard
// everything buffered. It always precedes any further audio.
type ServerPlaybackReset struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

const (
	TurnListening = "listening"
	TurnSpeaking  = "speaking"
)

type ServerTurn struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Close   bool   `json:"close,omitempty"`
}
