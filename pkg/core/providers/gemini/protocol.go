package gemini

import "encoding/json"

// Client-to-server messages use snake_case field names; the server replies
// in camelCase. Both shapes are fixed by the BidiGenerateContent protocol.

type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model             string             `json:"model"`
	GenerationConfig  generationConfig   `json:"generation_config"`
	SystemInstruction *systemInstruction `json:"system_instruction,omitempty"`
	Tools             []toolsPayload     `json:"tools,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"response_modalities"`
	SpeechConfig       *speechConfig `json:"speech_config,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voice_config"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuilt_voice_config"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voice_name"`
}

type systemInstruction struct {
	Parts []textPart `json:"parts"`
}

type textPart struct {
	Text string `json:"text"`
}

type toolsPayload struct {
	FunctionDeclarations []ToolDeclaration `json:"function_declarations"`
}

// ToolDeclaration advertises one callable function in the setup message.
// Parameters is a JSON schema object.
type ToolDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtime_input"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"media_chunks"`
}

type mediaChunk struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

type toolResponseMessage struct {
	ToolResponse toolResponse `json:"tool_response"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"function_responses"`
}

type functionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Response map[string]any `json:"response"`
}

// serverMessage is the demux envelope for everything the model sends.
type serverMessage struct {
	SetupComplete        *struct{}             `json:"setupComplete"`
	ServerContent        *serverContent        `json:"serverContent"`
	ToolCall             *toolCallPayload      `json:"toolCall"`
	ToolCallCancellation *toolCallCancellation `json:"toolCallCancellation"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn"`
	TurnComplete        bool           `json:"turnComplete"`
	Interrupted         bool           `json:"interrupted"`
	InputTranscription  *transcription `json:"inputTranscription"`
	OutputTranscription *transcription `json:"outputTranscription"`
}

type modelTurn struct {
	Parts []serverPart `json:"parts"`
}

type serverPart struct {
	Text       string      `json:"text"`
	InlineData *inlineData `json:"inlineData"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCallPayload struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

type toolCallCancellation struct {
	IDs []string `json:"ids"`
}

// FunctionCall is one tool invocation requested by the model.
type FunctionCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolResult answers one FunctionCall. Exactly one result must be sent per
// call ID. Response carries either the handler output or an error payload.
type ToolResult struct {
	ID       string
	Name     string
	Response map[string]any
}

// Event is the interface for everything the client surfaces to its consumer.
type Event interface {
	// EventType returns the event type string for logging.
	EventType() string
}

// AudioEvent carries one chunk of synthesized 24kHz PCM.
type AudioEvent struct {
	PCM []byte
}

func (e *AudioEvent) EventType() string { return "audio" }

// TextEvent carries a text part of the model turn.
type TextEvent struct {
	Text string
}

func (e *TextEvent) EventType() string { return "text" }

// TranscriptEvent carries a speech transcription. Input reports whether it
// transcribes the caller (true) or the model's own speech (false).
type TranscriptEvent struct {
	Text  string
	Input bool
}

func (e *TranscriptEvent) EventType() string { return "transcript" }

// InterruptedEvent signals the model abandoned its in-flight response.
type InterruptedEvent struct{}

func (e *InterruptedEvent) EventType() string { return "interrupted" }

// TurnCompleteEvent signals the model finished its turn.
type TurnCompleteEvent struct{}

func (e *TurnCompleteEvent) EventType() string { return "turn_complete" }

// ToolCallsEvent carries the function calls of one model request.
type ToolCallsEvent struct {
	Calls []FunctionCall
}

func (e *ToolCallsEvent) EventType() string { return "tool_calls" }

// ToolCancelEvent lists call IDs whose results the model no longer wants.
type ToolCancelEvent struct {
	IDs []string
}

func (e *ToolCancelEvent) EventType() string { return "tool_cancel" }

// ClosedEvent is the terminal event; the event channel closes after it. Err
// is nil on a clean shutdown.
type ClosedEvent struct {
	Err error
}

func (e *ClosedEvent) EventType() string { return "closed" }
