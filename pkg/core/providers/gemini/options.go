package gemini

import (
	"log/slog"
	"time"
)

// Option configures the Client.
type Option func(*Client)

// WithEndpoint overrides the websocket endpoint. Used by tests.
func WithEndpoint(url string) Option {
	return func(c *Client) {
		c.endpoint = url
	}
}

// WithModel sets the model resource name, e.g. "models/gemini-2.0-flash-exp".
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithVoice sets the prebuilt voice name.
func WithVoice(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.voice = name
		}
	}
}

// WithSystemPrompt sets the system instruction sent in setup.
func WithSystemPrompt(prompt string) Option {
	return func(c *Client) {
		c.systemPrompt = prompt
	}
}

// WithTools advertises the callable functions in setup.
func WithTools(decls []ToolDeclaration) Option {
	return func(c *Client) {
		c.tools = decls
	}
}

// WithConnectTimeout bounds the websocket handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// WithSetupTimeout bounds the wait for the setup acknowledgement.
func WithSetupTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.setupTimeout = d
		}
	}
}

// WithKeepaliveInterval sets the idle interval before an empty audio chunk
// is sent.
func WithKeepaliveInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.keepalive = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
