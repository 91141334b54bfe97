// Package apierror shapes error responses for the gateway's plain HTTP
// surface. Voice sessions report failures in-band as protocol error
// frames; this package covers only the HTTP edges around them (auth
// rejections, unknown routes, preflight denials).
package apierror

import (
	"encoding/json"
	"net/http"
)

// Error is the body of a failed HTTP request.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Param     string `json:"param,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Envelope wraps Error under a stable top-level key.
type Envelope struct {
	Error *Error `json:"error"`
}

// Write encodes err as a JSON envelope with the given HTTP status.
func Write(w http.ResponseWriter, status int, err *Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: err})
}
