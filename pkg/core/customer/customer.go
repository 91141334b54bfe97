// Package customer tracks the caller profile a session accumulates while
// taking an order.
package customer

import (
	"errors"
	"strings"
)

// ErrInvalidPhone rejects anything that does not reduce to exactly ten
// digits. Phone numbers stay strings end to end; a leading zero is data.
var ErrInvalidPhone = errors.New("phone number must be exactly 10 digits")

// Profile holds what the caller has told us so far. Fields fill at most
// once: repeating a fact does not overwrite an earlier capture.
type Profile struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// NormalizePhone strips common separators and validates the result. The
// returned value is the canonical ten digit form.
func NormalizePhone(s string) (string, error) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separator noise from speech transcription
		default:
			return "", ErrInvalidPhone
		}
	}
	digits := b.String()
	if len(digits) != 10 {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

// Fields is one capture attempt. Empty strings mean "not stated".
type Fields struct {
	Name    string
	Phone   string
	Email   string
	Address string
}

// Apply merges incoming fields into the profile, filling only what is still
// empty. It returns the field names it captured. An invalid phone fails the
// whole call without touching the profile.
func (p *Profile) Apply(f Fields) ([]string, error) {
	normPhone := ""
	if f.Phone != "" && p.Phone == "" {
		var err error
		normPhone, err = NormalizePhone(f.Phone)
		if err != nil {
			return nil, err
		}
	}

	var captured []string
	if f.Name != "" && p.Name == "" {
		p.Name = strings.TrimSpace(f.Name)
		captured = append(captured, "name")
	}
	if normPhone != "" {
		p.Phone = normPhone
		captured = append(captured, "phone")
	}
	if f.Email != "" && p.Email == "" {
		p.Email = strings.TrimSpace(f.Email)
		captured = append(captured, "email")
	}
	if f.Address != "" && p.Address == "" {
		p.Address = strings.TrimSpace(f.Address)
		captured = append(captured, "address")
	}
	return captured, nil
}

// Missing lists the profile fields not yet captured. Address is only
// required for delivery, so callers filter it as needed.
func (p *Profile) Missing() []string {
	var out []string
	if p.Name == "" {
		out = append(out, "name")
	}
	if p.Phone == "" {
		out = append(out, "phone")
	}
	if p.Address == "" {
		out = append(out, "address")
	}
	return out
}

// HasContact reports whether name and phone are both captured, the minimum
// for finalizing any order.
func (p *Profile) HasContact() bool {
	return p.Name != "" && p.Phone != ""
}
