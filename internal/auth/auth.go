// Package auth implements the handshake authorization policy: whether a
// connecting device is allowed at all, either because its device id is
// allow-listed or because it presents a registered bearer token.
package auth

import (
	"fmt"

	"github.com/code-100-precent/lingecho-voice/internal/voiceerr"
)

// HelloFrame is the subset of the handshake's auth-relevant fields, read
// from transport headers rather than the hello message body.
type HelloFrame struct {
	DeviceID string
	Token    string
}

// Policy decides whether a connecting device may proceed past the
// handshake. Tokens maps a bearer token to the name it authorizes, so any
// device presenting a registered token is admitted regardless of its id.
type Policy struct {
	Enabled        bool
	AllowedDevices map[string]bool
	Tokens         map[string]string // token -> name
}

// NewPolicy builds a policy from configuration. When Enabled is false,
// Authorize always succeeds, matching an open deployment.
func NewPolicy(enabled bool, allowedDevices []string, tokens map[string]string) *Policy {
	allowed := make(map[string]bool, len(allowedDevices))
	for _, d := range allowedDevices {
		allowed[d] = true
	}
	return &Policy{Enabled: enabled, AllowedDevices: allowed, Tokens: tokens}
}

// Authorize accepts a connection when disabled, when the device id is
// allow-listed, or when the presented bearer token maps to a name.
func (p *Policy) Authorize(frame HelloFrame) error {
	if !p.Enabled {
		return nil
	}
	if len(p.AllowedDevices) > 0 && p.AllowedDevices[frame.DeviceID] {
		return nil
	}
	if frame.Token != "" {
		if _, ok := p.Tokens[frame.Token]; ok {
			return nil
		}
	}
	return fmt.Errorf("%w: device %q not allow-listed and token not recognized", voiceerr.ErrAuthRejected, frame.DeviceID)
}
