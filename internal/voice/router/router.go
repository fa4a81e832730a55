// Package router dispatches inbound frames by type: binary frames are
// always audio, text frames carry a "type" field naming hello, listen,
// abort, or iot. A single iot frame type is discriminated by whether its
// body carries a "descriptors" or "states" field, per §4.2/§6.
package router

import (
	"bytes"
	"encoding/json"
)

// FrameType names the recognized text-frame message kinds.
type FrameType string

const (
	FrameHello  FrameType = "hello"
	FrameListen FrameType = "listen"
	FrameAbort  FrameType = "abort"
	FrameIOT    FrameType = "iot"
)

// Handlers holds one callback per recognized frame type; a nil entry is
// treated as "recognized but ignored". OnEcho is invoked for malformed
// JSON, a bare JSON number, and any unrecognized type field — §4.2/§7.3
// call for the raw frame to be echoed back verbatim as a debug aid,
// without mutating any session state.
type Handlers struct {
	OnHello     func(raw map[string]interface{}) error
	OnListen    func(raw map[string]interface{}) error
	OnAbort     func() error
	OnIOTDescs  func(raw map[string]interface{}) error
	OnIOTStates func(raw map[string]interface{}) error
	OnEcho      func(raw []byte) error
}

// Dispatch parses a text frame and invokes the matching handler.
func Dispatch(data []byte, h Handlers) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return echo(data, h)
	}

	// A bare JSON number (e.g. a stray keepalive ping written as "0") is
	// valid JSON but has no "type" field to dispatch on; echo it back
	// same as malformed input.
	if trimmed[0] != '{' {
		return echo(data, h)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return echo(data, h)
	}
	frameType, _ := raw["type"].(string)

	switch FrameType(frameType) {
	case FrameHello:
		if h.OnHello != nil {
			return h.OnHello(raw)
		}
	case FrameListen:
		if h.OnListen != nil {
			return h.OnListen(raw)
		}
	case FrameAbort:
		if h.OnAbort != nil {
			return h.OnAbort()
		}
	case FrameIOT:
		if _, ok := raw["descriptors"]; ok {
			if h.OnIOTDescs != nil {
				return h.OnIOTDescs(raw)
			}
			return nil
		}
		if _, ok := raw["states"]; ok {
			if h.OnIOTStates != nil {
				return h.OnIOTStates(raw)
			}
			return nil
		}
		return echo(data, h)
	default:
		return echo(data, h)
	}
	return nil
}

func echo(data []byte, h Handlers) error {
	if h.OnEcho != nil {
		return h.OnEcho(data)
	}
	return nil
}
