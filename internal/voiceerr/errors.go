// Package voiceerr defines the sentinel error taxonomy shared by every
// stage of the per-session pipeline so handlers can classify a failure with
// errors.Is instead of string matching.
package voiceerr

import "errors"

var (
	// ErrAuthRejected is returned by AuthPolicy when a handshake is refused.
	ErrAuthRejected = errors.New("handshake rejected")

	// ErrRecognitionEmpty signals an ASR call that returned no usable text;
	// treated as "no utterance", never propagated to the client.
	ErrRecognitionEmpty = errors.New("recognition produced no text")

	// ErrToolNotFound is returned by the tool executor when the dispatched
	// name has no registered handler.
	ErrToolNotFound = errors.New("tool not found")

	// ErrUnknownFrameType marks an inbound text frame whose type field the
	// router does not recognize; the frame is echoed back, not dropped.
	ErrUnknownFrameType = errors.New("unknown frame type")

	// ErrTypeMismatch marks an IoT property update whose value type does
	// not match the descriptor's declared type.
	ErrTypeMismatch = errors.New("property type mismatch")

	// ErrSessionClosed marks a stage invoked after teardown has started.
	ErrSessionClosed = errors.New("session closed")

	// ErrToolCallParse marks a malformed tool-call payload from the LLM
	// stream (neither valid markdown-JSON nor a structured delta).
	ErrToolCallParse = errors.New("tool call parse error")

	// ErrTTSTimeout marks a synthesis call that exceeded the configured
	// hard timeout; the affected segment is skipped, not the whole reply.
	ErrTTSTimeout = errors.New("tts synthesis timeout")

	// ErrOutboundClosed marks a write attempted after the outbound channel
	// has gone away.
	ErrOutboundClosed = errors.New("outbound channel closed")
)
