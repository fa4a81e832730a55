// Package model defines the data types shared across every stage of the
// per-connection pipeline: the session itself, a conversation turn, the
// IoT capability descriptors a device advertises, and the persisted memory
// record a conversation leaves behind.
package model

import (
	"sync"
	"time"
)

// ListenMode selects whether voice activity is detected automatically from
// the audio stream or driven by explicit client listen/stop frames.
type ListenMode string

const (
	ListenModeAuto   ListenMode = "auto"
	ListenModeManual ListenMode = "manual"
)

// AudioParams describes the codec for a session. The server entry point
// sets it (Opus, 16 kHz, mono, 60 ms frames); the hello frame is not read
// for it and the welcome frame does not carry it.
type AudioParams struct {
	Format        string
	SampleRate    int
	Channels      int
	FrameDuration time.Duration
}

// PropertyType is the declared value type of a device capability property.
type PropertyType string

const (
	PropertyBool   PropertyType = "bool"
	PropertyInt    PropertyType = "int"
	PropertyString PropertyType = "string"
)

// PropertyDescriptor is one read/write attribute of an IoT capability, e.g.
// a speaker's volume or a light's power state.
type PropertyDescriptor struct {
	Name     string
	Type     PropertyType
	Writable bool
}

// MethodDescriptor is one invocable action of an IoT capability.
type MethodDescriptor struct {
	Name        string
	Description string
	Parameters  []string
}

// DeviceDescriptor is one capability a connected device advertises via an
// iot descriptors frame; each becomes a pair of LLM-facing tools.
type DeviceDescriptor struct {
	Name       string
	Properties []PropertyDescriptor
	Methods    []MethodDescriptor
}

// PropertyState is the live value of one property on one descriptor,
// mutated by set_device_property tool calls and device state frames.
type PropertyState struct {
	Value interface{}
}

// Role names who produced a transcript turn, per §3's {system, user,
// assistant, tool} role set.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRecord is one function invocation an assistant turn requested;
// a later tool turn's ToolCallID must match one of these within the same
// session (P4).
type ToolCallRecord struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// Turn is one entry in the transcript: the system prompt, a user
// utterance, an assistant reply (optionally recording tool calls it
// made), or a tool result keyed back to the call that produced it.
type Turn struct {
	Role       Role
	Content    string
	ToolCallID string           // set on tool turns; matches a ToolCallRecord.ID above
	ToolCalls  []ToolCallRecord // set on assistant turns that invoked a tool
	StartedAt  time.Time
	FinishedAt time.Time
}

// MemoryRecord is what gets persisted for a session once it ends: the
// rolling dialogue plus an LLM-produced summary, keyed by device id.
type MemoryRecord struct {
	DeviceID  string
	Summary   string
	RawTurns  []Turn
	UpdatedAt time.Time
}

// Session is the live, mutable state of one connected device for the
// lifetime of one WebSocket connection. All fields after the embedded
// mutex must be accessed only while holding it.
type Session struct {
	ID          string
	DeviceID    string
	ClientID    string
	Audio       AudioParams
	Mode        ListenMode
	CreatedAt   time.Time
	LastVoiceAt time.Time

	mu              sync.RWMutex
	devices         map[string]*DeviceDescriptor
	propState       map[string]map[string]*PropertyState
	turns           []Turn
	llmBusy         bool
	ttsPlaying      bool
	closing         bool
	cancelled       bool
	closeAfterReply bool
	firstSpokenIdx  int
	lastSpokenIdx   int
}

// NewSession allocates a fresh session for a just-accepted connection.
func NewSession(id, deviceID, clientID string) *Session {
	return &Session{
		ID:        id,
		DeviceID:  deviceID,
		ClientID:  clientID,
		Mode:      ListenModeAuto,
		CreatedAt: time.Now(),
		devices:   make(map[string]*DeviceDescriptor),
		propState: make(map[string]map[string]*PropertyState),
	}
}

// RegisterDevice installs or replaces a capability descriptor, seeding its
// property state table so set/get tool calls have somewhere to land.
func (s *Session) RegisterDevice(d *DeviceDescriptor, defaults map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.Name] = d
	state := make(map[string]*PropertyState, len(d.Properties))
	for _, p := range d.Properties {
		v := defaults[p.Name]
		state[p.Name] = &PropertyState{Value: v}
	}
	s.propState[d.Name] = state
}

// Device returns the named capability descriptor, if one was registered.
func (s *Session) Device(name string) (*DeviceDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[name]
	return d, ok
}

// Devices returns every registered capability descriptor.
func (s *Session) Devices() []*DeviceDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*DeviceDescriptor, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out
}

// GetProperty reads a device property's current value.
func (s *Session) GetProperty(device, name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	props, ok := s.propState[device]
	if !ok {
		return nil, false
	}
	p, ok := props[name]
	if !ok {
		return nil, false
	}
	return p.Value, true
}

// SetProperty writes a device property's value, returning false if the
// device or property is unknown.
func (s *Session) SetProperty(device, name string, value interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	props, ok := s.propState[device]
	if !ok {
		return false
	}
	p, ok := props[name]
	if !ok {
		return false
	}
	p.Value = value
	return true
}

// AppendTurn records one transcript entry.
func (s *Session) AppendTurn(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now()
	}
	if t.FinishedAt.IsZero() {
		t.FinishedAt = t.StartedAt
	}
	s.turns = append(s.turns, t)
}

// EnsureSystemTurn seeds the transcript's mandatory leading system turn
// if it hasn't been recorded yet; a no-op on every call after the first.
func (s *Session) EnsureSystemTurn(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) > 0 {
		return
	}
	now := time.Now()
	s.turns = append(s.turns, Turn{Role: RoleSystem, Content: content, StartedAt: now, FinishedAt: now})
}

// Turns returns a copy of the turns recorded so far.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// LastTurns returns a copy of the most recent n turns, or every turn
// recorded if fewer than n exist.
func (s *Session) LastTurns(n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n >= len(s.turns) {
		out := make([]Turn, len(s.turns))
		copy(out, s.turns)
		return out
	}
	out := make([]Turn, n)
	copy(out, s.turns[len(s.turns)-n:])
	return out
}

// SetLLMBusy marks whether a generation is currently in flight, used to
// drop overlapping ASR finals per the at-most-one-outstanding rule.
func (s *Session) SetLLMBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.llmBusy = busy
}

// LLMBusy reports whether a generation is currently in flight.
func (s *Session) LLMBusy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.llmBusy
}

// SetTTSPlaying marks whether audio is currently being streamed to the
// device, used to suppress the idle-voice disconnect while replying.
func (s *Session) SetTTSPlaying(playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttsPlaying = playing
}

// TTSPlaying reports whether audio is currently being streamed out.
func (s *Session) TTSPlaying() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttsPlaying
}

// SetCancelled sets or clears the per-reply cancellation flag checked by
// every pipeline stage (§5 "Cancellation and timeouts").
func (s *Session) SetCancelled(c bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = c
	if c {
		s.firstSpokenIdx = 0
		s.lastSpokenIdx = 0
	}
}

// Cancelled reports whether the current reply has been cancelled.
func (s *Session) Cancelled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelled
}

// SetCloseAfterReply marks that the session should tear down once the
// reply currently being emitted finishes.
func (s *Session) SetCloseAfterReply(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeAfterReply = v
}

// CloseAfterReply reports whether teardown is pending the current reply.
func (s *Session) CloseAfterReply() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closeAfterReply
}

// RecordSpokenIndex updates the first/last spoken chunk indices for the
// reply in progress.
func (s *Session) RecordSpokenIndex(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstSpokenIdx == 0 {
		s.firstSpokenIdx = idx
	}
	s.lastSpokenIdx = idx
}

// SpokenRange returns the first and last spoken chunk indices recorded
// for the reply in progress.
func (s *Session) SpokenRange() (first, last int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firstSpokenIdx, s.lastSpokenIdx
}

// MarkClosing flags the session as tearing down; returns false if it was
// already closing, so teardown runs exactly once.
func (s *Session) MarkClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.closing = true
	return true
}
