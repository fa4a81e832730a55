// Package devices maintains the capability registry a session builds from
// incoming iot.descriptors frames, and exposes it as a pair of LLM-facing
// tools (get_device_state, set_device_property) so the model can read and
// drive whatever a connected device advertises without bespoke per-device
// code.
package devices

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/code-100-precent/lingecho-voice/internal/voice/model"
	"github.com/code-100-precent/lingecho-voice/internal/voiceerr"
	"github.com/code-100-precent/lingecho-voice/pkg/providers/llm"
)

// ToolRegistrar is the subset of the LLM tool service the registry needs,
// kept narrow so it composes with whichever provider adapter is active.
type ToolRegistrar interface {
	RegisterTool(name, description string, parameters map[string]interface{}, handler func(args map[string]interface{}) (llm.Action, error))
}

// Registry tracks descriptors for one session. Its two LLM tools are
// registered once and read the session's live descriptor table, so
// descriptors applied later are visible to them without re-registration.
type Registry struct {
	session  *model.Session
	logger   *zap.Logger
	mu       sync.Mutex
	switcher func(device, property string, value interface{}) error
}

// New builds a registry bound to a session's descriptor table.
func New(session *model.Session, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{session: session, logger: logger}
}

// SetPropertyChangeCallback is invoked after a set_device_property tool
// call successfully updates local state, so the caller can push the
// change out to the physical device over the session's own protocol.
func (r *Registry) SetPropertyChangeCallback(cb func(device, property string, value interface{}) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.switcher = cb
}

// ApplyDescriptors installs the capability set carried by an
// iot.descriptors frame into the session's descriptor table, seeding any
// property named volume with defaultSpeakerVolume. Tools are not
// registered here.
func (r *Registry) ApplyDescriptors(descs []*model.DeviceDescriptor, defaultSpeakerVolume int) {
	for _, d := range descs {
		defaults := map[string]interface{}{}
		for _, p := range d.Properties {
			if p.Name == "volume" {
				defaults[p.Name] = defaultSpeakerVolume
			}
		}
		r.session.RegisterDevice(d, defaults)
	}
}

// RegisterTools wires get_device_state and set_device_property into the
// given tool service, reflecting whatever descriptors are currently held.
func (r *Registry) RegisterTools(reg ToolRegistrar) {
	reg.RegisterTool(
		"get_device_state",
		"Read the current value of a property on a connected device.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"device":   map[string]interface{}{"type": "string"},
				"property": map[string]interface{}{"type": "string"},
			},
			"required": []string{"device", "property"},
		},
		r.executeGetState,
	)

	reg.RegisterTool(
		"set_device_property",
		"Write a new value to a writable property on a connected device.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"device":   map[string]interface{}{"type": "string"},
				"property": map[string]interface{}{"type": "string"},
				"value":    map[string]interface{}{},
			},
			"required": []string{"device", "property", "value"},
		},
		r.executeSetProperty,
	)
}

func (r *Registry) executeGetState(args map[string]interface{}) (llm.Action, error) {
	device, _ := args["device"].(string)
	property, _ := args["property"].(string)

	d, ok := r.session.Device(device)
	if !ok {
		return llm.Action{}, fmt.Errorf("%w: device %q", voiceerr.ErrToolNotFound, device)
	}
	if !hasProperty(d, property) {
		return llm.Action{}, fmt.Errorf("%w: property %q on %q", voiceerr.ErrToolNotFound, property, device)
	}
	value, ok := r.session.GetProperty(device, property)
	if !ok {
		return llm.Action{}, fmt.Errorf("%w: no state for %q.%q", voiceerr.ErrToolNotFound, device, property)
	}
	return llm.Action{Kind: llm.ActionReqLLM, Text: fmt.Sprintf("%v", value)}, nil
}

func (r *Registry) executeSetProperty(args map[string]interface{}) (llm.Action, error) {
	device, _ := args["device"].(string)
	property, _ := args["property"].(string)
	value := args["value"]

	d, ok := r.session.Device(device)
	if !ok {
		return llm.Action{}, fmt.Errorf("%w: device %q", voiceerr.ErrToolNotFound, device)
	}
	desc, ok := propertyDescriptor(d, property)
	if !ok {
		return llm.Action{}, fmt.Errorf("%w: property %q on %q", voiceerr.ErrToolNotFound, property, device)
	}
	if !desc.Writable {
		return llm.Action{}, fmt.Errorf("property %q on %q is read-only", property, device)
	}
	if !TypeMatches(desc.Type, value) {
		return llm.Action{}, fmt.Errorf("%w: %q expects %s", voiceerr.ErrTypeMismatch, property, desc.Type)
	}
	if !r.session.SetProperty(device, property, value) {
		return llm.Action{}, fmt.Errorf("%w: %q.%q", voiceerr.ErrToolNotFound, device, property)
	}

	r.mu.Lock()
	cb := r.switcher
	r.mu.Unlock()
	if cb != nil {
		if err := cb(device, property, value); err != nil {
			r.logger.Warn("device property push failed", zap.Error(err),
				zap.String("device", device), zap.String("property", property))
		}
	}
	return llm.Action{Kind: llm.ActionReqLLM, Text: "ok"}, nil
}

func hasProperty(d *model.DeviceDescriptor, name string) bool {
	_, ok := propertyDescriptor(d, name)
	return ok
}

func propertyDescriptor(d *model.DeviceDescriptor, name string) (model.PropertyDescriptor, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return model.PropertyDescriptor{}, false
}

// TypeMatches reports whether v is a legal value for a property of type
// t, used both when a tool call sets a property and when an inbound
// iot.states frame reports one.
func TypeMatches(t model.PropertyType, v interface{}) bool {
	switch t {
	case model.PropertyBool:
		_, ok := v.(bool)
		return ok
	case model.PropertyInt:
		switch v.(type) {
		case int, int32, int64, float64:
			return true
		}
		return false
	case model.PropertyString:
		_, ok := v.(string)
		return ok
	default:
		return true
	}
}
