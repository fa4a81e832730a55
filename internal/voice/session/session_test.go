package session

import (
	"testing"

	"github.com/code-100-precent/lingecho-voice/internal/voice/model"
)

func TestParseDescriptorsReadsPropertiesAndMethods(t *testing.T) {
	raw := map[string]interface{}{
		"type": "iot",
		"descriptors": []interface{}{
			map[string]interface{}{
				"name": "Speaker",
				"properties": map[string]interface{}{
					"volume": map[string]interface{}{"type": "int"},
				},
				"methods": map[string]interface{}{
					"SetVolume": map[string]interface{}{
						"description": "set speaker volume",
						"parameters": map[string]interface{}{
							"volume": map[string]interface{}{"type": "int"},
						},
					},
				},
			},
		},
	}

	descs := parseDescriptors(raw)
	if len(descs) != 1 {
		t.Fatalf("expected one descriptor, got %d", len(descs))
	}
	d := descs[0]
	if d.Name != "Speaker" {
		t.Fatalf("expected Speaker, got %q", d.Name)
	}
	if !hasMethod(d, "SetVolume") {
		t.Fatal("expected SetVolume method to be parsed")
	}
	prop, ok := propertyDescriptor(d, "volume")
	if !ok || prop.Type != model.PropertyInt {
		t.Fatalf("expected volume:int property, got %+v ok=%v", prop, ok)
	}
}

func TestParseDescriptorsSkipsEntriesWithoutName(t *testing.T) {
	raw := map[string]interface{}{
		"descriptors": []interface{}{
			map[string]interface{}{"properties": map[string]interface{}{}},
		},
	}
	if descs := parseDescriptors(raw); len(descs) != 0 {
		t.Fatalf("expected nameless entries to be skipped, got %d", len(descs))
	}
}

func TestHasMethodFalseWhenAbsent(t *testing.T) {
	d := &model.DeviceDescriptor{Name: "Light", Methods: []model.MethodDescriptor{{Name: "TurnOn"}}}
	if hasMethod(d, "SetVolume") {
		t.Fatal("expected SetVolume to be absent on a Light descriptor")
	}
}

func TestPropertyDescriptorNotFound(t *testing.T) {
	d := &model.DeviceDescriptor{Name: "Light"}
	if _, ok := propertyDescriptor(d, "volume"); ok {
		t.Fatal("expected no property on an empty descriptor")
	}
}
