package devices

import (
	"testing"

	"github.com/code-100-precent/lingecho-voice/internal/voice/model"
)

func TestSetDevicePropertyRejectsTypeMismatch(t *testing.T) {
	s := model.NewSession("sess1", "dev1", "client1")
	r := New(s, nil)
	r.ApplyDescriptors([]*model.DeviceDescriptor{
		{
			Name: "Speaker",
			Properties: []model.PropertyDescriptor{
				{Name: "volume", Type: model.PropertyInt, Writable: true},
			},
		},
	}, 100)

	_, err := r.executeSetProperty(map[string]interface{}{
		"device": "Speaker", "property": "volume", "value": "loud",
	})
	if err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestSetDevicePropertyAppliesAndReads(t *testing.T) {
	s := model.NewSession("sess1", "dev1", "client1")
	r := New(s, nil)
	r.ApplyDescriptors([]*model.DeviceDescriptor{
		{
			Name: "Speaker",
			Properties: []model.PropertyDescriptor{
				{Name: "volume", Type: model.PropertyInt, Writable: true},
			},
		},
	}, 100)

	out, err := r.executeSetProperty(map[string]interface{}{
		"device": "Speaker", "property": "volume", "value": 42,
	})
	if err != nil || out.Text != "ok" {
		t.Fatalf("unexpected result: %q %v", out.Text, err)
	}

	got, err := r.executeGetState(map[string]interface{}{
		"device": "Speaker", "property": "volume",
	})
	if err != nil || got.Text != "42" {
		t.Fatalf("unexpected read: %q %v", got.Text, err)
	}
}

func TestGetDeviceStateUnknownDevice(t *testing.T) {
	s := model.NewSession("sess1", "dev1", "client1")
	r := New(s, nil)
	_, err := r.executeGetState(map[string]interface{}{"device": "nope", "property": "x"})
	if err == nil {
		t.Fatal("expected not-found error")
	}
}
