package tools

import (
	"testing"

	"github.com/code-100-precent/lingecho-voice/pkg/providers/llm"
)

type fakeRegistrar struct {
	handlers map[string]func(map[string]interface{}) (llm.Action, error)
}

func (f *fakeRegistrar) RegisterTool(name, description string, parameters map[string]interface{}, handler func(args map[string]interface{}) (llm.Action, error)) {
	if f.handlers == nil {
		f.handlers = make(map[string]func(map[string]interface{}) (llm.Action, error))
	}
	f.handlers[name] = handler
}

func TestGoodbyeToolInvokesCallback(t *testing.T) {
	reg := &fakeRegistrar{}
	called := false
	RegisterGoodbye(reg, func(reason string) error {
		called = true
		return nil
	}, nil)

	out, err := reg.handlers["goodbye"](map[string]interface{}{"reason": "睡觉了"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected callback to be invoked")
	}
	if out.Kind != llm.ActionResponse {
		t.Fatalf("expected ActionResponse, got %v", out.Kind)
	}
	if out.Text == "" {
		t.Fatal("expected a farewell message")
	}
}
