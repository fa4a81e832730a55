package router

import "testing"

func TestDispatchRoutesHello(t *testing.T) {
	called := false
	err := Dispatch([]byte(`{"type":"hello"}`), Handlers{
		OnHello: func(raw map[string]interface{}) error {
			called = true
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected OnHello to be invoked")
	}
}

func TestDispatchUnknownTypeEchoes(t *testing.T) {
	var echoed []byte
	raw := []byte(`{"type":"mystery"}`)
	err := Dispatch(raw, Handlers{
		OnEcho: func(data []byte) error {
			echoed = data
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(echoed) != string(raw) {
		t.Fatalf("expected unknown type to be echoed back verbatim, got %q", echoed)
	}
}

func TestDispatchMalformedJSONEchoes(t *testing.T) {
	var echoed []byte
	raw := []byte(`{not json`)
	err := Dispatch(raw, Handlers{
		OnEcho: func(data []byte) error {
			echoed = data
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(echoed) != string(raw) {
		t.Fatalf("expected malformed frame to be echoed back verbatim, got %q", echoed)
	}
}

func TestDispatchBareNumberEchoes(t *testing.T) {
	var echoed []byte
	raw := []byte(`42`)
	err := Dispatch(raw, Handlers{
		OnEcho: func(data []byte) error {
			echoed = data
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(echoed) != "42" {
		t.Fatalf("expected bare JSON number to be echoed back, got %q", echoed)
	}
}

func TestDispatchIOTDescriptorsVsStates(t *testing.T) {
	var gotDescs, gotStates bool
	h := Handlers{
		OnIOTDescs:  func(raw map[string]interface{}) error { gotDescs = true; return nil },
		OnIOTStates: func(raw map[string]interface{}) error { gotStates = true; return nil },
	}
	if err := Dispatch([]byte(`{"type":"iot","descriptors":[{"name":"Speaker"}]}`), h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotDescs {
		t.Fatal("expected OnIOTDescs to be invoked for a descriptors body")
	}
	if err := Dispatch([]byte(`{"type":"iot","states":[{"name":"Speaker","state":{"volume":10}}]}`), h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotStates {
		t.Fatal("expected OnIOTStates to be invoked for a states body")
	}
}
