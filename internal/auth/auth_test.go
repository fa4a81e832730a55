package auth

import "testing"

func TestAuthorizeDisabledAlwaysPasses(t *testing.T) {
	p := NewPolicy(false, []string{"dev1"}, nil)
	if err := p.Authorize(HelloFrame{DeviceID: "unknown"}); err != nil {
		t.Fatalf("expected disabled policy to allow anything, got %v", err)
	}
}

func TestAuthorizeRejectsUnlistedDeviceWithoutToken(t *testing.T) {
	p := NewPolicy(true, []string{"dev1"}, nil)
	if err := p.Authorize(HelloFrame{DeviceID: "dev2"}); err == nil {
		t.Fatal("expected rejection for unlisted device with no token")
	}
}

func TestAuthorizeAllowsAllowlistedDeviceWithoutToken(t *testing.T) {
	p := NewPolicy(true, []string{"dev1"}, nil)
	if err := p.Authorize(HelloFrame{DeviceID: "dev1"}); err != nil {
		t.Fatalf("expected allow-listed device to pass, got %v", err)
	}
}

// TestAuthorizeAcceptsAnyDevicePresentingRegisteredToken mirrors spec e2e
// scenario 1: tokens map token->name, so a device absent from the
// allow-list is still admitted on a recognized token.
func TestAuthorizeAcceptsAnyDevicePresentingRegisteredToken(t *testing.T) {
	p := NewPolicy(true, nil, map[string]string{"T1": "alice"})
	if err := p.Authorize(HelloFrame{DeviceID: "dev-1", Token: "T1"}); err != nil {
		t.Fatalf("expected device with registered token to pass, got %v", err)
	}
}

func TestAuthorizeRejectsUnrecognizedToken(t *testing.T) {
	p := NewPolicy(true, nil, map[string]string{"T1": "alice"})
	if err := p.Authorize(HelloFrame{DeviceID: "dev-1", Token: "wrong"}); err == nil {
		t.Fatal("expected rejection for unrecognized token")
	}
}
