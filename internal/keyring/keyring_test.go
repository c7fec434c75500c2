package keyring

import (
	"testing"

	"github.com/99designs/keyring"
)

func TestSecrets(t *testing.T) {
	s := New(keyring.NewArrayKeyring(nil))

	got, err := s.Get("t1/private_key")
	if err != nil {
		t.Fatalf("Get() on empty keyring failed: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty secret, got %q", got)
	}
	if s.Has("t1/private_key") {
		t.Error("Has() true for missing key")
	}

	if err := s.Set("t1/private_key", "secret"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	got, err = s.Get("t1/private_key")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got != "secret" {
		t.Errorf("Get() = %q, want secret", got)
	}
	if !s.Has("t1/private_key") {
		t.Error("Has() false after Set")
	}

	if err := s.Delete("t1/private_key"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := s.Delete("t1/private_key"); err != nil {
		t.Errorf("Delete() of missing key = %v, want nil", err)
	}
	if s.Has("t1/private_key") {
		t.Error("secret still present after Delete")
	}
}
