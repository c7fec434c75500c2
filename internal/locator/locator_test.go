package locator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocateConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wiresock-client")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := New(path, "ignored").Locate()
	if err != nil {
		t.Fatalf("Locate() failed: %v", err)
	}
	if got != path {
		t.Errorf("Locate() = %q, want %q", got, path)
	}
}

func TestLocateConfiguredPathMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")

	if _, err := New(path, "").Locate(); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("Locate() error = %v, want ErrNotInstalled", err)
	}
}

func TestLocateConfiguredPathDirectory(t *testing.T) {
	if _, err := New(t.TempDir(), "").Locate(); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("Locate() error = %v, want ErrNotInstalled", err)
	}
}

func TestFunc(t *testing.T) {
	var l Locator = Func(func() (string, error) { return "", ErrNotInstalled })
	if _, err := l.Locate(); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("Func.Locate() error = %v", err)
	}
}
