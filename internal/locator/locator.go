// Package locator finds the installed wiresock-client executable.
package locator

import (
	"errors"
	"fmt"
	"os"
)

var ErrNotInstalled = errors.New("wiresock client is not installed")

// Locator resolves the path of the client executable.
type Locator interface {
	Locate() (string, error)
}

// Installed looks for the client in the platform's install location, or
// at Path when one is configured.
type Installed struct {
	Path           string
	ExecutableName string
}

func New(path, executableName string) Installed {
	return Installed{Path: path, ExecutableName: executableName}
}

func (l Installed) Locate() (string, error) {
	if l.Path != "" {
		if err := checkExecutable(l.Path); err != nil {
			return "", err
		}
		return l.Path, nil
	}
	return l.locate()
}

// Func adapts a function to Locator.
type Func func() (string, error)

func (f Func) Locate() (string, error) { return f() }

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s does not exist", ErrNotInstalled, path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNotInstalled, path)
	}
	return nil
}
