//go:build !windows

package locator

import (
	"errors"
	"fmt"
	"os/exec"
)

func (l Installed) locate() (string, error) {
	path, err := exec.LookPath(l.ExecutableName)
	if errors.Is(err, exec.ErrNotFound) {
		return "", fmt.Errorf("%w: %s not found in PATH", ErrNotInstalled, l.ExecutableName)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up %s: %w", l.ExecutableName, err)
	}
	return path, nil
}
