//go:build windows

package locator

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/windows/registry"
)

const (
	installKey   = `SOFTWARE\NTKernelResources\WinpkFilterForVPNClient`
	installValue = "InstallLocation"
)

func (l Installed) locate() (string, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, installKey, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if errors.Is(err, registry.ErrNotExist) {
		return "", ErrNotInstalled
	}
	if err != nil {
		return "", fmt.Errorf("failed to open registry key: %w", err)
	}
	defer key.Close()

	dir, _, err := key.GetStringValue(installValue)
	if errors.Is(err, registry.ErrNotExist) || (err == nil && dir == "") {
		return "", ErrNotInstalled
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", installValue, err)
	}

	path := filepath.Join(dir, "bin", l.ExecutableName+".exe")
	if err := checkExecutable(path); err != nil {
		return "", err
	}
	return path, nil
}
