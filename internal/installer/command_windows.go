//go:build windows

package installer

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/windows"
)

// defaultCommand starts msiexec through PowerShell so the installer's exit
// code can be read back from stdout.
func defaultCommand(ctx context.Context, pkg string) (*exec.Cmd, error) {
	path, err := filepath.Abs(pkg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve installer package: %w", err)
	}

	script := fmt.Sprintf(
		`(Start-Process -FilePath "msiexec.exe" -ArgumentList "/i", '"%s"', "/qr" -Wait -Passthru).ExitCode`,
		path,
	)
	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
	return cmd, nil
}
