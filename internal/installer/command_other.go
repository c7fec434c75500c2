//go:build !windows

package installer

import (
	"context"
	"os/exec"
)

func defaultCommand(context.Context, string) (*exec.Cmd, error) {
	return nil, ErrUnsupported
}
