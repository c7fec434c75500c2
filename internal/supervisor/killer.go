package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Killer forcefully terminates every process with the given executable
// name, along with their descendants.
type Killer interface {
	KillByName(ctx context.Context, name string) (int, error)
}

// ProcessKiller walks the process table with gopsutil. It does not need
// the handle of the process it kills.
type ProcessKiller struct{}

func (ProcessKiller) KillByName(ctx context.Context, name string) (int, error) {
	procs, err := FindByName(ctx, name)
	if err != nil {
		return 0, err
	}

	killed := 0
	var errs []error
	for _, p := range procs {
		n, err := killTree(ctx, p)
		killed += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return killed, errors.Join(errs...)
}

// FindByName returns running processes whose executable name matches name,
// with or without a .exe suffix. The current process is never included.
func FindByName(ctx context.Context, name string) ([]*process.Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	self := int32(os.Getpid())
	var matches []*process.Process
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if matchesName(pname, name) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

func matchesName(processName, name string) bool {
	processName = strings.TrimSuffix(strings.ToLower(processName), ".exe")
	name = strings.TrimSuffix(strings.ToLower(name), ".exe")
	return processName == name
}

// killTree kills children before the parent so none get reparented first.
func killTree(ctx context.Context, p *process.Process) (int, error) {
	killed := 0
	var errs []error

	children, err := p.ChildrenWithContext(ctx)
	if err == nil {
		for _, child := range children {
			n, err := killTree(ctx, child)
			killed += n
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := p.KillWithContext(ctx); err != nil {
		if running, _ := p.IsRunningWithContext(ctx); running {
			errs = append(errs, fmt.Errorf("kill pid %d: %w", p.Pid, err))
		}
	} else {
		slog.Debug("Killed process", "pid", p.Pid)
		killed++
	}
	return killed, errors.Join(errs...)
}
