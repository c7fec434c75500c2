//go:build !windows

package procgroup

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Tracker remembers the process groups it has started.
type Tracker struct {
	mu     sync.Mutex
	groups map[int]struct{}
	closed bool
}

func New() (*Tracker, error) {
	return &Tracker{groups: make(map[int]struct{})}, nil
}

// Prepare puts the child in its own process group so the whole tree can be
// signalled at once.
func (t *Tracker) Prepare(cmd *exec.Cmd) {
	attr := &syscall.SysProcAttr{Setpgid: true}
	setDeathSignal(attr)
	cmd.SysProcAttr = attr
}

// Track records the process group led by p.
func (t *Tracker) Track(p *os.Process) error {
	if p == nil {
		return ErrNilProcess
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	t.prune()
	t.groups[p.Pid] = struct{}{}
	return nil
}

// Forget stops tracking the group led by p once the group is empty. The
// kernel does not reuse a pgid while any member is alive, so a group whose
// leader exited before its children stays tracked until they are gone.
func (t *Tracker) Forget(p *os.Process) {
	if p == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.groups[p.Pid]; ok && !groupAlive(p.Pid) {
		delete(t.groups, p.Pid)
	}
}

// prune drops groups that no longer have members. Callers hold mu.
func (t *Tracker) prune() {
	for pgid := range t.groups {
		if !groupAlive(pgid) {
			delete(t.groups, pgid)
		}
	}
}

func groupAlive(pgid int) bool {
	err := unix.Kill(-pgid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Close kills every tracked process group.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.prune()

	var errs []error
	for pgid := range t.groups {
		if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = append(errs, fmt.Errorf("kill process group %d: %w", pgid, err))
		}
	}
	t.groups = nil
	return errors.Join(errs...)
}
