//go:build windows

package procgroup

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Tracker owns a single job object handle.
type Tracker struct {
	mu  sync.Mutex
	job windows.Handle
}

// New creates the job object and sets the kill-on-close limit.
func New() (*Tracker, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create job object: %w", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(job)
		return nil, fmt.Errorf("failed to configure job object: %w", err)
	}

	return &Tracker{job: job}, nil
}

// Prepare suppresses the console window of the child.
func (t *Tracker) Prepare(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}

// Track assigns a started process to the job object.
func (t *Tracker) Track(p *os.Process) error {
	if p == nil {
		return ErrNilProcess
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job == 0 {
		return ErrClosed
	}

	handle, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(p.Pid))
	if err != nil {
		return fmt.Errorf("failed to open process %d: %w", p.Pid, err)
	}
	defer windows.CloseHandle(handle)

	if err := windows.AssignProcessToJobObject(t.job, handle); err != nil {
		return fmt.Errorf("failed to assign process %d to job object: %w", p.Pid, err)
	}
	return nil
}

// Forget is a no-op: processes leave the job object when they exit.
func (t *Tracker) Forget(p *os.Process) {}

// Close releases the job handle, which terminates every tracked process.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.job == 0 {
		return nil
	}
	err := windows.CloseHandle(t.job)
	t.job = 0
	return err
}
