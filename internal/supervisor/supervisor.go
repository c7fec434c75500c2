// Package supervisor runs wiresock-client for one tunnel at a time and
// mirrors its lifecycle into the shared tunnel state.
//
// The lifecycle is STOPPED -> STARTING -> RUNNING -> STOPPED. Enable only
// accepts work while STOPPED, and a deferred guard returns the state to
// STOPPED/DISCONNECTED on every exit path, so an attempt can never leave
// the state stuck in STARTING or RUNNING.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/TunnlTo/desktop-app/internal/db"
	"github.com/TunnlTo/desktop-app/internal/locator"
	"github.com/TunnlTo/desktop-app/internal/state"
	"github.com/TunnlTo/desktop-app/internal/tunnel"
)

const maxLineSize = 1024 * 1024

// Tracker groups spawned processes so they die with the supervisor.
type Tracker interface {
	Prepare(cmd *exec.Cmd)
	Track(p *os.Process) error
	Forget(p *os.Process)
}

// EventLogger records lifecycle history. Failures are logged and ignored.
type EventLogger interface {
	LogTunnelEvent(tunnelID, eventType, details string) error
}

type Options struct {
	Store          *state.Store
	Tracker        Tracker
	Locator        locator.Locator
	ConfigPath     string // where the serialized tunnel config is written
	LogLevel       string // passed to the client as -log-level
	ExecutableName string // used by Disable to find the client by name
	Killer         Killer
	Events         EventLogger
}

type Supervisor struct {
	store          *state.Store
	tracker        Tracker
	locator        locator.Locator
	configPath     string
	logLevel       string
	executableName string
	killer         Killer
	events         EventLogger

	mu  sync.Mutex // guards pid and logLevel
	pid int
}

func New(opts Options) *Supervisor {
	s := &Supervisor{
		store:          opts.Store,
		tracker:        opts.Tracker,
		locator:        opts.Locator,
		configPath:     opts.ConfigPath,
		logLevel:       opts.LogLevel,
		executableName: opts.ExecutableName,
		killer:         opts.Killer,
		events:         opts.Events,
	}
	if s.store == nil {
		s.store = state.New()
	}
	if s.killer == nil {
		s.killer = ProcessKiller{}
	}
	if s.logLevel == "" {
		s.logLevel = "debug"
	}
	return s
}

// Store returns the state store the supervisor publishes to.
func (s *Supervisor) Store() *state.Store {
	return s.store
}

// PID returns the pid of the running client, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// SetLogLevel changes the -log-level passed to the next client launch.
func (s *Supervisor) SetLogLevel(level string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logLevel = level
}

func (s *Supervisor) currentLogLevel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logLevel
}

// Enable runs the client for d and blocks until it exits. It returns nil
// when the client ran and exited, whatever its exit code.
func (s *Supervisor) Enable(d tunnel.Descriptor) error {
	return s.run(d, nil)
}

// Launch starts the client for d in the background. It returns once the
// client is RUNNING, or with the error that stopped it from getting there.
func (s *Supervisor) Launch(d tunnel.Descriptor) error {
	started := make(chan error, 1)
	go s.run(d, started)
	return <-started
}

func (s *Supervisor) run(d tunnel.Descriptor, started chan<- error) (err error) {
	notify := func(err error) {
		if started != nil {
			started <- err
			started = nil
		}
	}

	if err := s.accept(d); err != nil {
		slog.Warn("Rejected enable request", "tunnel", d.ID, "error", err)
		notify(err)
		return err
	}

	var terminal string
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Supervisor panicked", "tunnel", d.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrUnexpected, r)
		}
		if err != nil {
			terminal = fmt.Sprintf("Failed to enable tunnel: %v", err)
			s.logEvent(d.ID, db.EventEnableFailed, err.Error())
		}
		s.reset(terminal)
		notify(err)
	}()

	s.logEvent(d.ID, db.EventEnable, d.Name)

	if err := s.writeConfig(d); err != nil {
		return err
	}

	exe, err := s.locator.Locate()
	if err != nil {
		return err
	}

	cmd := exec.Command(exe, "run", "-config", s.configPath, "-log-level", s.currentLogLevel())
	if s.tracker != nil {
		s.tracker.Prepare(cmd)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	slog.Info("Started wiresock client", "tunnel", d.ID, "pid", cmd.Process.Pid, "path", exe)
	s.track(d.ID, cmd.Process)

	s.mu.Lock()
	s.pid = cmd.Process.Pid
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.pid = 0
		s.mu.Unlock()
	}()

	s.store.Update(func(st *state.TunnelState) error {
		st.WiresockStatus = state.WiresockRunning
		return nil
	})
	notify(nil)

	s.consume(d.ID, stdout)

	terminal = s.wait(d.ID, cmd)
	return nil
}

// accept atomically moves STOPPED to STARTING, clearing the logs of the
// previous session. Anything but STOPPED is rejected without side effects.
func (s *Supervisor) accept(d tunnel.Descriptor) error {
	return s.store.Update(func(st *state.TunnelState) error {
		if !st.Stopped() {
			return ErrAlreadyRunning
		}
		st.WiresockStatus = state.WiresockStarting
		st.TunnelStatus = state.TunnelDisconnected
		st.TunnelID = d.ID
		st.Logs = []string{}
		return nil
	})
}

func (s *Supervisor) reset(terminal string) {
	s.store.Update(func(st *state.TunnelState) error {
		st.WiresockStatus = state.WiresockStopped
		st.TunnelStatus = state.TunnelDisconnected
		if terminal != "" {
			st.Logs = append(st.Logs, terminal)
		}
		return nil
	})
}

func (s *Supervisor) writeConfig(d tunnel.Descriptor) error {
	if err := os.MkdirAll(filepath.Dir(s.configPath), 0700); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigWrite, err)
	}
	if err := os.WriteFile(s.configPath, []byte(tunnel.Serialize(d)), 0600); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigWrite, err)
	}
	slog.Debug("Wrote tunnel config", "tunnel", d.ID, "path", s.configPath)
	return nil
}

// track registers the child with the process group. A failure weakens the
// teardown guarantee but does not stop the tunnel.
func (s *Supervisor) track(tunnelID string, p *os.Process) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Track(p); err != nil {
		slog.Warn("Failed to track wiresock client", "tunnel", tunnelID, "pid", p.Pid, "error", err)
		s.logEvent(tunnelID, db.EventTrackingFailed, err.Error())
		s.store.Update(func(st *state.TunnelState) error {
			st.Logs = append(st.Logs, fmt.Sprintf("Failed to track wiresock process: %v", err))
			return nil
		})
	}
}

// consume reads client output until end of stream, which only happens when
// the client exits or is killed.
func (s *Supervisor) consume(tunnelID string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		ev := Classify(scanner.Text())
		if ev.Skip {
			continue
		}

		connected := false
		s.store.Update(func(st *state.TunnelState) error {
			st.Logs = append(st.Logs, ev.Line)
			if ev.Connected && !st.Connected() {
				st.TunnelStatus = state.TunnelConnected
				connected = true
			}
			return nil
		})
		if connected {
			slog.Info("Tunnel connected", "tunnel", tunnelID)
			s.logEvent(tunnelID, db.EventConnected, "")
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("Stopped reading wiresock output", "tunnel", tunnelID, "error", err)
		// Drain so the client never blocks on a full pipe before Wait.
		io.Copy(io.Discard, r)
	}
}

// wait reaps the client. Wait errors are logged, never returned.
func (s *Supervisor) wait(tunnelID string, cmd *exec.Cmd) string {
	err := cmd.Wait()
	if s.tracker != nil {
		s.tracker.Forget(cmd.Process)
	}
	status := "unknown"
	if cmd.ProcessState != nil {
		status = cmd.ProcessState.String()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			slog.Info("Wiresock client exited", "tunnel", tunnelID, "status", status)
		} else {
			slog.Error("Failed to wait for wiresock client", "tunnel", tunnelID, "error", err)
		}
	} else {
		slog.Info("Wiresock client exited", "tunnel", tunnelID, "status", status)
	}

	s.logEvent(tunnelID, db.EventExit, status)
	return fmt.Sprintf("WireSock process exited (%s)", status)
}

// Disable kills the client by executable name. The state reset happens in
// the Enable call that owns the process once it observes the exit.
func (s *Supervisor) Disable(ctx context.Context) error {
	killed, err := s.killer.KillByName(ctx, s.executableName)
	if err != nil {
		return fmt.Errorf("failed to stop %s: %w", s.executableName, err)
	}
	if killed > 0 {
		tunnelID := s.store.Snapshot().TunnelID
		slog.Info("Stopped wiresock client", "processes", killed, "tunnel", tunnelID)
		s.logEvent(tunnelID, db.EventDisable, fmt.Sprintf("killed %d process(es)", killed))
	} else {
		slog.Debug("No wiresock client process to stop")
	}
	return nil
}

// Running reports whether any process with the client's executable name
// exists, whether or not this supervisor spawned it.
func (s *Supervisor) Running(ctx context.Context) (bool, error) {
	pids, err := s.RunningPIDs(ctx)
	return len(pids) > 0, err
}

// RunningPIDs lists the pids of every running client process.
func (s *Supervisor) RunningPIDs(ctx context.Context) ([]int32, error) {
	procs, err := FindByName(ctx, s.executableName)
	if err != nil {
		return nil, err
	}
	pids := make([]int32, 0, len(procs))
	for _, p := range procs {
		pids = append(pids, p.Pid)
	}
	return pids, nil
}

func (s *Supervisor) logEvent(tunnelID, eventType, details string) {
	if s.events == nil {
		return
	}
	if err := s.events.LogTunnelEvent(tunnelID, eventType, details); err != nil {
		slog.Warn("Failed to record tunnel event", "event", eventType, "error", err)
	}
}
