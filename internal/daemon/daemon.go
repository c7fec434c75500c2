// Package daemon owns the long-lived singletons (tunnel state, supervisor,
// process tracker, status menu) and serves them to CLI clients over a unix
// socket.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/TunnlTo/desktop-app/internal/core"
	"github.com/TunnlTo/desktop-app/internal/db"
	"github.com/TunnlTo/desktop-app/internal/installer"
	"github.com/TunnlTo/desktop-app/internal/keyring"
	"github.com/TunnlTo/desktop-app/internal/locator"
	"github.com/TunnlTo/desktop-app/internal/menu"
	"github.com/TunnlTo/desktop-app/internal/procgroup"
	"github.com/TunnlTo/desktop-app/internal/state"
	"github.com/TunnlTo/desktop-app/internal/supervisor"
	"github.com/TunnlTo/desktop-app/internal/tunnel"
)

const shutdownTimeout = 5 * time.Second

// Daemon supervises one wiresock-client at a time on behalf of its clients.
type Daemon struct {
	mu           sync.Mutex
	listener     net.Listener
	shutdownOnce sync.Once
	logBroadcast *LogBroadcaster
	database     *db.DB

	store      *state.Store
	supervisor *supervisor.Supervisor
	tracker    *procgroup.Tracker
	menu       *menu.Model
	binder     *menu.Binder
	tunnels    *tunnel.Store
	installer  *installer.Installer

	locator      locator.Locator
	serviceCheck func(name string) (bool, error)

	ctx        context.Context
	cancelFunc context.CancelFunc
	exit       func(code int)
}

// New wires the daemon from core.Config. Nothing is started until Run.
func New() *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		logBroadcast: NewLogBroadcaster(defaultHistorySize),
		store:        state.New(),
		menu:         menu.NewModel(menu.LogRenderer{}),
		installer:    installer.New(core.Config.Installer.Package),
		locator:      locator.New(core.Config.Client.Path, core.Config.Client.ExecutableName),
		serviceCheck: locator.ServiceInstalled,
		ctx:          ctx,
		cancelFunc:   cancel,
		exit:         os.Exit,
	}

	d.binder = menu.NewBinder(d.menu)
	d.store.AddObserver(d.binder)

	if secrets, err := keyring.Open(); err != nil {
		slog.Error("Failed to open keyring, tunnels are unavailable", "error", err)
	} else {
		d.tunnels = tunnel.NewStore(core.GetTunnelsPath(), secrets)
	}

	opts := supervisor.Options{
		Store:          d.store,
		Locator:        d.locator,
		ConfigPath:     core.GetTunnelConfPath(),
		LogLevel:       core.Config.LogLevel,
		ExecutableName: core.Config.Client.ExecutableName,
		Events:         eventLog{d},
	}
	if tracker, err := procgroup.New(); err != nil {
		slog.Error("Failed to create process group tracker, client processes will not be grouped", "error", err)
	} else {
		d.tracker = tracker
		opts.Tracker = tracker
	}
	d.supervisor = supervisor.New(opts)

	return d
}

// eventLog forwards supervisor events to the database once it is open.
type eventLog struct {
	d *Daemon
}

func (e eventLog) LogTunnelEvent(tunnelID, eventType, details string) error {
	if e.d.database == nil {
		return nil
	}
	return e.d.database.LogTunnelEvent(tunnelID, eventType, details)
}

// Run serves clients until the daemon is stopped.
func (d *Daemon) Run() {
	d.setupLogging()

	if err := os.MkdirAll(core.Config.ConfigPath, 0o700); err != nil {
		slog.Error(fmt.Sprintf("Fatal: Could not create config directory: %v", err))
		d.exit(1)
		return
	}

	dbPath := core.GetDatabasePath()
	database, err := db.Open(dbPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err, "path", dbPath)
	} else {
		d.database = database
		slog.Info("Database opened", "path", dbPath)

		version := core.FormatVersion(core.Version)
		if err := d.database.LogDaemonEvent("start", fmt.Sprintf("daemon started - version: %s, PID: %d", version, os.Getpid())); err != nil {
			slog.Error("Failed to log daemon start", "error", err)
		}
	}

	socketPath := core.GetSocketPath()
	pidFilePath := core.GetPIDFilePath()

	listener, err := listen(socketPath)
	if err != nil {
		slog.Error(fmt.Sprintf("Fatal: %v", err))
		d.exit(1)
		return
	}

	os.WriteFile(pidFilePath, []byte(strconv.Itoa(os.Getpid())), 0o644)
	defer os.Remove(pidFilePath)
	defer os.Remove(socketPath)

	d.listener = listener
	slog.Info(fmt.Sprintf("Daemon listening on %s", socketPath))

	d.syncMenu()
	if d.tunnels != nil {
		if err := d.tunnels.Watch(d.ctx, d.syncMenu); err != nil {
			slog.Error("Failed to watch tunnels file", "error", err)
		}
	}

	d.watchConfig()
	d.autoConnect()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-shutdownChan
		slog.Info("Shutdown signal received. Disabling tunnel.")
		d.shutdown()
		if d.listener != nil {
			d.listener.Close()
		}
		d.exit(0)
	}()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				slog.Info(fmt.Sprintf("Error accepting connection: %v", err))
			}
			break
		}
		go d.handleConnection(conn)
	}
}

// listen creates the socket listener, replacing a socket file left behind
// by a daemon that is no longer running.
func listen(socketPath string) (net.Listener, error) {
	listener, err := net.Listen("unix", socketPath)
	if err == nil {
		return listener, nil
	}

	if _, statErr := os.Stat(socketPath); statErr != nil {
		return nil, fmt.Errorf("could not create socket listener: %w", err)
	}
	if conn, dialErr := net.Dial("unix", socketPath); dialErr == nil {
		conn.Close()
		return nil, errors.New("daemon is already running")
	}

	slog.Info(fmt.Sprintf("Removing stale socket file: %s", socketPath))
	if err := os.Remove(socketPath); err != nil {
		return nil, fmt.Errorf("could not remove stale socket: %w", err)
	}
	listener, err = net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("could not create socket listener: %w", err)
	}
	return listener, nil
}

// syncMenu refreshes the connect submenu from the tunnel store.
func (d *Daemon) syncMenu() {
	if d.tunnels == nil {
		return
	}
	tunnels, err := d.tunnels.List()
	if err != nil {
		slog.Error("Failed to list tunnels for menu", "error", err)
		return
	}
	if err := d.binder.SyncTunnels(tunnels); err != nil {
		slog.Error("Failed to update connect menu", "error", err)
		return
	}
	slog.Debug("Connect menu updated", "tunnels", len(tunnels))
}

// autoConnect enables the configured tunnel when the daemon starts.
func (d *Daemon) autoConnect() {
	id := core.Config.AutoConnect
	if id == "" {
		return
	}
	slog.Info("Auto-connecting tunnel", "tunnel_id", id)
	if resp := d.enableTunnel(id); resp.HasError() {
		resp.LogMessages()
	}
}

func (d *Daemon) reloadConfig() error {
	oldConfig := core.Config

	newConfig, err := core.LoadConfigFromDir(oldConfig.ConfigPath)
	if err != nil {
		errMsg := err.Error()
		if idx := strings.Index(errMsg, ":\n"); idx != -1 {
			errMsg = errMsg[:idx]
		}
		slog.Error("Configuration file has errors, keeping previous configuration",
			"file", core.GetConfigFilePath(),
			"error", errMsg)
		return fmt.Errorf("config parse error")
	}

	newConfig.Verbose = max(newConfig.Verbose, oldConfig.Verbose)
	core.Config = newConfig

	d.supervisor.SetLogLevel(newConfig.LogLevel)
	d.mu.Lock()
	d.installer.Package = newConfig.Installer.Package
	d.mu.Unlock()

	if newConfig.Client != oldConfig.Client {
		slog.Warn("Client settings changed, restart the daemon to apply them")
	}

	slog.Info("Configuration reloaded successfully", "log_level", newConfig.LogLevel)
	return nil
}

// stopDaemon builds the reply sent before a STOP or Exit shuts down.
func (d *Daemon) stopDaemon() Response {
	response := Response{}
	if d.store.Snapshot().Stopped() {
		response.AddMessage("Stopping daemon...", StatusInfo)
	} else {
		response.AddMessage("Stopping daemon and disabling the active tunnel...", StatusInfo)
	}
	return response
}

// shutdown disables the running tunnel, kills anything left in the process
// group and closes the database. It runs once.
func (d *Daemon) shutdown() {
	d.shutdownOnce.Do(func() {
		slog.Info("Executing shutdown sequence...")

		if d.cancelFunc != nil {
			d.cancelFunc()
		}

		snapshot := d.store.Snapshot()
		if !snapshot.Stopped() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := d.supervisor.Disable(ctx); err != nil {
				slog.Error("Failed to disable tunnel during shutdown", "error", err)
			}
			cancel()
			d.waitForStopped(shutdownTimeout)
		}

		if d.tracker != nil {
			if err := d.tracker.Close(); err != nil {
				slog.Error("Failed to close process group tracker", "error", err)
			}
		}

		if d.database != nil {
			version := core.FormatVersion(core.Version)
			details := fmt.Sprintf("daemon stopped - version: %s, PID: %d, tunnel: %s", version, os.Getpid(), snapshot.TunnelID)
			if err := d.database.LogDaemonEvent("stop", details); err != nil {
				slog.Error("Failed to log daemon stop event", "error", err)
			}
			if err := d.database.Flush(); err != nil {
				slog.Error("Failed to flush database during shutdown", "error", err)
			}
			if err := d.database.Close(); err != nil {
				slog.Error("Failed to close database during shutdown", "error", err)
			} else {
				slog.Info("Database closed successfully")
			}
		}
	})
}

// waitForStopped blocks until the supervisor has observed the client exit
// or the timeout passes. Subscriber sends never block, so a burst of log
// lines can drop the STOPPED update; the snapshot is the final word.
func (d *Daemon) waitForStopped(timeout time.Duration) bool {
	id, updates := d.store.Subscribe()
	defer d.store.Unsubscribe(id)

	if d.store.Snapshot().Stopped() {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case st, ok := <-updates:
			if !ok {
				return d.store.Snapshot().Stopped()
			}
			if st.Stopped() {
				return true
			}
		case <-timer.C:
			if d.store.Snapshot().Stopped() {
				return true
			}
			slog.Warn("Tunnel did not stop in time", "timeout", timeout)
			return false
		}
	}
}
