package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TunnlTo/desktop-app/internal/core"
	"github.com/TunnlTo/desktop-app/internal/db"
	"github.com/TunnlTo/desktop-app/internal/installer"
	"github.com/TunnlTo/desktop-app/internal/locator"
	"github.com/TunnlTo/desktop-app/internal/menu"
	"github.com/TunnlTo/desktop-app/internal/state"
	"github.com/TunnlTo/desktop-app/internal/supervisor"
	"github.com/TunnlTo/desktop-app/internal/tunnel"
)

const (
	defaultEventLimit   = 20
	defaultHistoryLines = 20
	runningCheckTimeout = 5 * time.Second
)

// StatusData is the payload of STATUS and ENABLE responses.
type StatusData struct {
	state.TunnelState
	TunnelName string `json:"tunnel_name,omitempty"`
	PID        int    `json:"pid,omitempty"`
	Code       string `json:"code,omitempty"`
}

// EventsData is the payload of the EVENTS response.
type EventsData struct {
	TunnelEvents  []db.TunnelEvent  `json:"tunnel_events"`
	LastPerTunnel []db.TunnelEvent  `json:"last_per_tunnel"`
	DaemonEvents  []db.DaemonEvent  `json:"daemon_events"`
	InstallerRuns []db.InstallerRun `json:"installer_runs"`
}

// Codes of the INSTALLED and SERVICE responses.
const (
	CodeInstalled           = "WIRESOCK_INSTALLED"
	CodeNotInstalled        = "WIRESOCK_NOT_INSTALLED"
	CodeServiceInstalled    = "WIRESOCK_SERVICE_INSTALLED"
	CodeServiceNotInstalled = "WIRESOCK_SERVICE_NOT_INSTALLED"
)

// InstalledData is the payload of the INSTALLED response.
type InstalledData struct {
	Installed bool   `json:"installed"`
	Path      string `json:"path,omitempty"`
	Code      string `json:"code"`
}

// ServiceData is the payload of the SERVICE response.
type ServiceData struct {
	Installed bool   `json:"installed"`
	Name      string `json:"name"`
	Code      string `json:"code"`
}

// RunningData is the payload of the RUNNING response.
type RunningData struct {
	Running bool    `json:"running"`
	PIDs    []int32 `json:"pids"`
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	parts := strings.Fields(scanner.Text())
	if len(parts) == 0 {
		return
	}
	command, args := parts[0], parts[1:]

	if command != "VERSION" {
		if len(args) > 0 {
			slog.Info(fmt.Sprintf("Executing command: %s %v", command, args))
		} else {
			slog.Info(fmt.Sprintf("Executing command: %s", command))
		}
	}

	var response Response
	switch command {
	case "ENABLE":
		if len(args) != 1 {
			response.AddMessage("Usage: ENABLE <tunnel-id>", StatusError)
			break
		}
		response = d.enableTunnel(args[0])
	case "DISABLE":
		response = d.disableTunnel()
	case "STATUS":
		response = d.getStatus()
	case "STATE":
		d.handleState(conn)
		return
	case "MENU":
		m := d.menu.Menu()
		response.AddMessage(strings.TrimRight(menu.Text(m), "\n"), StatusInfo)
		response.AddData(m)
	case "MENU_ADD":
		if len(args) < 2 {
			response.AddMessage("Usage: MENU_ADD <id> <label>", StatusError)
			break
		}
		response = d.menuResult(d.menu.UpsertItem(args[0], strings.Join(args[1:], " ")), "Menu item '%s' set", args[0])
	case "MENU_ADD_SUB":
		if len(args) < 3 {
			response.AddMessage("Usage: MENU_ADD_SUB <submenu> <id> <label>", StatusError)
			break
		}
		response = d.menuResult(d.menu.UpsertSubmenuItem(args[0], args[1], strings.Join(args[2:], " ")), "Menu item '%s' set", args[1])
	case "MENU_REMOVE":
		if len(args) != 1 {
			response.AddMessage("Usage: MENU_REMOVE <id>", StatusError)
			break
		}
		d.menu.RemoveItem(args[0])
		response = d.menuResult(nil, "Menu item '%s' removed", args[0])
	case "MENU_REMOVE_SUB":
		if len(args) != 2 {
			response.AddMessage("Usage: MENU_REMOVE_SUB <submenu> <id>", StatusError)
			break
		}
		d.menu.RemoveSubmenuItem(args[0], args[1])
		response = d.menuResult(nil, "Menu item '%s' removed", args[1])
	case "MENU_SYNC":
		if d.tunnels == nil {
			response.AddMessage("Tunnel store is unavailable", StatusError)
			break
		}
		d.syncMenu()
		response.AddMessage("Connect menu synchronized", StatusInfo)
		response.AddData(d.menu.Menu())
	case "CLICK":
		if len(args) != 1 {
			response.AddMessage("Usage: CLICK <item-id>", StatusError)
			break
		}
		if args[0] == menu.ExitID {
			d.stop(conn)
			return
		}
		response = d.handleMenuClick(args[0])
	case "INSTALL":
		response = d.runInstaller()
	case "RUNNING":
		response = d.getRunning()
	case "INSTALLED":
		response = d.getInstalled()
	case "SERVICE":
		response = d.getService()
	case "EVENTS":
		limit := defaultEventLimit
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
				limit = n
			}
		}
		response = d.getEvents(limit)
	case "LOGS":
		historyLines := defaultHistoryLines
		showHistory := true
		if len(args) >= 1 {
			if n, err := strconv.Atoi(args[0]); err == nil {
				historyLines = n
			}
			if args[0] == "no_history" || (len(args) >= 2 && args[1] == "no_history") {
				showHistory = false
			}
		}
		d.handleLogs(conn, showHistory, historyLines)
		return
	case "VERSION":
		response = d.getVersion()
	case "STOP":
		d.stop(conn)
		return
	default:
		response.AddMessage("Unknown command.", StatusError)
	}
	conn.Write([]byte(response.ToJSON()))
}

// stop replies, shuts the daemon down and exits.
func (d *Daemon) stop(conn net.Conn) {
	response := d.stopDaemon()
	conn.Write([]byte(response.ToJSON()))
	conn.Close()

	slog.Info("Stop command received. Shutting down daemon.")
	d.shutdown()
	if d.listener != nil {
		d.listener.Close()
	}
	d.exit(0)
}

func (d *Daemon) enableTunnel(id string) Response {
	response := Response{}

	if d.tunnels == nil {
		response.AddMessage("Tunnel store is unavailable", StatusError)
		return response
	}

	desc, err := d.tunnels.Get(id)
	if err != nil {
		if errors.Is(err, tunnel.ErrNotFound) {
			response.AddMessage(fmt.Sprintf("Tunnel '%s' not found", id), StatusError)
		} else {
			response.AddMessage(fmt.Sprintf("Failed to load tunnel '%s': %v", id, err), StatusError)
		}
		return response
	}

	if err := d.supervisor.Launch(desc); err != nil {
		code := supervisor.StatusCode(err)
		slog.Error("Failed to enable tunnel", "tunnel_id", id, "code", code, "error", err)
		response.AddMessage(fmt.Sprintf("Failed to enable tunnel '%s': %v", desc.Name, err), StatusError)
		data := d.statusData()
		data.TunnelName = desc.Name
		data.Code = code
		response.AddData(data)
		return response
	}

	response.AddMessage(fmt.Sprintf("Tunnel '%s' enabled", desc.Name), StatusInfo)
	data := d.statusData()
	data.TunnelName = desc.Name
	data.Code = supervisor.StatusOK
	response.AddData(data)
	return response
}

// disableTunnel kills the client by name even when no tunnel is enabled,
// so a client this daemon lost track of is stopped as well.
func (d *Daemon) disableTunnel() Response {
	response := Response{}
	wasStopped := d.store.Snapshot().Stopped()

	ctx, cancel := context.WithTimeout(d.ctx, shutdownTimeout)
	defer cancel()
	if err := d.supervisor.Disable(ctx); err != nil {
		response.AddMessage(fmt.Sprintf("Failed to disable tunnel: %v", err), StatusError)
		return response
	}

	switch {
	case wasStopped:
		response.AddMessage("No tunnel is enabled", StatusWarn)
	case d.waitForStopped(shutdownTimeout):
		response.AddMessage("Tunnel disabled", StatusInfo)
	default:
		response.AddMessage("Tunnel is still stopping", StatusWarn)
	}
	response.AddData(d.statusData())
	return response
}

func (d *Daemon) statusData() StatusData {
	return StatusData{
		TunnelState: d.store.Snapshot(),
		PID:         d.supervisor.PID(),
	}
}

func (d *Daemon) getStatus() Response {
	response := Response{}
	data := d.statusData()

	if data.TunnelID != "" && d.tunnels != nil {
		if desc, err := d.tunnels.Get(data.TunnelID); err == nil {
			data.TunnelName = desc.Name
		}
	}

	name := data.TunnelName
	if name == "" {
		name = data.TunnelID
	}
	switch {
	case data.Stopped():
		response.AddMessage("No tunnel is enabled", StatusInfo)
	case data.Connected():
		response.AddMessage(fmt.Sprintf("Tunnel '%s' is connected", name), StatusInfo)
	default:
		response.AddMessage(fmt.Sprintf("Tunnel '%s' is %s", name, strings.ToLower(string(data.WiresockStatus))), StatusInfo)
	}
	response.AddData(data)
	return response
}

func (d *Daemon) menuResult(err error, format, arg string) Response {
	response := Response{}
	if err != nil {
		response.AddMessage(fmt.Sprintf("Menu update failed: %v", err), StatusError)
		return response
	}
	response.AddMessage(fmt.Sprintf(format, arg), StatusInfo)
	response.AddData(d.menu.Menu())
	return response
}

// handleMenuClick performs the action behind a menu item.
func (d *Daemon) handleMenuClick(id string) Response {
	response := Response{}

	switch id {
	case menu.DisconnectID:
		return d.disableTunnel()
	case menu.MinimizeID:
		response.AddMessage("Window hidden", StatusInfo)
		return response
	}

	entry, ok := d.menu.Registry()[id]
	if !ok {
		response.AddMessage(fmt.Sprintf("Unknown menu item '%s'", id), StatusError)
		return response
	}
	if entry.Submenu == menu.ConnectSubmenu {
		return d.enableTunnel(id)
	}

	response.AddMessage(fmt.Sprintf("Menu item '%s' has no action", entry.Label), StatusWarn)
	return response
}

func (d *Daemon) runInstaller() Response {
	response := Response{}

	d.mu.Lock()
	inst := *d.installer
	d.mu.Unlock()

	outcome, err := inst.Run(d.ctx)
	if err != nil {
		if errors.Is(err, installer.ErrUnsupported) {
			response.AddMessage("The WireSock installer is only available on Windows", StatusError)
		} else {
			response.AddMessage(fmt.Sprintf("Failed to run installer: %v", err), StatusError)
		}
		return response
	}

	if d.database != nil {
		if err := d.database.LogInstallerRun(inst.Package, string(outcome.Result), outcome.ExitCode); err != nil {
			slog.Error("Failed to log installer run", "error", err)
		}
	}

	switch outcome.Result {
	case installer.Installed:
		response.AddMessage("WireSock installed", StatusInfo)
	case installer.Cancelled:
		response.AddMessage("WireSock installation was cancelled", StatusWarn)
	default:
		response.AddMessage(fmt.Sprintf("WireSock installation failed with exit code %d", outcome.ExitCode), StatusError)
	}
	response.AddData(outcome)
	return response
}

func (d *Daemon) getRunning() Response {
	response := Response{}
	name := core.Config.Client.ExecutableName

	ctx, cancel := context.WithTimeout(d.ctx, runningCheckTimeout)
	defer cancel()
	pids, err := d.supervisor.RunningPIDs(ctx)
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to list processes: %v", err), StatusError)
		return response
	}

	data := RunningData{Running: len(pids) > 0, PIDs: pids}
	if data.Running {
		response.AddMessage(fmt.Sprintf("%s is running", name), StatusInfo)
	} else {
		response.AddMessage(fmt.Sprintf("%s is not running", name), StatusInfo)
	}
	response.AddData(data)
	return response
}

func (d *Daemon) getInstalled() Response {
	response := Response{}

	path, err := d.locator.Locate()
	switch {
	case err == nil:
		response.AddMessage(fmt.Sprintf("WireSock is installed at %s", path), StatusInfo)
		response.AddData(InstalledData{Installed: true, Path: path, Code: CodeInstalled})
	case errors.Is(err, locator.ErrNotInstalled):
		response.AddMessage("WireSock is not installed", StatusWarn)
		response.AddData(InstalledData{Code: CodeNotInstalled})
	default:
		response.AddMessage(fmt.Sprintf("Failed to locate WireSock: %v", err), StatusError)
	}
	return response
}

func (d *Daemon) getService() Response {
	response := Response{}
	name := locator.ServiceName

	installed, err := d.serviceCheck(name)
	switch {
	case errors.Is(err, locator.ErrUnsupported):
		response.AddMessage("The WireSock service only exists on Windows", StatusWarn)
	case err != nil:
		response.AddMessage(fmt.Sprintf("Failed to query service %s: %v", name, err), StatusError)
	case installed:
		response.AddMessage(fmt.Sprintf("Service %s is installed", name), StatusInfo)
		response.AddData(ServiceData{Installed: true, Name: name, Code: CodeServiceInstalled})
	default:
		response.AddMessage(fmt.Sprintf("Service %s is not installed", name), StatusWarn)
		response.AddData(ServiceData{Name: name, Code: CodeServiceNotInstalled})
	}
	return response
}

func (d *Daemon) getEvents(limit int) Response {
	response := Response{}
	if d.database == nil {
		response.AddMessage("Event database is unavailable", StatusError)
		return response
	}

	var data EventsData
	var err error
	if data.TunnelEvents, err = d.database.GetRecentTunnelEvents(limit); err != nil {
		response.AddMessage(fmt.Sprintf("Failed to read tunnel events: %v", err), StatusError)
		return response
	}
	if data.LastPerTunnel, err = d.database.GetLastTunnelEventPerTunnel(); err != nil {
		response.AddMessage(fmt.Sprintf("Failed to read tunnel events: %v", err), StatusError)
		return response
	}
	if data.DaemonEvents, err = d.database.GetRecentDaemonEvents(limit); err != nil {
		response.AddMessage(fmt.Sprintf("Failed to read daemon events: %v", err), StatusError)
		return response
	}
	if data.InstallerRuns, err = d.database.GetRecentInstallerRuns(limit); err != nil {
		response.AddMessage(fmt.Sprintf("Failed to read installer runs: %v", err), StatusError)
		return response
	}

	response.AddMessage("OK", StatusInfo)
	response.AddData(data)
	return response
}

func (d *Daemon) getVersion() Response {
	response := Response{}
	response.AddMessage("OK", StatusInfo)
	response.AddData(map[string]interface{}{
		"version": core.Version,
		"pid":     os.Getpid(),
	})
	return response
}
