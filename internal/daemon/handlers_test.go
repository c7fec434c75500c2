package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	ring "github.com/99designs/keyring"
	"github.com/TunnlTo/desktop-app/internal/core"
	"github.com/TunnlTo/desktop-app/internal/db"
	"github.com/TunnlTo/desktop-app/internal/installer"
	"github.com/TunnlTo/desktop-app/internal/keyring"
	"github.com/TunnlTo/desktop-app/internal/locator"
	"github.com/TunnlTo/desktop-app/internal/menu"
	"github.com/TunnlTo/desktop-app/internal/state"
	"github.com/TunnlTo/desktop-app/internal/supervisor"
	"github.com/TunnlTo/desktop-app/internal/tunnel"
)

// quietLogger suppresses log output during tests.
func quietLogger(t *testing.T) {
	t.Helper()
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(99)})))
	t.Cleanup(func() { slog.SetDefault(old) })
}

type noopKiller struct{}

func (noopKiller) KillByName(context.Context, string) (int, error) { return 0, nil }

type countingKiller struct {
	mu    sync.Mutex
	names []string
}

func (k *countingKiller) KillByName(_ context.Context, name string) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.names = append(k.names, name)
	return 1, nil
}

func (k *countingKiller) calls() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.names...)
}

// newTestDaemon builds a daemon whose client is never installed, with an
// in-memory keyring and a throwaway config directory.
func newTestDaemon(t *testing.T) *Daemon {
	return newTestDaemonWithKiller(t, noopKiller{})
}

func newTestDaemonWithKiller(t *testing.T, killer supervisor.Killer) *Daemon {
	t.Helper()
	quietLogger(t)

	dir := shortTempDir(t)
	oldConfig := core.Config
	t.Cleanup(func() { core.Config = oldConfig })
	core.Config = core.GetDefaultConfig()
	core.Config.ConfigPath = dir
	core.Config.Client.ExecutableName = "tunnlto-test-missing-client"

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	d := &Daemon{
		logBroadcast: NewLogBroadcaster(100),
		store:        state.New(),
		menu:         menu.NewModel(menu.LogRenderer{}),
		tunnels:      tunnel.NewStore(filepath.Join(dir, core.TunnelsFileName), keyring.New(ring.NewArrayKeyring(nil))),
		installer:    installer.New(core.Config.Installer.Package),
		locator:      locator.Func(func() (string, error) { return "", locator.ErrNotInstalled }),
		serviceCheck: func(string) (bool, error) { return false, locator.ErrUnsupported },
		ctx:          ctx,
		cancelFunc:   cancel,
		exit:         func(int) {},
	}
	d.binder = menu.NewBinder(d.menu)
	d.store.AddObserver(d.binder)
	d.supervisor = supervisor.New(supervisor.Options{
		Store:          d.store,
		Locator:        d.locator,
		ConfigPath:     core.GetTunnelConfPath(),
		ExecutableName: core.Config.Client.ExecutableName,
		Killer:         killer,
		Events:         eventLog{d},
	})
	return d
}

func saveTunnel(t *testing.T, d *Daemon, id, name string) tunnel.Descriptor {
	t.Helper()

	local, err := tunnel.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	remote, err := tunnel.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	saved, err := d.tunnels.Save(tunnel.Descriptor{
		ID:   id,
		Name: name,
		Interface: tunnel.Interface{
			PrivateKey:  local.PrivateKey,
			IPv4Address: "10.0.0.2/32",
		},
		Peer: tunnel.Peer{
			PublicKey: remote.PublicKey,
			Endpoint:  "vpn.example.com",
			Port:      "51820",
		},
	})
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	return saved
}

// sendIPCCommand sends a command string to handleConnection via net.Pipe
// and reads back the JSON response.
func sendIPCCommand(t *testing.T, d *Daemon, command string) Response {
	t.Helper()

	clientConn, serverConn := net.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.handleConnection(serverConn)
	}()

	if _, err := clientConn.Write([]byte(command + "\n")); err != nil {
		t.Fatalf("failed to write command: %v", err)
	}

	data, err := io.ReadAll(clientConn)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	clientConn.Close()

	<-done

	var resp Response
	if len(data) > 0 {
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("failed to parse response JSON %q: %v", string(data), err)
		}
	}
	return resp
}

// decodeData re-decodes the untyped Data field into v.
func decodeData(t *testing.T, resp Response, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("failed to marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("failed to decode data %s: %v", raw, err)
	}
}

func firstMessage(t *testing.T, resp Response) ResponseMessage {
	t.Helper()
	if len(resp.Messages) == 0 {
		t.Fatal("expected at least one message")
	}
	return resp.Messages[0]
}

func TestHandleConnection_UnknownCommand(t *testing.T) {
	d := newTestDaemon(t)

	msg := firstMessage(t, sendIPCCommand(t, d, "BOGUS"))
	if msg.Status != StatusError || msg.Message != "Unknown command." {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestHandleConnection_Version(t *testing.T) {
	d := newTestDaemon(t)

	resp := sendIPCCommand(t, d, "VERSION")
	var data map[string]interface{}
	decodeData(t, resp, &data)
	if _, ok := data["version"]; !ok {
		t.Error("expected version in data")
	}
	if int(data["pid"].(float64)) != os.Getpid() {
		t.Errorf("pid = %v, want %d", data["pid"], os.Getpid())
	}
}

func TestHandleConnection_StatusStopped(t *testing.T) {
	d := newTestDaemon(t)

	resp := sendIPCCommand(t, d, "STATUS")
	if msg := firstMessage(t, resp); msg.Message != "No tunnel is enabled" {
		t.Errorf("unexpected message %q", msg.Message)
	}

	var data StatusData
	decodeData(t, resp, &data)
	if data.WiresockStatus != state.WiresockStopped || data.TunnelStatus != state.TunnelDisconnected {
		t.Errorf("unexpected status %+v", data)
	}
}

func TestHandleConnection_EnableUsage(t *testing.T) {
	d := newTestDaemon(t)

	msg := firstMessage(t, sendIPCCommand(t, d, "ENABLE"))
	if msg.Status != StatusError || !strings.HasPrefix(msg.Message, "Usage:") {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestHandleConnection_EnableUnknownTunnel(t *testing.T) {
	d := newTestDaemon(t)

	msg := firstMessage(t, sendIPCCommand(t, d, "ENABLE nope"))
	if msg.Status != StatusError || !strings.Contains(msg.Message, "not found") {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestHandleConnection_EnableNotInstalled(t *testing.T) {
	d := newTestDaemon(t)
	saveTunnel(t, d, "t1", "Home")

	resp := sendIPCCommand(t, d, "ENABLE t1")
	if msg := firstMessage(t, resp); msg.Status != StatusError {
		t.Errorf("expected error, got %+v", msg)
	}

	var data StatusData
	decodeData(t, resp, &data)
	if data.Code != supervisor.StatusNotInstalled {
		t.Errorf("code = %q, want %q", data.Code, supervisor.StatusNotInstalled)
	}
	if data.TunnelName != "Home" {
		t.Errorf("tunnel name = %q, want Home", data.TunnelName)
	}

	if !d.waitForStopped(time.Second) {
		t.Fatal("state did not return to STOPPED")
	}
	st := d.store.Snapshot()
	if st.TunnelID != "t1" || len(st.Logs) == 0 {
		t.Errorf("expected failure logged for t1, got %+v", st)
	}
}

func TestHandleConnection_DisableWhenStopped(t *testing.T) {
	d := newTestDaemon(t)

	msg := firstMessage(t, sendIPCCommand(t, d, "DISABLE"))
	if msg.Status != StatusWarn {
		t.Errorf("expected WARN, got %+v", msg)
	}
}

func TestHandleConnection_DisableWhenStoppedKillsByName(t *testing.T) {
	killer := &countingKiller{}
	d := newTestDaemonWithKiller(t, killer)
	published := 0
	d.store.AddObserver(state.ObserverFunc(func(state.TunnelState) { published++ }))

	resp := sendIPCCommand(t, d, "DISABLE")
	if resp.HasError() {
		t.Fatalf("DISABLE failed: %+v", resp.Messages)
	}

	calls := killer.calls()
	if len(calls) != 1 || calls[0] != core.Config.Client.ExecutableName {
		t.Errorf("killer calls = %v, want one for %q", calls, core.Config.Client.ExecutableName)
	}
	if published != 0 {
		t.Errorf("DISABLE while stopped published %d updates", published)
	}
	if st := d.store.Snapshot(); !st.Stopped() || len(st.Logs) != 0 {
		t.Errorf("unexpected state %+v", st)
	}
}

func TestWaitForStoppedAlreadyStopped(t *testing.T) {
	d := newTestDaemon(t)

	start := time.Now()
	if !d.waitForStopped(5 * time.Second) {
		t.Fatal("waitForStopped() = false for a stopped store")
	}
	if time.Since(start) > time.Second {
		t.Error("waitForStopped() waited although the store was already stopped")
	}
}

func TestWaitForStoppedAfterLogBurst(t *testing.T) {
	d := newTestDaemon(t)
	d.store.Update(func(st *state.TunnelState) error {
		st.WiresockStatus = state.WiresockRunning
		return nil
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		for i := range 500 {
			d.store.Update(func(st *state.TunnelState) error {
				st.Logs = append(st.Logs, fmt.Sprintf("line %d", i))
				return nil
			})
		}
		d.store.Update(func(st *state.TunnelState) error {
			st.WiresockStatus = state.WiresockStopped
			return nil
		})
	}()

	if !d.waitForStopped(2 * time.Second) {
		t.Error("waitForStopped() = false after the store stopped")
	}
}

func TestHandleConnection_MenuCommands(t *testing.T) {
	d := newTestDaemon(t)

	resp := sendIPCCommand(t, d, "MENU_ADD settings Open Settings")
	if resp.HasError() {
		t.Fatalf("MENU_ADD failed: %+v", resp.Messages)
	}
	if got := d.menu.Registry()["settings"].Label; got != "Open Settings" {
		t.Errorf("label = %q, want %q", got, "Open Settings")
	}

	resp = sendIPCCommand(t, d, "MENU_ADD_SUB connect t9 Office")
	if resp.HasError() {
		t.Fatalf("MENU_ADD_SUB failed: %+v", resp.Messages)
	}

	resp = sendIPCCommand(t, d, "MENU")
	text := firstMessage(t, resp).Message
	for _, want := range []string{"Connect", "Office", "Open Settings", "Minimize to Tray", "Exit"} {
		if !strings.Contains(text, want) {
			t.Errorf("menu text missing %q:\n%s", want, text)
		}
	}

	sendIPCCommand(t, d, "MENU_REMOVE settings")
	sendIPCCommand(t, d, "MENU_REMOVE_SUB connect t9")
	if n := len(d.menu.Registry()); n != 0 {
		t.Errorf("expected empty registry, got %d entries", n)
	}
}

func TestHandleConnection_MenuAddReserved(t *testing.T) {
	d := newTestDaemon(t)

	resp := sendIPCCommand(t, d, "MENU_ADD exit Quit")
	if !resp.HasError() {
		t.Error("expected error when relabelling a reserved item")
	}
}

func TestHandleConnection_MenuSync(t *testing.T) {
	d := newTestDaemon(t)
	saveTunnel(t, d, "t1", "Home")
	saveTunnel(t, d, "t2", "Office")

	resp := sendIPCCommand(t, d, "MENU_SYNC")
	if resp.HasError() {
		t.Fatalf("MENU_SYNC failed: %+v", resp.Messages)
	}

	reg := d.menu.Registry()
	for id, label := range map[string]string{"t1": "Home", "t2": "Office"} {
		entry, ok := reg[id]
		if !ok || entry.Submenu != menu.ConnectSubmenu || entry.Label != label {
			t.Errorf("registry[%q] = %+v, want %q in connect", id, entry, label)
		}
	}
}

func TestHandleConnection_ClickConnectItemEnables(t *testing.T) {
	d := newTestDaemon(t)
	saveTunnel(t, d, "t1", "Home")
	sendIPCCommand(t, d, "MENU_SYNC")

	resp := sendIPCCommand(t, d, "CLICK t1")
	var data StatusData
	decodeData(t, resp, &data)
	if data.Code != supervisor.StatusNotInstalled {
		t.Errorf("code = %q, want %q", data.Code, supervisor.StatusNotInstalled)
	}
	d.waitForStopped(time.Second)
}

func TestHandleConnection_ClickOtherItems(t *testing.T) {
	d := newTestDaemon(t)
	d.menu.UpsertItem("about", "About")

	tests := []struct {
		id     string
		status string
	}{
		{menu.MinimizeID, StatusInfo},
		{menu.DisconnectID, StatusWarn},
		{"about", StatusWarn},
		{"missing", StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			msg := firstMessage(t, sendIPCCommand(t, d, "CLICK "+tt.id))
			if msg.Status != tt.status {
				t.Errorf("CLICK %s status = %s, want %s (%q)", tt.id, msg.Status, tt.status, msg.Message)
			}
		})
	}
}

func TestHandleConnection_ClickExitStopsDaemon(t *testing.T) {
	d := newTestDaemon(t)
	exitCode := -1
	d.exit = func(code int) { exitCode = code }

	msg := firstMessage(t, sendIPCCommand(t, d, "CLICK exit"))
	if msg.Message != "Stopping daemon..." {
		t.Errorf("unexpected message %q", msg.Message)
	}
	if exitCode != 0 {
		t.Errorf("exit code = %d, want 0", exitCode)
	}
	if d.ctx.Err() == nil {
		t.Error("expected daemon context to be cancelled")
	}
}

func TestHandleConnection_EventsWithoutDatabase(t *testing.T) {
	d := newTestDaemon(t)

	if resp := sendIPCCommand(t, d, "EVENTS"); !resp.HasError() {
		t.Error("expected error without database")
	}
}

func TestHandleConnection_Events(t *testing.T) {
	d := newTestDaemon(t)

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	d.database = database

	saveTunnel(t, d, "t1", "Home")
	sendIPCCommand(t, d, "ENABLE t1")
	d.waitForStopped(time.Second)
	database.LogDaemonEvent("start", "test")

	resp := sendIPCCommand(t, d, "EVENTS 5")
	if resp.HasError() {
		t.Fatalf("EVENTS failed: %+v", resp.Messages)
	}

	var data EventsData
	decodeData(t, resp, &data)
	if len(data.TunnelEvents) == 0 {
		t.Fatal("expected tunnel events")
	}
	found := false
	for _, ev := range data.TunnelEvents {
		if ev.TunnelID == "t1" && ev.EventType == db.EventEnableFailed {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s event for t1, got %+v", db.EventEnableFailed, data.TunnelEvents)
	}
	if len(data.DaemonEvents) != 1 {
		t.Errorf("expected 1 daemon event, got %d", len(data.DaemonEvents))
	}
}

func TestHandleConnection_InstallCancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	d := newTestDaemon(t)

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	d.database = database

	d.installer.Command = func(ctx context.Context, pkg string) (*exec.Cmd, error) {
		return exec.CommandContext(ctx, "sh", "-c", "echo installing; echo 1602"), nil
	}

	resp := sendIPCCommand(t, d, "INSTALL")
	if msg := firstMessage(t, resp); msg.Status != StatusWarn {
		t.Errorf("expected WARN, got %+v", msg)
	}

	var outcome installer.Outcome
	decodeData(t, resp, &outcome)
	if outcome.Result != installer.Cancelled || outcome.ExitCode != installer.ExitCodeCancelled {
		t.Errorf("unexpected outcome %+v", outcome)
	}

	runs, err := database.GetRecentInstallerRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Result != string(installer.Cancelled) {
		t.Errorf("unexpected installer runs %+v", runs)
	}
}

func TestHandleConnection_Running(t *testing.T) {
	d := newTestDaemon(t)

	resp := sendIPCCommand(t, d, "RUNNING")
	if resp.HasError() {
		t.Fatalf("RUNNING failed: %+v", resp.Messages)
	}

	var data RunningData
	decodeData(t, resp, &data)
	if data.Running || len(data.PIDs) != 0 {
		t.Errorf("expected nothing running, got %+v", data)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	d := newTestDaemon(t)

	d.shutdown()
	d.shutdown()

	if d.ctx.Err() == nil {
		t.Error("expected context to be cancelled")
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	quietLogger(t)

	socketPath := filepath.Join(shortTempDir(t), "d.sock")
	if err := os.WriteFile(socketPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	listener, err := listen(socketPath)
	if err != nil {
		t.Fatalf("listen() failed: %v", err)
	}
	listener.Close()
}

func TestListenRefusesRunningDaemon(t *testing.T) {
	quietLogger(t)

	socketPath := filepath.Join(shortTempDir(t), "d.sock")
	first, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	if _, err := listen(socketPath); err == nil {
		t.Error("expected error while another daemon is listening")
	}
}

func TestReloadConfigUpdatesInstaller(t *testing.T) {
	d := newTestDaemon(t)

	cfg := `log_level = "all"
installer {
  package = "custom.msi"
}
`
	if err := os.WriteFile(core.GetConfigFilePath(), []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := d.reloadConfig(); err != nil {
		t.Fatalf("reloadConfig() failed: %v", err)
	}
	if d.installer.Package != "custom.msi" {
		t.Errorf("installer package = %q, want custom.msi", d.installer.Package)
	}
	if core.Config.LogLevel != core.LogLevelAll {
		t.Errorf("log level = %q, want %q", core.Config.LogLevel, core.LogLevelAll)
	}
}

func TestReloadConfigKeepsOldOnError(t *testing.T) {
	d := newTestDaemon(t)
	before := core.Config

	if err := os.WriteFile(core.GetConfigFilePath(), []byte("log_level = \"loud\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := d.reloadConfig(); err == nil {
		t.Error("expected error for invalid log level")
	}
	if core.Config != before {
		t.Error("configuration was replaced despite errors")
	}
}

func TestHandleConnection_Installed(t *testing.T) {
	t.Run("not installed", func(t *testing.T) {
		d := newTestDaemon(t)
		resp := sendIPCCommand(t, d, "INSTALLED")
		if resp.HasError() {
			t.Fatalf("INSTALLED failed: %+v", resp.Messages)
		}
		var data InstalledData
		decodeData(t, resp, &data)
		if data.Installed || data.Code != CodeNotInstalled {
			t.Errorf("unexpected data %+v", data)
		}
	})

	t.Run("installed", func(t *testing.T) {
		d := newTestDaemon(t)
		d.locator = locator.Func(func() (string, error) { return `C:\wiresock\bin\wiresock-client.exe`, nil })
		resp := sendIPCCommand(t, d, "INSTALLED")
		var data InstalledData
		decodeData(t, resp, &data)
		if !data.Installed || data.Code != CodeInstalled || data.Path == "" {
			t.Errorf("unexpected data %+v", data)
		}
	})

	t.Run("lookup error", func(t *testing.T) {
		d := newTestDaemon(t)
		d.locator = locator.Func(func() (string, error) { return "", errors.New("registry unavailable") })
		if resp := sendIPCCommand(t, d, "INSTALLED"); !resp.HasError() {
			t.Errorf("expected an error, got %+v", resp.Messages)
		}
	})
}

func TestHandleConnection_Service(t *testing.T) {
	tests := []struct {
		name      string
		check     func(string) (bool, error)
		status    string
		code      string
		installed bool
	}{
		{"installed", func(string) (bool, error) { return true, nil }, StatusInfo, CodeServiceInstalled, true},
		{"not installed", func(string) (bool, error) { return false, nil }, StatusWarn, CodeServiceNotInstalled, false},
		{"unsupported", func(string) (bool, error) { return false, locator.ErrUnsupported }, StatusWarn, "", false},
		{"failure", func(string) (bool, error) { return false, errors.New("access denied") }, StatusError, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDaemon(t)
			var asked string
			d.serviceCheck = func(name string) (bool, error) {
				asked = name
				return tt.check(name)
			}

			resp := sendIPCCommand(t, d, "SERVICE")
			if msg := firstMessage(t, resp); msg.Status != tt.status {
				t.Errorf("status = %s, want %s (%s)", msg.Status, tt.status, msg.Message)
			}
			if asked != locator.ServiceName {
				t.Errorf("checked service %q, want %q", asked, locator.ServiceName)
			}
			if tt.code == "" {
				return
			}
			var data ServiceData
			decodeData(t, resp, &data)
			if data.Code != tt.code || data.Installed != tt.installed {
				t.Errorf("unexpected data %+v", data)
			}
		})
	}
}
