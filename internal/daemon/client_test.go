package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/TunnlTo/desktop-app/internal/core"
)

// shortTempDir keeps socket paths under the macOS sun_path limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "tt-")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// fakeDaemon listens on the configured socket path and hands every request
// line to reply. The connection is closed when reply returns.
func fakeDaemon(t *testing.T, reply func(command string, conn net.Conn)) net.Listener {
	t.Helper()

	oldConfig := core.Config
	t.Cleanup(func() { core.Config = oldConfig })
	core.Config = &core.Configuration{ConfigPath: shortTempDir(t)}

	listener, err := net.Listen("unix", core.GetSocketPath())
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				line, err := bufio.NewReader(conn).ReadString('\n')
				if err != nil {
					return
				}
				reply(strings.TrimSpace(line), conn)
			}()
		}
	}()

	return listener
}

func writeReply(conn net.Conn, message, status string) {
	json.NewEncoder(conn).Encode(Response{Messages: []ResponseMessage{{Message: message, Status: status}}})
}

func noDaemon(t *testing.T) {
	t.Helper()
	oldConfig := core.Config
	t.Cleanup(func() { core.Config = oldConfig })
	core.Config = &core.Configuration{ConfigPath: shortTempDir(t)}
}

func TestSendCommandDecodesResponse(t *testing.T) {
	quietLogger(t)
	fakeDaemon(t, func(command string, conn net.Conn) {
		writeReply(conn, "got "+command, StatusInfo)
	})

	resp, err := SendCommand("ENABLE office")
	if err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Message != "got ENABLE office" {
		t.Errorf("unexpected response: %+v", resp.Messages)
	}
}

func TestSendCommandWithoutDaemon(t *testing.T) {
	quietLogger(t)
	noDaemon(t)

	if _, err := SendCommand("STATUS"); err == nil {
		t.Fatal("expected an error when nothing listens on the socket")
	}
}

func TestSendCommandInvalidJSON(t *testing.T) {
	quietLogger(t)
	fakeDaemon(t, func(_ string, conn net.Conn) {
		conn.Write([]byte("not valid json"))
	})

	if _, err := SendCommand("STATUS"); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestSendCommandWithTimeout(t *testing.T) {
	quietLogger(t)
	release := make(chan struct{})
	fakeDaemon(t, func(command string, conn net.Conn) {
		if command == "SLOW" {
			<-release
			return
		}
		writeReply(conn, "fast", StatusInfo)
	})
	t.Cleanup(func() { close(release) })

	start := time.Now()
	if _, err := SendCommandWithTimeout("SLOW", 200*time.Millisecond); err == nil {
		t.Error("expected a timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}

	resp, err := SendCommandWithTimeout("FAST", 5*time.Second)
	if err != nil {
		t.Fatalf("SendCommandWithTimeout() error = %v", err)
	}
	if resp.Messages[0].Message != "fast" {
		t.Errorf("unexpected response: %+v", resp.Messages)
	}
}

func TestSendCommandStreamingDeliversLines(t *testing.T) {
	quietLogger(t)
	fakeDaemon(t, func(_ string, conn net.Conn) {
		for _, msg := range []string{"one", "two", "three"} {
			conn.Write([]byte(msg + "\n"))
		}
	})

	var got []string
	err := SendCommandStreaming("LOGS 0", func(line string) error {
		got = append(got, line)
		return nil
	})
	if err != nil {
		t.Fatalf("SendCommandStreaming() error = %v", err)
	}
	if strings.Join(got, ",") != "one,two,three" {
		t.Errorf("lines = %v", got)
	}
}

func TestSendCommandStreamingStopsOnCallbackError(t *testing.T) {
	quietLogger(t)
	fakeDaemon(t, func(_ string, conn net.Conn) {
		for _, msg := range []string{"one", "two", "three"} {
			conn.Write([]byte(msg + "\n"))
		}
	})

	errStop := errors.New("stop")
	calls := 0
	err := SendCommandStreaming("STATE", func(string) error {
		calls++
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Errorf("SendCommandStreaming() error = %v, want %v", err, errStop)
	}
	if calls != 1 {
		t.Errorf("callback called %d times, want 1", calls)
	}
}

func TestSendCommandStreamingWithoutDaemon(t *testing.T) {
	quietLogger(t)
	noDaemon(t)

	if err := SendCommandStreaming("STATE", func(string) error { return nil }); err == nil {
		t.Fatal("expected an error when nothing listens on the socket")
	}
}

func TestWaitForDaemonStop(t *testing.T) {
	quietLogger(t)

	t.Run("already stopped", func(t *testing.T) {
		noDaemon(t)
		if err := WaitForDaemonStop(time.Second); err != nil {
			t.Errorf("WaitForDaemonStop() error = %v", err)
		}
	})

	t.Run("stops during wait", func(t *testing.T) {
		listener := fakeDaemon(t, func(_ string, conn net.Conn) {
			writeReply(conn, "v", StatusInfo)
		})
		time.AfterFunc(200*time.Millisecond, func() { listener.Close() })

		if err := WaitForDaemonStop(5 * time.Second); err != nil {
			t.Errorf("WaitForDaemonStop() error = %v", err)
		}
	})

	t.Run("keeps running", func(t *testing.T) {
		fakeDaemon(t, func(_ string, conn net.Conn) {
			writeReply(conn, "v", StatusInfo)
		})
		if err := WaitForDaemonStop(300 * time.Millisecond); !errors.Is(err, ErrDaemonNotStopped) {
			t.Errorf("WaitForDaemonStop() error = %v, want %v", err, ErrDaemonNotStopped)
		}
	})
}

func TestEnsureDaemonIsRunningWhenAnswering(t *testing.T) {
	quietLogger(t)
	fakeDaemon(t, func(_ string, conn net.Conn) {
		writeReply(conn, "v", StatusInfo)
	})

	if err := EnsureDaemonIsRunning(); err != nil {
		t.Errorf("EnsureDaemonIsRunning() error = %v", err)
	}
}
