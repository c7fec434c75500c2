package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/TunnlTo/desktop-app/internal/core"
)

// ErrDaemonNotStopped is returned when the daemon outlives WaitForDaemonStop.
var ErrDaemonNotStopped = errors.New("daemon did not stop in time")

// SendCommand connects to the daemon, sends a command, and returns the response.
func SendCommand(command string) (Response, error) {
	return SendCommandWithTimeout(command, 0)
}

// SendCommandWithTimeout is SendCommand with a deadline on the whole exchange.
// A zero timeout waits forever.
func SendCommandWithTimeout(command string, timeout time.Duration) (Response, error) {
	response := Response{}

	conn, err := net.Dial("unix", core.GetSocketPath())
	if err != nil {
		return response, err
	}
	defer conn.Close()

	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return response, fmt.Errorf("failed to send command to daemon: %w", err)
	}
	bytes, err := io.ReadAll(conn)
	if err != nil {
		return response, fmt.Errorf("failed to read response from daemon: %w", err)
	}

	if err := json.Unmarshal(bytes, &response); err != nil {
		return response, fmt.Errorf("failed to parse response from daemon: %w", err)
	}

	return response, nil
}

// SendCommandStreaming sends command and calls onLine for every line the
// daemon writes until the connection closes or onLine returns an error.
func SendCommandStreaming(command string, onLine func(line string) error) error {
	conn, err := net.Dial("unix", core.GetSocketPath())
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return fmt.Errorf("failed to send command to daemon: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := onLine(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// WaitForDaemonStop polls the socket until the daemon stops answering.
func WaitForDaemonStop(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := SendCommandWithTimeout("VERSION", time.Second); err != nil {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrDaemonNotStopped
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// EnsureDaemonIsRunning starts a background daemon when none answers on the
// socket and waits for the socket to appear.
func EnsureDaemonIsRunning() error {
	if _, err := SendCommandWithTimeout("VERSION", 2*time.Second); err == nil {
		return nil
	}

	slog.Info("Daemon not running. Starting it now...")
	cmd := exec.Command(os.Args[0], "daemon", "--config-path", core.Config.ConfigPath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not start daemon process: %w", err)
	}
	slog.Info(fmt.Sprintf("Daemon process launched with PID: %d", cmd.Process.Pid))
	go cmd.Wait()

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if _, err := os.Stat(core.GetSocketPath()); err == nil {
			slog.Info("Daemon is ready.")
			return nil
		}
	}
	return errors.New("daemon process was launched but socket was not created in time")
}
