package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/TunnlTo/desktop-app/internal/daemon"
)

// ErrCommandFailed is returned after the daemon reported an error that
// has already been printed.
var ErrCommandFailed = errors.New("command failed")

// printMessages logs every response message at its status level and
// reports whether any of them was an error.
func printMessages(response daemon.Response) error {
	for _, msg := range response.Messages {
		switch msg.Status {
		case daemon.StatusError:
			slog.Error(msg.Message)
		case daemon.StatusWarn:
			slog.Warn(msg.Message)
		default:
			slog.Info(msg.Message)
		}
	}
	if response.HasError() {
		return ErrCommandFailed
	}
	return nil
}

// decodeData converts the untyped response payload into v.
func decodeData(response daemon.Response, v interface{}) error {
	jsonBytes, err := json.Marshal(response.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}

// sendToDaemon starts the daemon when needed and sends command.
func sendToDaemon(command string) (daemon.Response, error) {
	if err := daemon.EnsureDaemonIsRunning(); err != nil {
		return daemon.Response{}, err
	}
	return daemon.SendCommand(command)
}

// runDaemonCommand sends command, prints the reply and optionally the
// payload as JSON.
func runDaemonCommand(command string, asJSON bool) error {
	response, err := sendToDaemon(command)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	if asJSON {
		jsonBytes, _ := json.MarshalIndent(response.Data, "", "  ")
		fmt.Println(string(jsonBytes))
		if response.HasError() {
			return ErrCommandFailed
		}
		return nil
	}
	return printMessages(response)
}
