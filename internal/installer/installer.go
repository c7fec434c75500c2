// Package installer runs the WireSock MSI silently and interprets the
// result.
package installer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

type Result string

const (
	Installed      Result = "INSTALLED"
	Cancelled      Result = "CANCELLED"
	UnknownFailure Result = "UNKNOWN_FAILURE"
)

// ExitCodeCancelled is msiexec's ERROR_INSTALL_USEREXIT.
const ExitCodeCancelled = 1602

var ErrUnsupported = errors.New("installer is only available on windows")

// CommandFunc builds the command that installs pkg. The command must print
// the installer exit code as the last numeric line of its output.
type CommandFunc func(ctx context.Context, pkg string) (*exec.Cmd, error)

type Installer struct {
	Package string
	Command CommandFunc
}

func New(pkg string) *Installer {
	return &Installer{Package: pkg, Command: defaultCommand}
}

// Outcome is what the UI receives after an install attempt.
type Outcome struct {
	Result   Result   `json:"result"`
	ExitCode int      `json:"exit_code"`
	Output   []string `json:"output"`
}

// OutputJSON encodes the captured output as a JSON array of strings.
func (o Outcome) OutputJSON() string {
	lines := o.Output
	if lines == nil {
		lines = []string{}
	}
	data, _ := json.Marshal(lines)
	return string(data)
}

// Classify maps an installer exit code to a Result.
func Classify(code int) Result {
	switch code {
	case 0:
		return Installed
	case ExitCodeCancelled:
		return Cancelled
	default:
		return UnknownFailure
	}
}

// Run installs the package and blocks until the installer finishes.
// A non-zero installer exit code is reported in the Outcome, not as an error.
func (i *Installer) Run(ctx context.Context) (Outcome, error) {
	cmd, err := i.Command(ctx, i.Package)
	if err != nil {
		return Outcome{}, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to capture installer output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("failed to start installer: %w", err)
	}
	slog.Info("Started installer", "package", i.Package, "pid", cmd.Process.Pid)

	var output []string
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		slog.Debug("Installer output", "line", line)
		output = append(output, line)
	}

	waitErr := cmd.Wait()
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return Outcome{Output: output}, fmt.Errorf("failed to wait for installer: %w", waitErr)
	}

	code, ok := reportedExitCode(output)
	if !ok {
		code = cmd.ProcessState.ExitCode()
	}

	outcome := Outcome{
		Result:   Classify(code),
		ExitCode: code,
		Output:   output,
	}
	slog.Info("Installer finished", "package", i.Package, "result", outcome.Result, "exit_code", code)
	return outcome, nil
}

// reportedExitCode finds the last line that is only an integer.
func reportedExitCode(lines []string) (int, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		if code, err := strconv.Atoi(strings.TrimSpace(lines[i])); err == nil {
			return code, true
		}
	}
	return 0, false
}
