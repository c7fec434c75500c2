package keyring

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// PromptSecret reads a secret from the terminal without echoing it.
func PromptSecret(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)

	// Prefer the controlling terminal so piped stdin still works for
	// non-secret input.
	fd := int(os.Stdin.Fd())
	if tty, err := os.Open("/dev/tty"); err == nil {
		defer tty.Close()
		fd = int(tty.Fd())
	}

	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(string(secret)), nil
}

// IsTerminal reports whether stdin is interactive.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
