package supervisor

import (
	"errors"

	"github.com/TunnlTo/desktop-app/internal/locator"
)

var (
	ErrAlreadyRunning = errors.New("wiresock client is already running")
	ErrConfigWrite    = errors.New("failed to write tunnel config")
	ErrSpawn          = errors.New("failed to start wiresock client")
	ErrUnexpected     = errors.New("unexpected supervisor failure")
)

// Status codes returned to UI clients.
const (
	StatusOK             = "OK"
	StatusNotInstalled   = "WIRESOCK_NOT_INSTALLED"
	StatusAlreadyRunning = "ALREADY_RUNNING"
	StatusConfigWrite    = "CONFIG_WRITE_FAILED"
	StatusSpawn          = "SPAWN_FAILED"
	StatusUnknown        = "UNKNOWN_ERROR"
)

// StatusCode maps an error returned by Enable or Launch to the short code
// the UI turns into a message.
func StatusCode(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, locator.ErrNotInstalled):
		return StatusNotInstalled
	case errors.Is(err, ErrAlreadyRunning):
		return StatusAlreadyRunning
	case errors.Is(err, ErrConfigWrite):
		return StatusConfigWrite
	case errors.Is(err, ErrSpawn):
		return StatusSpawn
	default:
		return StatusUnknown
	}
}
