// Package state holds the single shared tunnel state and publishes every
// change to its observers.
package state

import "slices"

// WiresockStatus is the lifecycle of the supervised client process.
type WiresockStatus string

const (
	WiresockStopped  WiresockStatus = "STOPPED"
	WiresockStarting WiresockStatus = "STARTING"
	WiresockRunning  WiresockStatus = "RUNNING"
)

// TunnelStatus reports whether the client has brought the tunnel up.
type TunnelStatus string

const (
	TunnelDisconnected TunnelStatus = "DISCONNECTED"
	TunnelConnected    TunnelStatus = "CONNECTED"
)

// EventName is the name under which snapshots are published to UI listeners.
const EventName = "wiresock_state"

// TunnelState is the published snapshot. Logs are append-only within a
// session and cleared when the next session enters STARTING.
type TunnelState struct {
	TunnelID       string         `json:"tunnel_id"`
	WiresockStatus WiresockStatus `json:"wiresock_status"`
	TunnelStatus   TunnelStatus   `json:"tunnel_status"`
	Logs           []string       `json:"logs"`
}

// Default returns the state a fresh process starts with.
func Default() TunnelState {
	return TunnelState{
		WiresockStatus: WiresockStopped,
		TunnelStatus:   TunnelDisconnected,
		Logs:           []string{},
	}
}

// Clone returns a deep copy so callers can't alias the store's log slice.
func (s TunnelState) Clone() TunnelState {
	c := s
	c.Logs = slices.Clone(s.Logs)
	if c.Logs == nil {
		c.Logs = []string{}
	}
	return c
}

// Stopped reports whether the supervisor is idle.
func (s TunnelState) Stopped() bool {
	return s.WiresockStatus == WiresockStopped
}

// Connected reports whether the tunnel is up.
func (s TunnelState) Connected() bool {
	return s.TunnelStatus == TunnelConnected
}
