package menu

import (
	"sync"

	"github.com/TunnlTo/desktop-app/internal/state"
	"github.com/TunnlTo/desktop-app/internal/tunnel"
)

const disconnectLabel = "Disconnect"

// Binder keeps the menu in step with the tunnel state and the tunnel list.
// Register it as a state.Observer.
type Binder struct {
	model *Model

	mu        sync.Mutex
	connected bool
}

func NewBinder(m *Model) *Binder {
	return &Binder{model: m}
}

// Notify shows the disconnect item while the tunnel is connected.
func (b *Binder) Notify(st state.TunnelState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st.Connected() == b.connected {
		return
	}
	b.connected = st.Connected()

	if b.connected {
		b.model.UpsertItem(DisconnectID, disconnectLabel)
	} else {
		b.model.RemoveItem(DisconnectID)
	}
}

// SyncTunnels replaces the connect submenu with one entry per tunnel.
func (b *Binder) SyncTunnels(tunnels []tunnel.Descriptor) error {
	items := make([]Item, 0, len(tunnels))
	for _, t := range tunnels {
		items = append(items, Item{ID: t.ID, Label: t.Name})
	}
	return b.model.SetSubmenuItems(ConnectSubmenu, items)
}
