package menu

import (
	"fmt"
	"log/slog"
	"sync"
)

// Renderer displays a rebuilt menu. It is called with the model lock held.
type Renderer interface {
	Render(Menu) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Menu) error

func (f RendererFunc) Render(m Menu) error { return f(m) }

// Model owns the registry. Every mutation rebuilds the menu and hands it
// to the renderer before returning.
type Model struct {
	mu       sync.Mutex
	registry Registry
	current  Menu
	renderer Renderer
}

// NewModel renders the initial menu, which holds only the reserved items.
func NewModel(r Renderer) *Model {
	m := &Model{
		registry: make(Registry),
		renderer: r,
	}
	m.mu.Lock()
	m.publish()
	m.mu.Unlock()
	return m
}

// Menu returns the last rebuilt menu.
func (m *Model) Menu() Menu {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Registry returns a copy of the registry.
func (m *Model) Registry() Registry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Clone()
}

// UpsertItem adds or relabels a top-level item.
func (m *Model) UpsertItem(id, label string) error {
	return m.upsert("", id, label)
}

// UpsertSubmenuItem adds or relabels an item inside submenuID.
func (m *Model) UpsertSubmenuItem(submenuID, id, label string) error {
	if submenuID == "" {
		return fmt.Errorf("submenu id is required")
	}
	return m.upsert(submenuID, id, label)
}

func (m *Model) upsert(submenuID, id, label string) error {
	if id == "" {
		return fmt.Errorf("menu item id is required")
	}
	if IsReserved(id) {
		return fmt.Errorf("%w: %s", ErrReservedItem, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.registry[id] = Entry{Label: label, Submenu: submenuID}
	m.publish()
	return nil
}

// RemoveItem removes id wherever it lives. Reserved ids are ignored.
func (m *Model) RemoveItem(id string) {
	if IsReserved(id) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.registry, id)
	m.publish()
}

// RemoveSubmenuItem removes id only if it belongs to submenuID.
func (m *Model) RemoveSubmenuItem(submenuID, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.registry[id]; ok && e.Submenu == submenuID {
		delete(m.registry, id)
	}
	m.publish()
}

// Item is an id/label pair for SetSubmenuItems.
type Item struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// SetSubmenuItems replaces the whole content of submenuID with items.
func (m *Model) SetSubmenuItems(submenuID string, items []Item) error {
	if submenuID == "" {
		return fmt.Errorf("submenu id is required")
	}
	for _, it := range items {
		if it.ID == "" {
			return fmt.Errorf("menu item id is required")
		}
		if IsReserved(it.ID) {
			return fmt.Errorf("%w: %s", ErrReservedItem, it.ID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.registry {
		if e.Submenu == submenuID {
			delete(m.registry, id)
		}
	}
	for _, it := range items {
		m.registry[it.ID] = Entry{Label: it.Label, Submenu: submenuID}
	}
	m.publish()
	return nil
}

func (m *Model) publish() {
	m.current = Rebuild(m.registry)
	if m.renderer == nil {
		return
	}
	if err := m.renderer.Render(m.current); err != nil {
		slog.Warn("Failed to render menu", "error", err)
	}
}
