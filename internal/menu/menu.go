// Package menu models the tray status menu.
//
// A Registry holds labelled entries, some of which belong to a submenu.
// Rebuild turns a Registry into a Menu tree and depends on nothing but the
// registry contents, so two registries with equal contents always produce
// equal menus.
package menu

import (
	"errors"
	"sort"
	"strings"
)

const (
	ConnectSubmenu = "connect"
	MinimizeID     = "minimize"
	ExitID         = "exit"
	DisconnectID   = "disconnect"
)

var ErrReservedItem = errors.New("menu item id is reserved")

var reservedLabels = map[string]string{
	MinimizeID: "Minimize to Tray",
	ExitID:     "Exit",
}

var submenuTitles = map[string]string{
	ConnectSubmenu: "Connect",
}

// IsReserved reports whether id is always rendered last and cannot be
// changed through the registry.
func IsReserved(id string) bool {
	_, ok := reservedLabels[id]
	return ok
}

// Entry is a registry value. Submenu is empty for top-level items.
type Entry struct {
	Label   string `json:"label"`
	Submenu string `json:"submenu,omitempty"`
}

// Registry maps item ids to entries.
type Registry map[string]Entry

// Clone returns a copy of r.
func (r Registry) Clone() Registry {
	c := make(Registry, len(r))
	for id, e := range r {
		c[id] = e
	}
	return c
}

type Kind string

const (
	KindItem      Kind = "item"
	KindSubmenu   Kind = "submenu"
	KindSeparator Kind = "separator"
)

type Node struct {
	Kind     Kind   `json:"kind"`
	ID       string `json:"id,omitempty"`
	Label    string `json:"label,omitempty"`
	Children []Node `json:"children,omitempty"`
}

type Menu struct {
	Nodes []Node `json:"nodes"`
}

// Rebuild produces the menu for r:
// submenus sorted by id, each with members sorted by id; then top-level
// items sorted by id; a separator when either produced anything; and
// finally the minimize and exit items.
func Rebuild(r Registry) Menu {
	submenus := make(map[string][]Node)
	var items []Node

	for id, e := range r {
		if IsReserved(id) {
			continue
		}
		node := Node{Kind: KindItem, ID: id, Label: e.Label}
		if e.Submenu != "" {
			submenus[e.Submenu] = append(submenus[e.Submenu], node)
			continue
		}
		items = append(items, node)
	}

	submenuIDs := make([]string, 0, len(submenus))
	for sid := range submenus {
		submenuIDs = append(submenuIDs, sid)
	}
	sort.Strings(submenuIDs)

	var nodes []Node
	for _, sid := range submenuIDs {
		children := submenus[sid]
		sortByID(children)
		nodes = append(nodes, Node{
			Kind:     KindSubmenu,
			ID:       sid,
			Label:    submenuTitle(sid),
			Children: children,
		})
	}

	sortByID(items)
	nodes = append(nodes, items...)

	if len(nodes) > 0 {
		nodes = append(nodes, Node{Kind: KindSeparator})
	}

	nodes = append(nodes,
		Node{Kind: KindItem, ID: MinimizeID, Label: reservedLabels[MinimizeID]},
		Node{Kind: KindItem, ID: ExitID, Label: reservedLabels[ExitID]},
	)
	return Menu{Nodes: nodes}
}

func submenuTitle(id string) string {
	if title, ok := submenuTitles[id]; ok {
		return title
	}
	return id
}

func sortByID(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}

// Text renders m as an indented outline.
func Text(m Menu) string {
	var b strings.Builder
	writeNodes(&b, m.Nodes, 0)
	return b.String()
}

func writeNodes(b *strings.Builder, nodes []Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		switch n.Kind {
		case KindSeparator:
			b.WriteString(indent + "----\n")
		case KindSubmenu:
			b.WriteString(indent + n.Label + " >\n")
			writeNodes(b, n.Children, depth+1)
		default:
			b.WriteString(indent + n.Label + " [" + n.ID + "]\n")
		}
	}
}
