package menu

import "log/slog"

// LogRenderer logs each rebuilt menu at debug level. The daemon uses it
// when no tray is attached.
type LogRenderer struct{}

func (LogRenderer) Render(m Menu) error {
	slog.Debug("Menu rebuilt", "entries", len(m.Nodes), "menu", Text(m))
	return nil
}
