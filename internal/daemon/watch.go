package daemon

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/TunnlTo/desktop-app/internal/core"
	"github.com/fsnotify/fsnotify"
)

const configReloadDebounce = 500 * time.Millisecond

// watchConfig reloads config.hcl whenever it changes. The config directory
// is watched so the file may be created after the daemon starts and editors
// that save through a rename keep being observed.
func (d *Daemon) watchConfig() {
	configPath := core.GetConfigFilePath()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create config file watcher", "error", err)
		return
	}

	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		slog.Error("Failed to watch config directory", "error", err, "path", configPath)
		watcher.Close()
		return
	}

	var reloadTimer *time.Timer
	var reloadMutex sync.Mutex

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-d.ctx.Done():
				reloadMutex.Lock()
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadMutex.Unlock()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(configPath) {
					continue
				}

				slog.Debug("Filesystem event on config file", "event", event.Op.String(), "file", event.Name)

				// Many editors save with an atomic rename instead of a write
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				reloadMutex.Lock()
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(configReloadDebounce, func() {
					slog.Info("Configuration file changed, reloading...", "file", configPath)
					if err := d.reloadConfig(); err != nil {
						slog.Debug("Config reload failed", "error", err)
					}
				})
				reloadMutex.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config file watcher error", "error", err)
			}
		}
	}()

	slog.Info("Watching configuration file for changes", "path", configPath)
}
