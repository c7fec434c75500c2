package core

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	AppDirName      = "TunnlTo"
	BaseDirName     = ".config/tunnlto"
	ConfigFileName  = "config.hcl"
	PidFileName     = "daemon.pid"
	SocketName      = "daemon.sock"
	TunnelConfName  = "tunnel.conf"
	TunnelsFileName = "tunnels.json"
	DatabaseName    = "tunnlto.db"
)

// DefaultConfigPath returns the per-user application data directory.
// On Windows this is %LocalAppData%\TunnlTo, elsewhere ~/.config/tunnlto.
func DefaultConfigPath() string {
	if runtime.GOOS == "windows" {
		if dir, err := os.UserCacheDir(); err == nil {
			return filepath.Join(dir, AppDirName)
		}
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, BaseDirName)
}

func GetSocketPath() string {
	return filepath.Join(Config.ConfigPath, SocketName)
}

func GetPIDFilePath() string {
	return filepath.Join(Config.ConfigPath, PidFileName)
}

// GetTunnelConfPath is where the serialized WireSock config is written
// before every enable.
func GetTunnelConfPath() string {
	return filepath.Join(Config.ConfigPath, TunnelConfName)
}

func GetTunnelsPath() string {
	return filepath.Join(Config.ConfigPath, TunnelsFileName)
}

func GetDatabasePath() string {
	return filepath.Join(Config.ConfigPath, DatabaseName)
}

func GetConfigFilePath() string {
	return filepath.Join(Config.ConfigPath, ConfigFileName)
}
