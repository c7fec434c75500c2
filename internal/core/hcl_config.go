package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the global configuration instance
var Config *Configuration

const (
	LogLevelDebug = "debug"
	LogLevelAll   = "all"

	DefaultExecutableName   = "wiresock-client"
	DefaultInstallerPackage = "wiresock/wiresock-vpn-client-x64-1.2.17.1.msi"
)

// Configuration represents the complete TunnlTo configuration
type Configuration struct {
	ConfigPath  string // Directory containing config files
	Verbose     int    // Verbosity level
	LogLevel    string // Passed to the client as -log-level
	AutoConnect string // Tunnel id enabled when the daemon starts
	Client      ClientConfig
	Installer   InstallerConfig
}

// ClientConfig describes how to find the WireSock client binary
type ClientConfig struct {
	Path           string // Explicit path, bypasses the install locator
	ExecutableName string // Process name used for kill-by-name and running checks
}

type InstallerConfig struct {
	Package string // MSI package, relative to the working directory unless absolute
}

// HCL parsing structs

type hclConfig struct {
	Verbose     int           `hcl:"verbose,optional"`
	LogLevel    string        `hcl:"log_level,optional"`
	AutoConnect string        `hcl:"auto_connect,optional"`
	Client      *hclClient    `hcl:"client,block"`
	Installer   *hclInstaller `hcl:"installer,block"`
}

type hclClient struct {
	Path           string `hcl:"path,optional"`
	ExecutableName string `hcl:"executable_name,optional"`
}

type hclInstaller struct {
	Package string `hcl:"package,optional"`
}

// LoadConfig loads the HCL configuration file and returns a Configuration struct
func LoadConfig(filename string) (*Configuration, error) {
	var hclCfg hclConfig

	err := hclsimple.DecodeFile(filename, nil, &hclCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HCL config: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.Verbose = hclCfg.Verbose
	cfg.AutoConnect = hclCfg.AutoConnect

	switch strings.ToLower(hclCfg.LogLevel) {
	case "":
	case LogLevelDebug, LogLevelAll:
		cfg.LogLevel = strings.ToLower(hclCfg.LogLevel)
	default:
		return nil, fmt.Errorf("invalid log_level %q (expected %q or %q)", hclCfg.LogLevel, LogLevelDebug, LogLevelAll)
	}

	if hclCfg.Client != nil {
		cfg.Client.Path = hclCfg.Client.Path
		if hclCfg.Client.ExecutableName != "" {
			cfg.Client.ExecutableName = hclCfg.Client.ExecutableName
		}
	}

	if hclCfg.Installer != nil && hclCfg.Installer.Package != "" {
		cfg.Installer.Package = hclCfg.Installer.Package
	}

	return cfg, nil
}

// LoadConfigFromDir loads config.hcl from dir, falling back to defaults when
// the file does not exist. ConfigPath is always set to dir.
func LoadConfigFromDir(dir string) (*Configuration, error) {
	path := filepath.Join(dir, ConfigFileName)
	if !ConfigExists(path) {
		cfg := GetDefaultConfig()
		cfg.ConfigPath = dir
		return cfg, nil
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.ConfigPath = dir
	return cfg, nil
}

// GetDefaultConfig returns a Configuration with default values
func GetDefaultConfig() *Configuration {
	return &Configuration{
		ConfigPath: DefaultConfigPath(),
		LogLevel:   LogLevelDebug,
		Client: ClientConfig{
			ExecutableName: DefaultExecutableName,
		},
		Installer: InstallerConfig{
			Package: DefaultInstallerPackage,
		},
	}
}

// ConfigExists checks if a config file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return err == nil
}
