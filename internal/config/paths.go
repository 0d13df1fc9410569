package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath overrides the config search entirely.
	EnvConfigPath = "BLACKPAPER_CONFIG"
	// ConfigFileName is the working-directory config name.
	ConfigFileName = "blackpaper.yaml"
	// ConfigDirName is the directory under XDG and /etc.
	ConfigDirName = "blackpaper"
)

// FindConfigPath locates the config file, most specific first: the
// environment override, the working directory, then the XDG and system
// locations listed in the package doc. Returns "" when nothing exists, in
// which case the caller runs on defaults.
func FindConfigPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" && fileExists(path) {
		return path
	}

	if fileExists(ConfigFileName) {
		if abs, err := filepath.Abs(ConfigFileName); err == nil {
			return abs
		}
		return ConfigFileName
	}

	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		if path := filepath.Join(xdgHome, ConfigDirName, "config.yaml"); fileExists(path) {
			return path
		}
	}
	if home := os.Getenv("HOME"); home != "" {
		if path := filepath.Join(home, ".config", ConfigDirName, "config.yaml"); fileExists(path) {
			return path
		}
	}

	if path := filepath.Join("/etc", ConfigDirName, "config.yaml"); fileExists(path) {
		return path
	}
	return ""
}

// DefaultConfigPath is where Save puts a config when none exists yet: the
// user's XDG config home, or the working directory without one.
func DefaultConfigPath() string {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, ConfigDirName, "config.yaml")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", ConfigDirName, "config.yaml")
	}
	return ConfigFileName
}

// EnsureConfigDir creates the directory that will hold the config file.
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
