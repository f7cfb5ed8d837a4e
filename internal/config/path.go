package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDir = "oddbot"

// DefaultDataDir returns the per-user data directory for oddbot. XDG_DATA_HOME
// wins when set; without a home directory it falls back to ./data.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Oddbot")
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "Oddbot")
		}
		return filepath.Join(home, "AppData", "Local", "Oddbot")
	}
	if isDir(filepath.Join(home, ".local", "share")) {
		return filepath.Join(home, ".local", "share", appDir)
	}
	return filepath.Join(home, "."+appDir)
}

// DataDir returns the configured data directory or DefaultDataDir.
func (c Config) DataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return DefaultDataDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
