// Package paths provides XDG-compliant path resolution for superstate.
//
// Resolution order:
// 1. SUPERSTATE_HOME (portable root) → $SUPERSTATE_HOME/{config,data,state,cache}
// 2. XDG env vars → $XDG_*_HOME/superstate
// 3. Platform defaults → ~/.config/superstate, ~/.local/state/superstate, etc.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "superstate"

// home resolves one base directory: the portable root's sub directory, the
// XDG variable, or the fallback below the user's home.
func home(sub, xdgVar string, fallback ...string) string {
	if root := os.Getenv("SUPERSTATE_HOME"); root != "" {
		return filepath.Join(root, sub)
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return dir
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(append([]string{homeDir}, fallback...)...)
	}
	return ""
}

func appDir(base string) string {
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// ConfigDir returns the configuration directory holding the global
// superstate.yml.
func ConfigDir() string {
	return appDir(home("config", "XDG_CONFIG_HOME", ".config"))
}

// DataDir returns the data directory.
func DataDir() string {
	return appDir(home("data", "XDG_DATA_HOME", ".local", "share"))
}

// StateDir returns the state directory.
// Used for the persistence database, the pid file and logs.
func StateDir() string {
	return appDir(home("state", "XDG_STATE_HOME", ".local", "state"))
}

// CacheDir returns the cache directory.
func CacheDir() string {
	return appDir(home("cache", "XDG_CACHE_HOME", ".cache"))
}

// RuntimeDir returns the directory for sockets.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if root := os.Getenv("SUPERSTATE_HOME"); root != "" {
		return filepath.Join(root, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// SocketPath returns the default path of the daemon's unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), appName+".sock")
}

// PidFilePath returns the path of the daemon's PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), appName+".pid")
}

// DatabasePath returns the default persistence directory.
func DatabasePath() string {
	return filepath.Join(StateDir(), "db")
}

// EnsureDirs creates the state directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), StateDir(), CacheDir(), RuntimeDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
