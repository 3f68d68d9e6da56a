// Package pathutil resolves user-supplied file paths from config and flags.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// Expand resolves environment variables and a leading ~ in path, so config
// values like "$XDG_STATE_HOME/drove/history.db" and "~/.ssh/known_hosts"
// both work. "~user" forms are left alone.
func Expand(path string) string {
	if path == "" {
		return path
	}
	path = os.ExpandEnv(path)
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}
