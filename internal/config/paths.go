package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hugo-lorenzo-mato/teamflow/internal/fsutil"
)

// ProjectConfigDir holds per-project configuration and state.
const ProjectConfigDir = ".teamflow"

// UserConfigDir returns ~/.config/teamflow.
func UserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "teamflow"), nil
}

// ProjectConfigPath returns the project config file under dir.
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, ProjectConfigDir, "config.yaml")
}

// WriteDefaultConfig writes DefaultConfigYAML to path. An existing file is
// left untouched unless force is set. It reports whether the file was written.
func WriteDefaultConfig(path string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !os.IsNotExist(err) {
			return false, fmt.Errorf("checking config: %w", err)
		}
	}
	if err := fsutil.WriteFileAtomic(path, []byte(DefaultConfigYAML), 0o600); err != nil {
		return false, fmt.Errorf("writing config: %w", err)
	}
	return true, nil
}
