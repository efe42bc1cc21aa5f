package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv names the environment variable that overrides the crew home directory.
const HomeEnv = "CREW_HOME"

// GetCrewHome returns the directory holding config.yaml, logs and the history database.
// Priority order:
//  1. CREW_HOME environment variable (if set)
//  2. .crew in the current working directory
//
// The directory is not created; callers that write into it create what they need.
func GetCrewHome() (string, error) {
	if home := os.Getenv(HomeEnv); home != "" {
		return home, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return filepath.Join(cwd, ".crew"), nil
}

// LoadDefault loads config.yaml from the crew home directory.
// Relative log_dir and history.db_path values that were left at their
// defaults are moved under the home directory when CREW_HOME is set.
func LoadDefault() (*Config, error) {
	home, err := GetCrewHome()
	if err != nil {
		return nil, err
	}

	cfg, err := LoadConfig(filepath.Join(home, "config.yaml"))
	if err != nil {
		return nil, err
	}

	if os.Getenv(HomeEnv) != "" {
		defaults := DefaultConfig()
		if cfg.LogDir == defaults.LogDir {
			cfg.LogDir = filepath.Join(home, "logs")
		}
		if cfg.History.DBPath == defaults.History.DBPath {
			cfg.History.DBPath = filepath.Join(home, "history.db")
		}
	}

	return cfg, nil
}
