// Package config provides configuration path utilities.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSettingsPath returns the settings file path § 6 falls back to
// when -conf is not given: ./settings under workdir (the directory -workdir
// names, or the process's current directory if workdir is empty).
func DefaultSettingsPath(workdir string) (string, error) {
	dir, err := resolveWorkdir(workdir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings"), nil
}

// DefaultStatsPath returns the sqlite side-index path the "-p" CLI path
// opens when StatsSettings.Path is not overridden: ./stats.db under
// workdir.
func DefaultStatsPath(workdir string) (string, error) {
	dir, err := resolveWorkdir(workdir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "stats.db"), nil
}

func resolveWorkdir(workdir string) (string, error) {
	if workdir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		return cwd, nil
	}
	return ExpandPath(workdir)
}

// ExpandPath expands ~ prefix in path to user home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}

	if path == "~" {
		return os.UserHomeDir()
	}

	return path, nil
}
