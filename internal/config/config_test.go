package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mote/internal/errkind"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "settings"))
	require.NoError(t, err)
	require.Equal(t, errkind.MinSupportedVersion, cfg.Version)
	require.True(t, cfg.Saves.EnableSaves)
	require.Equal(t, -1, cfg.Saves.CompressionLevel)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings")

	cfg := defaultSettings()
	cfg.PUT.PUTType = "script"
	cfg.PUT.Path = "/usr/bin/target"
	cfg.Generation.GenerationSize = 42
	cfg.Log.Level = "debug"

	require.NoError(t, Save(&cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/usr/bin/target", loaded.PUT.Path)
	require.EqualValues(t, 42, loaded.Generation.GenerationSize)
	require.Equal(t, "debug", loaded.Log.Level)
}

func TestLoad_RejectsOldVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_ExpandsHomePrefix(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	rel := ".mote-config-test-settings"
	defer os.Remove(filepath.Join(home, rel))

	cfg := defaultSettings()
	require.NoError(t, Save(&cfg, "~/"+rel))

	loaded, err := Load("~/" + rel)
	require.NoError(t, err)
	require.Equal(t, cfg.Log.Level, loaded.Log.Level)
}
