package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsPath_ExplicitWorkdir(t *testing.T) {
	dir := t.TempDir()
	got, err := DefaultSettingsPath(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "settings"), got)
}

func TestDefaultSettingsPath_EmptyWorkdirUsesCwd(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	got, err := DefaultSettingsPath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(cwd, "settings"), got)
}

func TestDefaultStatsPath(t *testing.T) {
	dir := t.TempDir()
	got, err := DefaultStatsPath(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "stats.db"), got)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/foo/bar")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "foo/bar"), got)

	got, err = ExpandPath("~")
	require.NoError(t, err)
	require.Equal(t, home, got)

	got, err = ExpandPath("/abs/path")
	require.NoError(t, err)
	require.Equal(t, "/abs/path", got)

	got, err = ExpandPath("")
	require.NoError(t, err)
	require.Equal(t, "", got)
}
