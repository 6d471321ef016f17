package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"mote/internal/config"
)

func TestSavePath(t *testing.T) {
	settings := &config.Settings{}
	settings.Saves.SavePath = "/data/saves"

	require.Equal(t, "/data/saves/foo", savePath(settings, "foo", 0))
	require.Equal(t, "/data/saves/foo.3", savePath(settings, "foo", 3))
}

func TestNewGUIDIsNonZeroAndVaries(t *testing.T) {
	hi1, lo1 := newGUID()
	hi2, lo2 := newGUID()
	require.False(t, hi1 == 0 && lo1 == 0)
	require.True(t, hi1 != hi2 || lo1 != lo2)
}

func TestLoadGenerator_RequiresGrammarPath(t *testing.T) {
	settings := &config.Settings{}
	_, err := loadGenerator(settings)
	require.Error(t, err)
}

func TestLoadGenerator_MissingFile(t *testing.T) {
	settings := &config.Settings{}
	settings.PUT.Grammar = "/nonexistent/alphabet.txt"
	_, err := loadGenerator(settings)
	require.Error(t, err)
}

func TestExitCode(t *testing.T) {
	require.Equal(t, exitOK, ExitCode(nil))
	require.Equal(t, exitGenericError, ExitCode(errors.New("boom")))
	require.Equal(t, exitStartupError, ExitCode(withExitCode(errors.New("bad config"), exitStartupError)))

	wrapped := fmt.Errorf("run: %w", withExitCode(errors.New("convergence"), exitConvergenceFailure))
	require.Equal(t, exitConvergenceFailure, ExitCode(wrapped))
}

func TestWithExitCode_NilIsNil(t *testing.T) {
	require.NoError(t, withExitCode(nil, exitGenericError))
}
