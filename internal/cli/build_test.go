package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mote/internal/config"
	"mote/internal/oracle"
	"mote/internal/taskqueue"
)

func TestParsePUTType(t *testing.T) {
	require.Equal(t, oracle.PUTScript, parsePUTType("script"))
	require.Equal(t, oracle.PUTScript, parsePUTType("  SCRIPT "))
	require.Equal(t, oracle.PUTStdinDump, parsePUTType("stdin_dump"))
	require.Equal(t, oracle.PUTStdinDump, parsePUTType("stdin-dump"))
	require.Equal(t, oracle.PUTUndefined, parsePUTType("nonsense"))
}

func TestBuildOracleConfig(t *testing.T) {
	settings := validSettings()
	cfg := buildOracleConfig(settings)
	require.Equal(t, settings.PUT.LuaCmdScript, cfg.CmdArgsScript)
	require.Equal(t, settings.PUT.LuaScriptArgsScript, cfg.ScriptArgsScript)
	require.Equal(t, settings.PUT.LuaOracleScript, cfg.EvaluateScript)
	require.Equal(t, oracle.PUTScript, cfg.PUTType)
	require.Equal(t, settings.PUT.Path, cfg.ScriptPath)
	require.Equal(t, settings.Execution.TestTimeout, cfg.Timeout)
}

func TestBuildHandlerOptions(t *testing.T) {
	settings := validSettings()
	settings.Execution.StorePUTOutput = false
	settings.Execution.StorePUTOutputSuccessful = true
	opts := buildHandlerOptions(settings)
	require.Equal(t, settings.Runtime.ConcurrentTests, opts.MaxConcurrentTests)
	require.True(t, opts.StorePUTOutput)
}

func TestBuildWorkerSpecs_ExplicitThreadCounts(t *testing.T) {
	settings := validSettings()
	settings.Runtime.UseHardwareThreads = false
	settings.Runtime.NumThreads = 4
	settings.Runtime.NumComputeThreads = 2

	specs := buildWorkerSpecs(settings)
	require.Len(t, specs, 2)
	require.Equal(t, taskqueue.General, specs[0].Mode)
	require.Equal(t, 4, specs[0].Count)
	require.Equal(t, taskqueue.LightExclusive, specs[1].Mode)
	require.Equal(t, 2, specs[1].Count)
}

func TestBuildWorkerSpecs_ComputeThreadsFallBackToMainCount(t *testing.T) {
	settings := validSettings()
	settings.Runtime.UseHardwareThreads = false
	settings.Runtime.NumThreads = 3
	settings.Runtime.NumComputeThreads = 0

	specs := buildWorkerSpecs(settings)
	require.Equal(t, 3, specs[0].Count)
	require.Equal(t, 3, specs[1].Count)
}

func TestBuildWorkerSpecs_HardwareThreadsOverridesExplicitCount(t *testing.T) {
	settings := validSettings()
	settings.Runtime.UseHardwareThreads = true
	settings.Runtime.NumThreads = 1

	specs := buildWorkerSpecs(settings)
	require.Greater(t, specs[0].Count, 0)
}

func TestBuildSessionConfig(t *testing.T) {
	settings := validSettings()
	cfg := buildSessionConfig(settings)
	require.Equal(t, grammarFormID, cfg.GrammarID)
	require.Equal(t, settings.Generation.GenerationSize, cfg.GenerationSize)
	require.Equal(t, settings.Saves.SavePath, cfg.SavePath)
	require.Equal(t, int32(settings.Saves.CompressionLevel), cfg.CompressionLevel)
	require.NotEmpty(t, cfg.WorkerSpecs)
}

func validSettings() *config.Settings {
	s := &config.Settings{}
	s.PUT.PUTType = "script"
	s.PUT.Path = "/bin/true"
	s.PUT.LuaCmdScript = "cmd.lua"
	s.PUT.LuaScriptArgsScript = "args.lua"
	s.PUT.LuaOracleScript = "oracle.lua"
	s.PUT.Grammar = "alphabet.txt"
	s.Runtime.ConcurrentTests = 8
	s.Runtime.NumThreads = 0
	s.Runtime.UseHardwareThreads = true
	s.Execution.TestTimeout = 0
	s.Saves.SavePath = "./saves"
	s.Saves.SaveName = "session"
	s.Saves.CompressionLevel = -1
	return s
}
