package cli

import (
	"runtime"
	"strings"

	"mote/internal/config"
	"mote/internal/domain"
	"mote/internal/exechandler"
	"mote/internal/form"
	"mote/internal/oracle"
	"mote/internal/session"
	"mote/internal/taskqueue"
)

// grammarFormID is the reserved grammar singleton id every wordlist
// generator's derivation trees back-reference; there is exactly one
// grammar per session so a fixed id is enough (§3's real grammar form is
// an external collaborator's concern, out of scope here).
var grammarFormID uint64 = form.ReservedID(domain.FormTypeGrammar)

func parsePUTType(s string) oracle.PUTType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "script":
		return oracle.PUTScript
	case "stdin_dump", "stdindump", "stdin-dump":
		return oracle.PUTStdinDump
	default:
		return oracle.PUTUndefined
	}
}

func buildOracleConfig(settings *config.Settings) oracle.Config {
	return oracle.Config{
		CmdArgsScript:    settings.PUT.LuaCmdScript,
		ScriptArgsScript: settings.PUT.LuaScriptArgsScript,
		EvaluateScript:   settings.PUT.LuaOracleScript,
		PUTType:          parsePUTType(settings.PUT.PUTType),
		ScriptPath:       settings.PUT.Path,
		Timeout:          settings.Execution.TestTimeout,
	}
}

func buildHandlerOptions(settings *config.Settings) exechandler.Options {
	return exechandler.Options{
		MaxConcurrentTests: settings.Runtime.ConcurrentTests,
		FragmentMode:       settings.Execution.ExecuteFragments,
		FragmentTimeout:    settings.Execution.FragmentTimeout,
		TestTimeout:        settings.Execution.TestTimeout,
		MemoryLimitBytes:   settings.Runtime.MemoryLimit,
		StorePUTOutput:     settings.Execution.StorePUTOutput || settings.Execution.StorePUTOutputSuccessful,
	}
}

func buildWorkerSpecs(settings *config.Settings) []taskqueue.WorkerSpec {
	threads := settings.Runtime.NumThreads
	if settings.Runtime.UseHardwareThreads || threads <= 0 {
		threads = runtime.NumCPU()
	}
	computeThreads := settings.Runtime.NumComputeThreads
	if computeThreads <= 0 {
		computeThreads = threads
	}

	return []taskqueue.WorkerSpec{
		{Mode: taskqueue.General, Count: threads},
		{Mode: taskqueue.LightExclusive, Count: computeThreads},
	}
}

func buildSessionConfig(settings *config.Settings) session.Config {
	return session.Config{
		GrammarID: grammarFormID,

		GenerationSize:       settings.Generation.GenerationSize,
		GenerationStep:       settings.Generation.GenerationStep,
		GenerationTweakStart: settings.Generation.GenerationTweakStart,
		GenerationTweakMax:   settings.Generation.GenerationTweakMax,

		UseOverallTests:   settings.Goals.UseOverallTests,
		OverallTests:      settings.Goals.OverallTests,
		UseFoundPositives: settings.Goals.UseFoundPositives,
		FoundPositives:    settings.Goals.FoundPositives,
		UseFoundNegatives: settings.Goals.UseFoundNegatives,
		FoundNegatives:    settings.Goals.FoundNegatives,
		UseTimeout:        settings.Goals.UseTimeout,
		Timeout:           settings.Goals.Timeout,

		DeltaDebugging: settings.Generation.DeltaDebugging,

		MemoryLimitBytes:     settings.Runtime.MemoryLimit,
		MemorySoftLimitBytes: settings.Runtime.MemorySoftLimit,
		MemorySweepPeriod:    settings.Runtime.MemorySweepPeriod,

		EnableSaves:           settings.Saves.EnableSaves,
		AutosavePeriodTests:   settings.Saves.AutosavePeriodTests,
		AutosavePeriodSeconds: settings.Saves.AutosavePeriodSeconds,
		SavePath:              settings.Saves.SavePath,
		SaveName:              settings.Saves.SaveName,
		CompressionLevel:      int32(settings.Saves.CompressionLevel),
		CompressionExtreme:    settings.Saves.CompressionExtreme,

		WorkerSpecs: buildWorkerSpecs(settings),
	}
}
