// Package config loads, normalizes, and writes back the settings file
// §6 describes: the CLI reads it from the path given by -conf (or
// ./settings under -workdir by default), and writes a normalized copy
// back on startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"mote/internal/errkind"
)

// Settings is the session-independent tuning surface §6 enumerates.
// CLI/session wiring (internal/cli) translates it into oracle.Config,
// exechandler.Options and session.Config; this package knows nothing of
// those engine types so it stays a leaf dependency.
type Settings struct {
	// Version is the settings classversion; files below
	// errkind.MinSupportedVersion are rejected at Load.
	Version int `mapstructure:"version" yaml:"version"`

	// RequiredEngineVersion, when set, is a semver constraint
	// (github.com/Masterminds/semver/v3 syntax, e.g. ">=0.2.0 <1.0.0")
	// the running build's EngineVersion must satisfy; CheckEngineVersion
	// enforces it at startup as a StartupError.
	RequiredEngineVersion string `mapstructure:"required_engine_version" yaml:"required_engine_version,omitempty"`

	PUT        PUTSettings        `mapstructure:"put" yaml:"put"`
	Runtime    RuntimeSettings    `mapstructure:"runtime" yaml:"runtime"`
	Generation GenerationSettings `mapstructure:"generation" yaml:"generation"`
	Goals      GoalSettings       `mapstructure:"goals" yaml:"goals"`
	Saves      SaveSettings       `mapstructure:"saves" yaml:"saves"`
	Execution  ExecutionSettings  `mapstructure:"execution" yaml:"execution"`
	Log        LogSettings        `mapstructure:"log" yaml:"log"`
	Stats      StatsSettings      `mapstructure:"stats" yaml:"stats"`
}

// PUTSettings is the program-under-test invocation contract (§6: PUTType,
// Path, LuaCmdScript, LuaCmdScriptReplay, LuaScriptArgsScript,
// LuaOracleScript, Grammar).
type PUTSettings struct {
	PUTType             string `mapstructure:"put_type" yaml:"put_type"` // "undefined" | "script" | "stdin_dump"
	Path                string `mapstructure:"path" yaml:"path"`
	LuaCmdScript        string `mapstructure:"lua_cmd_script" yaml:"lua_cmd_script"`
	LuaCmdScriptReplay  string `mapstructure:"lua_cmd_script_replay" yaml:"lua_cmd_script_replay"`
	LuaScriptArgsScript string `mapstructure:"lua_script_args_script" yaml:"lua_script_args_script"`
	LuaOracleScript     string `mapstructure:"lua_oracle_script" yaml:"lua_oracle_script"`
	Grammar             string `mapstructure:"grammar" yaml:"grammar"`
}

// RuntimeSettings covers worker/thread sizing and the engine's own
// memory policing (§6: UseHardwareThreads, NumThreads, NumComputeThreads,
// ConcurrentTests, MemoryLimit, MemorySoftLimit, MemorySweepPeriod).
type RuntimeSettings struct {
	UseHardwareThreads bool          `mapstructure:"use_hardware_threads" yaml:"use_hardware_threads"`
	NumThreads         int           `mapstructure:"num_threads" yaml:"num_threads"`
	NumComputeThreads  int           `mapstructure:"num_compute_threads" yaml:"num_compute_threads"`
	ConcurrentTests    int           `mapstructure:"concurrent_tests" yaml:"concurrent_tests"`
	MemoryLimit        int64         `mapstructure:"memory_limit" yaml:"memory_limit"`
	MemorySoftLimit    int64         `mapstructure:"memory_soft_limit" yaml:"memory_soft_limit"`
	MemorySweepPeriod  time.Duration `mapstructure:"memory_sweep_period" yaml:"memory_sweep_period"`
}

// GenerationSettings covers generation sizing and the delta-debugging
// toggle (§6: ConstructInputsIteratively, DeltaDebugging, GenerationSize,
// GenerationStep, GenerationTweakStart, GenerationTweakMax).
type GenerationSettings struct {
	ConstructInputsIteratively bool    `mapstructure:"construct_inputs_iteratively" yaml:"construct_inputs_iteratively"`
	DeltaDebugging             bool    `mapstructure:"delta_debugging" yaml:"delta_debugging"`
	GenerationSize             int64   `mapstructure:"generation_size" yaml:"generation_size"`
	GenerationStep             int64   `mapstructure:"generation_step" yaml:"generation_step"`
	GenerationTweakStart       float64 `mapstructure:"generation_tweak_start" yaml:"generation_tweak_start"`
	GenerationTweakMax         float64 `mapstructure:"generation_tweak_max" yaml:"generation_tweak_max"`
}

// GoalSettings is the set of end-of-run goals MasterControl's
// checkEndConditions polls (§6: UseFoundNegatives/FoundNegatives,
// UseFoundPositives/FoundPositives, UseTimeout/Timeout,
// UseOverallTests/OverallTests).
type GoalSettings struct {
	UseFoundNegatives bool          `mapstructure:"use_found_negatives" yaml:"use_found_negatives"`
	FoundNegatives    int64         `mapstructure:"found_negatives" yaml:"found_negatives"`
	UseFoundPositives bool          `mapstructure:"use_found_positives" yaml:"use_found_positives"`
	FoundPositives    int64         `mapstructure:"found_positives" yaml:"found_positives"`
	UseTimeout        bool          `mapstructure:"use_timeout" yaml:"use_timeout"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UseOverallTests   bool          `mapstructure:"use_overall_tests" yaml:"use_overall_tests"`
	OverallTests      int64         `mapstructure:"overall_tests" yaml:"overall_tests"`
}

// SaveSettings covers autosave scheduling and the save file's location
// and compression (§6: EnableSaves, AutosavePeriodTests,
// AutosavePeriodSeconds, SavePath, SaveName, CompressionLevel,
// CompressionExtreme).
type SaveSettings struct {
	EnableSaves           bool          `mapstructure:"enable_saves" yaml:"enable_saves"`
	AutosavePeriodTests   int64         `mapstructure:"autosave_period_tests" yaml:"autosave_period_tests"`
	AutosavePeriodSeconds time.Duration `mapstructure:"autosave_period_seconds" yaml:"autosave_period_seconds"`
	SavePath              string        `mapstructure:"save_path" yaml:"save_path"`
	SaveName              string        `mapstructure:"save_name" yaml:"save_name"`
	CompressionLevel      int           `mapstructure:"compression_level" yaml:"compression_level"` // -1..9
	CompressionExtreme    bool          `mapstructure:"compression_extreme" yaml:"compression_extreme"`
}

// ExecutionSettings covers the execution handler's per-test policy (§6:
// ExecuteFragments, UseTestTimeout/TestTimeout,
// UseFragmentTimeout/FragmentTimeout, StorePUTOutput,
// StorePUTOutputSuccessful, MaxUsedMemory).
type ExecutionSettings struct {
	ExecuteFragments         bool          `mapstructure:"execute_fragments" yaml:"execute_fragments"`
	UseTestTimeout           bool          `mapstructure:"use_test_timeout" yaml:"use_test_timeout"`
	TestTimeout              time.Duration `mapstructure:"test_timeout" yaml:"test_timeout"`
	UseFragmentTimeout       bool          `mapstructure:"use_fragment_timeout" yaml:"use_fragment_timeout"`
	FragmentTimeout          time.Duration `mapstructure:"fragment_timeout" yaml:"fragment_timeout"`
	StorePUTOutput           bool          `mapstructure:"store_put_output" yaml:"store_put_output"`
	StorePUTOutputSuccessful bool          `mapstructure:"store_put_output_successful" yaml:"store_put_output_successful"`
	MaxUsedMemory            int64         `mapstructure:"max_used_memory" yaml:"max_used_memory"`
}

// LogSettings feeds pkg/logger.Init directly.
type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// StatsSettings controls the internal/stats side index ("-p" path).
type StatsSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

func defaultSettings() Settings {
	return Settings{
		Version: errkind.MinSupportedVersion,
		PUT: PUTSettings{
			PUTType: "script",
		},
		Runtime: RuntimeSettings{
			UseHardwareThreads: true,
			ConcurrentTests:    16,
			MemorySweepPeriod:  30 * time.Second,
		},
		Generation: GenerationSettings{
			DeltaDebugging:       true,
			GenerationSize:       1000,
			GenerationTweakStart: 0.05,
			GenerationTweakMax:   1.0,
		},
		Goals: GoalSettings{},
		Saves: SaveSettings{
			EnableSaves:           true,
			AutosavePeriodSeconds: 5 * time.Minute,
			SavePath:              "./saves",
			SaveName:              "session",
			CompressionLevel:      -1,
		},
		Execution: ExecutionSettings{
			UseTestTimeout: true,
			TestTimeout:    10 * time.Second,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "console",
		},
		Stats: StatsSettings{
			Enabled: true,
			Path:    "./stats.db",
		},
	}
}

// Load reads the settings file at path (viper handles YAML/JSON/TOML/env
// overlay, matching the rest of the stack's config idiom), applying
// defaults for anything unset. A missing file is not an error — Load
// returns defaults so the caller can write a normalized copy via Save.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("FUZZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := defaultSettings()
	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expandedPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigParseError); ok {
					return nil, err
				}
			}
		} else if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("config: unmarshal %s: %w", expandedPath, err)
		}
	}

	if cfg.Version < errkind.MinSupportedVersion {
		return nil, &errkind.VersionError{Component: "settings", Found: int32(cfg.Version), MinWant: errkind.MinSupportedVersion}
	}

	return &cfg, nil
}

// Save writes a normalized YAML copy of cfg to path (§6 "writes a
// normalized copy back on startup").
func Save(cfg *Settings, path string) error {
	expandedPath, err := ExpandPath(path)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(expandedPath, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", expandedPath, err)
	}
	return nil
}
