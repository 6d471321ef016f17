// Package cli is the cobra command tree the "mote" binary exposes (§6
// External Interfaces): a single "run" command carrying the settings-file,
// load, print-stats and dry-run flags §6 enumerates, plus the
// --responsive/-workdir flags the CLI surface was supplemented with.
//
// Grounded on internal/cli/root.go's PersistentPreRunE shape: resolve
// config, init the logger, build one context value, stash it on the
// command's context for subcommands to retrieve.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mote/internal/config"
	"mote/pkg/logger"
)

type contextKey struct{}

// GlobalFlags are the persistent, root-level flags (§6 plus the
// supplemented -workdir/--responsive).
type GlobalFlags struct {
	SettingsPath string
	Workdir      string
	Responsive   bool
	Verbose      bool
	Quiet        bool
}

var globalFlags GlobalFlags

// NewRootCmd builds the "mote" command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mote",
		Short:         "Grammar-based fuzzing and delta-debugging engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			settingsPath := globalFlags.SettingsPath
			if settingsPath == "" {
				var err error
				settingsPath, err = config.DefaultSettingsPath(globalFlags.Workdir)
				if err != nil {
					return err
				}
			}

			settings, err := config.Load(settingsPath)
			if err != nil {
				return err
			}
			if err := config.CheckEngineVersion(settings, Version); err != nil {
				return err
			}
			if err := config.Save(settings, settingsPath); err != nil {
				return fmt.Errorf("write normalized settings: %w", err)
			}

			logLevel := settings.Log.Level
			if globalFlags.Verbose {
				logLevel = "debug"
			}
			if globalFlags.Quiet {
				logLevel = "error"
			}
			if err := logger.Init(logger.LogConfig{
				Level:  logLevel,
				Format: settings.Log.Format,
				File:   settings.Log.File,
			}); err != nil {
				return err
			}

			if settings.Stats.Path == "" {
				statsPath, err := config.DefaultStatsPath(globalFlags.Workdir)
				if err != nil {
					return err
				}
				settings.Stats.Path = statsPath
			}

			cliCtx := NewContext(settings, settingsPath, globalFlags.Workdir, globalFlags.Responsive, logger.Get())
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, cliCtx))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cliCtx := GetContext(cmd); cliCtx != nil {
				return cliCtx.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&globalFlags.SettingsPath, "conf", "", "settings file path (default: ./settings under -workdir)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Workdir, "workdir", "", "working directory for settings/stats discovery")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Responsive, "responsive", false, "keep the control loop on its shortest wait interval")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "quiet logging")

	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// GetContext retrieves the Context PersistentPreRunE stashed on cmd.
func GetContext(cmd *cobra.Command) *Context {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cliCtx, _ := ctx.Value(contextKey{}).(*Context)
	return cliCtx
}
