package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mote/internal/config"
	"mote/internal/domain"
	"mote/internal/errkind"
	"mote/internal/exechandler"
	"mote/internal/form"
	"mote/internal/oracle"
	"mote/internal/session"
	"mote/internal/stats"
	"mote/internal/taskqueue"
	"mote/internal/wordlist"
	"mote/pkg/logger"
)

// Exit codes per §6: 0 success; 1 generic error; 2 StartupError
// (oracle/grammar misconfiguration); 3 ConvergenceFailure (early
// termination by failure rate).
const (
	exitOK                 = 0
	exitGenericError       = 1
	exitStartupError       = 2
	exitConvergenceFailure = 3
)

// RunOptions are the "run" command's own flags (§6 CLI surface).
type RunOptions struct {
	Load       string
	LoadNumber int
	Print      string
	Dry        bool
	DryInput   string
}

// NewRunCmd builds the "run" command: start a fresh session, resume one
// with -l/--load, print its stats with -p/--print, or validate startup
// without running (--dry, --dry-i).
func NewRunCmd() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start, resume, or inspect a fuzzing session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("run: missing CLI context")
			}

			switch {
			case opts.Print != "":
				return runPrintStats(cliCtx, opts.Print)
			case opts.DryInput != "":
				return runDryInput(cliCtx, opts.DryInput)
			case opts.Dry:
				return runDryStartup(cliCtx)
			case opts.Load != "":
				return runResume(cmd.Context(), cliCtx, opts)
			default:
				return runFresh(cmd.Context(), cliCtx)
			}
		},
	}

	cmd.Flags().StringVarP(&opts.Load, "load", "l", "", "load a named save (optional -number index)")
	cmd.Flags().IntVar(&opts.LoadNumber, "number", 0, "save index to load alongside -l/--load")
	cmd.Flags().StringVarP(&opts.Print, "print", "p", "", "print stats for a named session and exit")
	cmd.Flags().BoolVar(&opts.Dry, "dry", false, "validate startup (oracle/grammar config) without running")
	cmd.Flags().StringVar(&opts.DryInput, "dry-i", "", "run a single whitespace-separated token sequence through the oracle and print the verdict")

	return cmd
}

func savePath(settings *config.Settings, name string, number int) string {
	if number > 0 {
		return filepath.Join(settings.Saves.SavePath, fmt.Sprintf("%s.%d", name, number))
	}
	return filepath.Join(settings.Saves.SavePath, name)
}

func newGUID() (uint64, uint64) {
	id := uuid.New()
	hi := uint64(0)
	lo := uint64(0)
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(id[i])
	}
	for i := 8; i < 16; i++ {
		lo = lo<<8 | uint64(id[i])
	}
	return hi, lo
}

func loadGenerator(settings *config.Settings) (*wordlist.Generator, error) {
	if settings.PUT.Grammar == "" {
		return nil, fmt.Errorf("%w: no grammar configured", errkind.ErrStartupError)
	}
	gen, err := wordlist.Load(settings.PUT.Grammar)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ErrStartupError, err)
	}
	return gen, nil
}

// runFresh builds a brand-new session and drives it to completion,
// mirroring a grammar/oracle misconfiguration back as a StartupError
// exit and a failure-rate abort as ConvergenceFailure (§6).
func runFresh(ctx context.Context, cliCtx *Context) error {
	settings := cliCtx.Settings
	if err := config.CheckEngineVersion(settings, Version); err != nil {
		return withExitCode(err, exitStartupError)
	}

	gen, err := loadGenerator(settings)
	if err != nil {
		return withExitCode(err, exitStartupError)
	}

	guid1, guid2 := newGUID()
	sess := session.Build(buildSessionConfig(settings), buildOracleConfig(settings), buildHandlerOptions(settings), gen, guid1, guid2)

	return driveSession(ctx, cliCtx, sess, true)
}

// runResume reconstructs a session from a save file named by -l/--load
// (optionally -number) and continues it.
func runResume(ctx context.Context, cliCtx *Context, opts *RunOptions) error {
	settings := cliCtx.Settings
	gen, err := loadGenerator(settings)
	if err != nil {
		return withExitCode(err, exitStartupError)
	}

	path := savePath(settings, opts.Load, opts.LoadNumber)
	guid1, guid2 := newGUID()
	sess, err := session.LoadSession(path, [2]uint64{guid1, guid2}, buildHandlerOptions(settings), gen)
	if err != nil {
		return fmt.Errorf("run: load %s: %w", path, err)
	}

	return driveSession(ctx, cliCtx, sess, false)
}

// driveSession starts sess (fresh or resumed), records stats snapshots on
// the autosave cadence, watches the settings file per §6's deferred-reload
// behavior, and blocks until the session stops or the process receives an
// interrupt.
func driveSession(ctx context.Context, cliCtx *Context, sess *session.Session, fresh bool) error {
	settings := cliCtx.Settings

	statsDB, err := cliCtx.Stats()
	if err != nil {
		logger.Warn().Err(err).Msg("run: stats side index unavailable; continuing without it")
	}

	sessionName := settings.Saves.SaveName
	if sessionName == "" {
		sessionName = "session"
	}

	if watcher, err := config.WatchSettings(cliCtx.SettingsPath, config.LogAndDeferReload(cliCtx.SettingsPath)); err != nil {
		logger.Warn().Err(err).Msg("run: could not watch settings file for changes")
	} else {
		defer watcher.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if fresh {
		err = sess.Start()
	} else {
		err = sess.StartLoaded()
	}
	if err != nil {
		return withExitCode(fmt.Errorf("run: start: %w", err), exitGenericError)
	}

	var recorderStop chan struct{}
	if statsDB != nil {
		recorder := stats.NewRecorder(statsDB, sessionName)
		recorderStop = make(chan struct{})
		interval := settings.Saves.AutosavePeriodSeconds
		if interval <= 0 {
			interval = 30 * time.Second
		}
		if cliCtx.Responsive {
			interval = 500 * time.Millisecond
		}
		go recorder.Run(sess, interval, recorderStop)
	}

	go func() {
		select {
		case <-sigCh:
			logger.Info().Msg("run: interrupt received, stopping session")
			path, opts := defaultSaveTargetFor(settings)
			_ = sess.Stop(settings.Saves.EnableSaves, path, opts)
		case <-ctx.Done():
		}
	}()

	sess.Wait()
	if recorderStop != nil {
		close(recorderStop)
	}

	if lastErr := sess.LastError(); lastErr != nil {
		switch {
		case lastErr == errkind.ErrConvergenceFailure:
			return withExitCode(lastErr, exitConvergenceFailure)
		case lastErr == errkind.ErrStartupError:
			return withExitCode(lastErr, exitStartupError)
		case lastErr == errkind.ErrGoalReached, lastErr == errkind.ErrTimeout:
			return nil
		default:
			return withExitCode(lastErr, exitGenericError)
		}
	}
	return nil
}

func defaultSaveTargetFor(settings *config.Settings) (string, form.SaveOptions) {
	path := filepath.Join(settings.Saves.SavePath, settings.Saves.SaveName)
	return path, form.SaveOptions{}
}

// runDryStartup validates that the oracle/grammar configuration is
// sound enough to build a session, then tears it down without running
// (§6 "--dry").
func runDryStartup(cliCtx *Context) error {
	settings := cliCtx.Settings
	if err := config.CheckEngineVersion(settings, Version); err != nil {
		return withExitCode(err, exitStartupError)
	}
	gen, err := loadGenerator(settings)
	if err != nil {
		return withExitCode(err, exitStartupError)
	}

	guid1, guid2 := newGUID()
	sess := session.Build(buildSessionConfig(settings), buildOracleConfig(settings), buildHandlerOptions(settings), gen, guid1, guid2)
	sess.Destroy()

	fmt.Println("startup OK: oracle, grammar and settings are well-formed")
	return nil
}

// runDryInput runs a single whitespace-separated token sequence through a
// standalone oracle+handler pair (no session, no generations, no saves)
// and prints its verdict (§6 "--dry-i <input>").
func runDryInput(cliCtx *Context, input string) error {
	settings := cliCtx.Settings
	tokens := strings.Fields(input)
	if len(tokens) == 0 {
		return withExitCode(fmt.Errorf("run: --dry-i requires at least one token"), exitGenericError)
	}
	if _, err := loadGenerator(settings); err != nil {
		return withExitCode(err, exitStartupError)
	}

	orc := oracle.NewOracle(form.ReservedID(domain.FormTypeOracle), buildOracleConfig(settings))
	sched := taskqueue.New(orc.NewWorkerContext, func(c *oracle.WorkerContext) { orc.CloseWorkerContext(c) })
	sched.Start([]taskqueue.WorkerSpec{{Mode: taskqueue.General, Count: 1}})
	defer sched.Stop(false)

	handlerOpts := buildHandlerOptions(settings)
	handler := exechandler.New(handlerOpts, orc.BuildCommand, sched)
	go handler.Run()
	defer handler.Stop()

	in := domain.NewInput(1)
	in.Sequence = tokens

	type result struct {
		verdict domain.OracleVerdict
		err     error
	}
	done := make(chan result, 1)
	handler.Submit(in, false, func(t *exechandler.Test, wctx *taskqueue.WorkerContext) {
		verdict, err := oracle.Evaluate(context.Background(), wctx.Data(), in)
		done <- result{verdict: verdict, err: err}
	})

	res := <-done
	if res.err != nil {
		return withExitCode(fmt.Errorf("run: --dry-i: %w", res.err), exitGenericError)
	}

	fmt.Printf("tokens: %v\nverdict: %s\n", tokens, res.verdict)
	return nil
}

// exitCodeError lets main() recover the §6 exit code a command wants
// without every RunE caller reimplementing os.Exit bookkeeping.
type exitCodeError struct {
	err  error
	code int
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &exitCodeError{err: err, code: code}
}

// ExitCode extracts the §6 exit code an error from this package's
// commands maps to, defaulting to the generic-error code for anything
// not explicitly classified.
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ec *exitCodeError
	if ok := asExitCodeError(err, &ec); ok {
		return ec.code
	}
	return exitGenericError
}

func asExitCodeError(err error, target **exitCodeError) bool {
	for err != nil {
		if ec, ok := err.(*exitCodeError); ok {
			*target = ec
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
