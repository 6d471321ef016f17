// Package oracle implements the per-worker embedded-scripting adapter of
// §4.5: three script bodies (command-line arguments, optional script
// arguments, verdict evaluation) compiled once per TaskScheduler worker
// and re-run against each Input that worker scores.
//
// Grounded on internal/jsvm/{pool,runtime,sandbox}.go: the VM-per-call
// pool and host-API sandbox are replaced with one persistent goja.Runtime
// per worker (registered via taskqueue.ContextFactory/ContextClose, §4.3),
// since §4.5 calls for long-lived per-worker context rather than a
// borrow-and-return pool — but the interrupt-on-timeout goroutine and
// compiled-program reuse are kept from runtime.go/sandbox.go.
package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"mote/internal/domain"
	"mote/internal/errkind"
	"mote/pkg/logger"
)

// PUTType selects how the execution handler invokes the program under
// test (§4.5).
type PUTType int

const (
	PUTUndefined PUTType = iota
	PUTScript
	PUTStdinDump
)

// Config is the oracle's session-wide configuration: the three script
// bodies and the PUT invocation contract (§6 Settings: CmdArgsScript,
// ScriptArgsScript, OracleScript, PUTType, ScriptPath).
type Config struct {
	CmdArgsScript    string
	ScriptArgsScript string
	EvaluateScript   string
	PUTType          PUTType
	ScriptPath       string
	Timeout          time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// Oracle is the session-wide singleton form (§3) holding the script
// bodies every worker context compiles against.
type Oracle struct {
	domain.Form
	cfg Config
}

// NewOracle allocates the Oracle singleton; called by package form's
// CreateSingleton.
func NewOracle(id uint64, cfg Config) *Oracle {
	return &Oracle{Form: domain.NewForm(id, domain.FormTypeOracle), cfg: cfg.withDefaults()}
}

// WorkerContext is the per-worker scripting state of §4.5: one
// goja.Runtime with the three scripts pre-compiled, created on worker
// start and torn down on worker exit via taskqueue's context hooks.
type WorkerContext struct {
	vm         *goja.Runtime
	cmdArgs    *goja.Program
	scriptArgs *goja.Program
	evaluate   *goja.Program
	hasScript  bool
	cfg        Config
}

// NewWorkerContext compiles o's scripts into a fresh VM. Suitable as a
// taskqueue.ContextFactory: `oracle.NewWorkerContext` bound to o.
func (o *Oracle) NewWorkerContext(workerID int) *WorkerContext {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	wc := &WorkerContext{vm: vm, cfg: o.cfg}
	if o.cfg.CmdArgsScript != "" {
		if p, err := goja.Compile("cmd_args", o.cfg.CmdArgsScript, false); err == nil {
			wc.cmdArgs = p
		} else {
			logger.Error().Err(err).Msg("oracle: cmd_args script failed to compile")
		}
	}
	if o.cfg.ScriptArgsScript != "" {
		if p, err := goja.Compile("script_args", o.cfg.ScriptArgsScript, false); err == nil {
			wc.scriptArgs = p
			wc.hasScript = true
		} else {
			logger.Error().Err(err).Msg("oracle: script_args script failed to compile")
		}
	}
	if o.cfg.EvaluateScript != "" {
		if p, err := goja.Compile("evaluate", o.cfg.EvaluateScript, false); err == nil {
			wc.evaluate = p
		} else {
			logger.Error().Err(err).Msg("oracle: evaluate script failed to compile")
		}
	}
	return wc
}

// CloseWorkerContext releases a worker's VM. Suitable as a
// taskqueue.ContextClose.
func (o *Oracle) CloseWorkerContext(c *WorkerContext) {
	if c == nil {
		return
	}
	c.vm.ClearInterrupt()
}

// contextFrom extracts a *WorkerContext from a taskqueue.WorkerContext's
// opaque Data(), returning errkind.ErrOracleContextMissing if the worker
// was never registered (§4.5: get_cmd_args "fails with NoContext").
func contextFrom(data any) (*WorkerContext, error) {
	wc, ok := data.(*WorkerContext)
	if !ok || wc == nil {
		return nil, errkind.ErrOracleContextMissing
	}
	return wc, nil
}

// runWithTimeout executes prog with test/replay globals set, interrupting
// the VM if timeout elapses, and exports the result to a string.
func (wc *WorkerContext) runWithTimeout(ctx context.Context, prog *goja.Program, in *domain.Input, replay bool) (string, error) {
	if prog == nil {
		return "", fmt.Errorf("oracle: script not configured")
	}

	_ = wc.vm.Set("test", exportInput(in))
	_ = wc.vm.Set("replay", replay)

	runCtx, cancel := context.WithTimeout(ctx, wc.cfg.Timeout)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-runCtx.Done():
			wc.vm.Interrupt("oracle: script timed out")
		case <-done:
		}
	}()

	val, err := wc.vm.RunProgram(prog)
	wc.vm.ClearInterrupt()
	if err != nil {
		return "", fmt.Errorf("oracle: script execution: %w", err)
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return "", nil
	}
	return val.String(), nil
}

// exportInput builds the JS-visible "test" object from an Input (§4.5).
// Only the fields an oracle script plausibly needs are exposed; the form
// registry remains the authoritative, opaque-to-JS representation.
func exportInput(in *domain.Input) map[string]any {
	return map[string]any{
		"id":             in.ID(),
		"sequence":       append([]string(nil), in.Sequence...),
		"length":         in.Length(),
		"exitCode":       in.ExitCode,
		"executionTime":  in.ExecutionTime.Seconds(),
		"output":         string(in.PUTOutput),
		"primaryScore":   in.PrimaryScore,
		"secondaryScore": in.SecondaryScore,
	}
}

// GetCmdArgs resolves command-line arguments for in (§4.5). replay
// indicates a deterministic re-run (e.g. during delta-debugging
// verification) for scripts that branch on it.
func GetCmdArgs(ctx context.Context, data any, in *domain.Input, replay bool) (string, error) {
	wc, err := contextFrom(data)
	if err != nil {
		return "", err
	}
	return wc.runWithTimeout(ctx, wc.cmdArgs, in, replay)
}

// GetScriptArgs resolves the script-specific arguments when the PUT type
// is Script (§4.5, §4.4 "For Script, the handler prepends the script
// path to the arguments").
func GetScriptArgs(ctx context.Context, data any, in *domain.Input) (string, error) {
	wc, err := contextFrom(data)
	if err != nil {
		return "", err
	}
	return wc.runWithTimeout(ctx, wc.scriptArgs, in, false)
}

// Evaluate runs the verdict script and maps its string result to one of
// the four oracle-assignable verdicts (§4.5: Prefix/Running are assigned
// by the engine, never returned here).
func Evaluate(ctx context.Context, data any, in *domain.Input) (domain.OracleVerdict, error) {
	wc, err := contextFrom(data)
	if err != nil {
		return domain.VerdictUndefined, err
	}
	s, err := wc.runWithTimeout(ctx, wc.evaluate, in, false)
	if err != nil {
		return domain.VerdictUndefined, err
	}
	return parseVerdict(s), nil
}

func parseVerdict(s string) domain.OracleVerdict {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "passing", "pass":
		return domain.VerdictPassing
	case "failing", "fail":
		return domain.VerdictFailing
	case "unfinished":
		return domain.VerdictUnfinished
	default:
		return domain.VerdictUndefined
	}
}

// BuildCommand resolves the PUT's (path, args) for exechandler's
// CommandBuilder contract, honoring the §4.4 rule that a Script PUT
// prepends its script path to the arguments.
func (o *Oracle) BuildCommand(ctx context.Context, data any, in *domain.Input) (path string, args []string, err error) {
	cmdArgs, err := GetCmdArgs(ctx, data, in, false)
	if err != nil {
		return "", nil, err
	}
	fields := strings.Fields(cmdArgs)

	switch o.cfg.PUTType {
	case PUTScript:
		scriptArgs, err := GetScriptArgs(ctx, data, in)
		if err != nil {
			return "", nil, err
		}
		allArgs := append([]string{o.cfg.ScriptPath}, strings.Fields(scriptArgs)...)
		allArgs = append(allArgs, fields...)
		return o.cfg.ScriptPath, allArgs, nil
	default:
		if len(fields) == 0 {
			return "", nil, fmt.Errorf("oracle: cmd_args resolved to empty command")
		}
		return fields[0], fields[1:], nil
	}
}
