package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mote/internal/domain"
	"mote/internal/errkind"
)

func testOracle(cfg Config) *Oracle {
	return NewOracle(4, cfg)
}

func TestEvaluateMapsScriptResult(t *testing.T) {
	o := testOracle(Config{
		EvaluateScript: `test.exitCode === 0 ? "passing" : "failing"`,
		Timeout:        time.Second,
	})
	wc := o.NewWorkerContext(0)
	defer o.CloseWorkerContext(wc)

	in := domain.NewInput(1)
	in.ExitCode = 0
	v, err := Evaluate(context.Background(), wc, in)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPassing, v)

	in.ExitCode = 1
	v, err = Evaluate(context.Background(), wc, in)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictFailing, v)
}

func TestGetCmdArgsMissingContext(t *testing.T) {
	_, err := GetCmdArgs(context.Background(), nil, domain.NewInput(1), false)
	assert.ErrorIs(t, err, errkind.ErrOracleContextMissing)
}

func TestGetCmdArgsUsesSequence(t *testing.T) {
	o := testOracle(Config{
		CmdArgsScript: `test.sequence.join(" ")`,
		Timeout:       time.Second,
	})
	wc := o.NewWorkerContext(0)
	defer o.CloseWorkerContext(wc)

	in := domain.NewInput(2)
	in.Sequence = []string{"--flag", "value"}
	args, err := GetCmdArgs(context.Background(), wc, in, false)
	require.NoError(t, err)
	assert.Equal(t, "--flag value", args)
}

func TestBuildCommandUndefinedPUTType(t *testing.T) {
	o := testOracle(Config{
		CmdArgsScript: `"/bin/echo hello"`,
		Timeout:       time.Second,
	})
	wc := o.NewWorkerContext(0)
	defer o.CloseWorkerContext(wc)

	in := domain.NewInput(3)
	path, args, err := o.BuildCommand(context.Background(), wc, in)
	require.NoError(t, err)
	assert.Equal(t, "/bin/echo", path)
	assert.Equal(t, []string{"hello"}, args)
}

func TestEvaluateDefaultsToUndefinedOnUnknownResult(t *testing.T) {
	o := testOracle(Config{
		EvaluateScript: `"some garbage"`,
		Timeout:        time.Second,
	})
	wc := o.NewWorkerContext(0)
	defer o.CloseWorkerContext(wc)

	v, err := Evaluate(context.Background(), wc, domain.NewInput(1))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictUndefined, v)
}
