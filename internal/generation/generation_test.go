package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanGenerateRespectsAllCaps(t *testing.T) {
	g := New(100, Config{TargetSize: 10, MaxSimultaneous: 3})
	g.SetSourceCap(1, 2)

	can, remaining := g.CanGenerate()
	assert.True(t, can)
	assert.Equal(t, int64(2), remaining)

	g.BeginAttempt(1)
	g.BeginAttempt(1)
	can, remaining = g.CanGenerate()
	assert.False(t, can)
	assert.Equal(t, int64(0), remaining)
}

func TestCanGenerateStopsAtTarget(t *testing.T) {
	g := New(100, Config{TargetSize: 1, MaxSimultaneous: 10})
	g.SetSourceCap(1, 10)
	g.BeginAttempt(1)

	can, remaining := g.CanGenerate()
	assert.False(t, can)
	assert.Equal(t, int64(0), remaining)
}

func TestEndStatusForcedAndConditions(t *testing.T) {
	g := New(100, Config{TargetSize: 10, MaxSimultaneous: 5})
	assert.False(t, g.EndStatus(false, false))

	g.Force()
	assert.True(t, g.EndStatus(false, false))
}

func TestEndCallbackSingleFlight(t *testing.T) {
	g := New(100, Config{TargetSize: 1})
	assert.True(t, g.TryBeginEndCallback())
	assert.False(t, g.TryBeginEndCallback())
	g.ClearEndCallback()
	assert.True(t, g.TryBeginEndCallback())
}

func TestGeneratedOrDDSet(t *testing.T) {
	g := New(100, Config{})
	assert.False(t, g.Contains(42))
	g.AddGeneratedOrDD(42)
	assert.True(t, g.Contains(42))
}
