package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mote/internal/domain"
)

func candidate(id uint64, primary float64, length int) *domain.Input {
	in := domain.NewInput(id)
	in.PrimaryScore = primary
	in.Sequence = make([]string, length)
	return in
}

func TestFilterSelectsHighestScoringFirst(t *testing.T) {
	cands := []*domain.Input{
		candidate(1, 0.9, 10),
		candidate(2, 0.8, 10),
		candidate(3, 0.1, 10),
	}
	root := func(in *domain.Input) uint64 { return 0 }

	out := Filter(cands, root, 2, 1.0, 0.05, 0.05, 0, false)
	assert.Len(t, out, 2)
	assert.Equal(t, uint64(1), out[0].ID())
	assert.Equal(t, uint64(2), out[1].ID())
}

func TestFilterIsRootFair(t *testing.T) {
	cands := []*domain.Input{
		candidate(1, 0.95, 10),
		candidate(2, 0.94, 10),
		candidate(3, 0.93, 10),
		candidate(4, 0.5, 10),
	}
	root := func(in *domain.Input) uint64 {
		if in.ID() <= 3 {
			return 1
		}
		return 2
	}

	out := Filter(cands, root, 2, 1.0, 1.0, 0.05, 0, false)
	assert.Len(t, out, 2)

	fromRootOne := 0
	fromRootTwo := 0
	for _, c := range out {
		if root(c) == 1 {
			fromRootOne++
		} else {
			fromRootTwo++
		}
	}
	assert.Equal(t, 1, fromRootOne)
	assert.Equal(t, 1, fromRootTwo)
}

func TestFilterExcludesShortInputs(t *testing.T) {
	cands := []*domain.Input{candidate(1, 0.9, 2)}
	root := func(in *domain.Input) uint64 { return 0 }

	out := Filter(cands, root, 5, 1.0, 1.0, 0.05, 5, false)
	assert.Empty(t, out)
}

func TestFilterExcludesDeltaDebuggedWhenRequested(t *testing.T) {
	in := candidate(1, 0.9, 10)
	in.SetFlag(domain.FlagDeltaDebugged)
	root := func(in *domain.Input) uint64 { return 0 }

	out := Filter([]*domain.Input{in}, root, 5, 1.0, 1.0, 0.05, 0, true)
	assert.Empty(t, out)
}
