package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mote/internal/domain"
)

func newScored(id uint64, primary float64, verdict domain.OracleVerdict) *domain.Input {
	in := domain.NewInput(id)
	in.PrimaryScore = primary
	in.Verdict = verdict
	return in
}

func TestInsertRoutesByVerdict(t *testing.T) {
	sd := NewSessionData(9, 10)

	sd.Insert(newScored(1, 0.9, domain.VerdictFailing))
	sd.Insert(newScored(2, 0.5, domain.VerdictPassing))
	sd.Insert(newScored(3, 0.1, domain.VerdictUnfinished))
	sd.Insert(newScored(4, 0.1, domain.VerdictPrefix)) // not indexed

	assert.Equal(t, 1, sd.Positives.Len())
	assert.Equal(t, 1, sd.Negatives.Len())
	assert.Equal(t, 1, sd.Unfinished.Len())
	assert.Equal(t, int64(3), sd.TotalTests)
}

func TestFailureWindowConvergence(t *testing.T) {
	sd := NewSessionData(9, 10)
	for i := 0; i < 999; i++ {
		assert.False(t, sd.RecordGenerationAttempt(true))
	}
	assert.True(t, sd.RecordGenerationAttempt(true))
}

func TestFailureWindowStaysBelowThreshold(t *testing.T) {
	sd := NewSessionData(9, 10)
	for i := 0; i < 1000; i++ {
		sd.RecordGenerationAttempt(i%2 == 0)
	}
	assert.False(t, sd.RecordGenerationAttempt(false))
}

func TestCleanupDropsGoneAndDuplicate(t *testing.T) {
	sd := NewSessionData(9, 10)
	sd.Insert(newScored(1, 0.9, domain.VerdictPassing))
	sd.Insert(newScored(2, 0.5, domain.VerdictPassing))

	sd.Cleanup(func(id uint64) (exists, duplicate, deleted bool) {
		if id == 1 {
			return false, false, false // gone
		}
		return true, false, false
	})

	assert.Equal(t, 1, sd.Negatives.Len())
	assert.Equal(t, uint64(2), sd.Negatives.Items()[0].InputID)
}
