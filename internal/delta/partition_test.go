package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mote/internal/domain"
)

func TestPartitionStandardEvenSplit(t *testing.T) {
	parts := PartitionStandard(10, 2)
	assert.Equal(t, []domain.SplitRange{{Begin: 0, Length: 5}, {Begin: 5, Length: 5}}, parts)
}

func TestPartitionStandardLastAbsorbsRemainder(t *testing.T) {
	parts := PartitionStandard(10, 3)
	assert.Len(t, parts, 3)
	total := 0
	for _, p := range parts {
		total += p.Length
	}
	assert.Equal(t, 10, total)
	assert.Equal(t, 4, parts[2].Length) // 3,3,4
}

func TestScoreRangesGroupsEqualRuns(t *testing.T) {
	primary := []float64{1, 1, 2, 2, 2, 3}
	ranges := ScoreRanges(primary, 0)
	assert.Equal(t, []domain.SplitRange{
		{Begin: 0, Length: 2},
		{Begin: 2, Length: 3},
		{Begin: 5, Length: 1},
	}, ranges)
}

func TestScoreRangesRespectsSkip(t *testing.T) {
	primary := []float64{1, 1, 2, 2, 2, 3}
	ranges := ScoreRanges(primary, 2)
	assert.Equal(t, []domain.SplitRange{
		{Begin: 2, Length: 3},
		{Begin: 5, Length: 1},
	}, ranges)
}

func TestApplySplitKeepAndComplement(t *testing.T) {
	seq := []string{"a", "b", "c", "d", "e"}
	split := domain.ParentSplit{Ranges: []domain.SplitRange{{Begin: 1, Length: 2}}}
	assert.Equal(t, []string{"b", "c"}, ApplySplit(seq, split))

	split.Complement = true
	assert.Equal(t, []string{"a", "d", "e"}, ApplySplit(seq, split))
}
