package exclusion

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mote/internal/codec"
	"mote/internal/domain"
)

func TestAddInputThenHasPrefix(t *testing.T) {
	tr := NewTree(7)

	dup := tr.AddInput([]string{"a", "b", "c"}, domain.VerdictFailing, 10)
	assert.False(t, dup)

	found, id := tr.HasPrefix([]string{"a", "b", "c"})
	assert.True(t, found)
	assert.Equal(t, uint64(10), id)

	found, id = tr.HasPrefix([]string{"a", "b", "c", "d", "e"})
	assert.True(t, found)
	assert.Equal(t, uint64(10), id)

	found, _ = tr.HasPrefix([]string{"a", "b"})
	assert.False(t, found)
}

func TestExtendingDecidedPrefixIsNoOp(t *testing.T) {
	tr := NewTree(7)
	tr.AddInput([]string{"a"}, domain.VerdictPassing, 1)

	dup := tr.AddInput([]string{"a", "b", "c"}, domain.VerdictFailing, 2)
	assert.False(t, dup)

	found, id := tr.HasPrefix([]string{"a", "b", "c"})
	assert.True(t, found)
	assert.Equal(t, uint64(1), id, "original terminal must not be overwritten")
}

func TestUnfinishedTerminalSuperseded(t *testing.T) {
	tr := NewTree(7)
	tr.AddInput([]string{"a", "b"}, domain.VerdictUnfinished, 1)

	dup := tr.AddInput([]string{"a", "b"}, domain.VerdictFailing, 2)
	assert.False(t, dup)

	found, id := tr.HasPrefix([]string{"a", "b"})
	assert.True(t, found)
	assert.Equal(t, uint64(2), id)
}

func TestDisagreeingVerdictFlagsDuplicate(t *testing.T) {
	tr := NewTree(7)
	tr.AddInput([]string{"a", "b"}, domain.VerdictPassing, 1)

	dup := tr.AddInput([]string{"a", "b"}, domain.VerdictFailing, 2)
	assert.True(t, dup)

	found, id := tr.HasPrefix([]string{"a", "b"})
	assert.True(t, found)
	assert.Equal(t, uint64(1), id, "original terminal verdict wins")
}

func TestHasPrefixAndShortestExtension(t *testing.T) {
	tr := NewTree(7)
	tr.AddInput([]string{"a", "b", "c"}, domain.VerdictPassing, 1)
	tr.AddInput([]string{"a", "b", "d", "e"}, domain.VerdictFailing, 2)

	hasPrefix, prefixID, hasExt, extID := tr.HasPrefixAndShortestExtension([]string{"a", "b"})
	assert.False(t, hasPrefix)
	assert.Equal(t, uint64(0), prefixID)
	assert.True(t, hasExt)
	assert.Contains(t, []uint64{1, 2}, extID)
}

func TestStats(t *testing.T) {
	tr := NewTree(7)
	tr.AddInput([]string{"a", "b"}, domain.VerdictPassing, 1)
	tr.AddInput([]string{"a", "c"}, domain.VerdictFailing, 2)

	depth, nodes, leaves := tr.Stats()
	assert.Equal(t, 2, depth)
	assert.Equal(t, 4, nodes) // root, a, b, c
	assert.Equal(t, 2, leaves)
}

func TestWriteReadRoundTrip(t *testing.T) {
	tr := NewTree(7)
	tr.AddInput([]string{"a", "b"}, domain.VerdictPassing, 1)
	tr.AddInput([]string{"a", "c", "d"}, domain.VerdictFailing, 2)

	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	tr.WriteData(w)
	require.NoError(t, w.Err())

	loaded := NewTree(7)
	r := codec.NewReader(&buf)
	loaded.ReadData(r, treeVersion)

	found, id := loaded.HasPrefix([]string{"a", "b"})
	assert.True(t, found)
	assert.Equal(t, uint64(1), id)

	found, id = loaded.HasPrefix([]string{"a", "c", "d"})
	assert.True(t, found)
	assert.Equal(t, uint64(2), id)
}
