package wordlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mote/internal/domain"
)

func TestGenerateProducesTargetLength(t *testing.T) {
	g := New([]string{"a", "b"})
	tree, err := g.Generate(0, 5, 7)
	require.NoError(t, err)
	require.EqualValues(t, 7, tree.GrammarID)

	tokens := g.Tokens(tree)
	require.Len(t, tokens, 5)
	for _, tok := range tokens {
		require.Contains(t, []string{"a", "b"}, tok)
	}
}

func TestExtractKeepsOnlySelectedRanges(t *testing.T) {
	g := New([]string{"a", "b", "c"})
	parent := domain.NewDerivationTree(1, 0)
	parent.Payload = encodeTokens([]string{"a", "b", "c", "d"})

	child, err := g.Extract(parent, domain.ParentSplit{Ranges: []domain.SplitRange{{Begin: 1, Length: 2}}})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, g.Tokens(child))
}

func TestExtractComplement(t *testing.T) {
	g := New([]string{"a", "b", "c"})
	parent := domain.NewDerivationTree(1, 0)
	parent.Payload = encodeTokens([]string{"a", "b", "c", "d"})

	child, err := g.Extract(parent, domain.ParentSplit{
		Ranges:     []domain.SplitRange{{Begin: 1, Length: 2}},
		Complement: true,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "d"}, g.Tokens(child))
}

func TestLoadSkipsBlankAndCommentLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alphabet.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n\n# comment\nb\n"), 0644))

	g, err := Load(path)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, g.alphabet)
}
