// Package wordlist is a minimal, built-in session.Generator: it treats the
// settings' Grammar path as a newline-delimited token alphabet and
// produces fixed-length token sequences drawn from it uniformly at
// random. It exists so "mote run" and "mote run --dry" have something
// real to drive end to end without an external grammar engine attached
// (spec's own worked example is exactly this: "grammar producing
// single-token inputs from {"a","b"}") — the engine's actual grammar and
// generator contract stays the external collaborator session.Generator
// describes; this is one concrete, swappable implementation of it, not a
// replacement for the interface.
package wordlist

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"mote/internal/domain"
)

// Generator draws token sequences from a fixed alphabet loaded from a
// file, one token per line (blank lines and lines starting with "#" are
// skipped).
type Generator struct {
	alphabet []string
	rng      *rand.Rand
}

// Load reads the alphabet from path.
func Load(path string) (*Generator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wordlist: open %s: %w", path, err)
	}
	defer f.Close()

	var alphabet []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		alphabet = append(alphabet, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("wordlist: read %s: %w", path, err)
	}
	if len(alphabet) == 0 {
		return nil, fmt.Errorf("wordlist: %s contains no tokens", path)
	}

	return &Generator{alphabet: alphabet, rng: rand.New(rand.NewSource(1))}, nil
}

// New builds a Generator directly from an in-memory alphabet, mainly for
// tests and --dry-i style one-off runs.
func New(alphabet []string) *Generator {
	return &Generator{alphabet: alphabet, rng: rand.New(rand.NewSource(1))}
}

// Generate implements session.Generator: it ignores sourceID (every
// sequence is drawn fresh from the alphabet, not derived from a parent —
// derivation only happens through Extract) and produces targetLength
// tokens.
func (g *Generator) Generate(sourceID uint64, targetLength int, grammarID uint64) (*domain.DerivationTree, error) {
	if targetLength <= 0 {
		targetLength = 1
	}
	tokens := make([]string, targetLength)
	for i := range tokens {
		tokens[i] = g.alphabet[g.rng.Intn(len(g.alphabet))]
	}

	tree := domain.NewDerivationTree(0, grammarID)
	tree.Payload = encodeTokens(tokens)
	return tree, nil
}

// Tokens decodes tree's payload back into the token sequence it encodes.
func (g *Generator) Tokens(tree *domain.DerivationTree) []string {
	return decodeTokens(tree.Payload)
}

// Extract implements domain.Extractor: it slices parent's token sequence
// according to split, keeping (or, if Complement, dropping) the given
// ranges (§4.8's candidate derivation).
func (g *Generator) Extract(parent *domain.DerivationTree, split domain.ParentSplit) (*domain.DerivationTree, error) {
	parentTokens := decodeTokens(parent.Payload)

	keep := make([]bool, len(parentTokens))
	for _, r := range split.Ranges {
		for i := r.Begin; i < r.Begin+r.Length && i < len(parentTokens); i++ {
			if i >= 0 {
				keep[i] = true
			}
		}
	}
	if split.Complement {
		for i := range keep {
			keep[i] = !keep[i]
		}
	}

	var tokens []string
	for i, k := range keep {
		if k {
			tokens = append(tokens, parentTokens[i])
		}
	}

	tree := domain.NewDerivationTree(0, parent.GrammarID)
	tree.Payload = encodeTokens(tokens)
	return tree, nil
}

func encodeTokens(tokens []string) []byte {
	escaped := make([]string, len(tokens))
	for i, t := range tokens {
		escaped[i] = strconv.Quote(t)
	}
	return []byte(strings.Join(escaped, "\n"))
}

func decodeTokens(payload []byte) []string {
	if len(payload) == 0 {
		return nil
	}
	lines := strings.Split(string(payload), "\n")
	tokens := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if unquoted, err := strconv.Unquote(line); err == nil {
			tokens = append(tokens, unquoted)
		} else {
			tokens = append(tokens, line)
		}
	}
	return tokens
}
