package exclusion

import (
	"mote/internal/codec"
	"mote/internal/domain"
	"mote/internal/resolve"
)

const treeVersion = 2

func (t *Tree) Tag() codec.Tag { return codec.TagExclusionTree }
func (t *Tree) Version() int32 { return treeVersion }

// WriteData encodes the trie depth-first. Edges are written as plain
// token strings rather than through codec.InternTable: encodeForm's
// Serializable contract gives a form only a *codec.Writer, with no
// access to the registry-wide intern table being built alongside it
// (see internal/form/save.go), the same constraint that led
// domain.Input.WriteData to skip interning its own Sequence. A future
// save-format revision that threads the table into WriteData would let
// both forms opt back in without changing the trie representation.
func (t *Tree) WriteData(w *codec.Writer) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	writeNode(w, t.root)
}

func writeNode(w *codec.Writer, n *node) {
	w.WriteU64(uint64(len(n.children)))
	for tok, child := range n.children {
		w.WriteString(tok)
		writeNode(w, child)
	}
	w.WriteBool(n.terminal)
	if n.terminal {
		w.WriteI32(int32(n.verdict))
		w.WriteU64(n.inputID)
	}
}

func (t *Tree) ReadData(r *codec.Reader, version int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = readNode(r)
}

func readNode(r *codec.Reader) *node {
	n := newNode()
	count := r.ReadU64()
	for i := uint64(0); i < count; i++ {
		tok := r.ReadString()
		n.children[tok] = readNode(r)
	}
	n.terminal = r.ReadBool()
	if n.terminal {
		n.verdict = domain.OracleVerdict(r.ReadI32())
		n.inputID = r.ReadU64()
	}
	return n
}

// InitializeEarly/InitializeLate: the tree holds only input ids, never
// form references that need resolving, so both are no-ops (§4.2 Phase
// C/D). The establishing input may have been pruned by a prior run's
// retention pass; callers treat a missing lookup as "id no longer
// resolvable" rather than an error.
func (t *Tree) InitializeEarly(res *resolve.Resolver) error { return nil }
func (t *Tree) InitializeLate(res *resolve.Resolver) error  { return nil }
