package domain

// DerivationTree is the grammar-specific production tree proving an Input
// is in the language (§3). The engine treats its internal production
// structure as opaque — it only consumes the generator's contract for
// extracting sub-trees (§4.8 derivation extraction) — so it is modeled
// here as an opaque, generator-owned payload plus the back-reference and
// bookkeeping the core subsystems need directly.
type DerivationTree struct {
	Form

	GrammarID uint64
	InputID   uint64

	// Payload is the generator-defined encoding of the production tree.
	// The form registry persists it as an opaque byte blob (§4.1); only
	// the external generator interprets its contents.
	Payload []byte
}

// NewDerivationTree allocates a DerivationTree header.
func NewDerivationTree(id uint64, grammarID uint64) *DerivationTree {
	return &DerivationTree{Form: NewForm(id, FormTypeDerivationTree), GrammarID: grammarID}
}

// Extractor is the external generator's contract for producing a
// sub-derivation from a parent tree given the candidate's split
// descriptor (§4.8). The core never interprets Payload itself — it only
// calls this collaborator and stores whatever comes back, or propagates
// errkind.ErrInvalidDerivation when extraction fails.
type Extractor interface {
	Extract(parent *DerivationTree, split ParentSplit) (*DerivationTree, error)
}
