package session

import (
	"mote/internal/codec"
	"mote/internal/delta"
	"mote/internal/domain"
	"mote/internal/exclusion"
	"mote/internal/form"
	"mote/internal/generation"
	"mote/internal/oracle"
)

// factoryTable builds the form.FactoryTable the loader uses to allocate
// the right concrete type per record tag (§4.2 Phase B). Every factory
// returns a blank, id-0 instance; Load immediately calls RestoreHeader
// then ReadData to populate it, so the zero-value constructor arguments
// here are never observed.
func factoryTable() form.FactoryTable {
	return form.FactoryTable{
		codec.TagOracle:         func() form.Serializable { return oracle.NewOracle(0, oracle.Config{}) },
		codec.TagExclusionTree:  func() form.Serializable { return exclusion.NewTree(0) },
		codec.TagSessionData:    func() form.Serializable { return generation.NewSessionData(0, generation.DefaultTopK) },
		codec.TagGeneration:     func() form.Serializable { return generation.New(0, generation.Config{}) },
		codec.TagDeltaController: func() form.Serializable {
			return delta.New(0, delta.GoalReproduceResult, delta.ModeStandard, delta.Params{}, 0, delta.Baseline{}, delta.Hooks{})
		},
		codec.TagInput:          func() form.Serializable { return domain.NewInput(0) },
		codec.TagDerivationTree: func() form.Serializable { return domain.NewDerivationTree(0, 0) },
		codec.TagSession:        func() form.Serializable { return newBlankSession() },
	}
}
