package core

import "github.com/Ajanth06/medsafe-udi-sub000/pkg/domain"

// NewRulesEngine constructs an engine with no rules registered.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewFMEAGovernanceRule())
	engine.Register(NewDocumentReferenceRule())
	return engine
}
