package core

import (
	"fmt"

	"github.com/Ajanth06/medsafe-udi-sub000/pkg/domain"
)

type (
	EntityType         = domain.EntityType
	FailureMode        = domain.FailureMode
	Document           = domain.Document
	AuditRecord        = domain.AuditRecord
	Derived            = domain.Derived
	Labels             = domain.Labels
	Date               = domain.Date
	Severity           = domain.Severity
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	ValidationErrors   = domain.ValidationErrors
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
)

const (
	EntityFailureMode = domain.EntityFailureMode
	EntityDocument    = domain.EntityDocument
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// ErrNotFound reports a lookup of a record that does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
