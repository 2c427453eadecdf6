package core

import (
	"context"

	"github.com/Ajanth06/medsafe-udi-sub000/pkg/domain"
)

const fmeaGovernanceRuleName = "fmea_governance"

// NewFMEAGovernanceRule returns a rule that blocks commits of failure modes
// failing row validation. Each field error becomes one blocking violation.
func NewFMEAGovernanceRule() domain.Rule {
	return fmeaGovernanceRule{}
}

type fmeaGovernanceRule struct{}

func (fmeaGovernanceRule) Name() string { return fmeaGovernanceRuleName }

func (r fmeaGovernanceRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityFailureMode {
			continue
		}
		if change.Action != domain.ActionCreate && change.Action != domain.ActionUpdate {
			continue
		}
		after, ok := change.After.(domain.FailureMode)
		if !ok {
			continue
		}
		if _, done := seen[after.ID]; done {
			continue
		}
		seen[after.ID] = struct{}{}

		// Validate the committed state when several updates touch one row.
		row, ok := view.FindFailureMode(after.ID)
		if !ok {
			continue
		}
		for _, fe := range domain.ValidateRow(row) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fe.Message,
				Entity:   domain.EntityFailureMode,
				EntityID: row.ID,
				Field:    fe.Field,
				Code:     fe.Code,
			})
		}
	}
	return res, nil
}
