package core

import (
	"context"
	"fmt"

	"github.com/Ajanth06/medsafe-udi-sub000/pkg/domain"
)

const documentReferenceRuleName = "document_reference"

// NewDocumentReferenceRule returns a rule that blocks documents linked to a
// failure mode that does not exist.
func NewDocumentReferenceRule() domain.Rule {
	return documentReferenceRule{}
}

type documentReferenceRule struct{}

func (documentReferenceRule) Name() string { return documentReferenceRuleName }

func (r documentReferenceRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityDocument || change.Action != domain.ActionCreate {
			continue
		}
		doc, ok := change.After.(domain.Document)
		if !ok || doc.FailureModeID == nil {
			continue
		}
		if _, exists := view.FindFailureMode(*doc.FailureModeID); exists {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("document %s references missing failure mode %s", doc.ID, *doc.FailureModeID),
			Entity:   domain.EntityDocument,
			EntityID: doc.ID,
			Field:    "failure_mode_id",
		})
	}
	return res, nil
}
