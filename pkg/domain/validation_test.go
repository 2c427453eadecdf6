package domain

import (
	"math"
	"strings"
	"testing"
)

func strPtr(v string) *string { return &v }

func ratedRow(s, o, d float64) FailureMode {
	return FailureMode{
		AnalysisID:   "analysis-1",
		Effect:       "Alarm not audible",
		Cause:        "Speaker degradation",
		Severity:     Score(s),
		Occurrence:   Score(o),
		Detection:    Score(d),
		ActionStatus: ActionOpen,
	}
}

func expectCodes(t *testing.T, errs ValidationErrors, want map[string]ErrorCode) {
	t.Helper()
	if len(errs) != len(want) {
		t.Fatalf("expected %d errors %v, got %d: %v", len(want), want, len(errs), errs)
	}
	for field, code := range want {
		got, ok := errs.Get(field)
		if !ok {
			t.Fatalf("expected error on %s, got %v", field, errs)
		}
		if got.Code != code {
			t.Fatalf("expected code %s on %s, got %s", code, field, got.Code)
		}
		if got.Message == "" {
			t.Fatalf("expected message on %s", field)
		}
	}
}

func TestValidateRowScenarioReviewNeedsNoActions(t *testing.T) {
	row := ratedRow(6, 4, 4)
	d := DeriveRow(row)
	if d.RPN != 96 || d.RiskLevel != RiskMedium || d.Acceptability != AcceptabilityReview {
		t.Fatalf("unexpected derivation: %+v", d)
	}
	if errs := ValidateRow(row); len(errs) != 0 {
		t.Fatalf("expected no errors for review row, got %v", errs)
	}
}

func TestValidateRowScenarioNotAcceptableRequiresActions(t *testing.T) {
	row := ratedRow(10, 9, 8)
	d := DeriveRow(row)
	if d.RPN != 720 || d.RiskLevel != RiskHigh || d.Acceptability != AcceptabilityNotAcceptable {
		t.Fatalf("unexpected derivation: %+v", d)
	}
	expectCodes(t, ValidateRow(row), map[string]ErrorCode{
		FieldRecommendedActions: CodeRequired,
		FieldActionOwner:        CodeRequired,
		FieldDueDate:            CodeRequired,
	})

	row.ActionStatus = ActionClosed
	expectCodes(t, ValidateRow(row), map[string]ErrorCode{
		FieldRecommendedActions: CodeRequired,
		FieldActionOwner:        CodeRequired,
		FieldDueDate:            CodeRequired,
		FieldActionStatus:       CodeClosedWhileUnaccepted,
	})

	row.ActionStatus = ActionInProgress
	row.RecommendedActions = "  Add redundant speaker  "
	row.ActionOwner = strPtr("QA Lead")
	row.DueDate = DatePtr(2026, 3, 1)
	if errs := ValidateRow(row); len(errs) != 0 {
		t.Fatalf("expected complete high-risk row to pass, got %v", errs)
	}
}

func TestValidateRowWhitespaceOnlyActionsRejected(t *testing.T) {
	row := ratedRow(10, 10, 10)
	row.RecommendedActions = "   \t"
	row.ActionOwner = strPtr(" ")
	row.DueDate = DatePtr(2026, 1, 1)
	expectCodes(t, ValidateRow(row), map[string]ErrorCode{
		FieldRecommendedActions: CodeRequired,
		FieldActionOwner:        CodeRequired,
	})
}

func TestValidateRowScenarioResidualComparison(t *testing.T) {
	row := ratedRow(5, 5, 5)
	row.ResidualSeverity = Score(2)
	row.ResidualOccurrence = Score(2)
	row.ResidualDetection = Score(2)
	if errs := ValidateRow(row); len(errs) != 0 {
		t.Fatalf("residual below initial should pass, got %v", errs)
	}

	row.Severity, row.Occurrence, row.Detection = Score(2), Score(2), Score(2)
	if errs := ValidateRow(row); len(errs) != 0 {
		t.Fatalf("residual equal to initial should pass, got %v", errs)
	}

	row.ResidualDetection = Score(3)
	expectCodes(t, ValidateRow(row), map[string]ErrorCode{
		FieldResidualRPN: CodeResidualExceedsInitial,
	})
}

func TestValidateRowReassessmentAllowsHigherResidual(t *testing.T) {
	row := ratedRow(2, 2, 2)
	row.ResidualSeverity = Score(3)
	row.ResidualOccurrence = Score(3)
	row.ResidualDetection = Score(3)
	row.ReassessmentEnabled = true

	expectCodes(t, ValidateRow(row), map[string]ErrorCode{
		FieldReassessmentReason: CodeRequired,
		FieldJustificationText:  CodeRequired,
		FieldApprovedBy:         CodeRequired,
		FieldApprovalDate:       CodeRequired,
	})

	row.ReassessmentReason = "gut feeling"
	row.JustificationText = "field complaints"
	row.ApprovedBy = "   "
	expectCodes(t, ValidateRow(row), map[string]ErrorCode{
		FieldReassessmentReason: CodeInvalidOption,
		FieldJustificationText:  CodeTooShort,
		FieldApprovedBy:         CodeRequired,
		FieldApprovalDate:       CodeRequired,
	})

	row.ReassessmentReason = ReasonControlIneffective
	row.JustificationText = "Post-market data shows the control fails under EMI."
	row.ApprovedBy = "Dr. Weber"
	row.ApprovalDate = DatePtr(2026, 2, 14)
	if errs := ValidateRow(row); len(errs) != 0 {
		t.Fatalf("expected justified reassessment to pass, got %v", errs)
	}
}

func TestValidateRowScenarioJustificationLength(t *testing.T) {
	base := ratedRow(3, 3, 3)
	base.ReassessmentEnabled = true
	base.ReassessmentReason = ReasonDesignChange
	base.ApprovedBy = "Approver"
	base.ApprovalDate = DatePtr(2026, 1, 5)

	short := base
	short.JustificationText = "  " + strings.Repeat("x", 19) + "  "
	expectCodes(t, ValidateRow(short), map[string]ErrorCode{FieldJustificationText: CodeTooShort})

	exact := base
	exact.JustificationText = strings.Repeat("x", 20)
	if errs := ValidateRow(exact); errs.Has(FieldJustificationText) {
		t.Fatalf("20 characters should satisfy the minimum, got %v", errs)
	}

	umlauts := base
	umlauts.JustificationText = strings.Repeat("ü", 20)
	if errs := ValidateRow(umlauts); errs.Has(FieldJustificationText) {
		t.Fatalf("length must count characters not bytes, got %v", errs)
	}
}

func TestValidateRowPartialResidualGroup(t *testing.T) {
	for _, n := range []int{1, 2} {
		row := ratedRow(4, 4, 4)
		vals := []**float64{&row.ResidualSeverity, &row.ResidualOccurrence, &row.ResidualDetection}
		for i := 0; i < n; i++ {
			*vals[i] = Score(9)
		}
		if d := DeriveRow(row); d.ResidualRPN != nil {
			t.Fatalf("partial residual (%d set) must not produce residual rpn", n)
		}
		expectCodes(t, ValidateRow(row), map[string]ErrorCode{FieldResidualGroup: CodeIncomplete})
	}
}

func TestValidateRowInitialRatingRange(t *testing.T) {
	row := ratedRow(0, 11, math.NaN())
	errs := ValidateRow(row)
	for _, field := range []string{FieldSeverity, FieldOccurrence, FieldDetection} {
		got, ok := errs.Get(field)
		if !ok || got.Code != CodeOutOfRange {
			t.Fatalf("expected out_of_range on %s, got %v", field, errs)
		}
	}
	// Scoring still clamps the same raw values.
	if d := DeriveRow(row); d.RPN != 10 {
		t.Fatalf("expected clamped rpn 10, got %d", d.RPN)
	}

	row = ratedRow(2.5, 3, 3)
	expectCodes(t, ValidateRow(row), map[string]ErrorCode{FieldSeverity: CodeNotWholeNumber})

	row = ratedRow(3, 3, 3)
	row.Detection = nil
	expectCodes(t, ValidateRow(row), map[string]ErrorCode{FieldDetection: CodeRequired})
}

func TestValidateRowResidualRatingRange(t *testing.T) {
	row := ratedRow(5, 5, 5)
	row.ResidualSeverity = Score(1)
	row.ResidualOccurrence = Score(0)
	row.ResidualDetection = Score(1)
	expectCodes(t, ValidateRow(row), map[string]ErrorCode{FieldResidualOccurrence: CodeOutOfRange})
}

func TestValidateRowUnknownActionStatus(t *testing.T) {
	row := ratedRow(1, 1, 1)
	row.ActionStatus = "waiting"
	expectCodes(t, ValidateRow(row), map[string]ErrorCode{FieldActionStatus: CodeInvalidOption})

	row.ActionStatus = ""
	if errs := ValidateRow(row); len(errs) != 0 {
		t.Fatalf("empty status should be accepted, got %v", errs)
	}
}

func TestValidationErrorsHelpers(t *testing.T) {
	var empty ValidationErrors
	if empty.Err() != nil {
		t.Fatalf("expected nil error for empty set")
	}
	errs := ValidationErrors{
		{Field: FieldDueDate, Code: CodeRequired, Message: "due"},
		{Field: FieldActionOwner, Code: CodeRequired, Message: "owner"},
		{Field: FieldDueDate, Code: CodeRequired, Message: "second"},
	}
	if errs.Err() == nil {
		t.Fatalf("expected error for non-empty set")
	}
	byField := errs.ByField()
	if len(byField) != 2 || byField[FieldDueDate] != "due" {
		t.Fatalf("unexpected ByField: %v", byField)
	}
	fields := errs.Fields()
	if len(fields) != 2 || fields[0] != FieldActionOwner || fields[1] != FieldDueDate {
		t.Fatalf("unexpected Fields: %v", fields)
	}
	if !strings.Contains(errs.Error(), "action_owner: owner") {
		t.Fatalf("unexpected Error(): %s", errs.Error())
	}
}
