package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// Field names reported by ValidateRow. They match the JSON field names of
// FailureMode, plus FieldResidualGroup for the residual triple as a whole.
const (
	FieldSeverity           = "severity"
	FieldOccurrence         = "occurrence"
	FieldDetection          = "detection"
	FieldResidualSeverity   = "residual_severity"
	FieldResidualOccurrence = "residual_occurrence"
	FieldResidualDetection  = "residual_detection"
	FieldResidualGroup      = "residual_group"
	FieldResidualRPN        = "residual_rpn"
	FieldReassessmentReason = "reassessment_reason"
	FieldJustificationText  = "justification_text"
	FieldApprovedBy         = "approved_by"
	FieldApprovalDate       = "approval_date"
	FieldRecommendedActions = "recommended_actions"
	FieldActionOwner        = "action_owner"
	FieldDueDate            = "due_date"
	FieldActionStatus       = "action_status"
)

// MinJustificationLength is the minimum trimmed length of a reassessment justification.
const MinJustificationLength = 20

// ErrorCode classifies a field error for typed assertions and UI mapping.
type ErrorCode string

// Error codes emitted by ValidateRow.
const (
	CodeRequired               ErrorCode = "required"
	CodeOutOfRange             ErrorCode = "out_of_range"
	CodeNotWholeNumber         ErrorCode = "not_whole_number"
	CodeIncomplete             ErrorCode = "incomplete"
	CodeResidualExceedsInitial ErrorCode = "residual_exceeds_initial"
	CodeInvalidOption          ErrorCode = "invalid_option"
	CodeTooShort               ErrorCode = "too_short"
	CodeClosedWhileUnaccepted  ErrorCode = "closed_while_not_acceptable"
)

// FieldError is a single violated rule on a single field.
type FieldError struct {
	Field   string    `json:"field"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is the ValidationFailed condition: empty means the row may
// be persisted.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation passed"
	}
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err returns v as an error, or nil when there are no violations.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// Has reports whether field has at least one error.
func (v ValidationErrors) Has(field string) bool {
	_, ok := v.Get(field)
	return ok
}

// Get returns the first error reported for field.
func (v ValidationErrors) Get(field string) (FieldError, bool) {
	for _, e := range v {
		if e.Field == field {
			return e, true
		}
	}
	return FieldError{}, false
}

// Fields returns the sorted set of fields with errors.
func (v ValidationErrors) Fields() []string {
	seen := make(map[string]struct{}, len(v))
	out := make([]string, 0, len(v))
	for _, e := range v {
		if _, ok := seen[e.Field]; ok {
			continue
		}
		seen[e.Field] = struct{}{}
		out = append(out, e.Field)
	}
	sort.Strings(out)
	return out
}

// ByField returns the field→message mapping consumed by form renderers.
func (v ValidationErrors) ByField() map[string]string {
	out := make(map[string]string, len(v))
	for _, e := range v {
		if _, ok := out[e.Field]; !ok {
			out[e.Field] = e.Message
		}
	}
	return out
}

type rowCheck func(row FailureMode, derived Derived) ValidationErrors

var rowChecks = []rowCheck{
	checkInitialRatings,
	checkResidualRatings,
	checkResidualNotAboveInitial,
	checkReassessment,
	checkUnacceptableRisk,
	checkActionStatus,
}

// ValidateRow evaluates every governance rule against row and reports all
// violations. Derived values are recomputed from the ratings, so stale derived
// fields on row are ignored.
func ValidateRow(row FailureMode) ValidationErrors {
	derived := DeriveRow(row)
	var out ValidationErrors
	for _, check := range rowChecks {
		out = append(out, check(row, derived)...)
	}
	return out
}

func checkInitialRatings(row FailureMode, _ Derived) ValidationErrors {
	var out ValidationErrors
	for _, r := range []struct {
		field string
		label string
		value *float64
	}{
		{FieldSeverity, "severity", row.Severity},
		{FieldOccurrence, "occurrence", row.Occurrence},
		{FieldDetection, "detection", row.Detection},
	} {
		if r.value == nil {
			out = append(out, FieldError{Field: r.field, Code: CodeRequired, Message: r.label + " is required"})
			continue
		}
		if e, bad := checkRating(r.field, r.label, *r.value); bad {
			out = append(out, e)
		}
	}
	return out
}

func checkRating(field, label string, v float64) (FieldError, bool) {
	if math.IsNaN(v) || v < MinScore || v > MaxScore {
		return FieldError{
			Field:   field,
			Code:    CodeOutOfRange,
			Message: fmt.Sprintf("%s must be between %d and %d", label, MinScore, MaxScore),
		}, true
	}
	if v != math.Trunc(v) {
		return FieldError{
			Field:   field,
			Code:    CodeNotWholeNumber,
			Message: fmt.Sprintf("%s must be a whole number", label),
		}, true
	}
	return FieldError{}, false
}

func checkResidualRatings(row FailureMode, _ Derived) ValidationErrors {
	var out ValidationErrors
	if n := row.ResidualCount(); n > 0 && n < 3 {
		out = append(out, FieldError{
			Field:   FieldResidualGroup,
			Code:    CodeIncomplete,
			Message: "residual severity, occurrence and detection must be set together",
		})
	}
	for _, r := range []struct {
		field string
		label string
		value *float64
	}{
		{FieldResidualSeverity, "residual severity", row.ResidualSeverity},
		{FieldResidualOccurrence, "residual occurrence", row.ResidualOccurrence},
		{FieldResidualDetection, "residual detection", row.ResidualDetection},
	} {
		if r.value == nil {
			continue
		}
		if e, bad := checkRating(r.field, r.label, *r.value); bad {
			out = append(out, e)
		}
	}
	return out
}

func checkResidualNotAboveInitial(row FailureMode, derived Derived) ValidationErrors {
	if derived.ResidualRPN == nil || *derived.ResidualRPN <= derived.RPN || row.ReassessmentEnabled {
		return nil
	}
	return ValidationErrors{{
		Field:   FieldResidualRPN,
		Code:    CodeResidualExceedsInitial,
		Message: fmt.Sprintf("residual risk (RPN %d) cannot exceed initial risk (RPN %d) without a justified reassessment", *derived.ResidualRPN, derived.RPN),
	}}
}

func checkReassessment(row FailureMode, _ Derived) ValidationErrors {
	if !row.ReassessmentEnabled {
		return nil
	}
	var out ValidationErrors
	switch {
	case row.ReassessmentReason == "":
		out = append(out, FieldError{Field: FieldReassessmentReason, Code: CodeRequired, Message: "reassessment reason is required"})
	case !row.ReassessmentReason.Valid():
		out = append(out, FieldError{Field: FieldReassessmentReason, Code: CodeInvalidOption, Message: fmt.Sprintf("unknown reassessment reason %q", row.ReassessmentReason)})
	}
	justification := strings.TrimSpace(row.JustificationText)
	switch {
	case justification == "":
		out = append(out, FieldError{Field: FieldJustificationText, Code: CodeRequired, Message: "justification is required"})
	case utf8.RuneCountInString(justification) < MinJustificationLength:
		out = append(out, FieldError{
			Field:   FieldJustificationText,
			Code:    CodeTooShort,
			Message: fmt.Sprintf("justification must be at least %d characters", MinJustificationLength),
		})
	}
	if strings.TrimSpace(row.ApprovedBy) == "" {
		out = append(out, FieldError{Field: FieldApprovedBy, Code: CodeRequired, Message: "approver is required"})
	}
	if !isSet(row.ApprovalDate) {
		out = append(out, FieldError{Field: FieldApprovalDate, Code: CodeRequired, Message: "approval date is required"})
	}
	return out
}

func checkUnacceptableRisk(row FailureMode, derived Derived) ValidationErrors {
	if derived.Acceptability != AcceptabilityNotAcceptable {
		return nil
	}
	var out ValidationErrors
	if strings.TrimSpace(row.RecommendedActions) == "" {
		out = append(out, FieldError{Field: FieldRecommendedActions, Code: CodeRequired, Message: "recommended actions are required for unacceptable risk"})
	}
	if row.ActionOwner == nil || strings.TrimSpace(*row.ActionOwner) == "" {
		out = append(out, FieldError{Field: FieldActionOwner, Code: CodeRequired, Message: "action owner is required for unacceptable risk"})
	}
	if !isSet(row.DueDate) {
		out = append(out, FieldError{Field: FieldDueDate, Code: CodeRequired, Message: "due date is required for unacceptable risk"})
	}
	if row.ActionStatus.IsTerminal() {
		out = append(out, FieldError{Field: FieldActionStatus, Code: CodeClosedWhileUnaccepted, Message: "action cannot be closed while risk is not acceptable"})
	}
	return out
}

func checkActionStatus(row FailureMode, _ Derived) ValidationErrors {
	if row.ActionStatus == "" || row.ActionStatus.Valid() {
		return nil
	}
	return ValidationErrors{{
		Field:   FieldActionStatus,
		Code:    CodeInvalidOption,
		Message: fmt.Sprintf("unknown action status %q", row.ActionStatus),
	}}
}
