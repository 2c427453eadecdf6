// Package domain defines the FMEA failure-mode record, the risk scoring and
// governance rules applied to it, and the persistence contracts used by medsafe.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityFailureMode identifies a single FMEA row.
	EntityFailureMode EntityType = "failure_mode"
	// EntityDocument identifies an uploaded document (UDI evidence, reports).
	EntityDocument EntityType = "document"
)

// RiskLevel is the canonical risk band derived from an RPN.
type RiskLevel string

// Risk bands ordered from lowest to highest.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Acceptability is the governance classification mapped 1:1 from RiskLevel.
type Acceptability string

// Acceptability classes. Display text (Akzeptabel, Review, Nicht akzeptabel)
// is produced by Label.
const (
	AcceptabilityAcceptable    Acceptability = "acceptable"
	AcceptabilityReview        Acceptability = "review"
	AcceptabilityNotAcceptable Acceptability = "not_acceptable"
)

// ActionStatus tracks mitigation progress for a failure mode.
type ActionStatus string

// Action statuses. Any status may move to any other; ActionClosed is terminal
// in the sense that it is forbidden while the row is not acceptable.
const (
	ActionOpen       ActionStatus = "open"
	ActionInProgress ActionStatus = "in_progress"
	ActionClosed     ActionStatus = "closed"
)

// ParseActionStatus normalises the spellings used by earlier dashboard
// versions. "Done" was the terminal value of one variant and maps to ActionClosed.
func ParseActionStatus(raw string) (ActionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open", "offen":
		return ActionOpen, true
	case "in_progress", "in progress", "in-progress", "in bearbeitung":
		return ActionInProgress, true
	case "closed", "done", "abgeschlossen":
		return ActionClosed, true
	default:
		return ActionStatus(raw), false
	}
}

// Valid reports whether s is one of the canonical statuses.
func (s ActionStatus) Valid() bool {
	switch s {
	case ActionOpen, ActionInProgress, ActionClosed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status closes the mitigation.
func (s ActionStatus) IsTerminal() bool { return s == ActionClosed }

// UnmarshalJSON accepts canonical and legacy spellings. Unknown values are
// kept verbatim so that validation can report them.
func (s *ActionStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*s = ""
		return nil
	}
	*s, _ = ParseActionStatus(raw)
	return nil
}

// ReassessmentReason enumerates why a residual risk may exceed the initial risk.
type ReassessmentReason string

// Closed set of reassessment reasons accepted by the governance rules.
const (
	ReasonNewHazardData      ReassessmentReason = "new_hazard_data"
	ReasonDesignChange       ReassessmentReason = "design_change"
	ReasonControlIneffective ReassessmentReason = "control_ineffective"
	ReasonRegulatoryChange   ReassessmentReason = "regulatory_change"
	ReasonBenefitRisk        ReassessmentReason = "benefit_risk_accepted"
)

// ReassessmentReasons lists the accepted reasons in display order.
func ReassessmentReasons() []ReassessmentReason {
	return []ReassessmentReason{
		ReasonNewHazardData,
		ReasonDesignChange,
		ReasonControlIneffective,
		ReasonRegulatoryChange,
		ReasonBenefitRisk,
	}
}

// Valid reports whether r belongs to the closed enumeration.
func (r ReassessmentReason) Valid() bool {
	for _, candidate := range ReassessmentReasons() {
		if r == candidate {
			return true
		}
	}
	return false
}

// FailureMode is one FMEA row. Severity, occurrence and detection hold the raw
// submitted values; scoring clamps them while validation reports them as-is.
// RPN, RiskLevel, Acceptability and ResidualRPN are derived and recomputed on
// every mutation via ApplyDerived.
type FailureMode struct {
	ID                 string `json:"id,omitempty"`
	AnalysisID         string `json:"analysis_id"`
	Effect             string `json:"effect"`
	Cause              string `json:"cause"`
	Controls           string `json:"controls"`
	RecommendedActions string `json:"recommended_actions"`

	Severity   *float64 `json:"severity"`
	Occurrence *float64 `json:"occurrence"`
	Detection  *float64 `json:"detection"`

	RPN           int           `json:"rpn"`
	RiskLevel     RiskLevel     `json:"risk_level"`
	Acceptability Acceptability `json:"acceptability"`

	ActionOwner  *string      `json:"action_owner"`
	DueDate      *Date        `json:"due_date"`
	ActionStatus ActionStatus `json:"action_status"`

	ResidualSeverity   *float64 `json:"residual_severity"`
	ResidualOccurrence *float64 `json:"residual_occurrence"`
	ResidualDetection  *float64 `json:"residual_detection"`
	ResidualRPN        *int     `json:"residual_rpn"`

	ReassessmentEnabled bool               `json:"reassessment_enabled"`
	ReassessmentReason  ReassessmentReason `json:"reassessment_reason,omitempty"`
	JustificationText   string             `json:"justification_text,omitempty"`
	ApprovedBy          string             `json:"approved_by,omitempty"`
	ApprovalDate        *Date              `json:"approval_date"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResidualCount returns how many of the three residual ratings are set.
func (f FailureMode) ResidualCount() int {
	n := 0
	for _, v := range []*float64{f.ResidualSeverity, f.ResidualOccurrence, f.ResidualDetection} {
		if v != nil {
			n++
		}
	}
	return n
}

// ApplyDerived recomputes the derived fields in place and returns them.
func (f *FailureMode) ApplyDerived() Derived {
	d := DeriveRow(*f)
	f.RPN = d.RPN
	f.RiskLevel = d.RiskLevel
	f.Acceptability = d.Acceptability
	f.ResidualRPN = d.ResidualRPN
	return d
}

// IsOverdue reports whether the mitigation due date has passed without the
// action being closed.
func (f FailureMode) IsOverdue(today Date) bool {
	if !isSet(f.DueDate) || f.ActionStatus.IsTerminal() {
		return false
	}
	return f.DueDate.Before(today)
}

// Clone returns a deep copy so callers cannot mutate shared pointers.
func (f FailureMode) Clone() FailureMode {
	cp := f
	cp.Severity = cloneFloat(f.Severity)
	cp.Occurrence = cloneFloat(f.Occurrence)
	cp.Detection = cloneFloat(f.Detection)
	cp.ResidualSeverity = cloneFloat(f.ResidualSeverity)
	cp.ResidualOccurrence = cloneFloat(f.ResidualOccurrence)
	cp.ResidualDetection = cloneFloat(f.ResidualDetection)
	if f.ResidualRPN != nil {
		v := *f.ResidualRPN
		cp.ResidualRPN = &v
	}
	if f.ActionOwner != nil {
		v := *f.ActionOwner
		cp.ActionOwner = &v
	}
	cp.DueDate = cloneDate(f.DueDate)
	cp.ApprovalDate = cloneDate(f.ApprovalDate)
	return cp
}

// cloneDate copies d, dropping a zero date so that it reads as absent.
func cloneDate(d *Date) *Date {
	if !isSet(d) {
		return nil
	}
	v := *d
	return &v
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// Score is a convenience constructor for rating pointers.
func Score(v float64) *float64 { return &v }
