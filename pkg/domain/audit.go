package domain

import (
	"sort"
	"time"
)

// FieldChange pairs the old and new value of one field.
type FieldChange struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// AuditDiff is the before/after record handed to the audit log. For an insert
// Before and Changes are nil.
type AuditDiff struct {
	Before  *FailureMode           `json:"before"`
	After   FailureMode            `json:"after"`
	Changes map[string]FieldChange `json:"changes"`
}

// ChangedFields returns the sorted names of the changed fields.
func (d AuditDiff) ChangedFields() []string {
	out := make([]string, 0, len(d.Changes))
	for k := range d.Changes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BuildAuditDiff compares every field of after with the same field of before
// and records those that differ. The created_at and updated_at keys are
// skipped, so a write that only bumps updated_at yields an empty Changes map.
func BuildAuditDiff(before *FailureMode, after FailureMode) AuditDiff {
	if before == nil {
		return AuditDiff{After: after.Clone()}
	}
	prev := before.Clone()
	oldFields := prev.fieldValues()
	changes := make(map[string]FieldChange)
	for key, next := range after.fieldValues() {
		old := oldFields[key]
		if old != next {
			changes[key] = FieldChange{Before: old, After: next}
		}
	}
	return AuditDiff{Before: &prev, After: after.Clone(), Changes: changes}
}

// fieldValues flattens the row into comparable values keyed by JSON name.
// Nil pointers become untyped nil so that absent-to-absent compares equal.
func (f FailureMode) fieldValues() map[string]any {
	return map[string]any{
		"id":                   f.ID,
		"analysis_id":          f.AnalysisID,
		"effect":               f.Effect,
		"cause":                f.Cause,
		"controls":             f.Controls,
		"recommended_actions":  f.RecommendedActions,
		"severity":             floatValue(f.Severity),
		"occurrence":           floatValue(f.Occurrence),
		"detection":            floatValue(f.Detection),
		"rpn":                  f.RPN,
		"risk_level":           string(f.RiskLevel),
		"acceptability":        string(f.Acceptability),
		"action_owner":         stringValue(f.ActionOwner),
		"due_date":             dateValue(f.DueDate),
		"action_status":        string(f.ActionStatus),
		"residual_severity":    floatValue(f.ResidualSeverity),
		"residual_occurrence":  floatValue(f.ResidualOccurrence),
		"residual_detection":   floatValue(f.ResidualDetection),
		"residual_rpn":         intValue(f.ResidualRPN),
		"reassessment_enabled": f.ReassessmentEnabled,
		"reassessment_reason":  string(f.ReassessmentReason),
		"justification_text":   f.JustificationText,
		"approved_by":          f.ApprovedBy,
		"approval_date":        dateValue(f.ApprovalDate),
	}
}

func floatValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intValue(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringValue(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func dateValue(v *Date) any {
	if !isSet(v) {
		return nil
	}
	return v.String()
}

// AuditRecord is a persisted audit-trail entry for one row mutation. Seq is
// assigned by the store on append and orders records written within the same
// clock tick.
type AuditRecord struct {
	ID         string     `json:"id"`
	Seq        int64      `json:"seq"`
	Entity     EntityType `json:"entity"`
	EntityID   string     `json:"entity_id"`
	Action     Action     `json:"action"`
	ChangedBy  string     `json:"changed_by"`
	Diff       AuditDiff  `json:"diff"`
	RecordedAt time.Time  `json:"recorded_at"`
}
