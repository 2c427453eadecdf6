package domain

import "math"

// Rating bounds shared by severity, occurrence and detection.
const (
	MinScore = 1
	MaxScore = 10
)

// RPN thresholds; each band includes its lower bound.
const (
	HighRiskThreshold   = 150
	MediumRiskThreshold = 60
)

// ClampScore rounds v to the nearest integer and clamps it to [1,10]. NaN maps
// to 1. It never reports errors; ValidateRow flags raw values independently.
func ClampScore(v float64) int {
	if math.IsNaN(v) {
		return MinScore
	}
	r := math.Round(v)
	if r < MinScore {
		return MinScore
	}
	if r > MaxScore {
		return MaxScore
	}
	return int(r)
}

// ComputeRPN returns the risk priority number of the clamped ratings, in [1,1000].
func ComputeRPN(severity, occurrence, detection float64) int {
	return ClampScore(severity) * ClampScore(occurrence) * ClampScore(detection)
}

// ClassifyRiskLevel maps an RPN onto its risk band.
func ClassifyRiskLevel(rpn int) RiskLevel {
	switch {
	case rpn >= HighRiskThreshold:
		return RiskHigh
	case rpn >= MediumRiskThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ClassifyAcceptability maps a risk level onto its governance class.
func ClassifyAcceptability(level RiskLevel) Acceptability {
	switch level {
	case RiskHigh:
		return AcceptabilityNotAcceptable
	case RiskMedium:
		return AcceptabilityReview
	default:
		return AcceptabilityAcceptable
	}
}

// Derived holds the values computed from a row's ratings.
type Derived struct {
	RPN           int           `json:"rpn"`
	RiskLevel     RiskLevel     `json:"risk_level"`
	Acceptability Acceptability `json:"acceptability"`
	ResidualRPN   *int          `json:"residual_rpn"`
}

// DeriveRow computes the initial and residual scores of a row. It reads only
// the rating fields, so applying it to an already derived row is a no-op.
func DeriveRow(row FailureMode) Derived {
	rpn := ComputeRPN(rawScore(row.Severity), rawScore(row.Occurrence), rawScore(row.Detection))
	level := ClassifyRiskLevel(rpn)
	d := Derived{
		RPN:           rpn,
		RiskLevel:     level,
		Acceptability: ClassifyAcceptability(level),
	}
	if row.ResidualCount() == 3 {
		residual := ComputeRPN(*row.ResidualSeverity, *row.ResidualOccurrence, *row.ResidualDetection)
		d.ResidualRPN = &residual
	}
	return d
}

// rawScore treats a missing rating as not-a-number so it clamps to 1.
func rawScore(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
