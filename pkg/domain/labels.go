package domain

// Supported display locales. German is the dashboard default.
const (
	LocaleGerman  = "de"
	LocaleEnglish = "en"
)

var riskLevelLabels = map[string]map[RiskLevel]string{
	LocaleGerman:  {RiskLow: "Niedrig", RiskMedium: "Mittel", RiskHigh: "Hoch"},
	LocaleEnglish: {RiskLow: "Low", RiskMedium: "Medium", RiskHigh: "High"},
}

var acceptabilityLabels = map[string]map[Acceptability]string{
	LocaleGerman: {
		AcceptabilityAcceptable:    "Akzeptabel",
		AcceptabilityReview:        "Review",
		AcceptabilityNotAcceptable: "Nicht akzeptabel",
	},
	LocaleEnglish: {
		AcceptabilityAcceptable:    "Acceptable",
		AcceptabilityReview:        "Review",
		AcceptabilityNotAcceptable: "Not acceptable",
	},
}

var actionStatusLabels = map[string]map[ActionStatus]string{
	LocaleGerman:  {ActionOpen: "Offen", ActionInProgress: "In Bearbeitung", ActionClosed: "Abgeschlossen"},
	LocaleEnglish: {ActionOpen: "Open", ActionInProgress: "In Progress", ActionClosed: "Closed"},
}

func localeOrDefault(locale string) string {
	if locale == LocaleEnglish {
		return LocaleEnglish
	}
	return LocaleGerman
}

// Label returns the display text for the risk level.
func (l RiskLevel) Label(locale string) string {
	if s, ok := riskLevelLabels[localeOrDefault(locale)][l]; ok {
		return s
	}
	return string(l)
}

// Label returns the display text for the acceptability class.
func (a Acceptability) Label(locale string) string {
	if s, ok := acceptabilityLabels[localeOrDefault(locale)][a]; ok {
		return s
	}
	return string(a)
}

// Label returns the display text for the action status.
func (s ActionStatus) Label(locale string) string {
	if text, ok := actionStatusLabels[localeOrDefault(locale)][s]; ok {
		return text
	}
	return string(s)
}

// Labels bundles the display strings of a derived row.
type Labels struct {
	RiskLevel     string `json:"risk_level"`
	Acceptability string `json:"acceptability"`
}

// LabelsFor renders derived values for locale.
func LabelsFor(d Derived, locale string) Labels {
	return Labels{
		RiskLevel:     d.RiskLevel.Label(locale),
		Acceptability: d.Acceptability.Label(locale),
	}
}
