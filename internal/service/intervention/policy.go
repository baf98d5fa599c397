package intervention

import (
	"github.com/safeplay/player-protection-backend/internal/domain/intervention"
	"github.com/safeplay/player-protection-backend/internal/domain/user"
)

// Decision is the automatic-intervention template for a risk level.
type Decision struct {
	Type        intervention.Type
	Priority    int
	Title       string
	Description string
	Message     string
}

var decisions = map[user.RiskLevel]Decision{
	user.RiskLevelCritical: {
		Type:        intervention.TypeTemporaryBlock,
		Priority:    4,
		Title:       "Temporary account block",
		Description: "Automatic protective block after a critical risk assessment.",
		Message:     "Your account has been temporarily blocked to protect you. Please contact our support team.",
	},
	user.RiskLevelHigh: {
		Type:        intervention.TypeWarning,
		Priority:    3,
		Title:       "Responsible gaming warning",
		Description: "Automatic warning after a high risk assessment.",
		Message:     "We noticed patterns in your play that may indicate elevated risk. Please consider taking a break.",
	},
	user.RiskLevelMedium: {
		Type:        intervention.TypeAlternativeSuggestion,
		Priority:    2,
		Title:       "Alternative activity suggestion",
		Description: "Automatic suggestion after a medium risk assessment.",
		Message:     "How about a break? We have some suggestions for other activities you might enjoy.",
	},
	user.RiskLevelLow: {
		Type:        intervention.TypeAlternativeSuggestion,
		Priority:    1,
		Title:       "Activity tip",
		Description: "Automatic low-priority suggestion.",
		Message:     "Keep your play fun: check out our responsible gaming tips.",
	},
}

// Decide maps a risk level to its automatic intervention template. Total
// over all levels; unknown values fall back to the LOW template so a caller
// never receives an empty decision.
func Decide(level user.RiskLevel) Decision {
	if d, ok := decisions[level]; ok {
		return d
	}
	return decisions[user.RiskLevelLow]
}
