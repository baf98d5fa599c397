package scoring

import (
	"github.com/safeplay/player-protection-backend/internal/domain/assessment"
	"github.com/safeplay/player-protection-backend/internal/domain/user"
)

// Score contributions per present indicator fragment. Presence means the
// user has at least one data point behind the fragment; the financial
// fragment is always present (deposits default to zero), so any existing
// user scores at least 75. Changing that baseline is a product decision,
// not a code cleanup.
const (
	behavioralWeight = 20
	financialWeight  = 30
	sessionWeight    = 25
)

// Level thresholds over the 0-100 score.
const (
	criticalThreshold = 80
	highThreshold     = 60
	mediumThreshold   = 40
)

// Result is the outcome of scoring one indicator snapshot.
type Result struct {
	Score          float64
	Level          user.RiskLevel
	Reason         string
	Recommendation string
}

var reasons = map[user.RiskLevel]string{
	user.RiskLevelCritical: "Multiple critical risk indicators detected",
	user.RiskLevelHigh:     "High risk indicators identified",
	user.RiskLevelMedium:   "Some moderate risk indicators",
	user.RiskLevelLow:      "Low risk identified",
}

var recommendations = map[user.RiskLevel]string{
	user.RiskLevelCritical: "Immediate intervention required. Refer to a specialized professional.",
	user.RiskLevelHigh:     "Intensive monitoring. Consider preventive interventions.",
	user.RiskLevelMedium:   "Regular follow-up. Provide responsible-gambling guidance.",
	user.RiskLevelLow:      "Standard monitoring. Maintain healthy habits.",
}

// ScoreSnapshot converts an indicator snapshot into a risk score, level and
// justification. Deterministic and side-effect free; callers own
// persistence.
func ScoreSnapshot(snapshot assessment.IndicatorSnapshot) Result {
	var score float64

	if snapshot.Behavioral != nil {
		score += behavioralWeight
	}
	if snapshot.Financial != nil {
		score += financialWeight
	}
	if snapshot.Session != nil {
		score += sessionWeight
	}

	level := levelFor(score)
	return Result{
		Score:          score,
		Level:          level,
		Reason:         reasons[level],
		Recommendation: recommendations[level],
	}
}

func levelFor(score float64) user.RiskLevel {
	switch {
	case score >= criticalThreshold:
		return user.RiskLevelCritical
	case score >= highThreshold:
		return user.RiskLevelHigh
	case score >= mediumThreshold:
		return user.RiskLevelMedium
	default:
		return user.RiskLevelLow
	}
}
