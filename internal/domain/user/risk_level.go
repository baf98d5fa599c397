package user

import (
	"encoding/json"
	"fmt"
)

// RiskLevel classifies a player's compulsive-gambling risk. Levels are
// totally ordered: Low < Medium < High < Critical.
type RiskLevel int

const (
	RiskLevelLow RiskLevel = iota
	RiskLevelMedium
	RiskLevelHigh
	RiskLevelCritical
)

func (l RiskLevel) String() string {
	switch l {
	case RiskLevelLow:
		return "LOW"
	case RiskLevelMedium:
		return "MEDIUM"
	case RiskLevelHigh:
		return "HIGH"
	case RiskLevelCritical:
		return "CRITICAL"
	default:
		return "unknown"
	}
}

// AllRiskLevels enumerates every level, in ascending order.
func AllRiskLevels() []RiskLevel {
	return []RiskLevel{RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelCritical}
}

// AtLeast reports whether l is at or above the given level.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return l >= other
}

// MarshalJSON renders the level as its canonical string form.
func (l RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, ok := ParseRiskLevel(s)
	if !ok {
		return fmt.Errorf("unknown risk level: %q", s)
	}
	*l = level
	return nil
}

// ParseRiskLevel converts a stored string back into a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch s {
	case "LOW":
		return RiskLevelLow, true
	case "MEDIUM":
		return RiskLevelMedium, true
	case "HIGH":
		return RiskLevelHigh, true
	case "CRITICAL":
		return RiskLevelCritical, true
	default:
		return RiskLevelLow, false
	}
}
