package user

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Profile is a player profile as the risk engine sees it. The profile is
// owned externally; the engine only reads it and updates CurrentRiskLevel
// and the activity counters maintained at session boundaries.
type Profile struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`

	CurrentRiskLevel RiskLevel `json:"current_risk_level"`

	// Financial (cumulative, maintained by the payments system)
	TotalDeposits    decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`

	// Activity
	SessionCount int        `json:"session_count"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	IsActive     bool       `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProfile creates an active profile at the lowest risk level.
func NewProfile(email, name string) (*Profile, error) {
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email: %q", email)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}

	now := time.Now()
	return &Profile{
		ID:               uuid.New(),
		Email:            email,
		Name:             name,
		CurrentRiskLevel: RiskLevelLow,
		TotalDeposits:    decimal.Zero,
		TotalWithdrawals: decimal.Zero,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// NetBalance is deposits minus withdrawals.
func (p *Profile) NetBalance() decimal.Decimal {
	return p.TotalDeposits.Sub(p.TotalWithdrawals)
}

// UpdateRiskLevel records a re-assessed risk level.
func (p *Profile) UpdateRiskLevel(level RiskLevel) {
	p.CurrentRiskLevel = level
	p.UpdatedAt = time.Now()
}

// RecordActivity bumps the session counter and activity timestamp. Called at
// session boundaries.
func (p *Profile) RecordActivity(at time.Time) {
	p.SessionCount++
	p.LastActivity = &at
	p.UpdatedAt = at
}

// AccountAge is the time elapsed since the profile was created.
func (p *Profile) AccountAge(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}
