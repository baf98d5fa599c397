package assessment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safeplay/player-protection-backend/internal/domain/user"
)

// ValidityDays is how long a fresh assessment remains reusable.
const ValidityDays = 30

// SystemActor marks records produced by the automatic analysis path.
const SystemActor = "SYSTEM"

// Assessment is one point-in-time risk evaluation of a user. Assessments are
// immutable after creation except for the IsActive flag, which is flipped
// when a newer assessment supersedes this one.
type Assessment struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	RiskLevel user.RiskLevel `json:"risk_level"`
	RiskScore float64        `json:"risk_score"` // 0-100

	Indicators      IndicatorSnapshot `json:"indicators"`
	Reason          string            `json:"reason"`
	Recommendations string            `json:"recommendations"`

	IsAutomatic bool   `json:"is_automatic"`
	AssessedBy  string `json:"assessed_by"`

	AssessmentDate time.Time `json:"assessment_date"`
	ValidUntil     time.Time `json:"valid_until"`
	IsActive       bool      `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
}

// IndicatorSnapshot bundles the signals one assessment was computed from.
// Fragments are nil when the corresponding data source had nothing to say;
// serialization to JSON happens at the storage boundary only.
type IndicatorSnapshot struct {
	Behavioral *BehavioralIndicators `json:"behavioral,omitempty"`
	Financial  *FinancialIndicators  `json:"financial,omitempty"`
	Temporal   *TemporalIndicators   `json:"temporal,omitempty"`
	Session    *SessionIndicators    `json:"session,omitempty"`
}

type BehavioralIndicators struct {
	SessionCount int        `json:"sessionCount"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`
	IsActive     bool       `json:"isActive"`
}

type FinancialIndicators struct {
	TotalDeposits    decimal.Decimal `json:"totalDeposits"`
	TotalWithdrawals decimal.Decimal `json:"totalWithdrawals"`
	NetBalance       decimal.Decimal `json:"netBalance"`
}

type TemporalIndicators struct {
	CreatedAt    time.Time  `json:"createdAt"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`
}

type SessionIndicators struct {
	TotalSessions      int64           `json:"totalSessions"`
	AvgDurationMinutes float64         `json:"avgDuration"`
	TotalBetAmount     decimal.Decimal `json:"totalBets"`
}

// NewAssessment creates an active assessment valid for ValidityDays from the
// assessment date.
func NewAssessment(userID uuid.UUID, level user.RiskLevel, score float64, snapshot IndicatorSnapshot, reason, recommendations string, date time.Time, automatic bool, assessedBy string) (*Assessment, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user ID cannot be nil")
	}
	if score < 0 || score > 100 {
		return nil, fmt.Errorf("risk score %.2f out of range [0,100]", score)
	}

	return &Assessment{
		ID:              uuid.New(),
		UserID:          userID,
		RiskLevel:       level,
		RiskScore:       score,
		Indicators:      snapshot,
		Reason:          reason,
		Recommendations: recommendations,
		IsAutomatic:     automatic,
		AssessedBy:      assessedBy,
		AssessmentDate:  date,
		ValidUntil:      date.AddDate(0, 0, ValidityDays),
		IsActive:        true,
		CreatedAt:       date,
	}, nil
}

// IsExpired reports whether the validity window has passed. Expiry is
// advisory: expired assessments stay active until superseded by a new
// analysis.
func (a *Assessment) IsExpired(now time.Time) bool {
	return !now.Before(a.ValidUntil)
}

// NeedsRenewal reports whether the assessment expires within the window.
func (a *Assessment) NeedsRenewal(now time.Time, window time.Duration) bool {
	return !a.ValidUntil.After(now.Add(window))
}

// Deactivate flips the active flag when the assessment is superseded.
func (a *Assessment) Deactivate() {
	a.IsActive = false
}
