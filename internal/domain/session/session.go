package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safeplay/player-protection-backend/internal/domain/errors"
)

// Session is one gambling session of a player. A session is created open,
// accumulates bets and wins while open, and is closed exactly once. The
// behavioral flags and the RiskIndicators snapshot are written at most once,
// immediately after close, and stay nil while the session is open.
type Session struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	SessionStart    time.Time  `json:"session_start"`
	SessionEnd      *time.Time `json:"session_end,omitempty"`
	DurationMinutes *int64     `json:"duration_minutes,omitempty"`

	TotalBetAmount decimal.Decimal `json:"total_bet_amount"`
	TotalWinAmount decimal.Decimal `json:"total_win_amount"`
	NetResult      decimal.Decimal `json:"net_result"`
	BetCount       int             `json:"bet_count"`
	MaxBetAmount   decimal.Decimal `json:"max_bet_amount"`

	GameType string `json:"game_type"`
	Platform string `json:"platform"`

	IsHighFrequency *bool           `json:"is_high_frequency,omitempty"`
	HasLossChasing  *bool           `json:"has_loss_chasing,omitempty"`
	RiskIndicators  *RiskIndicators `json:"risk_indicators,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// SignificantLossThreshold is the net result below which a closed session
// counts as a significant loss. Stores apply it when querying for recent
// losses; the behavioral analyzer reads the query result.
var SignificantLossThreshold = decimal.NewFromInt(-100)

// RiskIndicators is the per-session risk snapshot, derived once at close.
type RiskIndicators struct {
	HighFrequency bool `json:"highFrequency"`
	LossChasing   bool `json:"lossChasing"`
	HighBets      bool `json:"highBets"`
	LongSession   bool `json:"longSession"`
}

// Statistics summarizes a user's closed sessions, as reported by the
// profile store. A user with no sessions yields the zero value.
type Statistics struct {
	TotalSessions      int64           `json:"total_sessions"`
	AvgDurationMinutes float64         `json:"avg_duration_minutes"`
	TotalBetAmount     decimal.Decimal `json:"total_bet_amount"`
}

// NewSession opens a session for the given user.
func NewSession(userID uuid.UUID, start time.Time, gameType, platform string) (*Session, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user ID cannot be nil")
	}
	if start.IsZero() {
		return nil, fmt.Errorf("session start cannot be zero")
	}

	return &Session{
		ID:             uuid.New(),
		UserID:         userID,
		SessionStart:   start,
		TotalBetAmount: decimal.Zero,
		TotalWinAmount: decimal.Zero,
		NetResult:      decimal.Zero,
		MaxBetAmount:   decimal.Zero,
		GameType:       gameType,
		Platform:       platform,
		CreatedAt:      clock.Now(),
	}, nil
}

// IsOpen reports whether the session has not ended yet.
func (s *Session) IsOpen() bool {
	return s.SessionEnd == nil
}

// AddBet accumulates one bet into the open session.
func (s *Session) AddBet(amount decimal.Decimal) error {
	if !s.IsOpen() {
		return errors.ErrSessionAlreadyClosed
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return errors.NewValidationError("INVALID_BET_AMOUNT", "bet amount must be positive")
	}

	s.TotalBetAmount = s.TotalBetAmount.Add(amount)
	s.BetCount++
	if amount.GreaterThan(s.MaxBetAmount) {
		s.MaxBetAmount = amount
	}
	return nil
}

// AddWin accumulates one win into the open session.
func (s *Session) AddWin(amount decimal.Decimal) error {
	if !s.IsOpen() {
		return errors.ErrSessionAlreadyClosed
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return errors.NewValidationError("INVALID_WIN_AMOUNT", "win amount must be positive")
	}

	s.TotalWinAmount = s.TotalWinAmount.Add(amount)
	return nil
}

// End closes the session at the clock's current time and fixes the derived
// fields. A close time before the session start is a data error.
func (s *Session) End() error {
	return s.EndAt(clock.Now())
}

// EndAt closes the session at the given time.
func (s *Session) EndAt(end time.Time) error {
	if !s.IsOpen() {
		return errors.ErrSessionAlreadyClosed
	}
	if end.Before(s.SessionStart) {
		return errors.ErrInvalidSessionWindow
	}

	minutes := int64(end.Sub(s.SessionStart) / time.Minute)
	s.SessionEnd = &end
	s.DurationMinutes = &minutes
	s.NetResult = s.TotalWinAmount.Sub(s.TotalBetAmount)
	return nil
}

// ApplyRiskIndicators records the behavioral flags derived for this session.
// Permitted exactly once, and only after the session is closed.
func (s *Session) ApplyRiskIndicators(ind RiskIndicators) error {
	if s.IsOpen() {
		return errors.ErrSessionStillOpen
	}
	if s.RiskIndicators != nil {
		return errors.ErrIndicatorsAlreadySet
	}

	s.IsHighFrequency = &ind.HighFrequency
	s.HasLossChasing = &ind.LossChasing
	s.RiskIndicators = &ind
	return nil
}

// AverageBetAmount is the mean bet size, zero when no bets were placed.
func (s *Session) AverageBetAmount() decimal.Decimal {
	if s.BetCount == 0 {
		return decimal.Zero
	}
	return s.TotalBetAmount.Div(decimal.NewFromInt(int64(s.BetCount)))
}
