package behavior

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safeplay/player-protection-backend/internal/domain/errors"
	"github.com/safeplay/player-protection-backend/internal/domain/session"
)

// Behavioral thresholds. A session counts as high frequency when the user
// started more than sessionFrequencyLimit sessions in the trailing window;
// loss chasing requires a recent significant loss plus a losing current
// session.
const (
	recentWindowHours     = 24
	sessionFrequencyLimit = 3
	highBetThreshold      = 1000
	longSessionMinutes    = 240
)

// Analyzer derives per-session risk flags from a just-closed session and a
// short window of the user's recent history.
type Analyzer struct {
	history SessionRepository
	clock   Clock
}

func NewAnalyzer(history SessionRepository, clock Clock) *Analyzer {
	return &Analyzer{history: history, clock: clock}
}

// Analyze computes the four behavioral flags for a closed session. The
// caller persists them via Session.ApplyRiskIndicators; the flags are never
// recomputed afterwards.
func (a *Analyzer) Analyze(ctx context.Context, s *session.Session) (session.RiskIndicators, error) {
	if s.IsOpen() {
		return session.RiskIndicators{}, errors.ErrSessionStillOpen
	}
	if s.SessionEnd.Before(s.SessionStart) {
		return session.RiskIndicators{}, errors.ErrInvalidSessionWindow
	}

	since := a.clock.Now().Add(-recentWindowHours * time.Hour)

	count, err := a.history.CountSessionsSince(ctx, s.UserID, since)
	if err != nil {
		return session.RiskIndicators{}, errors.Wrap(err, "counting recent sessions")
	}

	recentLoss, err := a.history.HasSignificantLossSince(ctx, s.UserID, since)
	if err != nil {
		return session.RiskIndicators{}, errors.Wrap(err, "checking recent losses")
	}

	var durationMinutes int64
	if s.DurationMinutes != nil {
		durationMinutes = *s.DurationMinutes
	}

	return session.RiskIndicators{
		HighFrequency: count > sessionFrequencyLimit,
		LossChasing:   recentLoss && s.NetResult.IsNegative(),
		HighBets:      s.MaxBetAmount.GreaterThan(decimal.NewFromInt(highBetThreshold)),
		LongSession:   durationMinutes > longSessionMinutes,
	}, nil
}
