package scoring

import (
	"github.com/safeplay/player-protection-backend/internal/domain/assessment"
	"github.com/safeplay/player-protection-backend/internal/domain/session"
	"github.com/safeplay/player-protection-backend/internal/domain/user"
)

// Aggregate collects a user's behavioral, financial, temporal and
// session-level signals into one snapshot. Pure function: no side effects,
// callers supply the session statistics. A user with zero sessions yields a
// zeroed session fragment, not an error.
func Aggregate(p *user.Profile, stats session.Statistics) assessment.IndicatorSnapshot {
	return assessment.IndicatorSnapshot{
		Behavioral: &assessment.BehavioralIndicators{
			SessionCount: p.SessionCount,
			LastActivity: p.LastActivity,
			IsActive:     p.IsActive,
		},
		Financial: &assessment.FinancialIndicators{
			TotalDeposits:    p.TotalDeposits,
			TotalWithdrawals: p.TotalWithdrawals,
			NetBalance:       p.NetBalance(),
		},
		Temporal: &assessment.TemporalIndicators{
			CreatedAt:    p.CreatedAt,
			LastActivity: p.LastActivity,
		},
		Session: &assessment.SessionIndicators{
			TotalSessions:      stats.TotalSessions,
			AvgDurationMinutes: stats.AvgDurationMinutes,
			TotalBetAmount:     stats.TotalBetAmount,
		},
	}
}
