package session_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeplay/player-protection-backend/internal/domain/errors"
	"github.com/safeplay/player-protection-backend/internal/domain/session"
)

func TestNewSession(t *testing.T) {
	tests := []struct {
		name     string
		userID   uuid.UUID
		start    time.Time
		wantErr  bool
		validate func(t *testing.T, s *session.Session)
	}{
		{
			name:   "creates open session",
			userID: uuid.New(),
			start:  time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC),
			validate: func(t *testing.T, s *session.Session) {
				assert.NotEqual(t, uuid.Nil, s.ID)
				assert.True(t, s.IsOpen())
				assert.Nil(t, s.SessionEnd)
				assert.Nil(t, s.DurationMinutes)
				assert.Nil(t, s.RiskIndicators)
				assert.Nil(t, s.IsHighFrequency)
				assert.Nil(t, s.HasLossChasing)
				assert.True(t, s.TotalBetAmount.IsZero())
				assert.Zero(t, s.BetCount)
			},
		},
		{
			name:    "rejects nil user",
			userID:  uuid.Nil,
			start:   time.Now(),
			wantErr: true,
		},
		{
			name:    "rejects zero start",
			userID:  uuid.New(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := session.NewSession(tt.userID, tt.start, "slots", "web")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validate(t, s)
		})
	}
}

func TestSession_AddBet(t *testing.T) {
	s, err := session.NewSession(uuid.New(), time.Now(), "slots", "web")
	require.NoError(t, err)

	require.NoError(t, s.AddBet(decimal.NewFromInt(50)))
	require.NoError(t, s.AddBet(decimal.NewFromInt(200)))
	require.NoError(t, s.AddBet(decimal.NewFromInt(75)))

	assert.Equal(t, 3, s.BetCount)
	assert.True(t, s.TotalBetAmount.Equal(decimal.NewFromInt(325)))
	assert.True(t, s.MaxBetAmount.Equal(decimal.NewFromInt(200)))
	assert.True(t, s.AverageBetAmount().Round(2).Equal(decimal.NewFromFloat(108.33)))

	err = s.AddBet(decimal.Zero)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "INVALID_BET_AMOUNT"))
}

func TestSession_End(t *testing.T) {
	start := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	clk := &session.MockClock{CurrentTime: start}
	session.SetClock(clk)
	defer session.ResetClock()

	s, err := session.NewSession(uuid.New(), start, "poker", "mobile")
	require.NoError(t, err)

	require.NoError(t, s.AddBet(decimal.NewFromInt(100)))
	require.NoError(t, s.AddWin(decimal.NewFromInt(40)))

	clk.Advance(95 * time.Minute)
	require.NoError(t, s.End())

	require.NotNil(t, s.SessionEnd)
	require.NotNil(t, s.DurationMinutes)
	assert.EqualValues(t, 95, *s.DurationMinutes)
	assert.True(t, s.NetResult.Equal(decimal.NewFromInt(-60)))
	assert.False(t, s.IsOpen())

	// Closing twice is rejected.
	err = s.End()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "SESSION_ALREADY_CLOSED"))

	// So is mutation after close.
	err = s.AddBet(decimal.NewFromInt(10))
	assert.True(t, errors.IsCode(err, "SESSION_ALREADY_CLOSED"))
}

func TestSignificantLossThreshold(t *testing.T) {
	// A net result at the threshold is not yet a significant loss; only
	// results strictly below it are.
	assert.True(t, session.SignificantLossThreshold.Equal(decimal.NewFromInt(-100)))
	assert.False(t, decimal.NewFromInt(-100).LessThan(session.SignificantLossThreshold))
	assert.True(t, decimal.NewFromInt(-150).LessThan(session.SignificantLossThreshold))
}

func TestSession_EndAt_InvalidWindow(t *testing.T) {
	start := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	s, err := session.NewSession(uuid.New(), start, "slots", "web")
	require.NoError(t, err)

	err = s.EndAt(start.Add(-time.Minute))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "INVALID_SESSION_WINDOW"))

	// Nothing was persisted on the failure path.
	assert.True(t, s.IsOpen())
	assert.Nil(t, s.DurationMinutes)
}

func TestSession_ApplyRiskIndicators(t *testing.T) {
	start := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	s, err := session.NewSession(uuid.New(), start, "slots", "web")
	require.NoError(t, err)

	ind := session.RiskIndicators{HighFrequency: true, LossChasing: true}

	// Rejected while the session is still open.
	err = s.ApplyRiskIndicators(ind)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "SESSION_STILL_OPEN"))

	require.NoError(t, s.EndAt(start.Add(time.Hour)))
	require.NoError(t, s.ApplyRiskIndicators(ind))

	require.NotNil(t, s.IsHighFrequency)
	require.NotNil(t, s.HasLossChasing)
	assert.True(t, *s.IsHighFrequency)
	assert.True(t, *s.HasLossChasing)
	require.NotNil(t, s.RiskIndicators)
	assert.True(t, s.RiskIndicators.LossChasing)

	// Flags are written exactly once.
	err = s.ApplyRiskIndicators(session.RiskIndicators{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "INDICATORS_ALREADY_SET"))
	assert.True(t, *s.IsHighFrequency)
}
