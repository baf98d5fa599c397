package assessment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeplay/player-protection-backend/internal/domain/user"
)

func TestNewAssessment(t *testing.T) {
	userID := uuid.New()
	date := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	a, err := NewAssessment(userID, user.RiskLevelHigh, 75, IndicatorSnapshot{},
		"baseline profile", "monitor closely", date, true, SystemActor)
	require.NoError(t, err)

	assert.Equal(t, userID, a.UserID)
	assert.Equal(t, user.RiskLevelHigh, a.RiskLevel)
	assert.Equal(t, 75.0, a.RiskScore)
	assert.True(t, a.IsAutomatic)
	assert.Equal(t, SystemActor, a.AssessedBy)
	assert.True(t, a.IsActive)
	assert.Equal(t, date.AddDate(0, 0, ValidityDays), a.ValidUntil)
}

func TestNewAssessment_Invalid(t *testing.T) {
	date := time.Now()

	tests := []struct {
		name   string
		userID uuid.UUID
		score  float64
	}{
		{"nil user", uuid.Nil, 50},
		{"score below range", uuid.New(), -1},
		{"score above range", uuid.New(), 100.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAssessment(tt.userID, user.RiskLevelLow, tt.score,
				IndicatorSnapshot{}, "", "", date, false, "agent-1")
			assert.Error(t, err)
		})
	}
}

func TestAssessment_IsExpired(t *testing.T) {
	date := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	a, err := NewAssessment(uuid.New(), user.RiskLevelLow, 10,
		IndicatorSnapshot{}, "", "", date, true, SystemActor)
	require.NoError(t, err)

	assert.False(t, a.IsExpired(a.ValidUntil.Add(-time.Second)))
	assert.True(t, a.IsExpired(a.ValidUntil))
	assert.True(t, a.IsExpired(a.ValidUntil.Add(time.Hour)))
}

func TestAssessment_NeedsRenewal(t *testing.T) {
	date := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	a, err := NewAssessment(uuid.New(), user.RiskLevelLow, 10,
		IndicatorSnapshot{}, "", "", date, true, SystemActor)
	require.NoError(t, err)

	window := 7 * 24 * time.Hour

	assert.False(t, a.NeedsRenewal(a.ValidUntil.Add(-window-time.Second), window))
	assert.True(t, a.NeedsRenewal(a.ValidUntil.Add(-window), window))
	assert.True(t, a.NeedsRenewal(a.ValidUntil, window))
}

func TestAssessment_Deactivate(t *testing.T) {
	a, err := NewAssessment(uuid.New(), user.RiskLevelLow, 10,
		IndicatorSnapshot{}, "", "", time.Now(), true, SystemActor)
	require.NoError(t, err)

	a.Deactivate()
	assert.False(t, a.IsActive)
}
