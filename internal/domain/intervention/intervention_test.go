package intervention_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeplay/player-protection-backend/internal/domain/errors"
	"github.com/safeplay/player-protection-backend/internal/domain/intervention"
)

func baseSpec() intervention.CreateSpec {
	return intervention.CreateSpec{
		Title:       "High risk warning",
		Description: "Automatic warning",
		Message:     "We noticed some patterns in your activity worth your attention.",
		Priority:    3,
		IsAutomatic: true,
		CreatedBy:   "SYSTEM",
	}
}

func TestNewIntervention(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := &intervention.MockClock{CurrentTime: now}
	intervention.SetClock(clk)
	defer intervention.ResetClock()

	future := now.Add(2 * time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name       string
		mutate     func(*intervention.CreateSpec)
		wantErr    bool
		wantStatus intervention.Status
		validate   func(t *testing.T, iv *intervention.Intervention)
	}{
		{
			name:       "no schedule starts pending",
			mutate:     func(s *intervention.CreateSpec) {},
			wantStatus: intervention.StatusPending,
			validate: func(t *testing.T, iv *intervention.Intervention) {
				// Default expiry window applied at creation.
				require.NotNil(t, iv.ExpiresAt)
				assert.Equal(t, now.Add(intervention.DefaultExpiryHours*time.Hour), *iv.ExpiresAt)
			},
		},
		{
			name:       "future schedule starts scheduled",
			mutate:     func(s *intervention.CreateSpec) { s.ScheduledFor = &future },
			wantStatus: intervention.StatusScheduled,
		},
		{
			name:       "past schedule starts pending",
			mutate:     func(s *intervention.CreateSpec) { s.ScheduledFor = &past },
			wantStatus: intervention.StatusPending,
		},
		{
			name: "explicit expiry is kept",
			mutate: func(s *intervention.CreateSpec) {
				e := now.Add(72 * time.Hour)
				s.ExpiresAt = &e
			},
			wantStatus: intervention.StatusPending,
			validate: func(t *testing.T, iv *intervention.Intervention) {
				assert.Equal(t, now.Add(72*time.Hour), *iv.ExpiresAt)
			},
		},
		{
			name:    "priority out of range rejected",
			mutate:  func(s *intervention.CreateSpec) { s.Priority = 5 },
			wantErr: true,
		},
		{
			name:    "empty title rejected",
			mutate:  func(s *intervention.CreateSpec) { s.Title = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := baseSpec()
			tt.mutate(&spec)

			iv, err := intervention.NewIntervention(uuid.New(), intervention.TypeWarning, spec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, iv.Status)
			if tt.validate != nil {
				tt.validate(t, iv)
			}
		})
	}
}

func TestIntervention_Execute(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := &intervention.MockClock{CurrentTime: now}
	intervention.SetClock(clk)
	defer intervention.ResetClock()

	iv, err := intervention.NewIntervention(uuid.New(), intervention.TypeWarning, baseSpec())
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	require.NoError(t, iv.Execute("operator-7"))

	assert.Equal(t, intervention.StatusExecuted, iv.Status)
	assert.Equal(t, "operator-7", iv.ExecutedBy)
	require.NotNil(t, iv.ExecutedAt)
	assert.Equal(t, now.Add(10*time.Minute), *iv.ExecutedAt)

	// Terminal states reject further transitions without mutation.
	err = iv.Execute("operator-8")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "INVALID_TRANSITION"))
	assert.Equal(t, "operator-7", iv.ExecutedBy)

	err = iv.Cancel("changed my mind")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "INVALID_TRANSITION"))
	assert.Equal(t, intervention.StatusExecuted, iv.Status)
	assert.Empty(t, iv.ExecutionNotes)
}

func TestIntervention_Cancel(t *testing.T) {
	iv, err := intervention.NewIntervention(uuid.New(), intervention.TypeTemporaryBlock, baseSpec())
	require.NoError(t, err)

	require.NoError(t, iv.Cancel("user self-excluded"))
	assert.Equal(t, intervention.StatusCancelled, iv.Status)
	assert.Equal(t, "user self-excluded", iv.ExecutionNotes)

	err = iv.Execute("operator-1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "INVALID_TRANSITION"))
	assert.Nil(t, iv.ExecutedAt)
}

func TestIntervention_Evaluate(t *testing.T) {
	iv, err := intervention.NewIntervention(uuid.New(), intervention.TypeWarning, baseSpec())
	require.NoError(t, err)

	// Feedback requires execution first.
	err = iv.Evaluate(4, "helpful")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "NOT_EXECUTED"))
	assert.Nil(t, iv.EffectivenessScore)

	require.NoError(t, iv.Execute("operator-7"))

	// Out-of-range score is rejected with no mutation.
	err = iv.Evaluate(6, "too high")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "INVALID_EFFECTIVENESS_SCORE"))
	assert.Nil(t, iv.EffectivenessScore)
	assert.Empty(t, iv.UserResponse)

	err = iv.Evaluate(0, "too low")
	assert.True(t, errors.IsCode(err, "INVALID_EFFECTIVENESS_SCORE"))

	require.NoError(t, iv.Evaluate(4, "took a break"))
	require.NotNil(t, iv.EffectivenessScore)
	assert.Equal(t, 4, *iv.EffectivenessScore)
	assert.Equal(t, "took a break", iv.UserResponse)
	// Feedback never changes the stored status.
	assert.Equal(t, intervention.StatusExecuted, iv.Status)
}

func TestIntervention_DerivedExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := &intervention.MockClock{CurrentTime: now}
	intervention.SetClock(clk)
	defer intervention.ResetClock()

	iv, err := intervention.NewIntervention(uuid.New(), intervention.TypeWarning, baseSpec())
	require.NoError(t, err)

	assert.False(t, iv.IsExpired(now))
	assert.True(t, iv.IsExpired(now.Add(25*time.Hour)))

	// Expiry is derived at read time; the stored status does not move.
	assert.Equal(t, intervention.StatusPending, iv.Status)

	// Terminal interventions are never reported expired.
	require.NoError(t, iv.Execute("operator-1"))
	assert.False(t, iv.IsExpired(now.Add(48*time.Hour)))
}

func TestIntervention_IsDue(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := &intervention.MockClock{CurrentTime: now}
	intervention.SetClock(clk)
	defer intervention.ResetClock()

	future := now.Add(2 * time.Hour)
	spec := baseSpec()
	spec.ScheduledFor = &future

	iv, err := intervention.NewIntervention(uuid.New(), intervention.TypeWarning, spec)
	require.NoError(t, err)

	assert.False(t, iv.IsDue(now))
	assert.False(t, iv.IsDue(future.Add(-time.Second)))
	assert.True(t, iv.IsDue(future))
	assert.True(t, iv.IsDue(future.Add(time.Second)))
}
