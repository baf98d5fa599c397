package user

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProfile(t *testing.T) {
	p, err := NewProfile("mara@example.com", "Mara")
	require.NoError(t, err)

	assert.Equal(t, "mara@example.com", p.Email)
	assert.Equal(t, RiskLevelLow, p.CurrentRiskLevel)
	assert.True(t, p.IsActive)
	assert.True(t, p.TotalDeposits.IsZero())
	assert.True(t, p.TotalWithdrawals.IsZero())
	assert.Zero(t, p.SessionCount)
	assert.Nil(t, p.LastActivity)
}

func TestNewProfile_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		email string
		pname string
	}{
		{"missing at sign", "not-an-email", "Mara"},
		{"blank name", "mara@example.com", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProfile(tt.email, tt.pname)
			assert.Error(t, err)
		})
	}
}

func TestProfile_NetBalance(t *testing.T) {
	p, err := NewProfile("mara@example.com", "Mara")
	require.NoError(t, err)

	p.TotalDeposits = decimal.NewFromInt(5000)
	p.TotalWithdrawals = decimal.NewFromInt(1200)

	assert.True(t, p.NetBalance().Equal(decimal.NewFromInt(3800)))
}

func TestProfile_RecordActivity(t *testing.T) {
	p, err := NewProfile("mara@example.com", "Mara")
	require.NoError(t, err)

	at := time.Date(2025, 3, 14, 22, 0, 0, 0, time.UTC)
	p.RecordActivity(at)
	p.RecordActivity(at.Add(time.Hour))

	assert.Equal(t, 2, p.SessionCount)
	require.NotNil(t, p.LastActivity)
	assert.Equal(t, at.Add(time.Hour), *p.LastActivity)
	assert.Equal(t, at.Add(time.Hour), p.UpdatedAt)
}

func TestRiskLevel_Ordering(t *testing.T) {
	assert.True(t, RiskLevelCritical.AtLeast(RiskLevelHigh))
	assert.True(t, RiskLevelHigh.AtLeast(RiskLevelHigh))
	assert.False(t, RiskLevelMedium.AtLeast(RiskLevelHigh))
}

func TestRiskLevel_ParseRoundTrip(t *testing.T) {
	for _, level := range AllRiskLevels() {
		parsed, ok := ParseRiskLevel(level.String())
		require.True(t, ok, level.String())
		assert.Equal(t, level, parsed)
	}

	_, ok := ParseRiskLevel("SEVERE")
	assert.False(t, ok)
}

func TestRiskLevel_JSON(t *testing.T) {
	data, err := json.Marshal(RiskLevelHigh)
	require.NoError(t, err)
	assert.JSONEq(t, `"HIGH"`, string(data))

	var level RiskLevel
	require.NoError(t, json.Unmarshal([]byte(`"CRITICAL"`), &level))
	assert.Equal(t, RiskLevelCritical, level)

	assert.Error(t, json.Unmarshal([]byte(`"SEVERE"`), &level))
}
