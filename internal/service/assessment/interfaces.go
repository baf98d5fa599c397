package assessment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/safeplay/player-protection-backend/internal/domain/assessment"
	"github.com/safeplay/player-protection-backend/internal/domain/session"
	"github.com/safeplay/player-protection-backend/internal/domain/user"
)

// UserRepository resolves and updates player profiles.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.Profile, error)
	Update(ctx context.Context, p *user.Profile) error
}

// Repository is the assessment store surface.
type Repository interface {
	Save(ctx context.Context, a *assessment.Assessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*assessment.Assessment, error)

	// GetLatestActiveByUser returns the newest active assessment for the
	// user, or a not-found error when none exists.
	GetLatestActiveByUser(ctx context.Context, userID uuid.UUID) (*assessment.Assessment, error)

	// DeactivateByUser clears the active flag on all of the user's
	// assessments except the given one. Idempotent.
	DeactivateByUser(ctx context.Context, userID uuid.UUID, exceptID uuid.UUID) error

	GetByUser(ctx context.Context, userID uuid.UUID) ([]*assessment.Assessment, error)
	FindActiveByLevel(ctx context.Context, level user.RiskLevel) ([]*assessment.Assessment, error)
	FindExpired(ctx context.Context, now time.Time) ([]*assessment.Assessment, error)
	FindNeedingRenewal(ctx context.Context, cutoff time.Time) ([]*assessment.Assessment, error)
}

// SessionStatsRepository aggregates session history for scoring.
type SessionStatsRepository interface {
	GetSessionStatistics(ctx context.Context, userID uuid.UUID) (session.Statistics, error)
}

// InterventionCreator triggers an automatic intervention for a freshly
// assessed risk level. Implemented by the intervention service.
type InterventionCreator interface {
	CreateAutomatic(ctx context.Context, userID uuid.UUID, level user.RiskLevel) error
}

// UserLocker serializes work per user key. WithLock runs fn while holding
// the lock and releases it afterwards regardless of the outcome.
type UserLocker interface {
	WithLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context) error) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}
