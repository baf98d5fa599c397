package intervention

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/safeplay/player-protection-backend/internal/domain/intervention"
	"github.com/safeplay/player-protection-backend/internal/domain/user"
)

// UserRepository resolves player profiles.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.Profile, error)
}

// Repository is the intervention store surface.
type Repository interface {
	Save(ctx context.Context, i *intervention.Intervention) error
	GetByID(ctx context.Context, id uuid.UUID) (*intervention.Intervention, error)
	Update(ctx context.Context, i *intervention.Intervention) error

	GetByUser(ctx context.Context, userID uuid.UUID) ([]*intervention.Intervention, error)
	FindPendingByUser(ctx context.Context, userID uuid.UUID) ([]*intervention.Intervention, error)
	HasPending(ctx context.Context, userID uuid.UUID) (bool, error)

	// FindDue lists non-terminal interventions scheduled at or before now.
	FindDue(ctx context.Context, now time.Time) ([]*intervention.Intervention, error)
	FindExpired(ctx context.Context, now time.Time) ([]*intervention.Intervention, error)
	FindHighPriority(ctx context.Context, minPriority int) ([]*intervention.Intervention, error)

	// ClaimForExecution transitions the intervention to EXECUTED with the
	// given actor only if it is still claimable, returning the claimed row.
	// A lost race yields ErrConcurrentUpdate.
	ClaimForExecution(ctx context.Context, id uuid.UUID, executedBy string, at time.Time) (*intervention.Intervention, error)
}

// Notifier delivers an executed intervention to the user-facing channel.
type Notifier interface {
	Deliver(ctx context.Context, i *intervention.Intervention) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}
