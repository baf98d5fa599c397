package behavior

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/safeplay/player-protection-backend/internal/domain/session"
	"github.com/safeplay/player-protection-backend/internal/domain/user"
)

// SessionRepository is the profile-store surface the behavior service needs.
type SessionRepository interface {
	Create(ctx context.Context, s *session.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*session.Session, error)
	Update(ctx context.Context, s *session.Session) error

	// CountSessionsSince counts the user's sessions started at or after the
	// given instant.
	CountSessionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)

	// HasSignificantLossSince reports whether any of the user's sessions
	// ending at or after the given instant closed with a net result below
	// the significant-loss threshold.
	HasSignificantLossSince(ctx context.Context, userID uuid.UUID, since time.Time) (bool, error)
}

// UserRepository resolves and updates player profiles.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.Profile, error)
	Update(ctx context.Context, p *user.Profile) error
}

// Transactor runs a function against session and user stores bound to one
// atomic unit of work. The work commits when the function returns nil and
// rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(sessions SessionRepository, users UserRepository) error) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}
