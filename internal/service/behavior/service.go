package behavior

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safeplay/player-protection-backend/internal/domain/errors"
	"github.com/safeplay/player-protection-backend/internal/domain/session"
)

// Service drives the gambling-session lifecycle: open, accumulate bets and
// wins, close with behavioral analysis. The engine holds no state between
// calls; each operation loads what it needs and persists the result.
type Service struct {
	sessions SessionRepository
	users    UserRepository
	tx       Transactor
	analyzer *Analyzer
	clock    Clock
}

func NewService(sessions SessionRepository, users UserRepository, tx Transactor, clock Clock) *Service {
	return &Service{
		sessions: sessions,
		users:    users,
		tx:       tx,
		analyzer: NewAnalyzer(sessions, clock),
		clock:    clock,
	}
}

// StartSession opens a new session for an existing user.
func (s *Service) StartSession(ctx context.Context, userID uuid.UUID, start time.Time, gameType, platform string) (*session.Session, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "loading user")
	}

	sess, err := session.NewSession(userID, start, gameType, platform)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_SESSION", err.Error())
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "saving session")
	}
	return sess, nil
}

// AddBet accumulates a bet into an open session.
func (s *Service) AddBet(ctx context.Context, sessionID uuid.UUID, amount decimal.Decimal) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := sess.AddBet(amount); err != nil {
		return err
	}
	return s.sessions.Update(ctx, sess)
}

// AddWin accumulates a win into an open session.
func (s *Service) AddWin(ctx context.Context, sessionID uuid.UUID, amount decimal.Decimal) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := sess.AddWin(amount); err != nil {
		return err
	}
	return s.sessions.Update(ctx, sess)
}

// EndSession closes a session, derives its behavioral flags from the user's
// recent history and records the activity on the profile. The session close
// and the profile bump are persisted in one unit of work: a session never
// ends up closed without its flags or without the activity on record.
func (s *Service) EndSession(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	end := s.clock.Now()
	if err := sess.EndAt(end); err != nil {
		return nil, err
	}

	indicators, err := s.analyzer.Analyze(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := sess.ApplyRiskIndicators(indicators); err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(sessions SessionRepository, users UserRepository) error {
		if err := sessions.Update(ctx, sess); err != nil {
			return errors.Wrap(err, "saving closed session")
		}
		p, err := users.GetByID(ctx, sess.UserID)
		if err != nil {
			return errors.Wrap(err, "loading user")
		}
		p.RecordActivity(end)
		if err := users.Update(ctx, p); err != nil {
			return errors.Wrap(err, "updating user activity")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sess, nil
}
