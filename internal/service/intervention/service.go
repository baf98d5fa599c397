package intervention

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/safeplay/player-protection-backend/internal/domain/errors"
	"github.com/safeplay/player-protection-backend/internal/domain/intervention"
	"github.com/safeplay/player-protection-backend/internal/domain/user"
)

// AutomaticCreator is the actor recorded on interventions the engine creates
// on its own after a risk assessment.
const AutomaticCreator = "SYSTEM"

// Service manages the intervention lifecycle from creation to evaluation.
type Service struct {
	repo     Repository
	users    UserRepository
	notifier Notifier
	clock    Clock
	logger   *slog.Logger
}

func NewService(repo Repository, users UserRepository, notifier Notifier, clock Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		users:    users,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

// Create records a manually authored intervention for an existing user.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, kind intervention.Type, spec intervention.CreateSpec) (*intervention.Intervention, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "loading user")
	}

	i, err := intervention.NewIntervention(userID, kind, spec)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_INTERVENTION", err.Error())
	}
	if err := s.repo.Save(ctx, i); err != nil {
		return nil, errors.Wrap(err, "saving intervention")
	}
	return i, nil
}

// CreateAutomatic creates the policy-mandated intervention for a risk level.
// A user with interventions still pending is not piled onto again.
func (s *Service) CreateAutomatic(ctx context.Context, userID uuid.UUID, level user.RiskLevel) error {
	pending, err := s.repo.HasPending(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "checking pending interventions")
	}
	if pending {
		s.logger.DebugContext(ctx, "skipping automatic intervention, one already pending",
			"user_id", userID, "risk_level", level.String())
		return nil
	}

	d := Decide(level)
	i, err := intervention.NewIntervention(userID, d.Type, intervention.CreateSpec{
		Title:       d.Title,
		Description: d.Description,
		Message:     d.Message,
		Priority:    d.Priority,
		IsAutomatic: true,
		CreatedBy:   AutomaticCreator,
	})
	if err != nil {
		return errors.Wrap(err, "building automatic intervention")
	}
	if err := s.repo.Save(ctx, i); err != nil {
		return errors.Wrap(err, "saving automatic intervention")
	}

	s.logger.InfoContext(ctx, "automatic intervention created",
		"user_id", userID, "risk_level", level.String(), "type", d.Type.String(), "priority", d.Priority)
	return nil
}

// Execute claims and executes an intervention on behalf of the given actor,
// then delivers the notification. Losing the claim race yields
// ErrConcurrentUpdate; a terminal intervention yields ErrInvalidTransition.
func (s *Service) Execute(ctx context.Context, id uuid.UUID, executedBy string) (*intervention.Intervention, error) {
	claimed, err := s.repo.ClaimForExecution(ctx, id, executedBy, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.Deliver(ctx, claimed); err != nil {
			// Execution stands even when delivery fails.
			s.logger.WarnContext(ctx, "intervention notification failed",
				"intervention_id", claimed.ID, "error", err)
		}
	}
	return claimed, nil
}

// Cancel abandons a pending or scheduled intervention.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*intervention.Intervention, error) {
	i, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := i.Cancel(reason); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, i); err != nil {
		return nil, errors.Wrap(err, "saving cancelled intervention")
	}
	return i, nil
}

// Evaluate records the user's response and an effectiveness score for an
// executed intervention.
func (s *Service) Evaluate(ctx context.Context, id uuid.UUID, effectivenessScore int, userResponse string) (*intervention.Intervention, error) {
	i, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := i.Evaluate(effectivenessScore, userResponse); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, i); err != nil {
		return nil, errors.Wrap(err, "saving evaluation")
	}
	return i, nil
}

// Get loads a single intervention.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*intervention.Intervention, error) {
	return s.repo.GetByID(ctx, id)
}

// HasPendingInterventions reports whether the user has any intervention
// still awaiting execution.
func (s *Service) HasPendingInterventions(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.repo.HasPending(ctx, userID)
}

// ByUser lists the user's interventions, newest first.
func (s *Service) ByUser(ctx context.Context, userID uuid.UUID) ([]*intervention.Intervention, error) {
	return s.repo.GetByUser(ctx, userID)
}

// PendingByUser lists the user's interventions awaiting execution.
func (s *Service) PendingByUser(ctx context.Context, userID uuid.UUID) ([]*intervention.Intervention, error) {
	return s.repo.FindPendingByUser(ctx, userID)
}

// Due lists interventions whose schedule has come, automatic or not.
func (s *Service) Due(ctx context.Context) ([]*intervention.Intervention, error) {
	return s.repo.FindDue(ctx, s.clock.Now())
}

// Expired lists non-terminal interventions past their expiry. The stored
// status is untouched; expiry is a read-time property.
func (s *Service) Expired(ctx context.Context) ([]*intervention.Intervention, error) {
	return s.repo.FindExpired(ctx, s.clock.Now())
}

// HighPriority lists interventions at or above the given priority.
func (s *Service) HighPriority(ctx context.Context, minPriority int) ([]*intervention.Intervention, error) {
	return s.repo.FindHighPriority(ctx, minPriority)
}
