package assessment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/safeplay/player-protection-backend/internal/domain/assessment"
	"github.com/safeplay/player-protection-backend/internal/domain/errors"
	"github.com/safeplay/player-protection-backend/internal/domain/user"
	"github.com/safeplay/player-protection-backend/internal/service/scoring"
)

// RenewalWindow is how far ahead of expiry an assessment is reported as
// needing renewal.
const RenewalWindow = 7 * 24 * time.Hour

// AnalyzeOptions tunes a single Analyze call. The zero value asks for a
// normal automatic analysis at the current time.
type AnalyzeOptions struct {
	// Force skips reuse of a still-valid assessment.
	Force bool
	// AnalysisDate overrides the assessment timestamp. Zero means now.
	AnalysisDate time.Time
	// AssessedBy names the actor. Empty means the system itself.
	AssessedBy string
}

// Service manages assessment validity: it reuses a still-valid assessment,
// produces a fresh one otherwise, and keeps at most one active per user.
type Service struct {
	users         UserRepository
	assessments   Repository
	stats         SessionStatsRepository
	interventions InterventionCreator
	locker        UserLocker
	clock         Clock
}

func NewService(users UserRepository, assessments Repository, stats SessionStatsRepository, interventions InterventionCreator, locker UserLocker, clock Clock) *Service {
	return &Service{
		users:         users,
		assessments:   assessments,
		stats:         stats,
		interventions: interventions,
		locker:        locker,
		clock:         clock,
	}
}

// Analyze returns the user's current risk assessment, running a fresh
// analysis only when the latest one expired or opts.Force is set. The second
// return reports whether a still-valid assessment was reused rather than
// freshly produced. Calls for the same user are serialized through the locker
// so concurrent analyses cannot leave two active assessments behind.
func (s *Service) Analyze(ctx context.Context, userID uuid.UUID, opts AnalyzeOptions) (*assessment.Assessment, bool, error) {
	var (
		result *assessment.Assessment
		reused bool
	)
	err := s.locker.WithLock(ctx, userID, func(ctx context.Context) error {
		a, r, err := s.analyze(ctx, userID, opts)
		if err != nil {
			return err
		}
		result, reused = a, r
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, reused, nil
}

func (s *Service) analyze(ctx context.Context, userID uuid.UUID, opts AnalyzeOptions) (*assessment.Assessment, bool, error) {
	p, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, false, errors.ErrUserNotFound
		}
		return nil, false, errors.Wrap(err, "loading user")
	}

	now := s.clock.Now()
	date := opts.AnalysisDate
	if date.IsZero() {
		date = now
	}

	if !opts.Force {
		latest, err := s.assessments.GetLatestActiveByUser(ctx, userID)
		if err != nil && !errors.IsNotFound(err) {
			return nil, false, errors.Wrap(err, "loading latest assessment")
		}
		if latest != nil && !latest.IsExpired(now) {
			return latest, true, nil
		}
	}

	stats, err := s.stats.GetSessionStatistics(ctx, userID)
	if err != nil {
		return nil, false, errors.Wrap(err, "loading session statistics")
	}

	snapshot := scoring.Aggregate(p, stats)
	scored := scoring.ScoreSnapshot(snapshot)

	assessedBy := opts.AssessedBy
	automatic := assessedBy == ""
	if automatic {
		assessedBy = assessment.SystemActor
	}

	a, err := assessment.NewAssessment(userID, scored.Level, scored.Score, snapshot, scored.Reason, scored.Recommendation, date, automatic, assessedBy)
	if err != nil {
		return nil, false, err
	}

	if err := s.assessments.Save(ctx, a); err != nil {
		return nil, false, errors.Wrap(err, "saving assessment")
	}
	if err := s.assessments.DeactivateByUser(ctx, userID, a.ID); err != nil {
		return nil, false, errors.Wrap(err, "superseding assessments")
	}

	previousLevel := p.CurrentRiskLevel
	if previousLevel != scored.Level {
		p.UpdateRiskLevel(scored.Level)
		if err := s.users.Update(ctx, p); err != nil {
			return nil, false, errors.Wrap(err, "updating user risk level")
		}
	}

	if s.interventions != nil && (previousLevel != scored.Level || scored.Level.AtLeast(user.RiskLevelHigh)) {
		if err := s.interventions.CreateAutomatic(ctx, userID, scored.Level); err != nil {
			return nil, false, errors.Wrap(err, "creating automatic intervention")
		}
	}

	return a, false, nil
}

// Current returns the user's latest active assessment without running an
// analysis.
func (s *Service) Current(ctx context.Context, userID uuid.UUID) (*assessment.Assessment, error) {
	a, err := s.assessments.GetLatestActiveByUser(ctx, userID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ErrAssessmentNotFound
		}
		return nil, err
	}
	return a, nil
}

// History lists all of the user's assessments, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]*assessment.Assessment, error) {
	return s.assessments.GetByUser(ctx, userID)
}

// ActiveByLevel lists active assessments at the given risk level.
func (s *Service) ActiveByLevel(ctx context.Context, level user.RiskLevel) ([]*assessment.Assessment, error) {
	return s.assessments.FindActiveByLevel(ctx, level)
}

// Supersede deactivates every assessment of the user except keepID.
// Idempotent; safe to repeat.
func (s *Service) Supersede(ctx context.Context, userID uuid.UUID, keepID uuid.UUID) error {
	return s.assessments.DeactivateByUser(ctx, userID, keepID)
}

// Expired lists active assessments whose validity lapsed. Advisory only,
// nothing is deactivated.
func (s *Service) Expired(ctx context.Context) ([]*assessment.Assessment, error) {
	return s.assessments.FindExpired(ctx, s.clock.Now())
}

// NeedingRenewal lists active assessments expiring within the renewal
// window.
func (s *Service) NeedingRenewal(ctx context.Context) ([]*assessment.Assessment, error) {
	return s.assessments.FindNeedingRenewal(ctx, s.clock.Now().Add(RenewalWindow))
}
