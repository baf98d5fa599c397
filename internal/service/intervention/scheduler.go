package intervention

import (
	"context"

	"github.com/safeplay/player-protection-backend/internal/domain/errors"
	"github.com/safeplay/player-protection-backend/internal/domain/intervention"
)

// SweepResult summarizes one scheduler pass.
type SweepResult struct {
	Due      int
	Executed int
	Skipped  int
	Failed   int
}

// Sweep executes every automatic intervention whose schedule has come. Each
// one is claimed through a compare-and-set at the store before execution, so
// overlapping sweeps never execute the same intervention twice; a lost claim
// is counted as skipped, not failed. Non-automatic due interventions are
// left for manual execution and only counted.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now()

	due, err := s.repo.FindDue(ctx, now)
	if err != nil {
		return SweepResult{}, errors.Wrap(err, "listing due interventions")
	}

	res := SweepResult{Due: len(due)}
	for _, i := range due {
		if !i.IsAutomatic {
			continue
		}
		if _, err := s.Execute(ctx, i.ID, intervention.SystemAutoActor); err != nil {
			if errors.IsCode(err, "CONCURRENT_UPDATE") || errors.IsCode(err, "INVALID_TRANSITION") {
				res.Skipped++
				continue
			}
			res.Failed++
			s.logger.ErrorContext(ctx, "sweep execution failed",
				"intervention_id", i.ID, "error", err)
			continue
		}
		res.Executed++
	}

	if res.Executed > 0 || res.Failed > 0 {
		s.logger.InfoContext(ctx, "intervention sweep finished",
			"due", res.Due, "executed", res.Executed, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res, nil
}
