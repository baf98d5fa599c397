package notify

import (
	"context"
	"log/slog"

	"github.com/safeplay/player-protection-backend/internal/domain/intervention"
)

// LogNotifier delivers interventions to the application log. It stands in
// for the real messaging channel (push, email) which lives outside this
// service.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Deliver(ctx context.Context, i *intervention.Intervention) error {
	n.logger.InfoContext(ctx, "intervention delivered",
		"intervention_id", i.ID,
		"user_id", i.UserID,
		"type", i.Type.String(),
		"priority", i.Priority,
		"title", i.Title,
	)
	return nil
}
