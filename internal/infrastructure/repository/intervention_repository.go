package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/safeplay/player-protection-backend/internal/domain/errors"
	"github.com/safeplay/player-protection-backend/internal/domain/intervention"
)

// InterventionRepository implements the intervention store over PostgreSQL.
type InterventionRepository struct {
	db querier
}

func NewInterventionRepository(db *sql.DB) *InterventionRepository {
	return &InterventionRepository{db: db}
}

func NewInterventionRepositoryWithTx(tx *sql.Tx) *InterventionRepository {
	return &InterventionRepository{db: tx}
}

const interventionColumns = `
	id, user_id, intervention_type, title, description, message,
	scheduled_for, executed_at, expires_at, status, priority,
	is_automatic, created_by, executed_by,
	execution_notes, user_response, effectiveness_score, created_at`

// Save inserts a new intervention.
func (r *InterventionRepository) Save(ctx context.Context, i *intervention.Intervention) error {
	query := `
		INSERT INTO interventions (` + interventionColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.db.ExecContext(ctx, query,
		i.ID, i.UserID, i.Type.String(), i.Title, i.Description, i.Message,
		i.ScheduledFor, i.ExecutedAt, i.ExpiresAt, i.Status.String(), i.Priority,
		i.IsAutomatic, i.CreatedBy, nullableString(i.ExecutedBy),
		nullableString(i.ExecutionNotes), nullableString(i.UserResponse), i.EffectivenessScore, i.CreatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return errors.ErrUserNotFound
		}
		return fmt.Errorf("inserting intervention: %w", err)
	}
	return nil
}

// GetByID loads an intervention.
func (r *InterventionRepository) GetByID(ctx context.Context, id uuid.UUID) (*intervention.Intervention, error) {
	query := `SELECT ` + interventionColumns + ` FROM interventions WHERE id = $1`

	i, err := scanIntervention(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrInterventionNotFound
	}
	return i, err
}

// Update persists the mutable intervention fields.
func (r *InterventionRepository) Update(ctx context.Context, i *intervention.Intervention) error {
	query := `
		UPDATE interventions SET
			scheduled_for = $2, executed_at = $3, expires_at = $4,
			status = $5, priority = $6, executed_by = $7,
			execution_notes = $8, user_response = $9, effectiveness_score = $10
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		i.ID, i.ScheduledFor, i.ExecutedAt, i.ExpiresAt,
		i.Status.String(), i.Priority, nullableString(i.ExecutedBy),
		nullableString(i.ExecutionNotes), nullableString(i.UserResponse), i.EffectivenessScore,
	)
	if err != nil {
		return fmt.Errorf("updating intervention: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrInterventionNotFound
	}
	return nil
}

// ClaimForExecution atomically transitions a still-claimable intervention to
// EXECUTED. The status check inside the UPDATE is what makes concurrent
// sweeps safe: only one caller sees an affected row.
func (r *InterventionRepository) ClaimForExecution(ctx context.Context, id uuid.UUID, executedBy string, at time.Time) (*intervention.Intervention, error) {
	query := `
		UPDATE interventions
		SET status = 'EXECUTED', executed_at = $2, executed_by = $3
		WHERE id = $1 AND status IN ('PENDING', 'SCHEDULED')
		RETURNING ` + interventionColumns

	i, err := scanIntervention(r.db.QueryRowContext(ctx, query, id, at, executedBy))
	if stderrors.Is(err, sql.ErrNoRows) {
		// Either the row does not exist or it is no longer claimable. A row
		// that already sits in a terminal status is an invalid transition;
		// only a row that raced out from under us is a retryable conflict.
		existing, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if existing.IsTerminal() {
			return nil, errors.ErrInvalidTransition
		}
		return nil, errors.ErrConcurrentUpdate
	}
	return i, err
}

// GetByUser lists the user's interventions, newest first.
func (r *InterventionRepository) GetByUser(ctx context.Context, userID uuid.UUID) ([]*intervention.Intervention, error) {
	query := `
		SELECT ` + interventionColumns + `
		FROM interventions
		WHERE user_id = $1
		ORDER BY created_at DESC`

	return r.list(ctx, query, userID)
}

// FindPendingByUser lists the user's interventions awaiting execution.
func (r *InterventionRepository) FindPendingByUser(ctx context.Context, userID uuid.UUID) ([]*intervention.Intervention, error) {
	query := `
		SELECT ` + interventionColumns + `
		FROM interventions
		WHERE user_id = $1 AND status IN ('PENDING', 'SCHEDULED')
		ORDER BY priority DESC, created_at`

	return r.list(ctx, query, userID)
}

// HasPending reports whether the user has any intervention awaiting
// execution.
func (r *InterventionRepository) HasPending(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM interventions
			WHERE user_id = $1 AND status IN ('PENDING', 'SCHEDULED')
		)`

	var found bool
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&found); err != nil {
		return false, fmt.Errorf("checking pending interventions: %w", err)
	}
	return found, nil
}

// FindDue lists non-terminal interventions scheduled at or before now.
func (r *InterventionRepository) FindDue(ctx context.Context, now time.Time) ([]*intervention.Intervention, error) {
	query := `
		SELECT ` + interventionColumns + `
		FROM interventions
		WHERE status IN ('PENDING', 'SCHEDULED')
		  AND scheduled_for IS NOT NULL AND scheduled_for <= $1
		ORDER BY priority DESC, scheduled_for`

	return r.list(ctx, query, now)
}

// FindExpired lists non-terminal interventions past their expiry. The stored
// status is left alone; callers derive expiry at read time.
func (r *InterventionRepository) FindExpired(ctx context.Context, now time.Time) ([]*intervention.Intervention, error) {
	query := `
		SELECT ` + interventionColumns + `
		FROM interventions
		WHERE status IN ('PENDING', 'SCHEDULED')
		  AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at`

	return r.list(ctx, query, now)
}

// FindHighPriority lists interventions at or above the given priority.
func (r *InterventionRepository) FindHighPriority(ctx context.Context, minPriority int) ([]*intervention.Intervention, error) {
	query := `
		SELECT ` + interventionColumns + `
		FROM interventions
		WHERE priority >= $1 AND status IN ('PENDING', 'SCHEDULED')
		ORDER BY priority DESC, created_at`

	return r.list(ctx, query, minPriority)
}

func (r *InterventionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*intervention.Intervention, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing interventions: %w", err)
	}
	defer rows.Close()

	var out []*intervention.Intervention
	for rows.Next() {
		i, err := scanIntervention(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func scanIntervention(row rowScanner) (*intervention.Intervention, error) {
	var i intervention.Intervention
	var kind, status string
	var scheduledFor, executedAt, expiresAt sql.NullTime
	var executedBy, notes, response sql.NullString
	var effectiveness sql.NullInt64

	err := row.Scan(
		&i.ID, &i.UserID, &kind, &i.Title, &i.Description, &i.Message,
		&scheduledFor, &executedAt, &expiresAt, &status, &i.Priority,
		&i.IsAutomatic, &i.CreatedBy, &executedBy,
		&notes, &response, &effectiveness, &i.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning intervention: %w", err)
	}

	if parsed, ok := intervention.ParseType(kind); ok {
		i.Type = parsed
	}
	if parsed, ok := intervention.ParseStatus(status); ok {
		i.Status = parsed
	}
	if scheduledFor.Valid {
		i.ScheduledFor = &scheduledFor.Time
	}
	if executedAt.Valid {
		i.ExecutedAt = &executedAt.Time
	}
	if expiresAt.Valid {
		i.ExpiresAt = &expiresAt.Time
	}
	i.ExecutedBy = executedBy.String
	i.ExecutionNotes = notes.String
	i.UserResponse = response.String
	if effectiveness.Valid {
		score := int(effectiveness.Int64)
		i.EffectivenessScore = &score
	}
	return &i, nil
}
