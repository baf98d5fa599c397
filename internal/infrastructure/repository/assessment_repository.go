package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/safeplay/player-protection-backend/internal/domain/assessment"
	"github.com/safeplay/player-protection-backend/internal/domain/errors"
	"github.com/safeplay/player-protection-backend/internal/domain/user"
)

// AssessmentRepository implements the assessment store over PostgreSQL.
type AssessmentRepository struct {
	db querier
}

func NewAssessmentRepository(db *sql.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

func NewAssessmentRepositoryWithTx(tx *sql.Tx) *AssessmentRepository {
	return &AssessmentRepository{db: tx}
}

const assessmentColumns = `
	id, user_id, risk_level, risk_score, indicators, reason, recommendations,
	is_automatic, assessed_by, assessment_date, valid_until, is_active, created_at`

// Save inserts a new assessment.
func (r *AssessmentRepository) Save(ctx context.Context, a *assessment.Assessment) error {
	indicators, err := json.Marshal(a.Indicators)
	if err != nil {
		return fmt.Errorf("marshaling indicators: %w", err)
	}

	query := `
		INSERT INTO risk_assessments (` + assessmentColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.RiskLevel.String(), a.RiskScore, indicators,
		a.Reason, a.Recommendations,
		a.IsAutomatic, a.AssessedBy, a.AssessmentDate, a.ValidUntil, a.IsActive,
		a.CreatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return errors.ErrUserNotFound
		}
		return fmt.Errorf("inserting assessment: %w", err)
	}
	return nil
}

// GetByID loads an assessment.
func (r *AssessmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*assessment.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM risk_assessments WHERE id = $1`

	a, err := scanAssessment(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrAssessmentNotFound
	}
	return a, err
}

// GetLatestActiveByUser returns the newest active assessment of the user.
func (r *AssessmentRepository) GetLatestActiveByUser(ctx context.Context, userID uuid.UUID) (*assessment.Assessment, error) {
	query := `
		SELECT ` + assessmentColumns + `
		FROM risk_assessments
		WHERE user_id = $1 AND is_active = true
		ORDER BY assessment_date DESC
		LIMIT 1`

	a, err := scanAssessment(r.db.QueryRowContext(ctx, query, userID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrAssessmentNotFound
	}
	return a, err
}

// DeactivateByUser clears the active flag on all of the user's assessments
// except the given one. Idempotent.
func (r *AssessmentRepository) DeactivateByUser(ctx context.Context, userID uuid.UUID, exceptID uuid.UUID) error {
	query := `
		UPDATE risk_assessments
		SET is_active = false
		WHERE user_id = $1 AND id <> $2 AND is_active = true`

	if _, err := r.db.ExecContext(ctx, query, userID, exceptID); err != nil {
		return fmt.Errorf("deactivating assessments: %w", err)
	}
	return nil
}

// GetByUser lists all of the user's assessments, newest first.
func (r *AssessmentRepository) GetByUser(ctx context.Context, userID uuid.UUID) ([]*assessment.Assessment, error) {
	query := `
		SELECT ` + assessmentColumns + `
		FROM risk_assessments
		WHERE user_id = $1
		ORDER BY assessment_date DESC`

	return r.list(ctx, query, userID)
}

// FindActiveByLevel lists active assessments at the given risk level.
func (r *AssessmentRepository) FindActiveByLevel(ctx context.Context, level user.RiskLevel) ([]*assessment.Assessment, error) {
	query := `
		SELECT ` + assessmentColumns + `
		FROM risk_assessments
		WHERE risk_level = $1 AND is_active = true
		ORDER BY assessment_date DESC`

	return r.list(ctx, query, level.String())
}

// FindExpired lists active assessments whose validity lapsed.
func (r *AssessmentRepository) FindExpired(ctx context.Context, now time.Time) ([]*assessment.Assessment, error) {
	query := `
		SELECT ` + assessmentColumns + `
		FROM risk_assessments
		WHERE is_active = true AND valid_until < $1
		ORDER BY valid_until`

	return r.list(ctx, query, now)
}

// FindNeedingRenewal lists active assessments expiring at or before cutoff.
func (r *AssessmentRepository) FindNeedingRenewal(ctx context.Context, cutoff time.Time) ([]*assessment.Assessment, error) {
	query := `
		SELECT ` + assessmentColumns + `
		FROM risk_assessments
		WHERE is_active = true AND valid_until <= $1
		ORDER BY valid_until`

	return r.list(ctx, query, cutoff)
}

func (r *AssessmentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*assessment.Assessment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assessments: %w", err)
	}
	defer rows.Close()

	var out []*assessment.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssessment(row rowScanner) (*assessment.Assessment, error) {
	var a assessment.Assessment
	var level string
	var indicators []byte

	err := row.Scan(
		&a.ID, &a.UserID, &level, &a.RiskScore, &indicators,
		&a.Reason, &a.Recommendations,
		&a.IsAutomatic, &a.AssessedBy, &a.AssessmentDate, &a.ValidUntil, &a.IsActive,
		&a.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning assessment: %w", err)
	}

	if parsed, ok := user.ParseRiskLevel(level); ok {
		a.RiskLevel = parsed
	}
	if len(indicators) > 0 {
		if err := json.Unmarshal(indicators, &a.Indicators); err != nil {
			return nil, fmt.Errorf("unmarshaling indicators: %w", err)
		}
	}
	return &a, nil
}
