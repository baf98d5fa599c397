package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/safeplay/player-protection-backend/internal/domain/errors"
	"github.com/safeplay/player-protection-backend/internal/domain/user"
)

// UserRepository implements the user store over PostgreSQL.
type UserRepository struct {
	db querier
}

// querier is the subset of *sql.DB / *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func NewUserRepositoryWithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

// Create inserts a new user profile.
func (r *UserRepository) Create(ctx context.Context, p *user.Profile) error {
	query := `
		INSERT INTO user_profiles (
			id, email, name, current_risk_level,
			total_deposits, total_withdrawals,
			session_count, last_activity, is_active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Email, p.Name, p.CurrentRiskLevel.String(),
		p.TotalDeposits, p.TotalWithdrawals,
		p.SessionCount, p.LastActivity, p.IsActive,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return errors.NewConflictError("DUPLICATE_USER", "user already exists").WithCause(err)
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetByID loads a user profile.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.Profile, error) {
	query := `
		SELECT id, email, name, current_risk_level,
		       total_deposits, total_withdrawals,
		       session_count, last_activity, is_active,
		       created_at, updated_at
		FROM user_profiles
		WHERE id = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail loads a user profile by its unique email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.Profile, error) {
	query := `
		SELECT id, email, name, current_risk_level,
		       total_deposits, total_withdrawals,
		       session_count, last_activity, is_active,
		       created_at, updated_at
		FROM user_profiles
		WHERE email = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

// Update persists the mutable profile fields.
func (r *UserRepository) Update(ctx context.Context, p *user.Profile) error {
	query := `
		UPDATE user_profiles SET
			email = $2, name = $3, current_risk_level = $4,
			total_deposits = $5, total_withdrawals = $6,
			session_count = $7, last_activity = $8, is_active = $9,
			updated_at = $10
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		p.ID, p.Email, p.Name, p.CurrentRiskLevel.String(),
		p.TotalDeposits, p.TotalWithdrawals,
		p.SessionCount, p.LastActivity, p.IsActive,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrUserNotFound
	}
	return nil
}

// ListByRiskLevel lists active users at the given risk level.
func (r *UserRepository) ListByRiskLevel(ctx context.Context, level user.RiskLevel) ([]*user.Profile, error) {
	query := `
		SELECT id, email, name, current_risk_level,
		       total_deposits, total_withdrawals,
		       session_count, last_activity, is_active,
		       created_at, updated_at
		FROM user_profiles
		WHERE current_risk_level = $1 AND is_active = true
		ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, level.String())
	if err != nil {
		return nil, fmt.Errorf("listing users by risk level: %w", err)
	}
	defer rows.Close()

	var out []*user.Profile
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *UserRepository) scanOne(row *sql.Row) (*user.Profile, error) {
	p, err := r.scanRow(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrUserNotFound
	}
	return p, err
}

func (r *UserRepository) scanRow(row rowScanner) (*user.Profile, error) {
	var p user.Profile
	var level string
	var lastActivity sql.NullTime

	err := row.Scan(
		&p.ID, &p.Email, &p.Name, &level,
		&p.TotalDeposits, &p.TotalWithdrawals,
		&p.SessionCount, &lastActivity, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	if parsed, ok := user.ParseRiskLevel(level); ok {
		p.CurrentRiskLevel = parsed
	}
	if lastActivity.Valid {
		p.LastActivity = &lastActivity.Time
	}
	return &p, nil
}
