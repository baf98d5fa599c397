package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/safeplay/player-protection-backend/internal/domain/errors"
	"github.com/safeplay/player-protection-backend/internal/domain/session"
)

// SessionRepository implements the session store over PostgreSQL.
type SessionRepository struct {
	db querier
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func NewSessionRepositoryWithTx(tx *sql.Tx) *SessionRepository {
	return &SessionRepository{db: tx}
}

const sessionColumns = `
	id, user_id, session_start, session_end, duration_minutes,
	total_bet_amount, total_win_amount, net_result, bet_count, max_bet_amount,
	game_type, platform, is_high_frequency, has_loss_chasing,
	risk_indicators, created_at`

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	indicators, err := marshalIndicators(s.RiskIndicators)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO gambling_sessions (` + sessionColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.SessionStart, s.SessionEnd, s.DurationMinutes,
		s.TotalBetAmount, s.TotalWinAmount, s.NetResult, s.BetCount, s.MaxBetAmount,
		s.GameType, s.Platform, s.IsHighFrequency, s.HasLossChasing,
		indicators, s.CreatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return errors.ErrUserNotFound
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetByID loads a session.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM gambling_sessions WHERE id = $1`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrSessionNotFound
	}
	return s, err
}

// Update persists the session, including the close-time fields.
func (r *SessionRepository) Update(ctx context.Context, s *session.Session) error {
	indicators, err := marshalIndicators(s.RiskIndicators)
	if err != nil {
		return err
	}

	query := `
		UPDATE gambling_sessions SET
			session_end = $2, duration_minutes = $3,
			total_bet_amount = $4, total_win_amount = $5, net_result = $6,
			bet_count = $7, max_bet_amount = $8,
			is_high_frequency = $9, has_loss_chasing = $10, risk_indicators = $11
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		s.ID, s.SessionEnd, s.DurationMinutes,
		s.TotalBetAmount, s.TotalWinAmount, s.NetResult,
		s.BetCount, s.MaxBetAmount,
		s.IsHighFrequency, s.HasLossChasing, indicators,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrSessionNotFound
	}
	return nil
}

// GetByUser lists the user's sessions, newest first.
func (r *SessionRepository) GetByUser(ctx context.Context, userID uuid.UUID) ([]*session.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM gambling_sessions WHERE user_id = $1 ORDER BY session_start DESC`

	return r.list(ctx, query, userID)
}

// CountSessionsSince counts the user's sessions started at or after the
// given instant.
func (r *SessionRepository) CountSessionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM gambling_sessions
		WHERE user_id = $1 AND session_start >= $2`

	var n int
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

// HasSignificantLossSince reports whether the user closed any session at or
// after the given instant with a net result below the significant-loss
// threshold.
func (r *SessionRepository) HasSignificantLossSince(ctx context.Context, userID uuid.UUID, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM gambling_sessions
			WHERE user_id = $1 AND session_end >= $2 AND net_result < $3
		)`

	var found bool
	err := r.db.QueryRowContext(ctx, query, userID, since, session.SignificantLossThreshold).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("checking recent losses: %w", err)
	}
	return found, nil
}

// GetSessionStatistics aggregates the user's closed sessions. A user with no
// closed sessions yields the zero value.
func (r *SessionRepository) GetSessionStatistics(ctx context.Context, userID uuid.UUID) (session.Statistics, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(AVG(duration_minutes), 0),
		       COALESCE(SUM(total_bet_amount), 0)
		FROM gambling_sessions
		WHERE user_id = $1 AND session_end IS NOT NULL`

	var stats session.Statistics
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&stats.TotalSessions, &stats.AvgDurationMinutes, &stats.TotalBetAmount,
	)
	if err != nil {
		return session.Statistics{}, fmt.Errorf("aggregating sessions: %w", err)
	}
	return stats, nil
}

func (r *SessionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*session.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func marshalIndicators(ind *session.RiskIndicators) (interface{}, error) {
	if ind == nil {
		return nil, nil
	}
	data, err := json.Marshal(ind)
	if err != nil {
		return nil, fmt.Errorf("marshaling risk indicators: %w", err)
	}
	return data, nil
}

func scanSession(row rowScanner) (*session.Session, error) {
	var s session.Session
	var sessionEnd sql.NullTime
	var duration sql.NullInt64
	var highFrequency, lossChasing sql.NullBool
	var indicators []byte

	err := row.Scan(
		&s.ID, &s.UserID, &s.SessionStart, &sessionEnd, &duration,
		&s.TotalBetAmount, &s.TotalWinAmount, &s.NetResult, &s.BetCount, &s.MaxBetAmount,
		&s.GameType, &s.Platform, &highFrequency, &lossChasing,
		&indicators, &s.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	if sessionEnd.Valid {
		s.SessionEnd = &sessionEnd.Time
	}
	if duration.Valid {
		s.DurationMinutes = &duration.Int64
	}
	if highFrequency.Valid {
		s.IsHighFrequency = &highFrequency.Bool
	}
	if lossChasing.Valid {
		s.HasLossChasing = &lossChasing.Bool
	}
	if len(indicators) > 0 {
		var ind session.RiskIndicators
		if err := json.Unmarshal(indicators, &ind); err != nil {
			return nil, fmt.Errorf("unmarshaling risk indicators: %w", err)
		}
		s.RiskIndicators = &ind
	}
	return &s, nil
}
