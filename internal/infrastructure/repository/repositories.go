package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Repositories holds all repository instances
type Repositories struct {
	db *sql.DB

	Users         *UserRepository
	Sessions      *SessionRepository
	Assessments   *AssessmentRepository
	Interventions *InterventionRepository
}

// NewRepositories creates a new repository collection
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	// Convert pgxpool to sql.DB for repositories that require it
	db := stdlib.OpenDB(*pool.Config().ConnConfig)

	return &Repositories{
		db:            db,
		Users:         NewUserRepository(db),
		Sessions:      NewSessionRepository(db),
		Assessments:   NewAssessmentRepository(db),
		Interventions: NewInterventionRepository(db),
	}
}

// InTx runs fn against stores bound to a single database transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *Repositories) InTx(ctx context.Context, fn func(tx *Repositories) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	bound := &Repositories{
		Users:         NewUserRepositoryWithTx(tx),
		Sessions:      NewSessionRepositoryWithTx(tx),
		Assessments:   NewAssessmentRepositoryWithTx(tx),
		Interventions: NewInterventionRepositoryWithTx(tx),
	}
	if err := fn(bound); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
