package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/safeplay/player-protection-backend/internal/infrastructure/config"
)

const migrationsDir = "migrations"

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version, create")
		name   = flag.String("name", "", "Migration name (for create action)")
		steps  = flag.Int("steps", 0, "Number of migrations to run (0 = all)")
	)
	flag.Parse()

	if *action == "create" {
		if *name == "" {
			slog.Error("migration name is required for create action")
			os.Exit(1)
		}
		if err := create(*name); err != nil {
			slog.Error("creating migration failed", "error", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	m, err := newMigrator(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to initialize migrator", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	switch *action {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	case "version":
		var version uint
		var dirty bool
		version, dirty, err = m.Version()
		if err == nil || errors.Is(err, migrate.ErrNilVersion) {
			fmt.Printf("version: %d dirty: %v\n", version, dirty)
			return
		}
	default:
		slog.Error("unknown action", "action", *action)
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations completed", "action", *action)
}

func newMigrator(databaseURL string) (*migrate.Migrate, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating migrate driver: %w", err)
	}

	return migrate.NewWithDatabaseInstance("file://"+migrationsDir, "pgx5", driver)
}

func create(name string) error {
	if err := os.MkdirAll(migrationsDir, 0755); err != nil {
		return fmt.Errorf("creating migrations directory: %w", err)
	}

	timestamp := time.Now().Format("20060102150405")
	for _, direction := range []string{"up", "down"} {
		filename := fmt.Sprintf("%s_%s.%s.sql", timestamp, name, direction)
		path := filepath.Join(migrationsDir, filename)
		content := fmt.Sprintf("-- Migration: %s (%s)\n\n", name, direction)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("creating migration file: %w", err)
		}
		slog.Info("created migration", "file", path)
	}
	return nil
}
