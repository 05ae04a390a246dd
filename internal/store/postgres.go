// Package store provides session storage backends for Review Bridge.
//
// This file implements the PostgreSQL-backed session store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/obenan/reviewbridge/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions in a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.PostgresDSN != "")

	if cfg.PostgresDSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

const postgresSelectSession = `SELECT user_id, state, is_active, selected_locations, selected_sources,
	last_processing_time, last_interaction_time, messages, created_at, updated_at
	FROM sessions WHERE user_id = $1`

// LoadOrCreateSession returns the stored session, creating a default one if
// absent.
func (s *PostgresStore) LoadOrCreateSession(userID string) (*models.Session, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	sess, err := scanSession(s.db.QueryRow(postgresSelectSession, userID))
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		slog.Error("PostgresStore LoadOrCreateSession query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to load session for %s: %w", userID, err)
	}

	created := models.NewSession(userID)
	if err := s.SaveSession(*created); err != nil {
		return nil, err
	}
	slog.Debug("PostgresStore created session", "userID", userID)
	return created, nil
}

// GetSession returns the stored session without creating one.
func (s *PostgresStore) GetSession(userID string) (*models.Session, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	sess, err := scanSession(s.db.QueryRow(postgresSelectSession, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetSession query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to load session for %s: %w", userID, err)
	}
	return sess, nil
}

// SaveSession upserts the session row. Last write wins.
func (s *PostgresStore) SaveSession(sess models.Session) error {
	if sess.UserID == "" {
		return models.ErrEmptyUserID
	}
	locations, sources, messages, lastProcessing, err := sessionColumns(sess)
	if err != nil {
		return err
	}
	sess.UpdatedAt = time.Now()
	_, err = s.db.Exec(`INSERT INTO sessions
		(user_id, state, is_active, selected_locations, selected_sources,
		 last_processing_time, last_interaction_time, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			state = EXCLUDED.state,
			is_active = EXCLUDED.is_active,
			selected_locations = EXCLUDED.selected_locations,
			selected_sources = EXCLUDED.selected_sources,
			last_processing_time = EXCLUDED.last_processing_time,
			last_interaction_time = EXCLUDED.last_interaction_time,
			messages = EXCLUDED.messages,
			updated_at = EXCLUDED.updated_at`,
		sess.UserID, sess.State, sess.IsActive, locations, sources,
		lastProcessing, sess.LastInteractionTime, messages, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "userID", sess.UserID)
		return fmt.Errorf("failed to save session for %s: %w", sess.UserID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "userID", sess.UserID, "state", sess.State)
	return nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
