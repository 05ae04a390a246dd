// Package store provides session storage backends for Review Bridge.
//
// This file implements the SQLite-backed session store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/obenan/reviewbridge/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database
// directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is
// a file path to the database file; the directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.SQLiteDSN != "")

	dsn := cfg.SQLiteDSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

const sqliteSelectSession = `SELECT user_id, state, is_active, selected_locations, selected_sources,
	last_processing_time, last_interaction_time, messages, created_at, updated_at
	FROM sessions WHERE user_id = ?`

// LoadOrCreateSession returns the stored session, creating a default one if
// absent.
func (s *SQLiteStore) LoadOrCreateSession(userID string) (*models.Session, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	sess, err := scanSession(s.db.QueryRow(sqliteSelectSession, userID))
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		slog.Error("SQLiteStore LoadOrCreateSession query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to load session for %s: %w", userID, err)
	}

	created := models.NewSession(userID)
	if err := s.SaveSession(*created); err != nil {
		return nil, err
	}
	slog.Debug("SQLiteStore created session", "userID", userID)
	return created, nil
}

// GetSession returns the stored session without creating one.
func (s *SQLiteStore) GetSession(userID string) (*models.Session, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	sess, err := scanSession(s.db.QueryRow(sqliteSelectSession, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to load session for %s: %w", userID, err)
	}
	return sess, nil
}

// SaveSession upserts the session row. Last write wins.
func (s *SQLiteStore) SaveSession(sess models.Session) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			is_active = excluded.is_active,
			selected_locations = excluded.selected_locations,
			selected_sources = excluded.selected_sources,
			last_processing_time = excluded.last_processing_time,
			last_interaction_time = excluded.last_interaction_time,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		sess.UserID, sess.State, sess.IsActive, locations, sources,
		lastProcessing, sess.LastInteractionTime, messages, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "userID", sess.UserID)
		return fmt.Errorf("failed to save session for %s: %w", sess.UserID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "userID", sess.UserID, "state", sess.State)
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
