// Package store provides session storage backends for Review Bridge.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backed stores for persistent deployments. All backends enforce
// uniqueness of the user identifier and last-write-wins saves.
package store

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/obenan/reviewbridge/internal/models"
)

// Store defines the narrow load/save contract the conversation engine
// depends on.
type Store interface {
	// LoadOrCreateSession returns the session for the user identifier,
	// creating one with defaults if absent.
	LoadOrCreateSession(userID string) (*models.Session, error)

	// GetSession returns the session for the user identifier, or
	// models.ErrSessionNotFound if it does not exist.
	GetSession(userID string) (*models.Session, error)

	// SaveSession persists the session. Saves are idempotent and
	// last-write-wins.
	SaveSession(s models.Session) error

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration for store construction.
type Opts struct {
	// PostgresDSN is the connection string for a PostgreSQL store.
	PostgresDSN string
	// SQLiteDSN is the file path for a SQLite store.
	SQLiteDSN string
}

// Option defines a configuration option for store construction.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.PostgresDSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.SQLiteDSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-style DSNs and "sqlite"
// for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a map-backed session store for tests and development.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

// NewInMemoryStore creates an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]models.Session)}
}

// LoadOrCreateSession returns the stored session or creates a default one.
func (s *InMemoryStore) LoadOrCreateSession(userID string) (*models.Session, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		copied := sess
		return &copied, nil
	}
	sess := models.NewSession(userID)
	s.sessions[userID] = *sess
	slog.Debug("InMemoryStore created session", "userID", userID)
	return sess, nil
}

// GetSession returns the stored session without creating one.
func (s *InMemoryStore) GetSession(userID string) (*models.Session, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	copied := sess
	return &copied, nil
}

// SaveSession stores the session, replacing any previous value.
func (s *InMemoryStore) SaveSession(sess models.Session) error {
	if sess.UserID == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.UserID] = sess
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
