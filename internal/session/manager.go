package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Authenticator performs the backend login call.
// The analytics client implements this interface.
type Authenticator interface {
	// Login exchanges credentials for a fresh session.
	Login(ctx context.Context, username, password string) (Session, error)
}

// CredentialFunc supplies login credentials on demand. Implementations
// read the environment or prompt the user; the Manager never stores a
// password.
type CredentialFunc func(ctx context.Context) (username, password string, err error)

// Manager owns the session lifecycle: bootstrap once, reuse the persisted
// session for every query, and refresh on rejection.
//
// Design decision: all refreshes go through one mutex, and a refresh that
// finds the stale session already replaced returns the cached one instead
// of logging in again. Concurrent queries that hit an expired session
// therefore collapse into a single login, which matters because backends
// commonly invalidate all other sessions for an account on a new login.
type Manager struct {
	// store persists the session across runs. May be nil in tests.
	store *Store

	// auth performs the login call.
	auth Authenticator

	// creds supplies credentials when a login is needed.
	creds CredentialFunc

	// logger for structured logging.
	logger *slog.Logger

	// mu serializes session replacement.
	mu sync.Mutex

	// current is the cached in-memory session.
	current Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCredentials sets the credential source used for logins.
func WithCredentials(creds CredentialFunc) ManagerOption {
	return func(m *Manager) {
		m.creds = creds
	}
}

// WithManagerLogger sets a custom logger for the manager.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager. The store may be nil to keep the
// session in memory only.
func NewManager(store *Store, auth Authenticator, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		auth:   auth,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns a valid session, loading the persisted one when
// possible and logging in only when nothing usable exists. Queries call
// this once per run; no per-query logins happen.
func (m *Manager) Current(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if m.current.Valid(now) {
		return m.current, nil
	}

	if m.store != nil {
		s, err := m.store.Load()
		switch {
		case err == nil && s.Valid(now):
			m.logger.Debug("session loaded from disk",
				"fingerprint", s.Fingerprint(),
				"expires_at", s.ExpiresAt,
			)
			m.current = s
			return s, nil
		case err == nil:
			m.logger.Debug("stored session expired", "fingerprint", s.Fingerprint())
		case !errors.Is(err, ErrNoSession):
			m.logger.Warn("failed to load stored session", "error", err)
		}
	}

	return m.loginLocked(ctx)
}

// Refresh replaces a session the backend rejected. When another caller
// already replaced the same stale session, the fresh one is returned
// without a second login.
func (m *Manager) Refresh(ctx context.Context, stale Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Valid(time.Now()) && m.current.Token != stale.Token {
		m.logger.Debug("session already refreshed by another caller",
			"fingerprint", m.current.Fingerprint(),
		)
		return m.current, nil
	}

	m.logger.Info("refreshing rejected session", "fingerprint", stale.Fingerprint())
	m.clearLocked()
	return m.loginLocked(ctx)
}

// Login forces a fresh login, discarding any cached or stored session.
// Used by the login command.
func (m *Manager) Login(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearLocked()
	return m.loginLocked(ctx)
}

// Invalidate discards the cached and persisted session. The next
// acquisition will bootstrap a new one.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

// clearLocked drops the in-memory session and the persisted file.
// Callers must hold mu.
func (m *Manager) clearLocked() {
	m.current = Session{}
	if m.store != nil {
		if err := m.store.Clear(); err != nil {
			m.logger.Warn("failed to clear stored session", "error", err)
		}
	}
}

// loginLocked performs the login call and persists the result.
// Callers must hold mu.
func (m *Manager) loginLocked(ctx context.Context) (Session, error) {
	if m.creds == nil {
		return Session{}, ErrNoCredentials
	}
	username, password, err := m.creds(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("obtain credentials: %w", err)
	}
	if username == "" || password == "" {
		return Session{}, ErrNoCredentials
	}

	s, err := m.auth.Login(ctx, username, password)
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}

	m.current = s
	if m.store != nil {
		if err := m.store.Save(s); err != nil {
			// A failed write costs one extra login next run, nothing more.
			m.logger.Warn("failed to persist session", "error", err)
		}
	}

	m.logger.Info("session established",
		"username", s.Username,
		"fingerprint", s.Fingerprint(),
		"expires_at", s.ExpiresAt,
	)
	return s, nil
}
