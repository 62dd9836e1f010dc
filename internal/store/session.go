package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Session is an authenticated handle on the application root container.
// It is created once at startup and passed to the components that need it.
type Session struct {
	store       Store
	appKey      string
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	rootID   string
	loggedIn time.Time
	lastUsed time.Time
}

// NewSession creates a session that re-authenticates after idleTimeout
// without use. A zero idleTimeout never expires.
func NewSession(s Store, appKey string, idleTimeout time.Duration) *Session {
	return &Session{store: s, appKey: appKey, idleTimeout: idleTimeout, now: time.Now}
}

// Login performs the handshake and records the root container.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.login(ctx)
}

func (s *Session) login(ctx context.Context) error {
	root, err := s.store.Login(ctx, s.appKey)
	if err != nil {
		return fmt.Errorf("store login: %w", err)
	}
	now := s.now()
	s.rootID = root
	s.loggedIn = now
	s.lastUsed = now
	return nil
}

// Refresh logs in again when the session never logged in or sat idle past
// the threshold, then marks it used.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rootID == "" || s.expired(s.now()) {
		if err := s.login(ctx); err != nil {
			return err
		}
	}
	s.lastUsed = s.now()
	return nil
}

// Expired reports whether the session would be renewed at now.
func (s *Session) Expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired(now)
}

func (s *Session) expired(now time.Time) bool {
	if s.idleTimeout <= 0 {
		return false
	}
	return now.Sub(s.lastUsed) > s.idleTimeout
}

// Touch marks the session used.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastUsed = s.now()
	s.mu.Unlock()
}

// Root returns the application root container id.
func (s *Session) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootID
}

// LoggedInAt returns the time of the last handshake.
func (s *Session) LoggedInAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}
