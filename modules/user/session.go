// Package user keeps the signed-in user's profile. The profile is loaded
// while a session token exists and the notifier is connected, and dropped
// as soon as either goes away.
package user

import (
	"context"
	"sync"
	"time"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/modules/api"
	"github.com/petwalk/petwalk/modules/token"
)

// Reasons carried by the user.cleared event.
const (
	ReasonSignedOut    = "signed_out"
	ReasonDisconnected = "disconnected"
)

// Service is the user session seen by the CLI and other modules.
type Service interface {
	// Current returns the loaded profile, if any.
	Current() (api.User, bool)
	// Refresh loads the profile now, regardless of the notifier.
	Refresh(ctx context.Context) (api.User, error)
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
}

// Loaded is the payload of the user.loaded event.
type Loaded struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Cleared is the payload of the user.cleared event.
type Cleared struct {
	Reason string `json:"reason"`
}

// Session implements Service.
type Session struct {
	backend api.Backend
	tokens  token.Service
	logger  petwalk.Logger
	subject petwalk.Subject
	timeout time.Duration
	eager   bool

	mu        sync.Mutex
	user      *api.User
	connected bool
	// gen invalidates in-flight fetches when the session changes
	gen uint64
	// closed stops new fetches; guarded by mu so wg.Add never races Close
	closed bool

	wg sync.WaitGroup
}

var _ Service = (*Session)(nil)

// NewSession creates a Session. With eager set, the profile is fetched on
// every token change without waiting for the notifier.
func NewSession(backend api.Backend, tokens token.Service, cfg *Config, logger petwalk.Logger, subject petwalk.Subject) *Session {
	if cfg == nil {
		cfg = &Config{FetchTimeout: 10 * time.Second}
	}
	if logger == nil {
		logger = petwalk.NopLogger{}
	}
	return &Session{
		backend: backend,
		tokens:  tokens,
		logger:  logger,
		subject: subject,
		timeout: cfg.FetchTimeout,
		eager:   cfg.IgnoreNotifier,
	}
}

func (s *Session) Current() (api.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return api.User{}, false
	}
	return *s.user, true
}

func (s *Session) Refresh(ctx context.Context) (api.User, error) {
	tok := s.tokens.Token()
	if tok == "" {
		return api.User{}, ErrNotSignedIn
	}
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	u, err := s.backend.Self(ctx, tok)
	if err != nil {
		return api.User{}, err
	}
	s.publish(ctx, gen, u)
	return u, nil
}

// Login exchanges credentials for a token and stores it; the profile
// follows through the usual token and notifier events.
func (s *Session) Login(ctx context.Context, username, password string) error {
	tok, err := s.backend.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return s.tokens.Set(ctx, tok)
}

func (s *Session) Logout(ctx context.Context) error {
	return s.tokens.Clear(ctx, token.ReasonLogout)
}

// TokenChanged reacts to a token store change.
func (s *Session) TokenChanged(ctx context.Context, c token.Change) {
	if c.Kind == token.ChangeCleared {
		s.clear(ctx, ReasonSignedOut)
		return
	}
	s.mu.Lock()
	ready := s.connected || s.eager
	s.mu.Unlock()
	if ready {
		s.fetch(ctx, c.Token)
	} else {
		// a profile for the previous token must not outlive it
		s.clear(ctx, ReasonSignedOut)
	}
}

// NotifierChanged reacts to the notifier connecting or dropping.
func (s *Session) NotifierChanged(ctx context.Context, connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()

	if !connected {
		if !s.eager {
			s.clear(ctx, ReasonDisconnected)
		}
		return
	}
	if tok := s.tokens.Token(); tok != "" {
		s.fetch(ctx, tok)
	}
}

// fetch loads the profile in the background; a newer session change
// discards the result.
func (s *Session) fetch(ctx context.Context, tok string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		u, err := s.backend.Self(fetchCtx, tok)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Failed to load user profile", "error", err)
			}
			return
		}
		s.publish(ctx, gen, u)
	}()
}

func (s *Session) publish(ctx context.Context, gen uint64, u api.User) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("Discarding stale user profile", "username", u.Username)
		return
	}
	s.user = &u
	s.mu.Unlock()

	s.logger.Info("User profile loaded", "username", u.Username)
	petwalk.Emit(ctx, s.subject, s.logger, "petwalk.user", petwalk.EventTypeUserLoaded, Loaded{ID: u.ID, Username: u.Username})
}

func (s *Session) clear(ctx context.Context, reason string) {
	s.mu.Lock()
	s.gen++
	had := s.user != nil
	s.user = nil
	s.mu.Unlock()

	if had {
		s.logger.Info("User profile cleared", "reason", reason)
		petwalk.Emit(ctx, s.subject, s.logger, "petwalk.user", petwalk.EventTypeUserCleared, Cleared{Reason: reason})
	}
}

// Wait blocks until background fetches finish.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close refuses further background fetches and waits for running ones.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
