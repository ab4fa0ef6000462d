// Package token keeps the session credential. It is persisted to a small
// key=value file under the "token" key, shared between processes: a logout
// in one process is picked up by every other process watching the file.
package token

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/petwalk/petwalk"
)

// Key is the session file key holding the credential.
const Key = "token"

// DefaultRedirect is where the user is sent after the token is cleared.
const DefaultRedirect = "/about"

// Reasons passed to Clear.
const (
	ReasonLogout       = "logout"
	ReasonUnauthorized = "unauthorized"
	ReasonExternal     = "external"
	ReasonExpired      = "expired"
)

// ChangeKind distinguishes Set from Clear notifications.
type ChangeKind int

const (
	ChangeSet ChangeKind = iota
	ChangeCleared
)

func (k ChangeKind) String() string {
	if k == ChangeSet {
		return "set"
	}
	return "cleared"
}

// Change is delivered to subscribers.
type Change struct {
	Kind   ChangeKind
	Token  string
	Reason string
}

// Claims is the unverified subset of the JWT payload the client uses.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the claims carry an expiry before now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Service is the token store seen by other modules.
type Service interface {
	// Token returns the current credential, or "" when none is stored or
	// the stored one has expired.
	Token() string
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context, reason string) error
	Claims() (Claims, error)
	Subscribe(fn func(Change)) (unsubscribe func())
}

// TokenCleared is the payload of the token.cleared event.
type TokenCleared struct {
	Reason   string `json:"reason"`
	Redirect string `json:"redirect"`
}

// Redirect is the payload of the navigation.redirect event.
type Redirect struct {
	Location string `json:"location"`
	Reason   string `json:"reason"`
}

// Store implements Service on top of the session file.
type Store struct {
	file     sessionFile
	logger   petwalk.Logger
	subject  petwalk.Subject
	redirect string
	now      func() time.Time

	mu     sync.RWMutex
	token  string
	subs   map[uint64]func(Change)
	nextID uint64
}

var _ Service = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger petwalk.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSubject sets where token and redirect events are emitted.
func WithSubject(subject petwalk.Subject) Option {
	return func(s *Store) { s.subject = subject }
}

func WithRedirect(location string) Option {
	return func(s *Store) {
		if location != "" {
			s.redirect = location
		}
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store backed by path. Call Load to read the
// persisted credential.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		file:     sessionFile{path: path},
		logger:   petwalk.NopLogger{},
		redirect: DefaultRedirect,
		now:      time.Now,
		subs:     make(map[uint64]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the session file path.
func (s *Store) Path() string {
	return s.file.path
}

// Load reads the credential from the session file without notifying
// subscribers.
func (s *Store) Load() error {
	values, err := s.file.read()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.token = values[Key]
	s.mu.Unlock()
	return nil
}

func (s *Store) Token() string {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()
	if tok == "" {
		return ""
	}
	if claims, err := parseClaims(tok); err == nil && claims.Expired(s.now()) {
		return ""
	}
	return tok
}

// Claims decodes the stored token without verifying its signature.
func (s *Store) Claims() (Claims, error) {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()
	if tok == "" {
		return Claims{}, ErrNoToken
	}
	claims, err := parseClaims(tok)
	if err != nil {
		return Claims{}, err
	}
	if claims.Expired(s.now()) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

// Set persists token and notifies subscribers. An empty token is
// equivalent to Clear with ReasonLogout.
func (s *Store) Set(ctx context.Context, token string) error {
	if token == "" {
		return s.Clear(ctx, ReasonLogout)
	}
	if err := s.file.update(func(v map[string]string) { v[Key] = token }); err != nil {
		return err
	}
	if !s.swap(token) {
		return nil
	}

	s.logger.Info("Session token stored", "path", s.file.path)
	s.notify(Change{Kind: ChangeSet, Token: token})
	petwalk.Emit(ctx, s.subject, s.logger, "petwalk.token", petwalk.EventTypeTokenSet, nil)
	return nil
}

// Clear removes the credential from the session file, notifies
// subscribers and emits the redirect.
func (s *Store) Clear(ctx context.Context, reason string) error {
	err := s.file.update(func(v map[string]string) { delete(v, Key) })
	if err != nil {
		// Still drop the in-memory copy: the session is gone either way.
		s.logger.Error("Failed to remove token from session file", "path", s.file.path, "error", err)
	}
	if s.swap("") {
		s.cleared(ctx, reason)
	}
	return err
}

// HandleUnauthorized clears the session after the backend rejected it.
// It implements httpclient.UnauthorizedHandler.
func (s *Store) HandleUnauthorized(ctx context.Context, req *http.Request, redirect string) {
	if redirect != "" {
		s.mu.Lock()
		s.redirect = redirect
		s.mu.Unlock()
	}
	s.logger.Info("Clearing session after 401", "path", req.URL.Path)
	_ = s.Clear(ctx, ReasonUnauthorized)
}

// Subscribe registers fn for Set and Clear notifications. Subscribers are
// called synchronously, in subscription order, outside the store lock.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// reload re-reads the file after an external change.
func (s *Store) reload(ctx context.Context) error {
	values, err := s.file.read()
	if err != nil {
		return err
	}
	tok := values[Key]
	if !s.swap(tok) {
		return nil
	}
	if tok == "" {
		s.logger.Info("Session token removed by another process")
		s.cleared(ctx, ReasonExternal)
		return nil
	}
	s.logger.Info("Session token replaced by another process")
	s.notify(Change{Kind: ChangeSet, Token: tok, Reason: ReasonExternal})
	petwalk.Emit(ctx, s.subject, s.logger, "petwalk.token", petwalk.EventTypeTokenSet, nil)
	return nil
}

func (s *Store) cleared(ctx context.Context, reason string) {
	s.mu.RLock()
	redirect := s.redirect
	s.mu.RUnlock()

	s.logger.Info("Session token cleared", "reason", reason, "redirect", redirect)
	s.notify(Change{Kind: ChangeCleared, Reason: reason})
	petwalk.Emit(ctx, s.subject, s.logger, "petwalk.token", petwalk.EventTypeTokenCleared,
		TokenCleared{Reason: reason, Redirect: redirect})
	petwalk.Emit(ctx, s.subject, s.logger, "petwalk.token", petwalk.EventTypeRedirect,
		Redirect{Location: redirect, Reason: reason})
}

// swap stores tok and reports whether it differs from the previous value.
func (s *Store) swap(tok string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == tok {
		return false
	}
	s.token = tok
	return true
}

func (s *Store) notify(change Change) {
	s.mu.RLock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}

func parseClaims(tok string) (Claims, error) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &rc); err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	claims := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		claims.ExpiresAt = rc.ExpiresAt.Time
	}
	return claims, nil
}
