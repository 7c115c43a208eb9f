package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ems-console/internal/apperr"
	"github.com/iliyamo/ems-console/internal/model"
)

// State distinguishes a store still reading its persisted token from one
// that has settled, with or without an identity.
type State int

const (
	StateInitializing State = iota
	StateReady
)

// Authenticator is the part of the gateway the store signs in and out with.
type Authenticator interface {
	SignIn(ctx context.Context, req model.SignInRequest) (model.Envelope[model.SignInResult], error)
	SignOut(ctx context.Context) error
}

// Store holds the identity of one browser session.  It is the only writer
// of the persisted token: Login stores it, Logout and Invalidate remove it,
// and Init removes a token it cannot decode.
type Store struct {
	storage Storage
	auth    Authenticator
	log     *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	state    State
	identity *model.Identity
	token    string
	expires  time.Time

	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for expiry checks.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithLogger sets the logger; the default discards.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

// NewStore returns a store in StateInitializing.  Call Init before reading it.
func NewStore(storage Storage, auth Authenticator, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		auth:    auth,
		log:     zap.NewNop(),
		now:     time.Now,
		ready:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init restores the identity from the persisted token.  A missing,
// malformed or expired token leaves the store without identity and the
// persisted token removed.  Init always leaves the store ready, and only
// the first call has any effect.
func (s *Store) Init(ctx context.Context) error {
	var err error
	s.readyOnce.Do(func() {
		defer s.markReady()

		var token string
		token, err = s.storage.Get(ctx, TokenKey)
		if err != nil {
			s.log.Warn("read persisted token", zap.Error(err))
			return
		}
		if token == "" {
			return
		}
		id, exp, ok := decode(token, s.now())
		if !ok {
			s.log.Debug("discarding unusable persisted token")
			err = s.storage.Delete(ctx, TokenKey)
			return
		}
		s.mu.Lock()
		s.identity, s.token, s.expires = id, token, exp
		s.mu.Unlock()
	})
	return err
}

func (s *Store) markReady() {
	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()
	close(s.ready)
}

// Ready is closed once Init has finished.
func (s *Store) Ready() <-chan struct{} { return s.ready }

// Wait blocks until Init has finished or ctx is done.
func (s *Store) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the initialization state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Identity returns the current identity.  An identity whose token has
// expired is never returned.
func (s *Store) Identity() (model.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil || !s.expires.After(s.now()) {
		return model.Identity{}, false
	}
	return *s.identity, true
}

// IsAuthenticated reports whether an identity is present.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.Identity()
	return ok
}

// IsSuperAdmin reports whether the identity is a super admin.
func (s *Store) IsSuperAdmin() bool {
	id, ok := s.Identity()
	return ok && id.Role == model.RoleSuperAdmin
}

// Token returns the token backing the current identity, or "".
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Login signs in against the remote service.  Any failure, including a
// response without a token or with a token that cannot be decoded, is an
// *apperr.AuthenticationError and leaves the store unchanged.
func (s *Store) Login(ctx context.Context, email, password string) (model.Identity, error) {
	resp, err := s.auth.SignIn(ctx, model.SignInRequest{Email: email, Password: password})
	if err != nil {
		if apperr.IsUnauthorized(err) {
			return model.Identity{}, &apperr.AuthenticationError{Message: "invalid credentials"}
		}
		return model.Identity{}, &apperr.AuthenticationError{Message: "sign-in request failed", Err: err}
	}
	token := resp.Result.Token
	if token == "" {
		msg := resp.Message
		if msg == "" {
			msg = "login failed"
		}
		return model.Identity{}, &apperr.AuthenticationError{Message: msg}
	}
	id, exp, ok := decode(token, s.now())
	if !ok {
		return model.Identity{}, &apperr.AuthenticationError{Message: "invalid token received"}
	}
	if err := s.storage.Set(ctx, TokenKey, token); err != nil {
		return model.Identity{}, &apperr.AuthenticationError{Message: "persist session", Err: err}
	}

	s.mu.Lock()
	s.identity, s.token, s.expires = id, token, exp
	s.mu.Unlock()
	s.readyOnce.Do(s.markReady)

	s.log.Info("signed in", zap.String("user", id.ID), zap.Stringer("role", id.Role))
	return *id, nil
}

// Logout tries to sign out remotely but clears the local identity and the
// persisted token whatever the remote outcome.  Logging out without an
// identity is a no-op.
func (s *Store) Logout(ctx context.Context) {
	s.mu.RLock()
	signedIn := s.token != ""
	s.mu.RUnlock()
	if !signedIn {
		return
	}
	if err := s.auth.SignOut(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug("remote sign-out failed; clearing local session anyway", zap.Error(err))
	}
	s.clear(ctx)
}

// Invalidate drops the identity after the remote service rejected its
// token.  Concurrent callers race for it; exactly one of them gets true.
func (s *Store) Invalidate(ctx context.Context) bool {
	return s.clear(ctx)
}

// Expire drops the identity when its token has run out, reporting whether
// it did so.
func (s *Store) Expire(ctx context.Context) bool {
	s.mu.RLock()
	expired := s.identity != nil && !s.expires.After(s.now())
	s.mu.RUnlock()
	if !expired {
		return false
	}
	return s.clear(ctx)
}

func (s *Store) clear(ctx context.Context) bool {
	s.mu.Lock()
	if s.identity == nil && s.token == "" {
		s.mu.Unlock()
		return false
	}
	s.identity, s.token, s.expires = nil, "", time.Time{}
	s.mu.Unlock()

	if err := s.storage.Delete(context.WithoutCancel(ctx), TokenKey); err != nil {
		s.log.Warn("delete persisted token", zap.Error(err))
	}
	return true
}
