// Package console ties the per-browser pieces together.  A Session bundles
// the identity store, the gateway client, the tenant controller and the
// preferences of one browser; the Registry hands sessions out by the id
// carried in the session cookie.
package console

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/ems-console/internal/gateway"
	"github.com/iliyamo/ems-console/internal/model"
	"github.com/iliyamo/ems-console/internal/session"
	"github.com/iliyamo/ems-console/internal/settings"
	"github.com/iliyamo/ems-console/internal/tenant"
)

// Session is everything the console keeps for one browser.
type Session struct {
	ID      string
	Storage session.Storage
	Store   *session.Store
	API     *gateway.Client
	Tenants *tenant.Controller
	Prefs   *settings.Prefs
}

// MutationHook observes successful tenant mutations together with the
// identity that made them.
type MutationHook func(ctx context.Context, actor model.Identity, m tenant.Mutation)

// Config configures a Registry.
type Config struct {
	Backend    session.Backend
	BaseURL    string
	HTTPClient *http.Client
	PageSize   int
	// IdleTimeout drops cached sessions nobody looked up for that long.
	// Their persisted state is left to the backend's own expiry.
	IdleTimeout time.Duration
	Logger      *zap.Logger
	OnMutation  MutationHook
	Clock       func() time.Time
}

type entry struct {
	s        *Session
	lastUsed time.Time
}

// Registry maps session ids to live sessions.  Only signed-in sessions,
// and sessions still initializing, are cached; anything else is rebuilt
// from storage on demand.
type Registry struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry validates cfg and returns an empty registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.OnMutation == nil {
		cfg.OnMutation = func(context.Context, model.Identity, tenant.Mutation) {}
	}
	if cfg.Backend == nil {
		cfg.Backend = session.NewMemoryBackend(cfg.IdleTimeout)
	}
	// Fail at startup rather than on the first request.
	if _, err := gateway.New(cfg.BaseURL, cfg.HTTPClient); err != nil {
		return nil, err
	}
	return &Registry{cfg: cfg, log: cfg.Logger, sessions: map[string]*entry{}}, nil
}

// ValidID reports whether id looks like an id the registry issued.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *Registry) build(id string) *Session {
	s := &Session{ID: id, Storage: r.cfg.Backend.Storage(id)}
	log := r.log.With(zap.String("session", shortID(id)))

	api, _ := gateway.New(r.cfg.BaseURL, r.cfg.HTTPClient,
		gateway.WithLogger(log),
		gateway.WithToken(func() string { return s.Store.Token() }),
		gateway.WithUnauthorizedHandler(func(ctx context.Context) {
			if s.Store.Invalidate(ctx) {
				log.Info("remote api rejected the session token; signed out")
				r.forget(id, s)
			}
		}),
	)
	s.API = api
	s.Store = session.NewStore(s.Storage, api, session.WithClock(r.cfg.Clock), session.WithLogger(log))
	s.Tenants = tenant.NewController(api,
		tenant.WithPageSize(r.cfg.PageSize),
		tenant.WithLogger(log),
		tenant.WithMutationHook(func(ctx context.Context, m tenant.Mutation) {
			actor, _ := s.Store.Identity()
			r.cfg.OnMutation(ctx, actor, m)
		}),
	)
	s.Prefs = settings.NewPrefs(s.Storage)
	return s
}

// Lookup returns the session for id, restoring it from storage when it is
// not cached.  The returned session may still be initializing; callers
// that need its identity wait on Store.Wait.  An empty or malformed id
// yields nil.
func (r *Registry) Lookup(ctx context.Context, id string) *Session {
	if !ValidID(id) {
		return nil
	}
	now := r.cfg.Clock()

	r.mu.Lock()
	r.sweep(now)
	if e, ok := r.sessions[id]; ok {
		e.lastUsed = now
		r.mu.Unlock()
		if e.s.Store.State() == session.StateReady && e.s.Store.Expire(ctx) {
			r.log.Debug("session token expired", zap.String("session", shortID(id)))
			r.forget(id, e.s)
		}
		return e.s
	}
	s := r.build(id)
	r.sessions[id] = &entry{s: s, lastUsed: now}
	r.mu.Unlock()

	if err := s.Store.Init(ctx); err != nil {
		r.log.Warn("restore session", zap.String("session", shortID(id)), zap.Error(err))
	}
	if !s.Store.IsAuthenticated() {
		r.forget(id, s)
	}
	return s
}

// Login signs in under a fresh session id.  The theme of the session
// identified by oldID carries over, and a signed-in old session is signed
// out once the new one is established.
func (r *Registry) Login(ctx context.Context, oldID, email, password string) (*Session, model.Identity, error) {
	s := r.build(uuid.NewString())
	if ValidID(oldID) {
		if err := settings.CopyTheme(ctx, r.cfg.Backend.Storage(oldID), s.Storage); err != nil {
			r.log.Warn("carry theme over to new session", zap.Error(err))
		}
	}
	id, err := s.Store.Login(ctx, email, password)
	if err != nil {
		return nil, model.Identity{}, err
	}

	r.mu.Lock()
	r.sessions[s.ID] = &entry{s: s, lastUsed: r.cfg.Clock()}
	r.mu.Unlock()

	if ValidID(oldID) {
		r.Logout(ctx, oldID)
	}
	return s, id, nil
}

// Logout signs the session out and forgets it.  Unknown ids are ignored.
func (r *Registry) Logout(ctx context.Context, id string) {
	s := r.Lookup(ctx, id)
	if s == nil {
		return
	}
	s.Store.Logout(ctx)
	r.forget(id, s)
}

// Len reports the number of cached sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// forget drops id if it still maps to s.
func (r *Registry) forget(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok && e.s == s {
		delete(r.sessions, id)
	}
}

func (r *Registry) sweep(now time.Time) {
	if r.cfg.IdleTimeout <= 0 {
		return
	}
	for id, e := range r.sessions {
		if now.Sub(e.lastUsed) > r.cfg.IdleTimeout {
			delete(r.sessions, id)
		}
	}
}

// shortID keeps session ids out of logs in full.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
