package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/storefront"
)

// Session groups the stores of one storefront visitor.
type Session struct {
	ID       string
	Locale   *LocaleService
	Cart     *CartStore
	Sync     *SyncHook
	Wishlist *WishlistStore

	lastSeen time.Time
}

// RegistryConfig holds the shared dependencies handed to every session.
type RegistryConfig struct {
	API           storefront.CartAPI
	KV            repository.KVStore
	Events        CartEvents
	DefaultLocale domain.Locale
	IdleTTL       time.Duration
	Logger        *slog.Logger
}

// SessionRegistry holds live sessions in memory. Sessions idle for longer
// than the TTL are evicted; their persisted state is reloaded on next use.
type SessionRegistry struct {
	cfg     RegistryConfig
	create  singleflight.Group
	nowFunc func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(cfg RegistryConfig) *SessionRegistry {
	return &SessionRegistry{
		cfg:      cfg,
		nowFunc:  time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, building it on first use. A new session
// loads its persisted state and runs its initial cart sync before Get
// returns. created reports whether this call built it.
func (r *SessionRegistry) Get(ctx context.Context, id string) (*Session, bool) {
	if sess, ok := r.lookup(id); ok {
		return sess, false
	}

	v, _, shared := r.create.Do(id, func() (any, error) {
		if sess, ok := r.lookup(id); ok {
			return built{sess: sess}, nil
		}
		sess := r.build(ctx, id)

		r.mu.Lock()
		sess.lastSeen = r.nowFunc()
		r.sessions[id] = sess
		n := len(r.sessions)
		r.mu.Unlock()
		activeSessions.Set(float64(n))

		sess.Sync.Mount(ctx)
		return built{sess: sess, created: true}, nil
	})
	b := v.(built)
	return b.sess, b.created && !shared
}

type built struct {
	sess    *Session
	created bool
}

// Touch marks id as active without creating it.
func (r *SessionRegistry) Touch(id string) {
	r.lookup(id)
}

func (r *SessionRegistry) lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if ok {
		sess.lastSeen = r.nowFunc()
	}
	return sess, ok
}

func (r *SessionRegistry) build(ctx context.Context, id string) *Session {
	logger := r.cfg.Logger.With(slog.String("session_id", id))

	locale := NewLocaleService(ctx, id, r.cfg.KV, r.cfg.DefaultLocale, logger)
	cart := NewCartStore(ctx, CartStoreConfig{
		SessionID: id,
		API:       r.cfg.API,
		KV:        r.cfg.KV,
		Locale:    locale,
		Events:    r.cfg.Events,
		Logger:    r.cfg.Logger,
	})
	locale.OnChange(func(ctx context.Context, l domain.Locale) {
		if err := cart.ApplyLocale(ctx, l); err != nil {
			logger.WarnContext(ctx, "failed to move cart to new locale",
				slog.String("locale", l.Key()),
				slog.String("error", err.Error()),
			)
		}
	})

	return &Session{
		ID:       id,
		Locale:   locale,
		Cart:     cart,
		Sync:     NewSyncHook(cart, logger),
		Wishlist: NewWishlistStore(ctx, id, r.cfg.KV, logger),
	}
}

// Len returns the number of sessions held in memory.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run evicts idle sessions every TTL interval until ctx is done.
func (r *SessionRegistry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.IdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

// cleanup evicts sessions whose lastSeen is older than the TTL.
func (r *SessionRegistry) cleanup() {
	r.mu.Lock()
	now := r.nowFunc()
	evicted := 0
	for id, sess := range r.sessions {
		if now.Sub(sess.lastSeen) > r.cfg.IdleTTL {
			delete(r.sessions, id)
			evicted++
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	activeSessions.Set(float64(n))
	if evicted > 0 {
		r.cfg.Logger.Debug("evicted idle sessions",
			slog.Int("evicted", evicted),
			slog.Int("remaining", n),
		)
	}
}
