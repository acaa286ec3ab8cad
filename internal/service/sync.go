package service

import (
	"context"
	"log/slog"
	"sync"
)

type identityKey struct {
	cartID string
	email  string
}

// SyncHook decides when a session's cart is refreshed from the backend and
// when the signed-in buyer is attached to it.
type SyncHook struct {
	cart   *CartStore
	logger *slog.Logger

	mountOnce sync.Once

	mu   sync.Mutex
	seen map[identityKey]struct{}
}

// NewSyncHook creates a hook driving cart.
func NewSyncHook(cart *CartStore, logger *slog.Logger) *SyncHook {
	return &SyncHook{
		cart:   cart,
		logger: logger,
		seen:   make(map[identityKey]struct{}),
	}
}

// Mount syncs the cart the first time it is called. Later calls do nothing.
func (h *SyncHook) Mount(ctx context.Context) {
	h.mountOnce.Do(func() {
		h.sync(ctx, "mount")
	})
}

// VisibilityChanged syncs the cart when the client becomes visible again.
func (h *SyncHook) VisibilityChanged(ctx context.Context, visible bool) {
	if visible {
		h.sync(ctx, "visible")
	}
}

// IdentityChanged attaches email to the cart once per (cart, email) pair.
// A failed attach is logged and may be retried by a later call.
func (h *SyncHook) IdentityChanged(ctx context.Context, email string) {
	if email == "" {
		return
	}
	key := identityKey{cartID: h.cart.Snapshot().CartID, email: email}

	h.mu.Lock()
	if _, ok := h.seen[key]; ok {
		h.mu.Unlock()
		return
	}
	h.seen[key] = struct{}{}
	h.mu.Unlock()

	if err := h.cart.SetBuyerEmail(ctx, email); err != nil {
		h.logger.WarnContext(ctx, "failed to attach buyer email to cart",
			slog.String("cart_id", key.cartID),
			slog.String("error", err.Error()),
		)
		h.mu.Lock()
		delete(h.seen, key)
		h.mu.Unlock()
	}
}

func (h *SyncHook) sync(ctx context.Context, trigger string) {
	if _, err := h.cart.SyncCart(ctx); err != nil {
		h.logger.WarnContext(ctx, "cart sync failed",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)
	}
}
