package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
)

// WishlistStore is a session's set of favorite products, keyed by product ID
// and kept in insertion order.
type WishlistStore struct {
	kv      repository.KVStore
	key     string
	logger  *slog.Logger
	nowFunc func() time.Time

	mu    sync.RWMutex
	items []domain.WishlistItem
}

// NewWishlistStore loads the persisted wishlist for sessionID. Unreadable
// data yields an empty wishlist.
func NewWishlistStore(ctx context.Context, sessionID string, kv repository.KVStore, logger *slog.Logger) *WishlistStore {
	s := &WishlistStore{
		kv:      kv,
		key:     repository.WishlistKey(sessionID),
		logger:  logger,
		nowFunc: time.Now,
	}

	var stored []domain.WishlistItem
	found, err := repository.LoadJSON(ctx, kv, s.key, &stored)
	if err != nil {
		logger.WarnContext(ctx, "failed to load persisted wishlist, starting empty",
			slog.String("error", err.Error()),
		)
		return s
	}
	if found {
		seen := make(map[string]struct{}, len(stored))
		for _, item := range stored {
			if _, dup := seen[item.ProductID]; dup || item.ProductID == "" {
				continue
			}
			seen[item.ProductID] = struct{}{}
			s.items = append(s.items, item)
		}
	}
	return s
}

// Items returns the wishlist in insertion order.
func (s *WishlistStore) Items() []domain.WishlistItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// IsFavorite reports whether productID is in the wishlist.
func (s *WishlistStore) IsFavorite(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(productID) >= 0
}

// Add inserts item. If the product is already present the existing entry is
// kept unchanged and Add reports false.
func (s *WishlistStore) Add(ctx context.Context, item domain.WishlistItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(ctx, item)
}

// Remove deletes productID and reports whether it was present.
func (s *WishlistStore) Remove(ctx context.Context, productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(ctx, productID)
}

// Toggle removes the product if present, otherwise adds it. It reports
// whether the product is a favorite afterwards.
func (s *WishlistStore) Toggle(ctx context.Context, item domain.WishlistItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeLocked(ctx, item.ProductID) {
		return false
	}
	return s.addLocked(ctx, item)
}

func (s *WishlistStore) addLocked(ctx context.Context, item domain.WishlistItem) bool {
	if s.indexLocked(item.ProductID) >= 0 {
		return false
	}
	item.AddedAt = s.nowFunc().UTC()
	s.items = append(s.items, item)
	s.persistLocked(ctx)
	return true
}

func (s *WishlistStore) removeLocked(ctx context.Context, productID string) bool {
	i := s.indexLocked(productID)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	s.persistLocked(ctx)
	return true
}

func (s *WishlistStore) indexLocked(productID string) int {
	return slices.IndexFunc(s.items, func(it domain.WishlistItem) bool {
		return it.ProductID == productID
	})
}

func (s *WishlistStore) persistLocked(ctx context.Context) {
	items := s.items
	if items == nil {
		items = []domain.WishlistItem{}
	}
	if err := repository.SaveJSON(ctx, s.kv, s.key, items); err != nil {
		s.logger.WarnContext(ctx, "failed to persist wishlist",
			slog.Int("items", len(items)),
			slog.String("error", err.Error()),
		)
	}
}
