package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// KVStore is durable key-value persistence for per-session storefront
// state. Get returns an error wrapping apperrors.ErrNotFound when the key is
// absent. Implementations must be safe for concurrent use.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

const keyPrefix = "storefront:"

// Namespaced keys for the three kinds of persisted session state.

func CartKey(sessionID string) string     { return keyPrefix + sessionID + ":cart" }
func LocaleKey(sessionID string) string   { return keyPrefix + sessionID + ":locale" }
func WishlistKey(sessionID string) string { return keyPrefix + sessionID + ":wishlist" }

// ErrCorrupt is returned by LoadJSON when stored data cannot be decoded.
var ErrCorrupt = errors.New("corrupt persisted value")

// LoadJSON reads key and decodes it into dst. It reports false with a nil
// error when the key is absent.
func LoadJSON(ctx context.Context, kv KVStore, key string, dst any) (bool, error) {
	data, err := kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

// SaveJSON encodes v and writes it under key.
func SaveJSON(ctx context.Context, kv KVStore, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return kv.Set(ctx, key, data)
}
