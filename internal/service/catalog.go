package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storefront"
)

// DefaultProductPageSize is used when a listing does not ask for a count.
const DefaultProductPageSize = 24

// MaxProductPageSize caps listing requests.
const MaxProductPageSize = 100

// CatalogService serves catalog reads through a locale-keyed cache. Every
// cache key carries the locale, so a locale switch never serves data priced
// or translated for another market.
type CatalogService struct {
	api    storefront.CatalogAPI
	cache  redis.UniversalClient
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewCatalogService creates a catalog service. A nil cache disables caching.
func NewCatalogService(api storefront.CatalogAPI, cache redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		api:    api,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// CacheKey builds the cache key for op with args in locale.
func CacheKey(op, args string, locale domain.Locale) string {
	return fmt.Sprintf("catalog:%s:%s:%s", op, args, locale.Key())
}

// Products lists up to count products matching filter.
func (s *CatalogService) Products(ctx context.Context, locale domain.Locale, count int, filter string) (*domain.ProductList, error) {
	if count <= 0 {
		count = DefaultProductPageSize
	}
	count = min(count, MaxProductPageSize)

	key := CacheKey("products", fmt.Sprintf("%d:%s", count, url.QueryEscape(filter)), locale)
	return cached(ctx, s, key, func(ctx context.Context) (*domain.ProductList, error) {
		return s.api.FetchProducts(ctx, count, filter, locale)
	})
}

// ProductByHandle returns one product.
func (s *CatalogService) ProductByHandle(ctx context.Context, locale domain.Locale, handle string) (*domain.Product, error) {
	key := CacheKey("product", url.PathEscape(handle), locale)
	return cached(ctx, s, key, func(ctx context.Context) (*domain.Product, error) {
		return s.api.FetchProductByHandle(ctx, handle, locale)
	})
}

// cached reads key from the cache, falling back to fetch on a miss.
// Concurrent misses for one key share a single fetch. Cache errors are
// logged and never fail the read.
func cached[T any](ctx context.Context, s *CatalogService, key string, fetch func(context.Context) (*T, error)) (*T, error) {
	if s.cache != nil {
		data, err := s.cache.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var v T
			if err := json.Unmarshal(data, &v); err == nil {
				catalogCacheLookups.WithLabelValues("hit").Inc()
				return &v, nil
			}
			catalogCacheLookups.WithLabelValues("error").Inc()
			s.logger.WarnContext(ctx, "discarding undecodable catalog cache entry",
				slog.String("key", key),
			)
		case errors.Is(err, redis.Nil):
			catalogCacheLookups.WithLabelValues("miss").Inc()
		default:
			catalogCacheLookups.WithLabelValues("error").Inc()
			s.logger.WarnContext(ctx, "catalog cache read failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		out, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, out)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

func (s *CatalogService) store(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "catalog cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
