package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// LocaleListener is notified after the effective locale changes.
type LocaleListener func(ctx context.Context, locale domain.Locale)

// LocaleService holds the (country, language) selection of one session.
type LocaleService struct {
	kv     repository.KVStore
	key    string
	logger *slog.Logger

	// writeMu serializes setters so persisted state follows transition order.
	writeMu sync.Mutex

	mu        sync.RWMutex
	current   domain.Locale
	listeners []LocaleListener
}

// NewLocaleService loads the persisted locale for sessionID. Missing, corrupt
// or unsupported data falls back to fallback.
func NewLocaleService(ctx context.Context, sessionID string, kv repository.KVStore, fallback domain.Locale, logger *slog.Logger) *LocaleService {
	s := &LocaleService{
		kv:      kv,
		key:     repository.LocaleKey(sessionID),
		logger:  logger,
		current: fallback,
	}

	var stored domain.Locale
	found, err := repository.LoadJSON(ctx, kv, s.key, &stored)
	switch {
	case err != nil:
		logger.WarnContext(ctx, "failed to load persisted locale, using default",
			slog.String("error", err.Error()),
		)
	case found && stored.Known():
		s.current = stored
	case found:
		logger.WarnContext(ctx, "ignoring unsupported persisted locale",
			slog.String("country", string(stored.Country)),
			slog.String("language", string(stored.Language)),
		)
	}
	return s
}

// Current returns the active locale.
func (s *LocaleService) Current() domain.Locale {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Currency is derived from the current country on every call.
func (s *LocaleService) Currency() domain.Currency {
	return s.Current().Currency()
}

// OnChange registers a listener called after every effective change.
func (s *LocaleService) OnChange(l LocaleListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// SetCountry switches the country. When the new country does not support the
// current language, the language switches to the country's first language in
// the same transition.
func (s *LocaleService) SetCountry(ctx context.Context, country domain.Country) (domain.Locale, error) {
	return s.transition(ctx, func(cur domain.Locale) (domain.Locale, error) {
		next, ok := cur.WithCountry(country)
		if !ok {
			return cur, apperrors.InvalidInput(fmt.Sprintf("unsupported country %q", country))
		}
		return next, nil
	})
}

// SetLanguage sets the language without checking it against the country.
// Only membership in the supported language set is enforced.
func (s *LocaleService) SetLanguage(ctx context.Context, language domain.Language) (domain.Locale, error) {
	return s.transition(ctx, func(cur domain.Locale) (domain.Locale, error) {
		if !domain.ValidLanguage(language) {
			return cur, apperrors.InvalidInput(fmt.Sprintf("unsupported language %q", language))
		}
		cur.Language = language
		return cur, nil
	})
}

func (s *LocaleService) transition(ctx context.Context, fn func(domain.Locale) (domain.Locale, error)) (domain.Locale, error) {
	s.writeMu.Lock()

	s.mu.Lock()
	prev := s.current
	next, err := fn(prev)
	if err != nil {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return prev, err
	}
	s.current = next
	listeners := append([]LocaleListener(nil), s.listeners...)
	s.mu.Unlock()

	// Readers already observe the new locale; a failed write only loses it
	// across restarts.
	if err := repository.SaveJSON(ctx, s.kv, s.key, next); err != nil {
		s.logger.WarnContext(ctx, "failed to persist locale",
			slog.String("locale", next.Key()),
			slog.String("error", err.Error()),
		)
	}
	s.writeMu.Unlock()

	if next != prev {
		s.logger.InfoContext(ctx, "locale changed",
			slog.String("from", prev.Key()),
			slog.String("to", next.Key()),
		)
		for _, l := range listeners {
			l(ctx, next)
		}
	}
	return next, nil
}
