package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/repository/memory"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

func newLocaleService(t *testing.T, kv repository.KVStore) *LocaleService {
	t.Helper()
	return NewLocaleService(t.Context(), "sess-1", kv, domain.DefaultLocale, testLogger())
}

func TestLocaleService_DefaultsWhenNothingPersisted(t *testing.T) {
	s := newLocaleService(t, memory.NewKVStore())

	assert.Equal(t, domain.DefaultLocale, s.Current())
	assert.Equal(t, "EUR", s.Currency().Code)
}

func TestLocaleService_SetCountryKeepsLanguageConsistent(t *testing.T) {
	// Every (country, starting language) pair, including combinations the
	// starting country does not allow.
	for _, target := range domain.SupportedCountries() {
		for _, start := range domain.SupportedCountries() {
			for _, lang := range domain.SupportedLanguages() {
				name := string(start.Code) + "-" + string(lang) + "->" + string(target.Code)
				t.Run(name, func(t *testing.T) {
					s := newLocaleService(t, memory.NewKVStore())
					_, err := s.SetCountry(t.Context(), start.Code)
					require.NoError(t, err)
					_, err = s.SetLanguage(t.Context(), lang)
					require.NoError(t, err)

					got, err := s.SetCountry(t.Context(), target.Code)
					require.NoError(t, err)
					assert.Equal(t, target.Code, got.Country)
					assert.Contains(t, target.Languages, got.Language)
					if target.Supports(lang) {
						assert.Equal(t, lang, got.Language, "supported language must be kept")
					}
				})
			}
		}
	}
}

func TestLocaleService_CurrencyFollowsCountry(t *testing.T) {
	s := newLocaleService(t, memory.NewKVStore())

	_, err := s.SetCountry(t.Context(), domain.CountryGB)
	require.NoError(t, err)
	assert.Equal(t, "GBP", s.Currency().Code)

	_, err = s.SetCountry(t.Context(), domain.CountryMX)
	require.NoError(t, err)
	assert.Equal(t, "MXN", s.Currency().Code)
}

func TestLocaleService_SetLanguageDoesNotCheckCountry(t *testing.T) {
	s := newLocaleService(t, memory.NewKVStore())
	_, err := s.SetCountry(t.Context(), domain.CountryGB)
	require.NoError(t, err)

	got, err := s.SetLanguage(t.Context(), domain.LanguageDE)
	require.NoError(t, err)
	assert.Equal(t, domain.Locale{Country: domain.CountryGB, Language: domain.LanguageDE}, got)
}

func TestLocaleService_RejectsUnknownValues(t *testing.T) {
	s := newLocaleService(t, memory.NewKVStore())

	_, err := s.SetCountry(t.Context(), "ZZ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = s.SetLanguage(t.Context(), "XX")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Equal(t, domain.DefaultLocale, s.Current())
}

func TestLocaleService_PersistsAndReloads(t *testing.T) {
	kv := memory.NewKVStore()
	s := newLocaleService(t, kv)

	_, err := s.SetCountry(t.Context(), domain.CountryPT)
	require.NoError(t, err)

	reloaded := newLocaleService(t, kv)
	assert.Equal(t, domain.Locale{Country: domain.CountryPT, Language: domain.LanguagePT}, reloaded.Current())
}

func TestLocaleService_ReloadKeepsLanguageOutsideCountry(t *testing.T) {
	kv := memory.NewKVStore()
	s := newLocaleService(t, kv)

	_, err := s.SetCountry(t.Context(), domain.CountryGB)
	require.NoError(t, err)
	want, err := s.SetLanguage(t.Context(), domain.LanguageDE)
	require.NoError(t, err)
	require.Equal(t, domain.Locale{Country: domain.CountryGB, Language: domain.LanguageDE}, want)

	reloaded := newLocaleService(t, kv)
	assert.Equal(t, want, reloaded.Current())
	assert.Equal(t, "GBP", reloaded.Currency().Code)
}

func TestLocaleService_ToleratesBadPersistedData(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"corrupt", "{oops"},
		{"unsupported country", `{"country":"ZZ","language":"EN"}`},
		{"unknown language", `{"country":"GB","language":"XX"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := memory.NewKVStore()
			require.NoError(t, kv.Set(t.Context(), repository.LocaleKey("sess-1"), []byte(tt.data)))

			s := newLocaleService(t, kv)
			assert.Equal(t, domain.DefaultLocale, s.Current())
		})
	}
}

func TestLocaleService_NotifiesOnlyOnChange(t *testing.T) {
	s := newLocaleService(t, memory.NewKVStore())

	var got []domain.Locale
	s.OnChange(func(_ context.Context, l domain.Locale) { got = append(got, l) })

	_, err := s.SetCountry(t.Context(), domain.CountryES)
	require.NoError(t, err)
	_, err = s.SetCountry(t.Context(), domain.CountryFR)
	require.NoError(t, err)
	_, err = s.SetCountry(t.Context(), "ZZ")
	require.Error(t, err)

	assert.Equal(t, []domain.Locale{{Country: domain.CountryFR, Language: domain.LanguageFR}}, got)
}
