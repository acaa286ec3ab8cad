package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// LocaleHandler handles HTTP requests for locale endpoints.
type LocaleHandler struct {
	logger *slog.Logger
}

// NewLocaleHandler creates a new locale HTTP handler.
func NewLocaleHandler(logger *slog.Logger) *LocaleHandler {
	return &LocaleHandler{logger: logger}
}

// --- Request DTOs ---

// SetCountryRequest is the JSON request body for switching country.
type SetCountryRequest struct {
	Country string `json:"country" validate:"required,len=2"`
}

// SetLanguageRequest is the JSON request body for switching language.
type SetLanguageRequest struct {
	Language string `json:"language" validate:"required,len=2"`
}

// --- Response DTOs ---

type localeResponse struct {
	Country  domain.Country  `json:"country"`
	Language domain.Language `json:"language"`
	Currency domain.Currency `json:"currency"`
}

type supportedLocalesResponse struct {
	Countries []domain.CountryInfo `json:"countries"`
	Languages []domain.Language    `json:"languages"`
}

func toLocaleResponse(l domain.Locale) localeResponse {
	return localeResponse{Country: l.Country, Language: l.Language, Currency: l.Currency()}
}

// --- Handlers ---

// GetLocale handles GET /api/v1/locale
func (h *LocaleHandler) GetLocale(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toLocaleResponse(sess.Locale.Current())})
}

// SetCountry handles PUT /api/v1/locale/country
func (h *LocaleHandler) SetCountry(w http.ResponseWriter, r *http.Request) {
	var req SetCountryRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sess := sessionFrom(r.Context())
	locale, err := sess.Locale.SetCountry(r.Context(), domain.Country(strings.ToUpper(req.Country)))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toLocaleResponse(locale)})
}

// SetLanguage handles PUT /api/v1/locale/language
func (h *LocaleHandler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	var req SetLanguageRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sess := sessionFrom(r.Context())
	locale, err := sess.Locale.SetLanguage(r.Context(), domain.Language(strings.ToUpper(req.Language)))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toLocaleResponse(locale)})
}

// ListLocales handles GET /api/v1/locales
func (h *LocaleHandler) ListLocales(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: supportedLocalesResponse{
		Countries: domain.SupportedCountries(),
		Languages: domain.SupportedLanguages(),
	}})
}
