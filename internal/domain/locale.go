package domain

import "slices"

// Country is an ISO 3166-1 alpha-2 code from the supported set.
type Country string

// Language is an ISO 639-1 code (upper case) from the supported set.
type Language string

const (
	CountryES Country = "ES"
	CountryPT Country = "PT"
	CountryFR Country = "FR"
	CountryDE Country = "DE"
	CountryIT Country = "IT"
	CountryGB Country = "GB"
	CountryUS Country = "US"
	CountryMX Country = "MX"
)

const (
	LanguageES Language = "ES"
	LanguageCA Language = "CA"
	LanguageEN Language = "EN"
	LanguagePT Language = "PT"
	LanguageFR Language = "FR"
	LanguageDE Language = "DE"
	LanguageIT Language = "IT"
)

// Currency is the ISO code and display symbol of a country's currency.
type Currency struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
}

// CountryInfo describes one supported country.
type CountryInfo struct {
	Code      Country    `json:"code"`
	Name      string     `json:"name"`
	Currency  Currency   `json:"currency"`
	Languages []Language `json:"languages"`
}

var (
	eur = Currency{Code: "EUR", Symbol: "€"}
	gbp = Currency{Code: "GBP", Symbol: "£"}
	usd = Currency{Code: "USD", Symbol: "$"}
	mxn = Currency{Code: "MXN", Symbol: "$"}
)

// countries is ordered for display; the first language of each entry is the
// one a country switch falls back to.
var countries = []CountryInfo{
	{Code: CountryES, Name: "España", Currency: eur, Languages: []Language{LanguageES, LanguageCA, LanguageEN}},
	{Code: CountryPT, Name: "Portugal", Currency: eur, Languages: []Language{LanguagePT, LanguageEN}},
	{Code: CountryFR, Name: "France", Currency: eur, Languages: []Language{LanguageFR, LanguageEN}},
	{Code: CountryDE, Name: "Deutschland", Currency: eur, Languages: []Language{LanguageDE, LanguageEN}},
	{Code: CountryIT, Name: "Italia", Currency: eur, Languages: []Language{LanguageIT, LanguageEN}},
	{Code: CountryGB, Name: "United Kingdom", Currency: gbp, Languages: []Language{LanguageEN}},
	{Code: CountryUS, Name: "United States", Currency: usd, Languages: []Language{LanguageEN, LanguageES}},
	{Code: CountryMX, Name: "México", Currency: mxn, Languages: []Language{LanguageES}},
}

var languages = []Language{LanguageES, LanguageCA, LanguageEN, LanguagePT, LanguageFR, LanguageDE, LanguageIT}

// SupportedCountries returns a copy of the supported country table.
func SupportedCountries() []CountryInfo {
	out := make([]CountryInfo, len(countries))
	for i, c := range countries {
		c.Languages = slices.Clone(c.Languages)
		out[i] = c
	}
	return out
}

// SupportedLanguages returns the closed set of languages.
func SupportedLanguages() []Language {
	return slices.Clone(languages)
}

// LookupCountry returns the table entry for c.
func LookupCountry(c Country) (CountryInfo, bool) {
	for _, info := range countries {
		if info.Code == c {
			return info, true
		}
	}
	return CountryInfo{}, false
}

// ValidLanguage reports whether l is in the supported language set.
func ValidLanguage(l Language) bool {
	return slices.Contains(languages, l)
}

// Supports reports whether the country allows language l.
func (ci CountryInfo) Supports(l Language) bool {
	return slices.Contains(ci.Languages, l)
}

// Locale is the active (country, language) selection.
type Locale struct {
	Country  Country  `json:"country"`
	Language Language `json:"language"`
}

// DefaultLocale is used when nothing valid has been persisted.
var DefaultLocale = Locale{Country: CountryES, Language: LanguageES}

// Currency derives the currency from the country. It is never stored.
func (l Locale) Currency() Currency {
	info, ok := LookupCountry(l.Country)
	if !ok {
		return eur
	}
	return info.Currency
}

// Valid reports whether the country is supported, the language is in the
// closed set, and the country allows the language.
func (l Locale) Valid() bool {
	info, ok := LookupCountry(l.Country)
	return ok && ValidLanguage(l.Language) && info.Supports(l.Language)
}

// Known reports whether the country is supported and the language is in the
// closed set. Unlike Valid it accepts a language the country does not list,
// which SetLanguage allows.
func (l Locale) Known() bool {
	_, ok := LookupCountry(l.Country)
	return ok && ValidLanguage(l.Language)
}

// WithCountry returns the locale switched to country c. When c does not
// support the current language the language becomes c's first supported
// language. The second result is false if c is unsupported.
func (l Locale) WithCountry(c Country) (Locale, bool) {
	info, ok := LookupCountry(c)
	if !ok {
		return l, false
	}
	next := Locale{Country: c, Language: l.Language}
	if !info.Supports(next.Language) {
		next.Language = info.Languages[0]
	}
	return next, true
}

// Key is the "ES-CA" form used in cache keys.
func (l Locale) Key() string {
	return string(l.Country) + "-" + string(l.Language)
}
