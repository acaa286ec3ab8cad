package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
)

type capturedRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
	header    http.Header
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, req capturedRequest)) (*Client, *[]capturedRequest) {
	t.Helper()
	var seen []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req capturedRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		req.header = r.Header.Clone()
		seen = append(seen, req)
		handler(w, req)
	}))
	t.Cleanup(srv.Close)

	doer := httpclient.New(httpclient.Config{Timeout: 2 * time.Second, MaxConnsPerHost: 4, UserAgent: "test"})
	c := NewClient(Config{Endpoint: srv.URL, AccessToken: "tok"}, doer, slog.New(slog.DiscardHandler))
	return c, &seen
}

func writeData(w http.ResponseWriter, data string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"data":`+data+`}`)
}

var esCA = domain.Locale{Country: domain.CountryES, Language: domain.LanguageCA}

func TestConfig_URL(t *testing.T) {
	cfg := Config{Domain: "https://shop.example.com/", APIVersion: "2024-10"}
	assert.Equal(t, "https://shop.example.com/api/2024-10/graphql.json", cfg.URL())

	cfg.Endpoint = "http://localhost:9999/graphql"
	assert.Equal(t, "http://localhost:9999/graphql", cfg.URL())
}

func TestRequest_EncodesLocale(t *testing.T) {
	c, seen := newTestClient(t, func(w http.ResponseWriter, _ capturedRequest) {
		writeData(w, `{"cart":null}`)
	})

	var out struct {
		Cart *cartNode `json:"cart"`
	}
	require.NoError(t, c.Request(context.Background(), getCartQuery, map[string]any{"cartId": "c1"}, esCA, &out))

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, "ES", req.Variables["country"])
	assert.Equal(t, "CA", req.Variables["language"])
	assert.Equal(t, "c1", req.Variables["cartId"])
	assert.Contains(t, req.Query, "@inContext(country: $country, language: $language)")
	assert.Equal(t, "ca-ES", req.header.Get("Accept-Language"))
	assert.Equal(t, "tok", req.header.Get("X-Shopify-Storefront-Access-Token"))
	assert.Equal(t, "application/json", req.header.Get("Content-Type"))
}

func TestRequest_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantNet   bool
		wantAPI   bool
		wantInMsg string
	}{
		{"graphql errors", http.StatusOK, `{"errors":[{"message":"Field 'x' doesn't exist"}]}`, false, true, "Field 'x' doesn't exist"},
		{"client error", http.StatusUnauthorized, `{"errors":[{"message":"Invalid token"}]}`, false, true, "Invalid token"},
		{"undecodable", http.StatusOK, `<html>`, false, true, "undecodable"},
		{"no data", http.StatusOK, `{"data":null}`, false, true, "no data"},
		{"server error", http.StatusServiceUnavailable, `down`, true, false, "503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, _ capturedRequest) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			err := c.Request(context.Background(), getCartQuery, nil, esCA, nil)
			require.Error(t, err)

			var ne *NetworkError
			var ae *APIError
			assert.Equal(t, tt.wantNet, errors.As(err, &ne))
			assert.Equal(t, tt.wantAPI, errors.As(err, &ae))
			assert.Contains(t, err.Error(), tt.wantInMsg)
		})
	}
}

func TestRequest_TransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{Endpoint: url}, httpclient.New(httpclient.DefaultConfig()), slog.New(slog.DiscardHandler))
	err := c.Request(context.Background(), getCartQuery, nil, esCA, nil)

	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	assert.Equal(t, "getCart", err.(*NetworkError).Op)
}

func TestRequest_OpenBreakerIsNetworkError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cbCfg := httpclient.DefaultCircuitBreakerConfig("storefront-test-open")
	cbCfg.MinRequests = 1
	cbCfg.FailureRatio = 0.5
	cbCfg.Timeout = time.Minute
	logger := slog.New(slog.DiscardHandler)
	doer := httpclient.NewCircuitBreakerClient(httpclient.New(httpclient.DefaultConfig()), cbCfg, logger)
	c := NewClient(Config{Endpoint: srv.URL}, doer, logger)

	err := c.Request(context.Background(), getCartQuery, nil, esCA, nil)
	require.True(t, IsNetworkError(err))

	err = c.Request(context.Background(), getCartQuery, nil, esCA, nil)
	require.True(t, IsNetworkError(err))
	assert.ErrorIs(t, err, httpclient.ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestToAppError(t *testing.T) {
	netErr := ToAppError(&NetworkError{Op: "getCart", Err: errors.New("timeout")})
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(netErr))

	apiErr := ToAppError(&APIError{Op: "cartLinesAdd", Message: "Invalid merchandise id"})
	assert.Equal(t, http.StatusBadGateway, apperrors.HTTPStatus(apiErr))
	var appErr *apperrors.AppError
	require.ErrorAs(t, apiErr, &appErr)
	assert.Equal(t, "Invalid merchandise id", appErr.Message)

	other := errors.New("other")
	assert.Same(t, other, ToAppError(other))
}

func TestOperationName(t *testing.T) {
	assert.Equal(t, "getCart", operationName(getCartQuery))
	assert.Equal(t, "cartLinesAdd", operationName(cartLinesAddMutation))
	assert.Equal(t, "anonymous", operationName("{ shop { name } }"))
}

func TestAcceptLanguage(t *testing.T) {
	assert.Equal(t, "en-US", AcceptLanguage(domain.Locale{Country: domain.CountryUS, Language: domain.LanguageEN}))
}
