package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/identity"
	"github.com/utafrali/storefront/internal/repository/memory"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/internal/storefront"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
)

// ============================================================================
// Mock storefront APIs
// ============================================================================

type mockCartAPI struct {
	mock.Mock
}

var _ storefront.CartAPI = (*mockCartAPI)(nil)

func cartResult(args mock.Arguments) (*storefront.CartResult, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storefront.CartResult), args.Error(1)
}

func (m *mockCartAPI) CreateCart(ctx context.Context, lines []domain.CartLineInput, buyer domain.BuyerIdentity, locale domain.Locale) (*storefront.CartResult, error) {
	return cartResult(m.Called(ctx, lines, buyer, locale))
}

func (m *mockCartAPI) GetCart(ctx context.Context, cartID string, locale domain.Locale) (*domain.Cart, error) {
	args := m.Called(ctx, cartID, locale)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartAPI) AddLines(ctx context.Context, cartID string, lines []domain.CartLineInput, locale domain.Locale) (*storefront.CartResult, error) {
	return cartResult(m.Called(ctx, cartID, lines, locale))
}

func (m *mockCartAPI) UpdateLines(ctx context.Context, cartID string, lines []domain.CartLineUpdate, locale domain.Locale) (*storefront.CartResult, error) {
	return cartResult(m.Called(ctx, cartID, lines, locale))
}

func (m *mockCartAPI) RemoveLines(ctx context.Context, cartID string, lineIDs []string, locale domain.Locale) (*storefront.CartResult, error) {
	return cartResult(m.Called(ctx, cartID, lineIDs, locale))
}

func (m *mockCartAPI) UpdateBuyerIdentity(ctx context.Context, cartID string, buyer domain.BuyerIdentity, locale domain.Locale) (*storefront.CartResult, error) {
	return cartResult(m.Called(ctx, cartID, buyer, locale))
}

type mockCatalogAPI struct {
	mock.Mock
}

var _ storefront.CatalogAPI = (*mockCatalogAPI)(nil)

func (m *mockCatalogAPI) FetchProducts(ctx context.Context, count int, filterQuery string, locale domain.Locale) (*domain.ProductList, error) {
	args := m.Called(ctx, count, filterQuery, locale)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProductList), args.Error(1)
}

func (m *mockCatalogAPI) FetchProductByHandle(ctx context.Context, handle string, locale domain.Locale) (*domain.Product, error) {
	args := m.Called(ctx, handle, locale)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

// ============================================================================
// Test helpers
// ============================================================================

const (
	testSessionID = "session-0001"
	testJWTSecret = "test-secret"
	testIssuer    = "user-service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	handler  http.Handler
	cartAPI  *mockCartAPI
	catalog  *mockCatalogAPI
	registry *service.SessionRegistry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := testLogger()
	cartAPI := &mockCartAPI{}
	catalogAPI := &mockCatalogAPI{}

	registry := service.NewSessionRegistry(service.RegistryConfig{
		API:           cartAPI,
		KV:            memory.NewKVStore(),
		Events:        event.Noop{},
		DefaultLocale: domain.DefaultLocale,
		IdleTTL:       0,
		Logger:        logger,
	})

	handler := NewRouter(t.Context(), RouterConfig{
		ServiceName: "storefront-test",
		Registry:    registry,
		Catalog:     service.NewCatalogService(catalogAPI, nil, 0, logger),
		Verifier:    identity.NewVerifier(testJWTSecret, testIssuer),
		Health:      health.NewHandler(),
		CORS:        middleware.DefaultCORSConfig(),
		Logger:      logger,
	})

	return &testServer{handler: handler, cartAPI: cartAPI, catalog: catalogAPI, registry: registry}
}

// do sends a request in the test session. body may be nil, a []byte, or a
// value encoded as JSON.
func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.SessionHeader, testSessionID)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// decodeResponse reads the response body into the standard Response struct.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	return resp
}

// decodeData decodes the data member of the envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}
