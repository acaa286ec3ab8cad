package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/identity"
	"github.com/utafrali/storefront/internal/storefront"
)

func signToken(t *testing.T, secret, issuer, email string) string {
	t.Helper()
	claims := identity.Claims{
		UserID: "user-123",
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestSessionMe_Anonymous(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/session", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decodeData(t, rec, &body)
	assert.Equal(t, testSessionID, body["session_id"])
	assert.Equal(t, false, body["authenticated"])
}

func TestSessionMe_Authenticated(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, testJWTSecret, testIssuer, "ana@example.com")

	rec := s.do(t, http.MethodGet, "/api/v1/session", nil, "Authorization", "Bearer "+token)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decodeData(t, rec, &body)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "user-123", body["user_id"])
	assert.Equal(t, "ana@example.com", body["email"])
}

func TestAuth_InvalidTokenRejected(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"wrong secret", "Bearer " + signToken(t, "other-secret", testIssuer, "ana@example.com")},
		{"wrong issuer", "Bearer " + signToken(t, testJWTSecret, "someone-else", "ana@example.com")},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			rec := s.do(t, http.MethodGet, "/api/v1/cart", nil, "Authorization", tt.header)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuth_EmailAttachedToNewCart(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, testJWTSecret, testIssuer, "ana@example.com")

	s.cartAPI.On("CreateCart", mock.Anything, mock.Anything,
		domain.BuyerIdentity{Email: "ana@example.com", CountryCode: domain.CountryES},
		domain.DefaultLocale,
	).Return(&storefront.CartResult{Cart: sampleCart(1)}, nil).Once()

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", addItemBody(testVariantID, 1), "Authorization", "Bearer "+token)

	require.Equal(t, http.StatusOK, rec.Code)
	s.cartAPI.AssertExpectations(t)
}

func TestVisibility_SyncsWhenVisible(t *testing.T) {
	s := newTestServer(t)
	seedCart(t, s, 1)
	s.cartAPI.On("GetCart", mock.Anything, testCartID, domain.DefaultLocale).Return(sampleCart(5), nil).Once()

	rec := s.do(t, http.MethodPost, "/api/v1/session/visibility", map[string]any{"visible": true})

	require.Equal(t, http.StatusOK, rec.Code)
	s.cartAPI.AssertExpectations(t)

	rec = s.do(t, http.MethodGet, "/api/v1/cart", nil)
	var snap struct {
		TotalItems int `json:"total_items"`
	}
	decodeData(t, rec, &snap)
	assert.Equal(t, 5, snap.TotalItems)
}

func TestVisibility_HiddenDoesNotSync(t *testing.T) {
	s := newTestServer(t)
	seedCart(t, s, 1)

	rec := s.do(t, http.MethodPost, "/api/v1/session/visibility", map[string]any{"visible": false})

	require.Equal(t, http.StatusOK, rec.Code)
	s.cartAPI.AssertNotCalled(t, "GetCart", mock.Anything, mock.Anything, mock.Anything)
}

func TestVisibility_MissingField(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/session/visibility", map[string]any{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
