package http

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/identity"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/validator"
)

// sessionIDPattern bounds client-supplied session IDs before they are used
// in persistence keys.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

type sessionKey struct{}

// sessionQueryParam carries the session for browser websocket handshakes,
// which cannot set custom headers.
const sessionQueryParam = "session_id"

// EnsureSessionID assigns a session ID to requests that carry none (or an
// unusable one) and echoes it in the response so clients can adopt it.
// Mount it before RequestLogger so logs carry the session.
func EnsureSessionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.SessionHeader)
		if id == "" {
			id = r.URL.Query().Get(sessionQueryParam)
		}
		if !sessionIDPattern.MatchString(id) {
			id = uuid.NewString()
		}
		r.Header.Set(middleware.SessionHeader, id)
		w.Header().Set(middleware.SessionHeader, id)

		ctx := logger.WithSessionID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionLoader attaches the caller's stores to the request context. When the
// request carries a bearer token it is verified and the buyer's email is
// handed to the sync hook. Anonymous requests pass through.
func SessionLoader(registry *service.SessionRegistry, verifier *identity.Verifier, fallback *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := logger.SessionIDFromContext(ctx)

			sess, created := registry.Get(ctx, id)
			if created {
				logger.FromContext(ctx).DebugContext(ctx, "session created")
			}

			token, ok, err := identity.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				httputil.WriteError(w, r, err, fallback)
				return
			}
			if ok {
				who, err := verifier.Verify(token)
				if err != nil {
					httputil.WriteError(w, r, err, fallback)
					return
				}
				ctx = identity.NewContext(ctx, who)
				sess.Sync.IdentityChanged(ctx, who.Email)
			}

			ctx = context.WithValue(ctx, sessionKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionFrom returns the session attached by SessionLoader.
func sessionFrom(ctx context.Context) *service.Session {
	sess, _ := ctx.Value(sessionKey{}).(*service.Session)
	return sess
}

// SessionHandler handles session-level signals from the storefront.
type SessionHandler struct {
	logger *slog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(logger *slog.Logger) *SessionHandler {
	return &SessionHandler{logger: logger}
}

// VisibilityRequest reports whether the storefront tab is visible.
type VisibilityRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

// Visibility handles POST /api/v1/session/visibility
func (h *SessionHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sess := sessionFrom(r.Context())
	sess.Sync.VisibilityChanged(r.Context(), *req.Visible)

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: sess.Cart.Snapshot()})
}

// Me handles GET /api/v1/session
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	data := map[string]any{
		"session_id":    sess.ID,
		"authenticated": false,
	}
	if who := identity.FromContext(r.Context()); who != nil {
		data["authenticated"] = true
		data["user_id"] = who.UserID
		data["email"] = who.Email
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: data})
}
