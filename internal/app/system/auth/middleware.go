// internal/app/system/auth/middleware.go
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/app/system/respond"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// UserFetcher loads the user named by a token. The middleware fetches on
// every request so role and current group are never stale.
type UserFetcher interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the authenticated user & "found?" flag.
func CurrentUser(r *http.Request) (*models.User, bool) {
	u, ok := r.Context().Value(currentUserKey).(*models.User)
	return u, ok && u != nil
}

func withUser(r *http.Request, u *models.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// WithTestUser injects a user into the request context. Used by handler tests.
func WithTestUser(r *http.Request, u *models.User) *http.Request {
	return withUser(r, u)
}

// Middleware authenticates bearer tokens.
type Middleware struct {
	tokens *TokenService
	users  UserFetcher
	log    *zap.Logger
}

// NewMiddleware creates the bearer-token middleware.
func NewMiddleware(tokens *TokenService, users UserFetcher, logger *zap.Logger) *Middleware {
	return &Middleware{tokens: tokens, users: users, log: logger}
}

// RequireSignedIn rejects requests without a valid access token and puts
// the freshly loaded user into the request context.
func (m *Middleware) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			respond.Fail(w, r, apperr.Unauthorized, "missing or invalid Authorization header")
			return
		}

		claims, err := m.tokens.ParseAccess(raw)
		if err != nil {
			msg := "invalid access token"
			if errors.Is(err, ErrTokenExpired) {
				msg = "access token has expired"
			}
			m.log.Debug("bearer token rejected", zap.Error(err), zap.String("path", r.URL.Path))
			respond.Fail(w, r, apperr.Unauthorized, msg)
			return
		}

		u, err := m.users.GetByID(r.Context(), claims.UserObjectID())
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				respond.Fail(w, r, apperr.Unauthorized, "user no longer exists")
				return
			}
			respond.Error(w, r, m.log, err)
			return
		}

		next.ServeHTTP(w, withUser(r, u))
	})
}

// RequireRole ensures the signed-in user has one of the allowed roles.
// It must run after RequireSignedIn.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				respond.Fail(w, r, apperr.Unauthorized, "sign in required")
				return
			}
			if _, has := set[strings.ToLower(u.Role)]; !has {
				respond.Fail(w, r, apperr.Forbidden, "your role does not allow this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(h, "Bearer ")
	tok = strings.TrimSpace(tok)
	return tok, ok && tok != ""
}
