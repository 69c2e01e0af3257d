// internal/app/features/authtoken/handler.go
package authtoken

import (
	"errors"
	"net/http"

	userstore "github.com/dalemusser/cohorthub/internal/app/store/users"
	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/app/system/auditlog"
	"github.com/dalemusser/cohorthub/internal/app/system/auth"
	"github.com/dalemusser/cohorthub/internal/app/system/respond"
	"github.com/dalemusser/cohorthub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler rotates and revokes token sessions.
type Handler struct {
	Users  *userstore.Store
	Issuer *auth.Issuer
	Audit  *auditlog.Logger
	Log    *zap.Logger
}

func NewHandler(users *userstore.Store, issuer *auth.Issuer, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{Users: users, Issuer: issuer, Audit: audit, Log: logger}
}

// ServeRefresh handles POST /auth/token/refresh. The refresh cookie is
// exchanged for a new access token and a new refresh cookie; the old
// refresh token stops working.
func (h *Handler) ServeRefresh(w http.ResponseWriter, r *http.Request) {
	claims, err := h.Issuer.RefreshClaims(r)
	if err != nil {
		h.Log.Debug("refresh rejected", zap.Error(err))
		respond.Fail(w, r, apperr.Unauthorized, "refresh token is missing, invalid or expired; sign in again")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "refresh token")
	defer cancel()

	u, err := h.Users.GetByID(ctx, claims.UserObjectID())
	if errors.Is(err, mongo.ErrNoDocuments) {
		respond.Fail(w, r, apperr.Unauthorized, "account no longer exists")
		return
	}
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	tokens, err := h.Issuer.Rotate(ctx, w, r, u, claims)
	if errors.Is(err, auth.ErrRefreshReused) {
		h.Log.Warn("refresh token reuse detected; sessions revoked", zap.String("user_id", u.ID.Hex()))
		h.Audit.TokenReuseDetected(ctx, r, u.ID)
		respond.Fail(w, r, apperr.Unauthorized, "refresh token was already used; sign in again")
		return
	}
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	h.Audit.TokenRefreshed(ctx, r, u.ID)
	respond.OK(w, http.StatusOK, "token refreshed", tokens)
}

// ServeLogout handles POST /auth/logout for the bearer's account.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		respond.Fail(w, r, apperr.Unauthorized, "sign in required")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "logout")
	defer cancel()

	if err := h.Issuer.End(ctx, w, r, u.ID); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	h.Audit.Logout(ctx, r, u.ID)
	h.Log.Info("user signed out", zap.String("user_id", u.ID.Hex()))
	respond.OK(w, http.StatusOK, "signed out", nil)
}
