// internal/app/features/authtoken/routes.go
package authtoken

import (
	"github.com/dalemusser/cohorthub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts under /api/v1/auth. Refresh authenticates with the
// refresh cookie; logout with the bearer token.
func Routes(h *Handler, mw *auth.Middleware) chi.Router {
	r := chi.NewRouter()
	r.Post("/token/refresh", h.ServeRefresh)
	r.With(mw.RequireSignedIn).Post("/logout", h.ServeLogout)
	return r
}
