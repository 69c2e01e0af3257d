// internal/app/features/authgoogle/routes.go
package authgoogle

import "github.com/go-chi/chi/v5"

// Routes returns the router for Google OAuth endpoints, mounted at
// /api/v1/auth/google. Both routes are public.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/login", h.ServeLogin)
	r.Get("/callback", h.ServeCallback)
	return r
}
