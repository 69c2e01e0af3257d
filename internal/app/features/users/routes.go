// internal/app/features/users/routes.go
package users

import (
	"github.com/dalemusser/cohorthub/internal/app/system/auth"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts under /api/v1/users. Every route needs a bearer token.
func Routes(h *Handler, mw *auth.Middleware) chi.Router {
	r := chi.NewRouter()
	r.Use(mw.RequireSignedIn)

	r.Get("/me", h.ServeMe)
	r.Get("/me/applications", h.ServeMyApplications)
	r.Patch("/me/social-links", h.ServeUpdateSocialLinks)

	r.Group(func(ar chi.Router) {
		ar.Use(auth.RequireRole(models.RoleSystemAdmin))
		ar.Post("/cohort-admins", h.ServeCreateCohortAdmin)
		ar.Delete("/cohort-admins/{email}", h.ServeRevokeCohortAdmin)
	})

	return r
}
