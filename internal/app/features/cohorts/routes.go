// internal/app/features/cohorts/routes.go
package cohorts

import (
	"net/http"

	"github.com/dalemusser/cohorthub/internal/app/system/auth"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts under /api/v1/cohorts. groups serves
// /{cohortName}/groups and may be nil.
func Routes(h *Handler, mw *auth.Middleware, groups http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(mw.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.With(auth.RequireRole(models.RoleSystemAdmin)).Post("/", h.ServeCreate)

	r.Route("/{cohortName}", func(cr chi.Router) {
		cr.Get("/", h.ServeGet)

		cr.Group(func(ar chi.Router) {
			ar.Use(auth.RequireRole(models.RoleSystemAdmin, models.RoleCohortAdmin))
			ar.Patch("/description", h.ServeUpdateDescription)
			ar.Patch("/allowed-emails", h.ServeAddAllowedEmail)
			ar.Delete("/allowed-emails/{email}", h.ServeRemoveAllowedEmail)
		})

		if groups != nil {
			cr.Mount("/groups", groups)
		}
	})

	return r
}
