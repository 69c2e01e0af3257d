// internal/app/features/auditlog/routes.go
package auditlog

import (
	"github.com/dalemusser/cohorthub/internal/app/system/auth"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the audit log under /api/v1/audit-events.
//
// Access is restricted to system admins.
func Routes(h *Handler, mw *auth.Middleware) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(mw.RequireSignedIn)
		pr.Use(auth.RequireRole(models.RoleSystemAdmin))

		pr.Get("/", h.ServeList)
	})

	return r
}
