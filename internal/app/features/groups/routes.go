// internal/app/features/groups/routes.go
package groups

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes mounts under /api/v1/cohorts/{cohortName}/groups, behind the
// cohorts router's bearer middleware. applyLimit throttles application
// submissions; nil disables it.
func Routes(h *Handler, applyLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.ServeCreate)

	r.Route("/{groupName}", func(gr chi.Router) {
		gr.Get("/", h.ServeGet)
		gr.Get("/history", h.ServeHistory)
		gr.Delete("/", h.ServeDelete)
		gr.Patch("/role-requirements", h.ServeUpdateRoleRequirements)
		gr.Post("/announcements", h.ServePostAnnouncement)
		gr.Patch("/leave", h.ServeLeave)
		gr.Patch("/remove-member", h.ServeRemoveMember)

		gr.Route("/applications", func(ar chi.Router) {
			if applyLimit != nil {
				ar.With(applyLimit).Post("/", h.ServeApply)
			} else {
				ar.Post("/", h.ServeApply)
			}
			ar.Get("/", h.ServeListApplications)
			ar.Patch("/{applicationID}/approve", h.ServeApprove)
			ar.Patch("/{applicationID}/deny", h.ServeDeny)
			ar.Patch("/{applicationID}/withdraw", h.ServeWithdraw)
		})
	})

	return r
}
