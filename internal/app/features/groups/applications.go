// internal/app/features/groups/applications.go
package groups

import (
	"context"
	"net/http"

	"github.com/dalemusser/cohorthub/internal/app/membership"
	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/app/system/auth"
	"github.com/dalemusser/cohorthub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/cohorthub/internal/app/system/inputval"
	"github.com/dalemusser/cohorthub/internal/app/system/normalize"
	"github.com/dalemusser/cohorthub/internal/app/system/respond"
	"github.com/dalemusser/cohorthub/internal/app/system/timeouts"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type skillInput struct {
	SkillName        string `json:"skill_name" validate:"required,max=50" label:"Skill name"`
	ExperienceMonths int    `json:"experience_months" validate:"min=1,max=600" label:"Experience (months)"`
}

type resourceInput struct {
	Name string `json:"name" validate:"required,max=50" label:"Resource name"`
	URL  string `json:"url" validate:"required,httpurl" label:"Resource URL"`
}

type applyInput struct {
	Pitch     string          `json:"pitch" validate:"required,min=10,max=200" label:"Pitch"`
	Skills    []skillInput    `json:"skills" validate:"required,min=1,max=20,dive" label:"Skills"`
	Resources []resourceInput `json:"resources" validate:"max=10,dive" label:"Resources"`
}

// ServeApply handles POST /cohorts/{cohortName}/groups/{groupName}/applications.
func (h *Handler) ServeApply(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var in applyInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	in.Pitch = htmlsanitize.PlainText(in.Pitch)
	if err := inputval.Validate(in).Err(); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	skills := make([]models.ApplicantSkill, 0, len(in.Skills))
	for _, s := range in.Skills {
		skills = append(skills, models.ApplicantSkill{SkillName: normalize.Name(s.SkillName), ExperienceMonths: s.ExperienceMonths})
	}
	resources := make([]models.ApplicantResource, 0, len(in.Resources))
	for _, res := range in.Resources {
		resources = append(resources, models.ApplicantResource{Name: normalize.Name(res.Name), URL: res.URL})
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "submit application")
	defer cancel()

	t, err := h.loadGroup(ctx, r, u)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	app, err := h.Membership.Apply(ctx, membership.ApplyInput{
		UserID:    u.ID,
		GroupID:   t.group.ID,
		Pitch:     in.Pitch,
		Skills:    skills,
		Resources: resources,
	})
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.OK(w, http.StatusCreated, "application submitted", app)
}

// ServeListApplications handles
// GET /cohorts/{cohortName}/groups/{groupName}/applications[?status=...].
func (h *Handler) ServeListApplications(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	status := query.Get(r, "status")
	switch status {
	case "", models.ApplicationUnderReview, models.ApplicationApproved, models.ApplicationDenied, models.ApplicationWithdrawn:
	default:
		respond.Fail(w, r, apperr.Validation, "status must be one of UNDER_REVIEW, APPROVED, DENIED, WITHDRAWN")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list applications")
	defer cancel()

	t, ok := h.adminTarget(ctx, w, r, u)
	if !ok {
		return
	}
	apps, err := h.Membership.ListApplications(ctx, t.group.ID, status)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.OK(w, http.StatusOK, "applications", apps)
}

type reviewInput struct {
	Feedback string `json:"feedback" validate:"max=200" label:"Feedback"`
}

// ServeApprove handles
// PATCH /cohorts/{cohortName}/groups/{groupName}/applications/{applicationID}/approve.
func (h *Handler) ServeApprove(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "approve application", h.Membership.Approve, "application approved")
}

// ServeDeny handles
// PATCH /cohorts/{cohortName}/groups/{groupName}/applications/{applicationID}/deny.
func (h *Handler) ServeDeny(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "deny application", h.Membership.Deny, "application denied")
}

type reviewFunc = func(ctx context.Context, applicationID, reviewerID primitive.ObjectID, feedback string) (models.Application, error)

func (h *Handler) review(w http.ResponseWriter, r *http.Request, op string, fn reviewFunc, msg string) {
	u, _ := auth.CurrentUser(r)

	id, err := applicationID(r)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	// An empty body means no feedback.
	var in reviewInput
	if r.ContentLength != 0 {
		if err := respond.Decode(r, &in); err != nil {
			respond.Error(w, r, h.Log, err)
			return
		}
	}
	in.Feedback = htmlsanitize.PlainText(in.Feedback)
	if err := inputval.Validate(in).Err(); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, op)
	defer cancel()

	t, ok := h.adminTarget(ctx, w, r, u)
	if !ok {
		return
	}
	if err := h.belongs(ctx, id, t); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	app, err := fn(ctx, id, u.ID, in.Feedback)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.OK(w, http.StatusOK, msg, app)
}

// ServeWithdraw handles
// PATCH /cohorts/{cohortName}/groups/{groupName}/applications/{applicationID}/withdraw.
func (h *Handler) ServeWithdraw(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	id, err := applicationID(r)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "withdraw application")
	defer cancel()

	t, err := h.loadGroup(ctx, r, u)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if err := h.belongs(ctx, id, t); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	app, err := h.Membership.Withdraw(ctx, id, u.ID)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.OK(w, http.StatusOK, "application withdrawn", app)
}

// belongs reports NotFound unless the application was made to t's group.
func (h *Handler) belongs(ctx context.Context, id primitive.ObjectID, t target) error {
	a, err := h.Membership.Application(ctx, id)
	if err != nil {
		return err
	}
	if a.GroupID != t.group.ID {
		return apperr.New(apperr.NotFound, "application not found")
	}
	return nil
}
