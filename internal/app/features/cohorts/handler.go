// internal/app/features/cohorts/handler.go
package cohorts

import (
	"context"
	"errors"
	"net/http"

	cohortstore "github.com/dalemusser/cohorthub/internal/app/store/cohorts"
	groupstore "github.com/dalemusser/cohorthub/internal/app/store/groups"
	userstore "github.com/dalemusser/cohorthub/internal/app/store/users"
	"github.com/dalemusser/cohorthub/internal/app/policy/cohortpolicy"
	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/app/system/auditlog"
	"github.com/dalemusser/cohorthub/internal/app/system/auth"
	"github.com/dalemusser/cohorthub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/cohorthub/internal/app/system/inputval"
	"github.com/dalemusser/cohorthub/internal/app/system/normalize"
	"github.com/dalemusser/cohorthub/internal/app/system/paging"
	"github.com/dalemusser/cohorthub/internal/app/system/respond"
	"github.com/dalemusser/cohorthub/internal/app/system/timeouts"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves cohort endpoints.
type Handler struct {
	Cohorts *cohortstore.Store
	Groups  *groupstore.Store
	Users   *userstore.Store
	Audit   *auditlog.Logger
	Log     *zap.Logger
}

func NewHandler(db *mongo.Database, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Cohorts: cohortstore.New(db),
		Groups:  groupstore.New(db),
		Users:   userstore.New(db),
		Audit:   audit,
		Log:     logger,
	}
}

// Load resolves the {cohortName} URL parameter and checks that the
// signed-in user may see the cohort.
func Load(ctx context.Context, store *cohortstore.Store, r *http.Request, u *models.User) (models.Cohort, error) {
	c, err := store.GetByName(ctx, chi.URLParam(r, "cohortName"))
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Cohort{}, apperr.New(apperr.NotFound, "cohort not found")
	}
	if err != nil {
		return models.Cohort{}, err
	}
	if !cohortpolicy.CanAccess(*u, c) {
		return models.Cohort{}, apperr.New(apperr.Forbidden, "your email is not on this cohort's allow-list")
	}
	return c, nil
}

// visible hides the allow-list from users who cannot manage it.
func visible(u *models.User, c models.Cohort) models.Cohort {
	if !cohortpolicy.CanManage(*u) {
		c.AllowedEmails = nil
	}
	return c
}

type createCohortInput struct {
	Name          string   `json:"name" validate:"required,min=10,max=30" label:"Cohort name"`
	Description   string   `json:"description" validate:"required,min=10,max=200" label:"Description"`
	AllowedEmails []string `json:"allowed_emails" validate:"max=5000,dive,email" label:"Allowed emails"`
}

// ServeCreate handles POST /cohorts.
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var in createCohortInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	in.Name = normalize.Name(in.Name)
	in.Description = htmlsanitize.PlainText(in.Description)
	if err := inputval.Validate(in).Err(); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "create cohort")
	defer cancel()

	// Cohort admins appear on every allow-list, including new ones.
	admins, err := h.Users.EmailsByRole(ctx, models.RoleCohortAdmin)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	c, err := h.Cohorts.Create(ctx, models.Cohort{
		Name:          in.Name,
		Description:   in.Description,
		CreatedBy:     u.ID,
		AllowedEmails: append(in.AllowedEmails, admins...),
	})
	if errors.Is(err, cohortstore.ErrDuplicateCohortName) {
		respond.Fail(w, r, apperr.Conflict, "a cohort with this name already exists")
		return
	}
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	h.Audit.CohortCreated(ctx, u.ID, c)
	h.Log.Info("cohort created", zap.String("cohort_id", c.ID.Hex()), zap.String("name", c.Name))
	respond.OK(w, http.StatusCreated, "cohort created", c)
}

// ServeList handles GET /cohorts[?after=|?before=]. Students see the
// cohorts that allow-list them; admins see every cohort. Results are keyset
// paged by name.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list cohorts")
	defer cancel()

	email := u.Email
	if u.IsAdmin() {
		email = ""
	}
	before, after := paging.Cursors(r)
	list, err := h.Cohorts.List(ctx, email, paging.ConfigureKeyset(before, after))
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	page := paging.NewPage(list, before, after,
		func(c models.Cohort) string { return c.NameCI },
		func(c models.Cohort) primitive.ObjectID { return c.ID })
	respond.OK(w, http.StatusOK, "cohorts", page)
}

type cohortDetails struct {
	Cohort models.Cohort  `json:"cohort"`
	Groups []models.Group `json:"groups"`
}

// ServeGet handles GET /cohorts/{cohortName}.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "get cohort")
	defer cancel()

	c, err := Load(ctx, h.Cohorts, r, u)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	groups, err := h.Groups.ListByCohort(ctx, c.ID)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.OK(w, http.StatusOK, "cohort", cohortDetails{Cohort: visible(u, c), Groups: groups})
}

type descriptionInput struct {
	Description string `json:"description" validate:"required,min=10,max=200" label:"Description"`
}

// ServeUpdateDescription handles PATCH /cohorts/{cohortName}/description.
func (h *Handler) ServeUpdateDescription(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var in descriptionInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	in.Description = htmlsanitize.PlainText(in.Description)
	if err := inputval.Validate(in).Err(); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "update cohort description")
	defer cancel()

	c, err := Load(ctx, h.Cohorts, r, u)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if err := h.Cohorts.UpdateDescription(ctx, c.ID, in.Description); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	h.Audit.CohortUpdated(ctx, u.ID, c.ID)
	c.Description = in.Description
	respond.OK(w, http.StatusOK, "description updated", c)
}

type allowedEmailInput struct {
	Email string `json:"email" validate:"required,email" label:"Email"`
}

// ServeAddAllowedEmail handles PATCH /cohorts/{cohortName}/allowed-emails.
func (h *Handler) ServeAddAllowedEmail(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var in allowedEmailInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if err := inputval.Validate(in).Err(); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	email := normalize.Email(in.Email)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "allow cohort email")
	defer cancel()

	c, err := Load(ctx, h.Cohorts, r, u)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	added, err := h.Cohorts.AddAllowedEmail(ctx, c.ID, email)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if !added {
		respond.Fail(w, r, apperr.Conflict, "email is already on this cohort's allow-list")
		return
	}

	h.Audit.CohortEmailAllowed(ctx, u.ID, c.ID, email)
	respond.OK(w, http.StatusOK, "email allowed", map[string]string{"email": email})
}

// ServeRemoveAllowedEmail handles DELETE /cohorts/{cohortName}/allowed-emails/{email}.
// Existing group memberships are left alone.
func (h *Handler) ServeRemoveAllowedEmail(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	email := normalize.Email(chi.URLParam(r, "email"))
	if !inputval.IsValidEmail(email) {
		respond.Fail(w, r, apperr.Validation, "A valid email address is required.")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "disallow cohort email")
	defer cancel()

	c, err := Load(ctx, h.Cohorts, r, u)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	removed, err := h.Cohorts.RemoveAllowedEmail(ctx, c.ID, email)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if !removed {
		respond.Fail(w, r, apperr.NotFound, "email is not on this cohort's allow-list")
		return
	}

	h.Audit.CohortEmailDisallowed(ctx, u.ID, c.ID, email)
	respond.OK(w, http.StatusOK, "email removed", map[string]string{"email": email})
}
