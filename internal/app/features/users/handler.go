// internal/app/features/users/handler.go
package users

import (
	"context"
	"errors"
	"net/http"

	"github.com/dalemusser/cohorthub/internal/app/membership"
	cohortstore "github.com/dalemusser/cohorthub/internal/app/store/cohorts"
	userstore "github.com/dalemusser/cohorthub/internal/app/store/users"
	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/app/system/auditlog"
	"github.com/dalemusser/cohorthub/internal/app/system/auth"
	"github.com/dalemusser/cohorthub/internal/app/system/inputval"
	"github.com/dalemusser/cohorthub/internal/app/system/normalize"
	"github.com/dalemusser/cohorthub/internal/app/system/respond"
	"github.com/dalemusser/cohorthub/internal/app/system/timeouts"
	"github.com/dalemusser/cohorthub/internal/app/system/txn"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves profile and cohort-admin management endpoints.
type Handler struct {
	DB         *mongo.Database
	Users      *userstore.Store
	Cohorts    *cohortstore.Store
	Membership *membership.Service
	Audit      *auditlog.Logger
	Log        *zap.Logger
}

func NewHandler(db *mongo.Database, svc *membership.Service, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		DB:         db,
		Users:      userstore.New(db),
		Cohorts:    cohortstore.New(db),
		Membership: svc,
		Audit:      audit,
		Log:        logger,
	}
}

// ServeMe handles GET /users/me. The middleware loaded the user on this
// request, so role and current group are current.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	respond.OK(w, http.StatusOK, "profile", u)
}

// ServeMyApplications handles GET /users/me/applications.
func (h *Handler) ServeMyApplications(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list own applications")
	defer cancel()

	apps, err := h.Membership.ListForApplicant(ctx, u.ID)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	respond.OK(w, http.StatusOK, "applications", apps)
}

type socialLinksInput struct {
	SocialLinks []socialLinkInput `json:"social_links" validate:"max=10,dive" label:"Social links"`
}

type socialLinkInput struct {
	Platform string `json:"platform" validate:"required,max=30" label:"Platform"`
	URL      string `json:"url" validate:"required,httpurl" label:"Link URL"`
}

// ServeUpdateSocialLinks handles PATCH /users/me/social-links. The list
// replaces the stored one; an empty list clears it.
func (h *Handler) ServeUpdateSocialLinks(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var in socialLinksInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if err := inputval.Validate(in).Err(); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	links := make([]models.SocialLink, 0, len(in.SocialLinks))
	for _, l := range in.SocialLinks {
		links = append(links, models.SocialLink{Platform: normalize.Name(l.Platform), URL: l.URL})
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "update social links")
	defer cancel()

	if err := h.Users.SetSocialLinks(ctx, u.ID, links); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	updated := *u
	updated.SocialLinks = links
	respond.OK(w, http.StatusOK, "social links updated", updated)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Cohort admins                                                                |
| Promotion and demotion change the role and every allow-list in one           |
| transaction, so a cohort admin always appears on every cohort.               |
*─────────────────────────────────────────────────────────────────────────────*/

type cohortAdminInput struct {
	Email string `json:"email" validate:"required,email" label:"Email"`
}

type roleChangeResult struct {
	User           *models.User `json:"user"`
	CohortsUpdated int64        `json:"cohorts_updated"`
}

// ServeCreateCohortAdmin handles POST /users/cohort-admins.
func (h *Handler) ServeCreateCohortAdmin(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var in cohortAdminInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if err := inputval.Validate(in).Err(); err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "grant cohort admin")
	defer cancel()

	res, err := h.changeRole(ctx, normalize.Email(in.Email), models.RoleStudent, models.RoleCohortAdmin)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	h.Audit.CohortAdminGranted(ctx, actor.ID, res.User.ID, res.CohortsUpdated)
	h.Log.Info("cohort admin granted",
		zap.String("actor_id", actor.ID.Hex()),
		zap.String("user_id", res.User.ID.Hex()),
		zap.Int64("cohorts_updated", res.CohortsUpdated))
	respond.OK(w, http.StatusCreated, "cohort admin created", res)
}

// ServeRevokeCohortAdmin handles DELETE /users/cohort-admins/{email}.
func (h *Handler) ServeRevokeCohortAdmin(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	email := normalize.Email(chi.URLParam(r, "email"))
	if !inputval.IsValidEmail(email) {
		respond.Fail(w, r, apperr.Validation, "A valid email address is required.")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "revoke cohort admin")
	defer cancel()

	res, err := h.changeRole(ctx, email, models.RoleCohortAdmin, models.RoleStudent)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	h.Audit.CohortAdminRevoked(ctx, actor.ID, res.User.ID, res.CohortsUpdated)
	h.Log.Info("cohort admin revoked",
		zap.String("actor_id", actor.ID.Hex()),
		zap.String("user_id", res.User.ID.Hex()),
		zap.Int64("cohorts_updated", res.CohortsUpdated))
	respond.OK(w, http.StatusOK, "cohort admin revoked", res)
}

func (h *Handler) changeRole(ctx context.Context, email, from, to string) (roleChangeResult, error) {
	var res roleChangeResult
	err := txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		u, err := h.Users.ChangeRole(ctx, email, from, to)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return h.explainRoleMiss(ctx, email, from)
		}
		if err != nil {
			return err
		}
		res.User = u

		if to == models.RoleCohortAdmin {
			res.CohortsUpdated, err = h.Cohorts.AllowEverywhere(ctx, email)
		} else {
			res.CohortsUpdated, err = h.Cohorts.DisallowEverywhere(ctx, email)
		}
		return err
	})
	return res, err
}

// explainRoleMiss turns a ChangeRole miss into the reason the caller sees.
func (h *Handler) explainRoleMiss(ctx context.Context, email, from string) error {
	u, err := h.Users.GetByEmail(ctx, email)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.New(apperr.NotFound, "no user with that email has signed in yet")
	}
	if err != nil {
		return err
	}
	if from == models.RoleStudent {
		return apperr.New(apperr.Conflict, "user is already a "+u.Role)
	}
	return apperr.New(apperr.Conflict, "user is not a cohort admin")
}
