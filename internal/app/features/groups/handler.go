// internal/app/features/groups/handler.go
package groups

import (
	"context"
	"errors"
	"net/http"

	"github.com/dalemusser/cohorthub/internal/app/features/cohorts"
	"github.com/dalemusser/cohorthub/internal/app/membership"
	"github.com/dalemusser/cohorthub/internal/app/store/audit"
	cohortstore "github.com/dalemusser/cohorthub/internal/app/store/cohorts"
	groupstore "github.com/dalemusser/cohorthub/internal/app/store/groups"
	userstore "github.com/dalemusser/cohorthub/internal/app/store/users"
	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/app/system/auditlog"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves the group and application endpoints nested under
// /cohorts/{cohortName}/groups. Every membership change goes through
// the membership service; this package only resolves names and checks
// who may ask.
type Handler struct {
	Cohorts    *cohortstore.Store
	Groups     *groupstore.Store
	Users      *userstore.Store
	Membership *membership.Service
	Audit      *auditlog.Logger
	Events     *audit.Store
	Log        *zap.Logger
}

func NewHandler(db *mongo.Database, svc *membership.Service, auditLog *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Cohorts:    cohortstore.New(db),
		Groups:     groupstore.New(db),
		Users:      userstore.New(db),
		Membership: svc,
		Audit:      auditLog,
		Events:     audit.New(db),
		Log:        logger,
	}
}

// target is the cohort and group named by the URL.
type target struct {
	cohort models.Cohort
	group  models.Group
}

// loadGroup resolves {cohortName} and {groupName}. The caller must be
// allowed into the cohort; group-level checks are left to the handler.
func (h *Handler) loadGroup(ctx context.Context, r *http.Request, u *models.User) (target, error) {
	c, err := cohorts.Load(ctx, h.Cohorts, r, u)
	if err != nil {
		return target{}, err
	}
	g, err := h.Groups.GetByName(ctx, c.ID, chi.URLParam(r, "groupName"))
	if errors.Is(err, mongo.ErrNoDocuments) {
		return target{}, apperr.New(apperr.NotFound, "group not found")
	}
	if err != nil {
		return target{}, err
	}
	return target{cohort: c, group: g}, nil
}

// applicationID parses {applicationID}.
func applicationID(r *http.Request) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "applicationID"))
	if err != nil {
		return primitive.NilObjectID, apperr.New(apperr.NotFound, "application not found")
	}
	return id, nil
}
