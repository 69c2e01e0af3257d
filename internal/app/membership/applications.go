package membership

import (
	"context"
	"errors"
	"strings"
	"time"

	applicationstore "github.com/dalemusser/cohorthub/internal/app/store/applications"
	"github.com/dalemusser/cohorthub/internal/app/store/audit"
	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ApplyInput is a validated application submission.
type ApplyInput struct {
	UserID    primitive.ObjectID
	GroupID   primitive.ObjectID
	Pitch     string
	Skills    []models.ApplicantSkill
	Resources []models.ApplicantResource
}

// Apply creates an UNDER_REVIEW application. Capacity is checked but not
// reserved; Approve re-checks it. The group and the applicant are claimed
// inside the transaction so the read checks cannot go stale before commit.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (app models.Application, err error) {
	defer s.observe("apply", time.Now(), &err)

	var group models.Group
	err = s.inTxn(ctx, func(ctx context.Context) error {
		g, err := s.loadGroup(ctx, in.GroupID)
		if err != nil {
			return err
		}
		group = g

		u, err := s.loadUser(ctx, in.UserID)
		if err != nil {
			return err
		}
		if g.CreatedBy == u.ID {
			return apperr.New(apperr.Forbidden, "group creators cannot apply to their own group")
		}
		if u.CurrentGroup != nil {
			if *u.CurrentGroup == g.ID {
				return apperr.New(apperr.AlreadyInGroup, "you are already a member of this group")
			}
			return apperr.New(apperr.AlreadyInGroup, "you are already a member of a group")
		}

		pending, err := s.apps.HasPending(ctx, u.ID)
		if err != nil {
			return err
		}
		if pending {
			return apperr.New(apperr.DuplicateApplication,
				"you already have a pending application; wait for it to be reviewed or withdraw it before applying again")
		}
		if g.IsFull() {
			return apperr.Newf(apperr.CapacityExceeded, "group %q is full", g.Name).
				WithDetail("maximum_members", g.MaximumMembers)
		}

		// Claim both documents: a concurrent DeleteGroup or CreateGroup must
		// conflict with this transaction.
		ok, err := s.groups.Claim(ctx, g.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.NotFound, "group not found")
		}
		ok, err = s.users.ClaimUngrouped(ctx, u.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.AlreadyInGroup, "you are already a member of a group")
		}

		app, err = s.apps.Create(ctx, models.Application{
			CohortID:    g.CohortID,
			GroupID:     g.ID,
			ApplicantID: u.ID,
			Pitch:       strings.TrimSpace(in.Pitch),
			Skills:      in.Skills,
			Resources:   in.Resources,
			CreatedAt:   s.now(),
		})
		if errors.Is(err, applicationstore.ErrPendingApplication) {
			return apperr.Wrap(err, apperr.DuplicateApplication, "you already have a pending application")
		}
		return err
	})
	if err != nil {
		return models.Application{}, err
	}

	s.log.Info("application submitted",
		zap.String("application_id", app.ID.Hex()),
		zap.String("group_id", group.ID.Hex()),
		zap.String("applicant_id", in.UserID.Hex()))
	s.audit.ApplicationEvent(ctx, audit.EventApplicationSubmitted, in.UserID, group, app)
	return app, nil
}

// Approve admits the applicant: the application becomes APPROVED, the group
// gains a member and the applicant's current group is set, all in one
// transaction. Capacity is re-checked here since Apply reserved nothing.
func (s *Service) Approve(ctx context.Context, applicationID, reviewerID primitive.ObjectID, feedback string) (app models.Application, err error) {
	defer s.observe("approve", time.Now(), &err)

	feedback = reviewFeedback(feedback)
	var group models.Group
	err = s.inTxn(ctx, func(ctx context.Context) error {
		// Preconditions, all read before any write.
		a, err := s.loadApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if a.Status != models.ApplicationUnderReview {
			return invalidTransition(a, models.ApplicationApproved)
		}
		g, err := s.loadGroup(ctx, a.GroupID)
		if err != nil {
			return err
		}
		group = g
		if g.IsFull() {
			return apperr.Newf(apperr.CapacityExceeded, "group %q is full", g.Name).
				WithDetail("maximum_members", g.MaximumMembers)
		}
		u, err := s.loadUser(ctx, a.ApplicantID)
		if err != nil {
			return err
		}
		if u.CurrentGroup != nil {
			return apperr.New(apperr.AlreadyInGroup, "applicant has already joined a group")
		}

		// Guarded writes. Each guard restates its precondition so a write
		// that races past the reads above still cannot break an invariant.
		now := s.now()
		reviewed, err := s.apps.Review(ctx, a.ID, models.ApplicationApproved, reviewerID, feedback, now)
		if err != nil {
			return err
		}
		if reviewed == nil {
			return invalidTransition(a, models.ApplicationApproved)
		}
		ok, err := s.groups.IncrementMembers(ctx, g.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Newf(apperr.CapacityExceeded, "group %q is full", g.Name)
		}
		ok, err = s.users.AssignGroup(ctx, u.ID, g.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.AlreadyInGroup, "applicant has already joined a group")
		}

		app = *reviewed
		return nil
	})
	if err != nil {
		return models.Application{}, err
	}

	s.log.Info("application approved",
		zap.String("application_id", app.ID.Hex()),
		zap.String("group_id", group.ID.Hex()),
		zap.String("reviewer_id", reviewerID.Hex()))
	s.audit.ApplicationEvent(ctx, audit.EventApplicationApproved, reviewerID, group, app)
	return app, nil
}

// Deny rejects an UNDER_REVIEW application with a single conditional update.
func (s *Service) Deny(ctx context.Context, applicationID, reviewerID primitive.ObjectID, feedback string) (app models.Application, err error) {
	defer s.observe("deny", time.Now(), &err)

	reviewed, err := s.apps.Review(ctx, applicationID, models.ApplicationDenied, reviewerID, reviewFeedback(feedback), s.now())
	if err != nil {
		return models.Application{}, err
	}
	if reviewed == nil {
		// Nothing matched: either it does not exist or it already left UNDER_REVIEW.
		cur, err := s.loadApplication(ctx, applicationID)
		if err != nil {
			return models.Application{}, err
		}
		return models.Application{}, invalidTransition(cur, models.ApplicationDenied)
	}
	app = *reviewed

	s.log.Info("application denied",
		zap.String("application_id", app.ID.Hex()),
		zap.String("reviewer_id", reviewerID.Hex()))
	if g, gerr := s.groups.GetByID(ctx, app.GroupID); gerr == nil {
		s.audit.ApplicationEvent(ctx, audit.EventApplicationDenied, reviewerID, g, app)
	}
	return app, nil
}

// Withdraw lets the applicant retract an UNDER_REVIEW application once the
// cooldown since submission has elapsed.
func (s *Service) Withdraw(ctx context.Context, applicationID, applicantID primitive.ObjectID) (app models.Application, err error) {
	defer s.observe("withdraw", time.Now(), &err)

	cur, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return models.Application{}, err
	}
	if cur.ApplicantID != applicantID {
		return models.Application{}, apperr.New(apperr.Forbidden, "only the applicant can withdraw an application")
	}
	if cur.Status != models.ApplicationUnderReview {
		return models.Application{}, invalidTransition(cur, models.ApplicationWithdrawn)
	}

	now := s.now()
	if remaining := cur.CreatedAt.Add(s.cfg.WithdrawalCooldown).Sub(now); remaining > 0 {
		return models.Application{}, apperr.Newf(apperr.WithdrawalTooEarly,
			"applications can be withdrawn %s after submission; try again in %s",
			formatWait(s.cfg.WithdrawalCooldown), formatWait(remaining)).
			WithDetail("remaining_seconds", int64(remaining.Round(time.Second)/time.Second))
	}

	withdrawn, err := s.apps.Withdraw(ctx, applicationID, applicantID, now.Add(-s.cfg.WithdrawalCooldown), now)
	if err != nil {
		return models.Application{}, err
	}
	if withdrawn == nil {
		// Lost a race with a reviewer between the read and the update.
		latest, err := s.loadApplication(ctx, applicationID)
		if err != nil {
			return models.Application{}, err
		}
		return models.Application{}, invalidTransition(latest, models.ApplicationWithdrawn)
	}
	app = *withdrawn

	s.log.Info("application withdrawn",
		zap.String("application_id", app.ID.Hex()),
		zap.String("applicant_id", applicantID.Hex()))
	if g, gerr := s.groups.GetByID(ctx, app.GroupID); gerr == nil {
		s.audit.ApplicationEvent(ctx, audit.EventApplicationWithdrawn, applicantID, g, app)
	}
	return app, nil
}

func reviewFeedback(f string) string {
	if f = strings.TrimSpace(f); f == "" {
		return models.DefaultReviewFeedback
	}
	return f
}
