// internal/app/store/applications/store.go
package applicationstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/cohorthub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrPendingApplication is returned when the applicant already has an
// UNDER_REVIEW application. It is raised by the partial unique index
// uniq_applications_pending_applicant, so it holds across concurrent inserts.
var ErrPendingApplication = errors.New("applicant already has an application under review")

// Store manages group applications.
type Store struct {
	c *mongo.Collection
}

// New creates an application Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("applications")}
}

// Create inserts an UNDER_REVIEW application. CreatedAt is kept when set so
// callers with an injected clock control the withdrawal cooldown origin.
func (s *Store) Create(ctx context.Context, a models.Application) (models.Application, error) {
	a.ID = primitive.NewObjectID()
	a.Status = models.ApplicationUnderReview
	a.ReviewerID = nil
	a.Feedback = ""
	a.ReviewedAt = nil
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = a.CreatedAt
	if a.Skills == nil {
		a.Skills = []models.ApplicantSkill{}
	}
	if a.Resources == nil {
		a.Resources = []models.ApplicantResource{}
	}
	if _, err := s.c.InsertOne(ctx, a); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Application{}, ErrPendingApplication
		}
		return models.Application{}, err
	}
	return a, nil
}

// GetByID loads an application.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Application, error) {
	var a models.Application
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		return models.Application{}, err
	}
	return a, nil
}

// HasPending reports whether the user has an UNDER_REVIEW application anywhere.
func (s *Store) HasPending(ctx context.Context, applicantID primitive.ObjectID) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{
		"applicant_id": applicantID,
		"status":       models.ApplicationUnderReview,
	}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, err
}

// ListByGroup returns a group's applications, newest first. An empty status
// returns every status.
func (s *Store) ListByGroup(ctx context.Context, groupID primitive.ObjectID, status string) ([]models.Application, error) {
	filter := bson.M{"group_id": groupID}
	if status != "" {
		filter["status"] = status
	}
	return s.find(ctx, filter)
}

// ListByApplicant returns a user's applications, newest first.
func (s *Store) ListByApplicant(ctx context.Context, applicantID primitive.ObjectID) ([]models.Application, error) {
	return s.find(ctx, bson.M{"applicant_id": applicantID})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Application, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Application{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Transitions                                                                 |
| Each is a single compare-and-swap on {_id, status: UNDER_REVIEW}. A nil     |
| application with a nil error means the precondition did not hold.          |
*─────────────────────────────────────────────────────────────────────────────*/

// Review moves an UNDER_REVIEW application to APPROVED or DENIED.
func (s *Store) Review(ctx context.Context, id primitive.ObjectID, toStatus string, reviewerID primitive.ObjectID, feedback string, at time.Time) (*models.Application, error) {
	return s.transition(ctx, id, bson.M{
		"$set": bson.M{
			"status":      toStatus,
			"reviewer_id": reviewerID,
			"feedback":    feedback,
			"reviewed_at": at,
			"updated_at":  at,
		},
	})
}

// Withdraw moves an UNDER_REVIEW application owned by applicantID to
// WITHDRAWN, clearing reviewer fields. createdBefore encodes the cooldown:
// only applications created at or before it match.
func (s *Store) Withdraw(ctx context.Context, id, applicantID primitive.ObjectID, createdBefore, at time.Time) (*models.Application, error) {
	var a models.Application
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{
			"_id":          id,
			"applicant_id": applicantID,
			"status":       models.ApplicationUnderReview,
			"created_at":   bson.M{"$lte": createdBefore},
		},
		bson.M{
			"$set":   bson.M{"status": models.ApplicationWithdrawn, "updated_at": at},
			"$unset": bson.M{"reviewer_id": "", "feedback": "", "reviewed_at": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) transition(ctx context.Context, id primitive.ObjectID, update bson.M) (*models.Application, error) {
	var a models.Application
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.ApplicationUnderReview},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteByGroup removes every application that references groupID.
func (s *Store) DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
