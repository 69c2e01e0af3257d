// internal/app/store/cohorts/store.go
package cohortstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/system/normalize"
	"github.com/dalemusser/cohorthub/internal/app/system/paging"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicateCohortName is returned when the name is already in use.
var ErrDuplicateCohortName = errors.New("a cohort with this name already exists")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("cohorts")}
}

// Create inserts a cohort with a normalized allow-list.
func (s *Store) Create(ctx context.Context, c models.Cohort) (models.Cohort, error) {
	now := time.Now().UTC()
	c.ID = primitive.NewObjectID()
	c.Name = normalize.Name(c.Name)
	c.NameCI = text.Fold(c.Name)
	c.AllowedEmails = normalize.Emails(c.AllowedEmails)
	c.CreatedAt = now
	c.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, c); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Cohort{}, ErrDuplicateCohortName
		}
		return models.Cohort{}, err
	}
	return c, nil
}

// GetByName finds a cohort by case-insensitive name.
func (s *Store) GetByName(ctx context.Context, name string) (models.Cohort, error) {
	var c models.Cohort
	if err := s.c.FindOne(ctx, bson.M{"name_ci": text.Fold(normalize.Name(name))}).Decode(&c); err != nil {
		return models.Cohort{}, err
	}
	return c, nil
}

// GetByID loads a cohort.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Cohort, error) {
	var c models.Cohort
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return models.Cohort{}, err
	}
	return c, nil
}

// List returns one keyset page of cohorts ordered by name_ci, fetched
// PageSize+1 deep so the caller can detect a following page. When email is
// non-empty only cohorts whose allow-list contains it are returned.
// Allow-lists are omitted from the result.
func (s *Store) List(ctx context.Context, email string, ks paging.KeysetConfig) ([]models.Cohort, error) {
	filter := bson.M{}
	if email != "" {
		filter["allowed_emails"] = normalize.Email(email)
	}
	if window := ks.KeysetWindow("name_ci"); window != nil {
		filter["$or"] = window["$or"]
	}
	opts := options.Find().SetProjection(bson.M{"allowed_emails": 0})
	ks.ApplyToFind(opts, "name_ci")

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Cohort{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IsEmailAllowedAnywhere reports whether any cohort allow-lists email.
// Registration is gated on this.
func (s *Store) IsEmailAllowedAnywhere(ctx context.Context, email string) (bool, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{"allowed_emails": normalize.Email(email)},
		options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CohortIDsForEmail returns the IDs of every cohort that allow-lists email.
func (s *Store) CohortIDsForEmail(ctx context.Context, email string) ([]primitive.ObjectID, error) {
	cur, err := s.c.Find(ctx, bson.M{"allowed_emails": normalize.Email(email)},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []primitive.ObjectID
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, cur.Err()
}

// UpdateDescription sets a new description.
func (s *Store) UpdateDescription(ctx context.Context, id primitive.ObjectID, desc string) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"description": desc,
		"updated_at":  time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// AddAllowedEmail adds an email to one cohort. Returns false if it was
// already present.
func (s *Store) AddAllowedEmail(ctx context.Context, id primitive.ObjectID, email string) (bool, error) {
	res, err := s.c.UpdateByID(ctx, id, bson.M{
		"$addToSet": bson.M{"allowed_emails": normalize.Email(email)},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		return false, mongo.ErrNoDocuments
	}
	return res.ModifiedCount == 1, nil
}

// RemoveAllowedEmail removes an email from one cohort. Returns false if it
// was not present.
func (s *Store) RemoveAllowedEmail(ctx context.Context, id primitive.ObjectID, email string) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "allowed_emails": normalize.Email(email)},
		bson.M{
			"$pull": bson.M{"allowed_emails": normalize.Email(email)},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// AllowEverywhere adds email to every cohort (cohort admins see all cohorts).
func (s *Store) AllowEverywhere(ctx context.Context, email string) (int64, error) {
	res, err := s.c.UpdateMany(ctx, bson.M{}, bson.M{
		"$addToSet": bson.M{"allowed_emails": normalize.Email(email)},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// DisallowEverywhere removes email from every cohort.
func (s *Store) DisallowEverywhere(ctx context.Context, email string) (int64, error) {
	e := normalize.Email(email)
	res, err := s.c.UpdateMany(ctx, bson.M{"allowed_emails": e}, bson.M{
		"$pull": bson.M{"allowed_emails": e},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
