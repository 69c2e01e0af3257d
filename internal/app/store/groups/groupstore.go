package groupstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/system/normalize"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

var ErrDuplicateGroupName = errors.New("a group with this name already exists in the cohort")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups")}
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// GetByName finds a group inside a cohort by case-insensitive name.
func (s *Store) GetByName(ctx context.Context, cohortID primitive.ObjectID, name string) (models.Group, error) {
	var g models.Group
	err := s.c.FindOne(ctx, bson.M{
		"cohort_id": cohortID,
		"name_ci":   text.Fold(normalize.Name(name)),
	}).Decode(&g)
	if err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// ListByCohort returns the cohort's groups ordered by name.
func (s *Store) ListByCohort(ctx context.Context, cohortID primitive.ObjectID) ([]models.Group, error) {
	cur, err := s.c.Find(ctx, bson.M{"cohort_id": cohortID},
		options.Find().SetSort(bson.D{{Key: "name_ci", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Group
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts a group. The caller sets MembersCount (1 for the creator).
func (s *Store) Create(ctx context.Context, g models.Group) (models.Group, error) {
	now := time.Now().UTC()
	g.ID = primitive.NewObjectID()
	g.Name = normalize.Name(g.Name)
	g.NameCI = text.Fold(g.Name)
	if g.RoleRequirements == nil {
		g.RoleRequirements = []models.RoleRequirement{}
	}
	if g.Announcements == nil {
		g.Announcements = []models.Announcement{}
	}
	g.CreatedAt = now
	g.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, g); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Group{}, ErrDuplicateGroupName
		}
		return models.Group{}, err
	}
	return g, nil
}

// IncrementMembers adds one member only while the group has room.
// Returns false when the group is full or missing.
func (s *Store) IncrementMembers(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{
			"_id":   id,
			"$expr": bson.M{"$lt": bson.A{"$members_count", "$maximum_members"}},
		},
		bson.M{
			"$inc": bson.M{"members_count": 1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// Claim writes a fresh write_token on the group so a transaction that only
// read the group still conflicts with any concurrent write or delete of it.
// Returns false when the group is gone.
func (s *Store) Claim(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"write_token": primitive.NewObjectID(), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// DecrementMembers removes one member, never going below one: the creator
// always remains. Returns false if the guard fails.
func (s *Store) DecrementMembers(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "members_count": bson.M{"$gt": 1}},
		bson.M{
			"$inc": bson.M{"members_count": -1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// SetRoleRequirements replaces the group's open roles.
func (s *Store) SetRoleRequirements(ctx context.Context, id primitive.ObjectID, reqs []models.RoleRequirement) error {
	if reqs == nil {
		reqs = []models.RoleRequirement{}
	}
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"role_requirements": reqs,
		"updated_at":        time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// AddAnnouncement appends an announcement, keeping the newest first.
func (s *Store) AddAnnouncement(ctx context.Context, id primitive.ObjectID, a models.Announcement) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{
		"$push": bson.M{"announcements": bson.M{"$each": bson.A{a}, "$position": 0}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Delete removes a group by ID. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// CountByCohort returns the number of groups in a cohort.
func (s *Store) CountByCohort(ctx context.Context, cohortID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"cohort_id": cohortID})
}
