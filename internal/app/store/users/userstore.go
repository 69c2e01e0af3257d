package userstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/system/normalize"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrDuplicateEmail is returned when a user with the same email exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	// ErrDuplicateUsername is returned when the generated username collides.
	ErrDuplicateUsername = errors.New("username is already taken")
	errBadRole           = errors.New(`role must be "system_admin"|"cohort_admin"|"student"`)
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail looks up a user by normalized email. Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByGoogleID looks up a user by the Google account subject.
func (s *Store) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"google_id": googleID}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user. current_group always starts empty.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.Email = normalize.Email(u.Email)
	u.FullName = normalize.Name(u.FullName)
	u.CurrentGroup = nil
	if u.Role == "" {
		u.Role = models.RoleStudent
	}
	switch u.Role {
	case models.RoleSystemAdmin, models.RoleCohortAdmin, models.RoleStudent:
	default:
		return models.User{}, errBadRole
	}
	if u.EnrolledCohorts == nil {
		u.EnrolledCohorts = []primitive.ObjectID{}
	}
	if u.SocialLinks == nil {
		u.SocialLinks = []models.SocialLink{}
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			if strings.Contains(err.Error(), "username") {
				return models.User{}, ErrDuplicateUsername
			}
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// LinkGoogleAccount records the Google subject and refreshes profile fields
// from the identity provider.
func (s *Store) LinkGoogleAccount(ctx context.Context, id primitive.ObjectID, googleID, fullName, avatarURL string) error {
	set := bson.M{
		"google_id":  googleID,
		"updated_at": time.Now().UTC(),
	}
	if fullName != "" {
		set["full_name"] = normalize.Name(fullName)
	}
	if avatarURL != "" {
		set["avatar_url"] = avatarURL
	}
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": set})
	return err
}

// SetRefreshTokenHash stores the hash of the live refresh token.
func (s *Store) SetRefreshTokenHash(ctx context.Context, id primitive.ObjectID, hash string) error {
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"refresh_token_hash": hash,
		"updated_at":         time.Now().UTC(),
	}})
	return err
}

// RotateRefreshTokenHash swaps the stored hash only while it still equals
// oldHash. Returns false when another rotation got there first.
func (s *Store) RotateRefreshTokenHash(ctx context.Context, id primitive.ObjectID, oldHash, newHash string) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "refresh_token_hash": oldHash},
		bson.M{"$set": bson.M{"refresh_token_hash": newHash, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// ClearRefreshTokenHash signs the user out of every device.
func (s *Store) ClearRefreshTokenHash(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.UpdateByID(ctx, id, bson.M{
		"$unset": bson.M{"refresh_token_hash": ""},
		"$set":   bson.M{"updated_at": time.Now().UTC()},
	})
	return err
}

// SetSocialLinks replaces the user's profile links.
func (s *Store) SetSocialLinks(ctx context.Context, id primitive.ObjectID, links []models.SocialLink) error {
	if links == nil {
		links = []models.SocialLink{}
	}
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"social_links": links,
		"updated_at":   time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// ChangeRole moves a user from one role to another. It only matches when
// the user currently holds fromRole, so concurrent promotions cannot stack.
// Returns the updated user, or mongo.ErrNoDocuments when nothing matched.
func (s *Store) ChangeRole(ctx context.Context, email, fromRole, toRole string) (*models.User, error) {
	var u models.User
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"email": normalize.Email(email), "role": fromRole},
		bson.M{"$set": bson.M{"role": toRole, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// EnsureSystemAdmin makes the user with email a system admin, creating the
// account when it does not exist. It reports what it did: "created",
// "promoted" or "unchanged".
func (s *Store) EnsureSystemAdmin(ctx context.Context, email, fullName string) (*models.User, string, error) {
	email = normalize.Email(email)
	existing, err := s.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.Role == models.RoleSystemAdmin:
		return existing, "unchanged", nil
	case err == nil:
		var u models.User
		err := s.c.FindOneAndUpdate(ctx,
			bson.M{"_id": existing.ID},
			bson.M{"$set": bson.M{"role": models.RoleSystemAdmin, "updated_at": time.Now().UTC()}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&u)
		if err != nil {
			return nil, "", err
		}
		return &u, "promoted", nil
	case !errors.Is(err, mongo.ErrNoDocuments):
		return nil, "", err
	}

	if fullName == "" {
		fullName = "System Admin"
	}
	u, err := s.Create(ctx, models.User{Email: email, FullName: fullName, Role: models.RoleSystemAdmin})
	if errors.Is(err, ErrDuplicateEmail) {
		// Another instance created it between our read and insert.
		return s.EnsureSystemAdmin(ctx, email, fullName)
	}
	if err != nil {
		return nil, "", err
	}
	return &u, "created", nil
}

// EnrollCohort records that the user belongs to a cohort.
func (s *Store) EnrollCohort(ctx context.Context, id, cohortID primitive.ObjectID) error {
	_, err := s.c.UpdateByID(ctx, id, bson.M{
		"$addToSet": bson.M{"enrolled_cohorts": cohortID},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	})
	return err
}

/*─────────────────────────────────────────────────────────────────────────────*
| Group membership                                                            |
| current_group is written only through these conditional updates.           |
*─────────────────────────────────────────────────────────────────────────────*/

// AssignGroup sets current_group only if the user is not in any group.
// Returns false when the precondition no longer holds (or the user is gone).
func (s *Store) AssignGroup(ctx context.Context, userID, groupID primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": userID, "current_group": nil},
		bson.M{"$set": bson.M{"current_group": groupID, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// ClaimUngrouped writes a fresh write_token on the user only while the user
// is in no group, so a concurrent group assignment conflicts with the caller's
// transaction. Returns false when the user is in a group (or gone).
func (s *Store) ClaimUngrouped(ctx context.Context, userID primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": userID, "current_group": nil},
		bson.M{"$set": bson.M{"write_token": primitive.NewObjectID(), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// ReleaseGroup clears current_group only if it still equals groupID.
// Returns false when the user is not a member of that group.
func (s *Store) ReleaseGroup(ctx context.Context, userID, groupID primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": userID, "current_group": groupID},
		bson.M{"$set": bson.M{"current_group": nil, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// ReleaseAllFromGroup clears current_group for every member of groupID.
func (s *Store) ReleaseAllFromGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"current_group": groupID},
		bson.M{"$set": bson.M{"current_group": nil, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// CountMembers returns how many users have current_group == groupID.
func (s *Store) CountMembers(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"current_group": groupID})
}

// ListMembers returns the members of a group ordered by name.
func (s *Store) ListMembers(ctx context.Context, groupID primitive.ObjectID) ([]models.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "full_name", Value: 1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"refresh_token_hash": 0})
	cur, err := s.c.Find(ctx, bson.M{"current_group": groupID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EmailsByRole returns the email of every user holding role.
func (s *Store) EmailsByRole(ctx context.Context, role string) ([]string, error) {
	cur, err := s.c.Find(ctx, bson.M{"role": role}, options.Find().SetProjection(bson.M{"email": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var row struct {
			Email string `bson:"email"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row.Email)
	}
	return out, cur.Err()
}

// EmailsByID maps each of ids that names a user to that user's email.
func (s *Store) EmailsByID(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error) {
	out := make(map[primitive.ObjectID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetProjection(bson.M{"email": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			ID    primitive.ObjectID `bson:"_id"`
			Email string             `bson:"email"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.ID] = row.Email
	}
	return out, cur.Err()
}
