package testutil

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data. Fixtures write
// straight to the collections so tests can build states (full groups, old
// applications) the service would take many steps to reach.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser creates a user with the given email and role.
func (f *Fixtures) CreateUser(ctx context.Context, email, role string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	local := strings.SplitN(email, "@", 2)[0]
	u := models.User{
		ID:              primitive.NewObjectID(),
		Email:           strings.ToLower(email),
		FullName:        "Test " + local,
		Role:            role,
		EnrolledCohorts: []primitive.ObjectID{},
		SocialLinks:     []models.SocialLink{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateStudent creates a student user.
func (f *Fixtures) CreateStudent(ctx context.Context, email string) models.User {
	f.t.Helper()
	return f.CreateUser(ctx, email, models.RoleStudent)
}

// CreateSystemAdmin creates a system admin user.
func (f *Fixtures) CreateSystemAdmin(ctx context.Context, email string) models.User {
	f.t.Helper()
	return f.CreateUser(ctx, email, models.RoleSystemAdmin)
}

// CreateCohort creates a cohort whose allow-list holds the given emails.
func (f *Fixtures) CreateCohort(ctx context.Context, name string, allowed ...string) models.Cohort {
	f.t.Helper()

	now := time.Now().UTC()
	if allowed == nil {
		allowed = []string{}
	}
	c := models.Cohort{
		ID:            primitive.NewObjectID(),
		Name:          name,
		NameCI:        text.Fold(name),
		Description:   "Cohort created by a test fixture",
		CreatedBy:     primitive.NewObjectID(),
		AllowedEmails: allowed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := f.db.Collection("cohorts").InsertOne(ctx, c); err != nil {
		f.t.Fatalf("failed to create test cohort: %v", err)
	}
	return c
}

// CreateGroup creates a group with creator as its sole member.
func (f *Fixtures) CreateGroup(ctx context.Context, cohortID primitive.ObjectID, name string, creatorID primitive.ObjectID, maxMembers int) models.Group {
	f.t.Helper()

	now := time.Now().UTC()
	g := models.Group{
		ID:               primitive.NewObjectID(),
		CohortID:         cohortID,
		Name:             name,
		NameCI:           text.Fold(name),
		CreatedBy:        creatorID,
		MembersCount:     1,
		MaximumMembers:   maxMembers,
		RoleRequirements: []models.RoleRequirement{},
		Announcements:    []models.Announcement{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if _, err := f.db.Collection("groups").InsertOne(ctx, g); err != nil {
		f.t.Fatalf("failed to create test group: %v", err)
	}
	f.setCurrentGroup(ctx, creatorID, g.ID)
	return g
}

// CreateBareGroup inserts a group with an arbitrary members_count and does
// not touch the creator's current_group. It exists for capacity edge cases
// that the service never produces on its own.
func (f *Fixtures) CreateBareGroup(ctx context.Context, cohortID primitive.ObjectID, name string, creatorID primitive.ObjectID, maxMembers, membersCount int) models.Group {
	f.t.Helper()

	now := time.Now().UTC()
	g := models.Group{
		ID:               primitive.NewObjectID(),
		CohortID:         cohortID,
		Name:             name,
		NameCI:           text.Fold(name),
		CreatedBy:        creatorID,
		MembersCount:     membersCount,
		MaximumMembers:   maxMembers,
		RoleRequirements: []models.RoleRequirement{},
		Announcements:    []models.Announcement{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := f.db.Collection("groups").InsertOne(ctx, g); err != nil {
		f.t.Fatalf("failed to create bare test group: %v", err)
	}
	return g
}

// AddMember puts userID into the group and bumps members_count, bypassing
// capacity checks so tests can build any state.
func (f *Fixtures) AddMember(ctx context.Context, groupID, userID primitive.ObjectID) {
	f.t.Helper()

	f.setCurrentGroup(ctx, userID, groupID)
	_, err := f.db.Collection("groups").UpdateByID(ctx, groupID, bson.M{"$inc": bson.M{"members_count": 1}})
	if err != nil {
		f.t.Fatalf("failed to bump members_count: %v", err)
	}
}

func (f *Fixtures) setCurrentGroup(ctx context.Context, userID, groupID primitive.ObjectID) {
	f.t.Helper()
	_, err := f.db.Collection("users").UpdateByID(ctx, userID, bson.M{"$set": bson.M{"current_group": groupID}})
	if err != nil {
		f.t.Fatalf("failed to set current_group: %v", err)
	}
}

// CreateApplication creates an UNDER_REVIEW application submitted at createdAt.
func (f *Fixtures) CreateApplication(ctx context.Context, g models.Group, applicantID primitive.ObjectID, createdAt time.Time) models.Application {
	f.t.Helper()

	a := models.Application{
		ID:          primitive.NewObjectID(),
		CohortID:    g.CohortID,
		GroupID:     g.ID,
		ApplicantID: applicantID,
		Pitch:       "I would love to build this with you.",
		Skills:      []models.ApplicantSkill{{SkillName: "Go", ExperienceMonths: 12}},
		Resources:   []models.ApplicantResource{},
		Status:      models.ApplicationUnderReview,
		CreatedAt:   createdAt.UTC(),
		UpdatedAt:   createdAt.UTC(),
	}

	if _, err := f.db.Collection("applications").InsertOne(ctx, a); err != nil {
		f.t.Fatalf("failed to create test application: %v", err)
	}
	return a
}

// User reloads a user.
func (f *Fixtures) User(ctx context.Context, id primitive.ObjectID) models.User {
	f.t.Helper()
	var u models.User
	if err := f.db.Collection("users").FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		f.t.Fatalf("failed to reload user %s: %v", id.Hex(), err)
	}
	return u
}

// Group reloads a group.
func (f *Fixtures) Group(ctx context.Context, id primitive.ObjectID) models.Group {
	f.t.Helper()
	var g models.Group
	if err := f.db.Collection("groups").FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		f.t.Fatalf("failed to reload group %s: %v", id.Hex(), err)
	}
	return g
}

// Application reloads an application.
func (f *Fixtures) Application(ctx context.Context, id primitive.ObjectID) models.Application {
	f.t.Helper()
	var a models.Application
	if err := f.db.Collection("applications").FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		f.t.Fatalf("failed to reload application %s: %v", id.Hex(), err)
	}
	return a
}

// Count counts documents matching filter.
func (f *Fixtures) Count(ctx context.Context, coll string, filter bson.M) int64 {
	f.t.Helper()
	n, err := f.db.Collection(coll).CountDocuments(ctx, filter)
	if err != nil {
		f.t.Fatalf("count %s: %v", coll, err)
	}
	return n
}

// AssertMembersCountConsistent fails the test when a group's members_count
// differs from the number of users pointing at it.
func (f *Fixtures) AssertMembersCountConsistent(ctx context.Context, groupID primitive.ObjectID) {
	f.t.Helper()
	g := f.Group(ctx, groupID)
	actual := f.Count(ctx, "users", bson.M{"current_group": groupID})
	if int64(g.MembersCount) != actual {
		f.t.Errorf("group %s: members_count = %d, users in group = %d", g.Name, g.MembersCount, actual)
	}
}
