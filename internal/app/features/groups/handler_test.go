package groups_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/features/groups"
	"github.com/dalemusser/cohorthub/internal/app/membership"
	"github.com/dalemusser/cohorthub/internal/app/store/audit"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/dalemusser/cohorthub/internal/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

const cohortName = "Spring Cohort 2026"

type env struct {
	h     *groups.Handler
	fx    *testutil.Fixtures
	ctx   context.Context
	clock *clockwork.FakeClock

	cohort  models.Cohort
	creator models.User
	ada     models.User
	group   models.Group
}

func setup(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupSchemaDB(t)
	ctx, cancel := testutil.TestContext()
	t.Cleanup(cancel)

	clock := clockwork.NewFakeClockAt(time.Now().UTC())
	svc := membership.New(db, membership.Config{WithdrawalCooldown: 24 * time.Hour, DefaultMaximumMembers: 4},
		zap.NewNop(), membership.WithClock(clock))

	fx := testutil.NewFixtures(t, db)
	cohort := fx.CreateCohort(ctx, cohortName, "creator@example.com", "ada@example.com", "bob@example.com")
	creator := fx.CreateStudent(ctx, "creator@example.com")
	group := fx.CreateGroup(ctx, cohort.ID, "Night Owls", creator.ID, 3)
	return &env{
		h:       groups.NewHandler(db, svc, testutil.AuditLogger(db), zap.NewNop()),
		fx:      fx,
		ctx:     ctx,
		clock:   clock,
		cohort:  cohort,
		creator: fx.User(ctx, creator.ID),
		ada:     fx.CreateStudent(ctx, "ada@example.com"),
		group:   group,
	}
}

// join adds ada to the group and refreshes the request user.
func (e *env) join() {
	e.fx.AddMember(e.ctx, e.group.ID, e.ada.ID)
	e.ada = e.fx.User(e.ctx, e.ada.ID)
}

// req builds an authenticated request with the route params handlers read.
func req(t *testing.T, method string, body any, u models.User, params ...string) *http.Request {
	t.Helper()
	r := testutil.NewAuthenticatedRequest(t, method, "/api/v1/cohorts/x/groups", body, u)
	r = testutil.WithChiURLParam(r, "cohortName", cohortName)
	for i := 0; i+1 < len(params); i += 2 {
		r = testutil.WithChiURLParam(r, params[i], params[i+1])
	}
	return r
}

func (e *env) groupReq(t *testing.T, method string, body any, u models.User, params ...string) *http.Request {
	return req(t, method, body, u, append([]string{"groupName", e.group.Name}, params...)...)
}

func applyBody() map[string]any {
	return map[string]any{
		"pitch":  "I have shipped two Go services and want to help.",
		"skills": []map[string]any{{"skill_name": "Go", "experience_months": 18}},
		"resources": []map[string]any{
			{"name": "GitHub", "url": "https://github.com/ada"},
		},
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Groups                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

func TestServeCreate(t *testing.T) {
	e := setup(t)
	bob := e.fx.CreateStudent(e.ctx, "bob@example.com")
	stranger := e.fx.CreateStudent(e.ctx, "stranger@example.com")

	body := map[string]any{
		"name": "Early Birds",
		"role_requirements": []map[string]any{{
			"role_name":  "Backend",
			"tech_stack": []map[string]any{{"skill_name": "Go", "experience_months": 6, "mandatory": true}},
		}},
	}

	rec := testutil.NewRecorder()
	e.h.ServeCreate(rec, req(t, http.MethodPost, body, bob))
	rec.AssertStatus(t, http.StatusCreated)
	var g models.Group
	rec.DecodeData(t, &g)
	assert.Equal(t, 1, g.MembersCount)
	assert.Equal(t, 4, g.MaximumMembers)
	require.Len(t, g.RoleRequirements, 1)
	stored := e.fx.User(e.ctx, bob.ID)
	require.NotNil(t, stored.CurrentGroup)
	assert.Equal(t, g.ID, *stored.CurrentGroup)

	tests := []struct {
		name   string
		user   models.User
		body   map[string]any
		status int
	}{
		{"not allow-listed", stranger, map[string]any{"name": "Lone Wolves"}, http.StatusForbidden},
		{"already in a group", e.creator, map[string]any{"name": "Second Group"}, http.StatusConflict},
		{"name taken", e.ada, map[string]any{"name": "night owls"}, http.StatusConflict},
		{"name too short", e.ada, map[string]any{"name": "Owl"}, http.StatusBadRequest},
		{"capacity too small", e.ada, map[string]any{"name": "Tiny Team", "maximum_members": 1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.NewRecorder()
			e.h.ServeCreate(rec, req(t, http.MethodPost, tt.body, tt.user))
			rec.AssertStatus(t, tt.status)
		})
	}
}

func TestServeGet(t *testing.T) {
	e := setup(t)
	e.join()
	bob := e.fx.CreateStudent(e.ctx, "bob@example.com")

	rec := testutil.NewRecorder()
	e.h.ServeGet(rec, e.groupReq(t, http.MethodGet, nil, e.ada))
	rec.AssertStatus(t, http.StatusOK)

	var got struct {
		Group   models.Group `json:"group"`
		Members []struct {
			Email   string `json:"email"`
			IsAdmin bool   `json:"is_admin"`
		} `json:"members"`
		IsGroupAdmin bool `json:"is_group_admin"`
		IsMember     bool `json:"is_member"`
	}
	rec.DecodeData(t, &got)
	assert.Equal(t, 2, got.Group.MembersCount)
	assert.False(t, got.IsGroupAdmin)
	assert.True(t, got.IsMember)
	require.Len(t, got.Members, 2)
	admins := map[string]bool{}
	for _, m := range got.Members {
		admins[m.Email] = m.IsAdmin
	}
	assert.Equal(t, map[string]bool{"creator@example.com": true, "ada@example.com": false}, admins)

	rec = testutil.NewRecorder()
	e.h.ServeGet(rec, e.groupReq(t, http.MethodGet, nil, bob))
	rec.AssertStatus(t, http.StatusForbidden)

	rec = testutil.NewRecorder()
	e.h.ServeGet(rec, req(t, http.MethodGet, nil, e.creator, "groupName", "No Such Group"))
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestServeUpdateRoleRequirements(t *testing.T) {
	e := setup(t)
	e.join()
	body := map[string]any{"role_requirements": []map[string]any{{"role_name": "Designer", "tech_stack": []any{}}}}

	rec := testutil.NewRecorder()
	e.h.ServeUpdateRoleRequirements(rec, e.groupReq(t, http.MethodPatch, body, e.ada))
	rec.AssertStatus(t, http.StatusForbidden)

	rec = testutil.NewRecorder()
	e.h.ServeUpdateRoleRequirements(rec, e.groupReq(t, http.MethodPatch, body, e.creator))
	rec.AssertStatus(t, http.StatusOK)
	g := e.fx.Group(e.ctx, e.group.ID)
	require.Len(t, g.RoleRequirements, 1)
	assert.Equal(t, "Designer", g.RoleRequirements[0].RoleName)
}

func TestServeHistory(t *testing.T) {
	e := setup(t)
	e.join()
	body := map[string]any{"role_requirements": []map[string]any{{"role_name": "Designer", "tech_stack": []any{}}}}
	rec := testutil.NewRecorder()
	e.h.ServeUpdateRoleRequirements(rec, e.groupReq(t, http.MethodPatch, body, e.creator))
	rec.AssertStatus(t, http.StatusOK)

	rec = testutil.NewRecorder()
	e.h.ServeHistory(rec, e.groupReq(t, http.MethodGet, nil, e.creator))
	rec.AssertStatus(t, http.StatusOK)
	var events []struct {
		EventType string            `json:"event_type"`
		Details   map[string]string `json:"details"`
	}
	rec.DecodeData(t, &events)
	require.NotEmpty(t, events)
	assert.Equal(t, audit.EventGroupUpdated, events[0].EventType)

	rec = testutil.NewRecorder()
	e.h.ServeHistory(rec, e.groupReq(t, http.MethodGet, nil, e.ada))
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestServePostAnnouncement(t *testing.T) {
	e := setup(t)
	admin := e.fx.CreateUser(e.ctx, "grace@example.com", models.RoleCohortAdmin)

	rec := testutil.NewRecorder()
	e.h.ServePostAnnouncement(rec, e.groupReq(t, http.MethodPost,
		map[string]string{"message": "Standup at <i>nine</i>."}, admin))
	rec.AssertStatus(t, http.StatusCreated)

	g := e.fx.Group(e.ctx, e.group.ID)
	require.Len(t, g.Announcements, 1)
	assert.Equal(t, "Standup at nine.", g.Announcements[0].Message)
	assert.Equal(t, admin.ID, g.Announcements[0].CreatedBy)

	rec = testutil.NewRecorder()
	e.h.ServePostAnnouncement(rec, e.groupReq(t, http.MethodPost, map[string]string{"message": "  "}, e.creator))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestServeLeave(t *testing.T) {
	e := setup(t)
	e.join()

	rec := testutil.NewRecorder()
	e.h.ServeLeave(rec, e.groupReq(t, http.MethodPatch, nil, e.creator))
	rec.AssertStatus(t, http.StatusForbidden)
	rec.AssertErrorType(t, "GroupCreatorProtected")

	rec = testutil.NewRecorder()
	e.h.ServeLeave(rec, e.groupReq(t, http.MethodPatch, nil, e.ada))
	rec.AssertStatus(t, http.StatusOK)
	assert.Nil(t, e.fx.User(e.ctx, e.ada.ID).CurrentGroup)
	e.fx.AssertMembersCountConsistent(e.ctx, e.group.ID)

	rec = testutil.NewRecorder()
	e.h.ServeLeave(rec, e.groupReq(t, http.MethodPatch, nil, e.ada))
	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertErrorType(t, "NotAMember")
}

func TestServeRemoveMember(t *testing.T) {
	e := setup(t)
	e.join()

	rec := testutil.NewRecorder()
	e.h.ServeRemoveMember(rec, e.groupReq(t, http.MethodPatch, map[string]string{"email": "creator@example.com"}, e.ada))
	rec.AssertStatus(t, http.StatusForbidden)

	rec = testutil.NewRecorder()
	e.h.ServeRemoveMember(rec, e.groupReq(t, http.MethodPatch, map[string]string{"email": "nobody@example.com"}, e.creator))
	rec.AssertStatus(t, http.StatusNotFound)

	rec = testutil.NewRecorder()
	e.h.ServeRemoveMember(rec, e.groupReq(t, http.MethodPatch, map[string]string{"email": "ADA@example.com"}, e.creator))
	rec.AssertStatus(t, http.StatusOK)
	assert.Nil(t, e.fx.User(e.ctx, e.ada.ID).CurrentGroup)
	e.fx.AssertMembersCountConsistent(e.ctx, e.group.ID)
}

func TestServeDelete(t *testing.T) {
	e := setup(t)
	e.join()
	bob := e.fx.CreateStudent(e.ctx, "bob@example.com")
	e.fx.CreateApplication(e.ctx, e.group, bob.ID, e.clock.Now())

	rec := testutil.NewRecorder()
	e.h.ServeDelete(rec, e.groupReq(t, http.MethodDelete, nil, e.ada))
	rec.AssertStatus(t, http.StatusForbidden)

	rec = testutil.NewRecorder()
	e.h.ServeDelete(rec, e.groupReq(t, http.MethodDelete, nil, e.creator))
	rec.AssertStatus(t, http.StatusOK)

	var res membership.DeleteResult
	rec.DecodeData(t, &res)
	assert.Equal(t, int64(2), res.MembersReleased)
	assert.Equal(t, int64(1), res.ApplicationsDeleted)
	assert.Equal(t, int64(0), e.fx.Count(e.ctx, "groups", bson.M{"_id": e.group.ID}))
	assert.Equal(t, int64(0), e.fx.Count(e.ctx, "users", bson.M{"current_group": e.group.ID}))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Applications                                                                |
*─────────────────────────────────────────────────────────────────────────────*/

func TestServeApply(t *testing.T) {
	e := setup(t)

	rec := testutil.NewRecorder()
	e.h.ServeApply(rec, e.groupReq(t, http.MethodPost, applyBody(), e.ada))
	rec.AssertStatus(t, http.StatusCreated)
	var app models.Application
	rec.DecodeData(t, &app)
	assert.Equal(t, models.ApplicationUnderReview, app.Status)
	assert.Equal(t, e.group.ID, app.GroupID)

	rec = testutil.NewRecorder()
	e.h.ServeApply(rec, e.groupReq(t, http.MethodPost, applyBody(), e.ada))
	rec.AssertStatus(t, http.StatusConflict)
	rec.AssertErrorType(t, "DuplicateApplication")
}

func TestServeApply_Validation(t *testing.T) {
	e := setup(t)

	noSkills := applyBody()
	noSkills["skills"] = []any{}
	zeroMonths := applyBody()
	zeroMonths["skills"] = []map[string]any{{"skill_name": "Go", "experience_months": 0}}
	shortPitch := applyBody()
	shortPitch["pitch"] = "hi"
	badURL := applyBody()
	badURL["resources"] = []map[string]any{{"name": "Site", "url": "ftp://example.com"}}

	for name, body := range map[string]map[string]any{
		"no skills": noSkills, "zero months": zeroMonths, "short pitch": shortPitch, "bad url": badURL,
	} {
		t.Run(name, func(t *testing.T) {
			rec := testutil.NewRecorder()
			e.h.ServeApply(rec, e.groupReq(t, http.MethodPost, body, e.ada))
			rec.AssertStatus(t, http.StatusBadRequest)
			rec.AssertErrorType(t, "Validation")
		})
	}
	assert.Equal(t, int64(0), e.fx.Count(e.ctx, "applications", bson.M{}))
}

func TestServeListApplications(t *testing.T) {
	e := setup(t)
	bob := e.fx.CreateStudent(e.ctx, "bob@example.com")
	e.fx.CreateApplication(e.ctx, e.group, e.ada.ID, e.clock.Now())
	e.fx.CreateApplication(e.ctx, e.group, bob.ID, e.clock.Now())

	rec := testutil.NewRecorder()
	e.h.ServeListApplications(rec, e.groupReq(t, http.MethodGet, nil, e.creator))
	rec.AssertStatus(t, http.StatusOK)
	var apps []models.Application
	rec.DecodeData(t, &apps)
	assert.Len(t, apps, 2)

	rec = testutil.NewRecorder()
	e.h.ServeListApplications(rec, e.groupReq(t, http.MethodGet, nil, e.ada))
	rec.AssertStatus(t, http.StatusForbidden)

	bad := e.groupReq(t, http.MethodGet, nil, e.creator)
	bad.URL.RawQuery = "status=PENDING"
	rec = testutil.NewRecorder()
	e.h.ServeListApplications(rec, bad)
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestServeApproveAndDeny(t *testing.T) {
	e := setup(t)
	bob := e.fx.CreateStudent(e.ctx, "bob@example.com")
	adaApp := e.fx.CreateApplication(e.ctx, e.group, e.ada.ID, e.clock.Now())
	bobApp := e.fx.CreateApplication(e.ctx, e.group, bob.ID, e.clock.Now())

	rec := testutil.NewRecorder()
	e.h.ServeApprove(rec, e.groupReq(t, http.MethodPatch, nil, e.ada, "applicationID", bobApp.ID.Hex()))
	rec.AssertStatus(t, http.StatusForbidden)

	rec = testutil.NewRecorder()
	e.h.ServeApprove(rec, e.groupReq(t, http.MethodPatch,
		map[string]string{"feedback": "Welcome aboard!"}, e.creator, "applicationID", adaApp.ID.Hex()))
	rec.AssertStatus(t, http.StatusOK)
	var app models.Application
	rec.DecodeData(t, &app)
	assert.Equal(t, models.ApplicationApproved, app.Status)
	assert.Equal(t, "Welcome aboard!", app.Feedback)
	stored := e.fx.User(e.ctx, e.ada.ID)
	require.NotNil(t, stored.CurrentGroup)
	assert.Equal(t, e.group.ID, *stored.CurrentGroup)
	e.fx.AssertMembersCountConsistent(e.ctx, e.group.ID)

	rec = testutil.NewRecorder()
	e.h.ServeDeny(rec, e.groupReq(t, http.MethodPatch, nil, e.creator, "applicationID", bobApp.ID.Hex()))
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeData(t, &app)
	assert.Equal(t, models.ApplicationDenied, app.Status)
	assert.Equal(t, models.DefaultReviewFeedback, app.Feedback)

	rec = testutil.NewRecorder()
	e.h.ServeDeny(rec, e.groupReq(t, http.MethodPatch, nil, e.creator, "applicationID", bobApp.ID.Hex()))
	rec.AssertStatus(t, http.StatusConflict)
	rec.AssertErrorType(t, "InvalidTransition")
}

func TestServeApprove_ApplicationFromAnotherGroup(t *testing.T) {
	e := setup(t)
	bob := e.fx.CreateStudent(e.ctx, "bob@example.com")
	other := e.fx.CreateGroup(e.ctx, e.cohort.ID, "Early Birds", bob.ID, 4)
	app := e.fx.CreateApplication(e.ctx, other, e.ada.ID, e.clock.Now())

	rec := testutil.NewRecorder()
	e.h.ServeApprove(rec, e.groupReq(t, http.MethodPatch, nil, e.creator, "applicationID", app.ID.Hex()))
	rec.AssertStatus(t, http.StatusNotFound)

	rec = testutil.NewRecorder()
	e.h.ServeApprove(rec, e.groupReq(t, http.MethodPatch, nil, e.creator, "applicationID", "not-an-id"))
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestServeWithdraw(t *testing.T) {
	e := setup(t)
	app := e.fx.CreateApplication(e.ctx, e.group, e.ada.ID, e.clock.Now())

	rec := testutil.NewRecorder()
	e.h.ServeWithdraw(rec, e.groupReq(t, http.MethodPatch, nil, e.ada, "applicationID", app.ID.Hex()))
	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertErrorType(t, "WithdrawalTooEarly")
	env := rec.Envelope(t)
	assert.EqualValues(t, 86400, env.Error.Details["remaining_seconds"])

	rec = testutil.NewRecorder()
	e.h.ServeWithdraw(rec, e.groupReq(t, http.MethodPatch, nil, e.creator, "applicationID", app.ID.Hex()))
	rec.AssertStatus(t, http.StatusForbidden)

	e.clock.Advance(24*time.Hour + time.Minute)
	rec = testutil.NewRecorder()
	e.h.ServeWithdraw(rec, e.groupReq(t, http.MethodPatch, nil, e.ada, "applicationID", app.ID.Hex()))
	rec.AssertStatus(t, http.StatusOK)
	var got models.Application
	rec.DecodeData(t, &got)
	assert.Equal(t, models.ApplicationWithdrawn, got.Status)
}
