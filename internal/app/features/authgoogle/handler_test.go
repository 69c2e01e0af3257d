package authgoogle_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/features/authgoogle"
	"github.com/dalemusser/cohorthub/internal/app/store/audit"
	cohortstore "github.com/dalemusser/cohorthub/internal/app/store/cohorts"
	"github.com/dalemusser/cohorthub/internal/app/store/oauthstate"
	userstore "github.com/dalemusser/cohorthub/internal/app/store/users"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/dalemusser/cohorthub/internal/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// fakeGoogle serves the token and userinfo endpoints.
type fakeGoogle struct {
	srv      *httptest.Server
	user     map[string]any
	verifier string // code_verifier seen by the token endpoint
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	fg := &fakeGoogle{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		fg.verifier = r.PostForm.Get("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "google-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer google-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fg.user)
	})
	fg.srv = httptest.NewServer(mux)
	t.Cleanup(fg.srv.Close)
	return fg
}

type env struct {
	h      *authgoogle.Handler
	db     *mongo.Database
	fx     *testutil.Fixtures
	states *oauthstate.Store
	clock  *clockwork.FakeClock
	google *fakeGoogle
}

func setup(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupSchemaDB(t)
	clock := clockwork.NewFakeClockAt(time.Now().UTC())
	users := userstore.New(db)
	states := oauthstate.New(db)
	fg := newFakeGoogle(t)

	cfg := authgoogle.NewOAuthConfig(authgoogle.Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		BaseURL:      "http://localhost:8080",
	})
	cfg.Endpoint = oauth2.Endpoint{
		AuthURL:   fg.srv.URL + "/auth",
		TokenURL:  fg.srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}

	h := authgoogle.NewHandler(users, cohortstore.New(db), states,
		testutil.NewIssuer(t, users, clock), testutil.AuditLogger(db), cfg, clock, zap.NewNop())
	h.UserInfoURL = fg.srv.URL + "/userinfo"

	return &env{h: h, db: db, fx: testutil.NewFixtures(t, db), states: states, clock: clock, google: fg}
}

func (e *env) saveState(t *testing.T, state string) {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	now := e.clock.Now()
	require.NoError(t, e.states.Save(ctx, oauthstate.State{
		State:     state,
		Verifier:  "test-verifier",
		ReturnURL: "/cohorts",
		ExpiresAt: now.Add(authgoogle.StateTTL),
		CreatedAt: now,
	}))
}

func (e *env) callback(t *testing.T, state string) *testutil.ResponseRecorder {
	t.Helper()
	rec := testutil.NewRecorder()
	target := "/api/v1/auth/google/callback?state=" + url.QueryEscape(state) + "&code=auth-code"
	e.h.ServeCallback(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

type loginData struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        models.User `json:"user"`
	Registered  bool        `json:"registered"`
	ReturnURL   string      `json:"return_url"`
}

func TestIsConfigured(t *testing.T) {
	h := &authgoogle.Handler{}
	assert.False(t, h.IsConfigured())

	h.OAuth = authgoogle.NewOAuthConfig(authgoogle.Config{ClientID: "id", ClientSecret: "secret"})
	assert.True(t, h.IsConfigured())
	assert.Equal(t, "/api/v1/auth/google/callback", h.OAuth.RedirectURL)
}

func TestServeLogin_RedirectsWithStateAndPKCE(t *testing.T) {
	e := setup(t)

	rec := testutil.NewRecorder()
	e.h.ServeLogin(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/login?return=/cohorts/x", nil))

	rec.AssertStatus(t, http.StatusTemporaryRedirect)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.String(), e.google.srv.URL+"/auth"))

	q := loc.Query()
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	state := q.Get("state")
	require.NotEmpty(t, state)

	ctx, cancel := testutil.TestContext()
	defer cancel()
	st, ok, err := e.states.Consume(ctx, state, e.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/cohorts/x", st.ReturnURL)
	assert.NotEmpty(t, st.Verifier)
}

func TestServeLogin_NotConfigured(t *testing.T) {
	h := &authgoogle.Handler{Log: zap.NewNop()}
	rec := testutil.NewRecorder()
	h.ServeLogin(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/login", nil))
	rec.AssertStatus(t, http.StatusInternalServerError)
}

func TestServeCallback_RegistersAllowListedUser(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	c1 := e.fx.CreateCohort(ctx, "Spring Cohort 2026", "grace.hopper.long@example.com")
	c2 := e.fx.CreateCohort(ctx, "Autumn Cohort 2026", "grace.hopper.long@example.com")
	e.fx.CreateCohort(ctx, "Winter Cohort 2026", "someone@example.com")

	e.google.user = map[string]any{
		"id": "g-123", "email": "Grace.Hopper.Long@example.com", "verified_email": true, "name": "Grace Hopper",
	}
	e.saveState(t, "s1")

	rec := e.callback(t, "s1")
	rec.AssertStatus(t, http.StatusCreated)

	var data loginData
	rec.DecodeData(t, &data)
	assert.NotEmpty(t, data.AccessToken)
	assert.Equal(t, "Bearer", data.TokenType)
	assert.True(t, data.Registered)
	assert.Equal(t, "/cohorts", data.ReturnURL)
	assert.Equal(t, "test-verifier", e.google.verifier)

	assert.Equal(t, models.RoleStudent, data.User.Role)
	assert.Equal(t, "grace.hopper.long@example.com", data.User.Email)
	require.NotNil(t, data.User.Username)
	assert.Len(t, *data.User.Username, 14)
	assert.True(t, strings.HasPrefix(*data.User.Username, "grace.hopp"))
	assert.ElementsMatch(t, []primitive.ObjectID{c1.ID, c2.ID}, data.User.EnrolledCohorts)
	assert.Nil(t, data.User.CurrentGroup)

	var refresh *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == testutil.RefreshCookieName {
			refresh = c
		}
	}
	require.NotNil(t, refresh, "refresh cookie not set")
	assert.True(t, refresh.HttpOnly)

	stored := e.fx.User(ctx, data.User.ID)
	assert.NotEmpty(t, stored.RefreshTokenHash)
	assert.Equal(t, int64(1), e.fx.Count(ctx, "audit_events", bson.M{"event_type": audit.EventUserRegistered}))
	assert.Equal(t, int64(1), e.fx.Count(ctx, "audit_events", bson.M{"event_type": audit.EventLoginSuccess}))
}

func TestServeCallback_RejectsEmailNotAllowListed(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	e.fx.CreateCohort(ctx, "Spring Cohort 2026", "someone@example.com")
	e.google.user = map[string]any{"id": "g-9", "email": "stranger@example.com", "verified_email": true}
	e.saveState(t, "s2")

	rec := e.callback(t, "s2")
	rec.AssertStatus(t, http.StatusForbidden)
	rec.AssertErrorType(t, "Forbidden")

	assert.Equal(t, int64(0), e.fx.Count(ctx, "users", bson.M{}))
	assert.Equal(t, int64(1), e.fx.Count(ctx, "audit_events", bson.M{"event_type": audit.EventLoginFailedNotAllowed}))
}

func TestServeCallback_ExistingUserIsLinkedNotRegistered(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := e.fx.CreateSystemAdmin(ctx, "root@example.com")
	e.google.user = map[string]any{"id": "g-root", "email": "root@example.com", "verified_email": true, "name": "Root Admin"}
	e.saveState(t, "s3")

	rec := e.callback(t, "s3")
	rec.AssertStatus(t, http.StatusOK)

	var data loginData
	rec.DecodeData(t, &data)
	assert.False(t, data.Registered)
	assert.Equal(t, admin.ID, data.User.ID)

	stored := e.fx.User(ctx, admin.ID)
	require.NotNil(t, stored.GoogleID)
	assert.Equal(t, "g-root", *stored.GoogleID)
	assert.Equal(t, "Root Admin", stored.FullName)
	assert.Equal(t, int64(1), e.fx.Count(ctx, "users", bson.M{}))
}

func TestServeCallback_UnverifiedEmail(t *testing.T) {
	e := setup(t)
	e.google.user = map[string]any{"id": "g-1", "email": "x@example.com", "verified_email": false}
	e.saveState(t, "s4")

	rec := e.callback(t, "s4")
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestServeCallback_StateChecks(t *testing.T) {
	e := setup(t)
	e.google.user = map[string]any{"id": "g-1", "email": "x@example.com", "verified_email": true}

	t.Run("unknown state", func(t *testing.T) {
		rec := e.callback(t, "never-issued")
		rec.AssertStatus(t, http.StatusUnauthorized)
	})

	t.Run("expired state", func(t *testing.T) {
		e.saveState(t, "old")
		e.clock.Advance(authgoogle.StateTTL + time.Second)
		rec := e.callback(t, "old")
		rec.AssertStatus(t, http.StatusUnauthorized)
	})

	t.Run("missing code", func(t *testing.T) {
		rec := testutil.NewRecorder()
		e.h.ServeCallback(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?state=x", nil))
		rec.AssertStatus(t, http.StatusBadRequest)
	})

	t.Run("provider error", func(t *testing.T) {
		rec := testutil.NewRecorder()
		e.h.ServeCallback(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?error=access_denied", nil))
		rec.AssertStatus(t, http.StatusUnauthorized)
	})
}

func TestServeCallback_StateIsSingleUse(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	e.fx.CreateStudent(ctx, "ada@example.com")
	e.google.user = map[string]any{"id": "g-ada", "email": "ada@example.com", "verified_email": true}
	e.saveState(t, "once")

	e.callback(t, "once").AssertStatus(t, http.StatusOK)
	e.callback(t, "once").AssertStatus(t, http.StatusUnauthorized)
}
