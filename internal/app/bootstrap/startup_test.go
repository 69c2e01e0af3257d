package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/store/audit"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/dalemusser/cohorthub/internal/testutil"
	"github.com/dalemusser/waffle/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validConfig() AppConfig {
	return AppConfig{
		MongoURI:           "mongodb://localhost:27017/?replicaSet=rs0",
		MongoDatabase:      "cohort_hub",
		JWTSecret:          "test-secret-0123456789abcdef0123456789",
		JWTIssuer:          "cohorthub-test",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    24 * time.Hour,
		CookieKey:          "test-cookie-key-0123456789abcdef0123456789",
		RefreshCookieName:  "cohorthub_refresh",
		WithdrawalCooldown: 24 * time.Hour,
		MaxGroupMembers:    4,
		AuditLogAuth:       "db",
		AuditLogAdmin:      "db",
		AuditLogMembership: "db",
		RateLimitRequests:  30,
		RateLimitWindow:    time.Minute,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", "dev", func(*AppConfig) {}, ""},
		{"bad mongo uri", "dev", func(c *AppConfig) { c.MongoURI = "postgres://nope" }, "invalid MongoDB URI"},
		{"short jwt secret in prod", "prod", func(c *AppConfig) { c.JWTSecret = "short" }, "jwt_secret"},
		{"short jwt secret in dev", "dev", func(c *AppConfig) { c.JWTSecret = "short" }, ""},
		{"short cookie key", "dev", func(c *AppConfig) { c.CookieKey = "short" }, "cookie_key"},
		{"zero cooldown", "dev", func(c *AppConfig) { c.WithdrawalCooldown = 0 }, "withdrawal_cooldown"},
		{"tiny groups", "dev", func(c *AppConfig) { c.MaxGroupMembers = 1 }, "max_group_members"},
		{"no rate limit", "dev", func(c *AppConfig) { c.RateLimitRequests = 0 }, "rate_limit"},
		{"bad redis url", "dev", func(c *AppConfig) { c.RedisURL = "http://localhost:6379" }, "redis_url"},
		{"redis url", "dev", func(c *AppConfig) { c.RedisURL = "redis://localhost:6379/0" }, ""},
		{"stdout tracing", "dev", func(c *AppConfig) { c.TraceExporter = "stdout" }, ""},
		{"unknown trace exporter", "dev", func(c *AppConfig) { c.TraceExporter = "zipkin" }, "trace_exporter"},
		{"trusted proxy headers", "dev", func(c *AppConfig) { c.TrustProxyHeaders = true }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(&config.CoreConfig{Env: tt.env}, cfg, testLogger())
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnsureSystemAdmin_CreatesNew(t *testing.T) {
	db := testutil.SetupSchemaDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	err := ensureSystemAdmin(ctx, db, testutil.AuditLogger(db), "Root@Example.com", testLogger())
	require.NoError(t, err)

	var user models.User
	require.NoError(t, db.Collection("users").FindOne(ctx, bson.M{"email": "root@example.com"}).Decode(&user))
	assert.Equal(t, models.RoleSystemAdmin, user.Role)
	assert.Nil(t, user.CurrentGroup)

	n, err := db.Collection("audit_events").CountDocuments(ctx, bson.M{"event_type": audit.EventSystemAdminEnsured})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEnsureSystemAdmin_PromotesExisting(t *testing.T) {
	db := testutil.SetupSchemaDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	existing := testutil.NewFixtures(t, db).CreateStudent(ctx, "lead@example.com")

	require.NoError(t, ensureSystemAdmin(ctx, db, testutil.AuditLogger(db), "lead@example.com", testLogger()))

	var user models.User
	require.NoError(t, db.Collection("users").FindOne(ctx, bson.M{"_id": existing.ID}).Decode(&user))
	assert.Equal(t, models.RoleSystemAdmin, user.Role)

	count, err := db.Collection("users").CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "promotion must not create a second user")
}

func TestEnsureSystemAdmin_AlreadySystemAdmin(t *testing.T) {
	db := testutil.SetupSchemaDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	testutil.NewFixtures(t, db).CreateSystemAdmin(ctx, "root@example.com")

	require.NoError(t, ensureSystemAdmin(ctx, db, testutil.AuditLogger(db), "root@example.com", testLogger()))

	n, err := db.Collection("audit_events").CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Zero(t, n, "an unchanged admin is not audited")
}

func testHandler(t *testing.T, db *mongo.Database) http.Handler {
	t.Helper()
	cfg := validConfig()
	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db}
	deps.Runtime = newRuntime(cfg, deps, testLogger())

	h, err := BuildHandler(&config.CoreConfig{Env: "dev"}, cfg, deps, testLogger())
	require.NoError(t, err)
	return h
}

func TestBuildHandler_Routes(t *testing.T) {
	db := testutil.SetupSchemaDB(t)
	h := testHandler(t, db)

	tests := []struct {
		name     string
		method   string
		path     string
		status   int
		contains string
	}{
		{"health", http.MethodGet, "/health", http.StatusOK, `"database":"connected"`},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "go_goroutines"},
		{"unknown route", http.MethodGet, "/api/v1/nope", http.StatusNotFound, `"type":"NotFound"`},
		{"profile needs token", http.MethodGet, "/api/v1/users/me", http.StatusUnauthorized, `"type":"Unauthorized"`},
		{"cohorts need token", http.MethodGet, "/api/v1/cohorts", http.StatusUnauthorized, `"type":"Unauthorized"`},
		{"groups need token", http.MethodGet, "/api/v1/cohorts/Spring%20Cohort/groups/Owls", http.StatusUnauthorized, `"type":"Unauthorized"`},
		{"audit log needs token", http.MethodGet, "/api/v1/audit-events", http.StatusUnauthorized, `"type":"Unauthorized"`},
		{"refresh without cookie", http.MethodPost, "/api/v1/auth/token/refresh", http.StatusUnauthorized, `"success":false`},
		{"google not configured", http.MethodGet, "/api/v1/auth/google/login", http.StatusInternalServerError, `"success":false`},
		{"wrong method", http.MethodPut, "/api/v1/auth/token/refresh", http.StatusMethodNotAllowed, `"type":"MethodNotAllowed"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.True(t, strings.Contains(rec.Body.String(), tt.contains), "body %q lacks %q", rec.Body.String(), tt.contains)
		})
	}
}

func TestBuildHandler_AuthRoutesAreRateLimited(t *testing.T) {
	db := testutil.SetupSchemaDB(t)
	cfg := validConfig()
	cfg.RateLimitRequests = 2
	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db}
	deps.Runtime = newRuntime(cfg, deps, testLogger())
	h, err := BuildHandler(&config.CoreConfig{Env: "dev"}, cfg, deps, testLogger())
	require.NoError(t, err)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/token/refresh", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}
