package testutil

import (
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/store/audit"
	"github.com/dalemusser/cohorthub/internal/app/system/auditlog"
	"github.com/dalemusser/cohorthub/internal/app/system/auth"
	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	testSigningKey = "test-signing-key-that-is-at-least-32-bytes"
	testCookieKey  = "test-cookie-key-must-be-32-chars-long-and-a-bit-longer-for-enc!"

	// RefreshCookieName is the refresh cookie name issuers built here use.
	RefreshCookieName = "cohorthub_refresh"
)

// NewIssuer returns an Issuer with test keys, 15m access and 24h refresh
// lifetimes, storing refresh hashes in store.
func NewIssuer(t *testing.T, store auth.RefreshHashStore, clock clockwork.Clock) *auth.Issuer {
	t.Helper()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cookies, err := auth.NewRefreshCookies(testCookieKey, RefreshCookieName, "", 24*time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRefreshCookies: %v", err)
	}
	tokens := auth.NewTokenService(testSigningKey, "cohorthub-test", 15*time.Minute, 24*time.Hour, clock)
	return auth.NewIssuer(tokens, cookies, store)
}

// AuditLogger returns an audit logger writing every category to db only.
func AuditLogger(db *mongo.Database) *auditlog.Logger {
	return auditlog.New(audit.New(db), zap.NewNop(), auditlog.Config{Auth: "db", Admin: "db", Membership: "db"})
}

// CarryCookies copies every cookie set on rec onto r.
func CarryCookies(rec *ResponseRecorder, r *http.Request) *http.Request {
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}
