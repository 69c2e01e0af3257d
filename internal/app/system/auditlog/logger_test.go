package auditlog_test

import (
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/cohorthub/internal/app/store/audit"
	"github.com/dalemusser/cohorthub/internal/app/system/auditlog"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/dalemusser/cohorthub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestLogger_NilLogger(t *testing.T) {
	var logger *auditlog.Logger
	ctx, cancel := testutil.TestContext()
	defer cancel()
	req := httptest.NewRequest("GET", "/", nil)

	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.LoginSuccess(ctx, req, primitive.NewObjectID(), "a@x.io")
	logger.GroupCreated(ctx, models.Group{})
	logger.MemberLeft(ctx, primitive.NewObjectID(), models.Group{})
}

func TestLogger_Settings(t *testing.T) {
	tests := []struct {
		name    string
		setting string
		wantDB  int
	}{
		{"all writes to db", "all", 1},
		{"db writes to db", "db", 1},
		{"log skips db", "log", 0},
		{"off skips everything", "off", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			store := audit.New(db)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			logger := auditlog.New(store, zap.NewNop(), auditlog.Config{
				Auth:       "off",
				Admin:      "off",
				Membership: tt.setting,
			})

			userID := primitive.NewObjectID()
			g := models.Group{ID: primitive.NewObjectID(), CohortID: primitive.NewObjectID(), CreatedBy: userID}
			logger.MemberLeft(ctx, userID, g)

			events, err := store.GetByUser(ctx, userID, 10)
			if err != nil {
				t.Fatalf("GetByUser failed: %v", err)
			}
			if len(events) != tt.wantDB {
				t.Fatalf("stored events = %d, want %d", len(events), tt.wantDB)
			}
			if tt.wantDB == 1 && (events[0].GroupID == nil || *events[0].GroupID != g.ID) {
				t.Errorf("expected group_id %s on event", g.ID.Hex())
			}
		})
	}
}

func TestLogger_CategoryRouting(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{
		Auth:              "db",
		Admin:             "off",
		Membership:        "off",
		TrustProxyHeaders: true,
	})

	userID := primitive.NewObjectID()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Real-IP", "10.0.0.9")
	logger.LoginSuccess(ctx, req, userID, "a@x.io")
	logger.CohortAdminGranted(ctx, primitive.NewObjectID(), userID, 3)

	events, err := store.GetByUser(ctx, userID, 10)
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected only the auth event, got %d", len(events))
	}
	if events[0].IP != "10.0.0.9" {
		t.Errorf("IP = %q, want 10.0.0.9", events[0].IP)
	}
}
