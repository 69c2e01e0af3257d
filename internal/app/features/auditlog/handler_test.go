package auditlog_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/features/auditlog"
	"github.com/dalemusser/cohorthub/internal/app/store/audit"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/dalemusser/cohorthub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type listResponse struct {
	Events []struct {
		EventType  string `json:"event_type"`
		Category   string `json:"category"`
		ActorEmail string `json:"actor_email"`
		UserEmail  string `json:"user_email"`
	} `json:"events"`
	Page       int   `json:"page"`
	TotalPages int   `json:"total_pages"`
	Total      int64 `json:"total"`
}

type env struct {
	h     *auditlog.Handler
	ctx   context.Context
	admin models.User
	ada   models.User
	group primitive.ObjectID
}

func setup(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	t.Cleanup(cancel)

	fx := testutil.NewFixtures(t, db)
	admin := fx.CreateSystemAdmin(ctx, "root@example.com")
	ada := fx.CreateStudent(ctx, "ada@example.com")
	group := primitive.NewObjectID()

	store := audit.New(db)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for _, e := range []audit.Event{
		{Category: audit.CategoryAuth, EventType: audit.EventLoginSuccess, UserID: &ada.ID, Success: true, Timestamp: base},
		{Category: audit.CategoryMembership, EventType: audit.EventGroupCreated, ActorID: &ada.ID, UserID: &ada.ID, GroupID: &group, Success: true, Timestamp: base.Add(time.Hour)},
		{Category: audit.CategoryAdmin, EventType: audit.EventCohortCreated, ActorID: &admin.ID, Success: true, Timestamp: base.Add(48 * time.Hour)},
	} {
		require.NoError(t, store.Log(ctx, e))
	}

	return &env{h: auditlog.NewHandler(db, zap.NewNop()), ctx: ctx, admin: admin, ada: ada, group: group}
}

func (e *env) list(t *testing.T, rawQuery string) (*testutil.ResponseRecorder, listResponse) {
	t.Helper()
	req := testutil.NewAuthenticatedRequest(t, http.MethodGet, "/api/v1/audit-events?"+rawQuery, nil, e.admin)
	rec := testutil.NewRecorder()
	e.h.ServeList(rec, req)
	var out listResponse
	if rec.Code == http.StatusOK {
		rec.DecodeData(t, &out)
	}
	return rec, out
}

func TestServeList_All(t *testing.T) {
	e := setup(t)

	rec, out := e.list(t, "")
	rec.AssertStatus(t, http.StatusOK)
	assert.Equal(t, int64(3), out.Total)
	assert.Equal(t, 1, out.TotalPages)
	require.Len(t, out.Events, 3)
	assert.Equal(t, audit.EventCohortCreated, out.Events[0].EventType, "newest first")
	assert.Equal(t, "root@example.com", out.Events[0].ActorEmail)
	assert.Equal(t, "ada@example.com", out.Events[2].UserEmail)
}

func TestServeList_Filters(t *testing.T) {
	e := setup(t)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"category", "category=membership", []string{audit.EventGroupCreated}},
		{"event type", "event_type=login_success", []string{audit.EventLoginSuccess}},
		{"user", "user_id=" + e.ada.ID.Hex(), []string{audit.EventGroupCreated, audit.EventLoginSuccess}},
		{"group", "group_id=" + e.group.Hex(), []string{audit.EventGroupCreated}},
		{"date range", "start_date=2026-03-10&end_date=2026-03-10", []string{audit.EventGroupCreated, audit.EventLoginSuccess}},
		{"page past the end", "page=2", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := e.list(t, tt.query)
			rec.AssertStatus(t, http.StatusOK)
			got := make([]string, 0, len(out.Events))
			for _, ev := range out.Events {
				got = append(got, ev.EventType)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServeList_RejectsBadFilters(t *testing.T) {
	e := setup(t)

	for _, q := range []string{"category=billing", "user_id=nope", "start_date=10/03/2026", "end_date=yesterday"} {
		t.Run(q, func(t *testing.T) {
			rec, _ := e.list(t, q)
			rec.AssertStatus(t, http.StatusBadRequest)
			rec.AssertErrorType(t, "Validation")
		})
	}
}
