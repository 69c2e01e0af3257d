// internal/app/features/auditlog/list.go
package auditlog

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/store/audit"
	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/app/system/respond"
	"github.com/dalemusser/cohorthub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const pageSize = 50

// ServeList handles GET /audit-events with optional filters: category,
// event_type, user_id, group_id, start_date and end_date (YYYY-MM-DD,
// inclusive), and a 1-based page.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	filter, page, err := parseFilter(r)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "audit log list")
	defer cancel()

	events, err := h.Events.Query(ctx, filter)
	if err != nil {
		h.Log.Error("failed to query audit events", zap.Error(err))
		respond.Error(w, r, h.Log, err)
		return
	}
	total, err := h.Events.CountByFilter(ctx, filter)
	if err != nil {
		h.Log.Error("failed to count audit events", zap.Error(err))
		respond.Error(w, r, h.Log, err)
		return
	}

	// Resolve actor and target emails in one query.
	ids := make([]primitive.ObjectID, 0, len(events)*2)
	for _, e := range events {
		if e.ActorID != nil {
			ids = append(ids, *e.ActorID)
		}
		if e.UserID != nil {
			ids = append(ids, *e.UserID)
		}
	}
	emails, err := h.Users.EmailsByID(ctx, ids)
	if err != nil {
		h.Log.Warn("failed to resolve audit event users", zap.Error(err))
		emails = nil
	}

	items := make([]listItem, 0, len(events))
	for _, e := range events {
		items = append(items, toItem(e, emails))
	}

	totalPages := int((total + pageSize - 1) / pageSize)
	if totalPages < 1 {
		totalPages = 1
	}
	respond.OK(w, http.StatusOK, "audit events", listData{
		Events:     items,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	})
}

func parseFilter(r *http.Request) (audit.QueryFilter, int, error) {
	category := strings.TrimSpace(query.Get(r, "category"))
	if !validCategory(category) {
		return audit.QueryFilter{}, 0, apperr.Newf(apperr.Validation,
			"category must be one of %s", strings.Join(allCategories(), ", "))
	}

	page := 1
	if p, err := strconv.Atoi(query.Get(r, "page")); err == nil && p > 0 {
		page = p
	}

	filter := audit.QueryFilter{
		Category:  category,
		EventType: strings.TrimSpace(query.Get(r, "event_type")),
		Limit:     pageSize,
		Offset:    int64((page - 1) * pageSize),
	}

	for _, p := range []struct {
		name string
		dst  **primitive.ObjectID
	}{{"user_id", &filter.UserID}, {"group_id", &filter.GroupID}} {
		raw := query.Get(r, p.name)
		if raw == "" {
			continue
		}
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return audit.QueryFilter{}, 0, apperr.Newf(apperr.Validation, "%s is not a valid id", p.name)
		}
		*p.dst = &id
	}

	if s := query.Get(r, "start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return audit.QueryFilter{}, 0, apperr.New(apperr.Validation, "start_date must be YYYY-MM-DD")
		}
		filter.StartTime = &t
	}
	if s := query.Get(r, "end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return audit.QueryFilter{}, 0, apperr.New(apperr.Validation, "end_date must be YYYY-MM-DD")
		}
		// End of day
		endOfDay := t.Add(24*time.Hour - time.Nanosecond)
		filter.EndTime = &endOfDay
	}

	return filter, page, nil
}
