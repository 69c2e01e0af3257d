// internal/app/features/auditlog/types.go
package auditlog

import (
	"time"

	"github.com/dalemusser/cohorthub/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// listItem is one audit event as returned to clients. Actor and target
// emails are resolved from their ids.
type listItem struct {
	ID            primitive.ObjectID  `json:"id"`
	Timestamp     time.Time           `json:"timestamp"`
	Category      string              `json:"category"`
	EventType     string              `json:"event_type"`
	ActorID       *primitive.ObjectID `json:"actor_id,omitempty"`
	ActorEmail    string              `json:"actor_email,omitempty"`
	UserID        *primitive.ObjectID `json:"user_id,omitempty"`
	UserEmail     string              `json:"user_email,omitempty"`
	CohortID      *primitive.ObjectID `json:"cohort_id,omitempty"`
	GroupID       *primitive.ObjectID `json:"group_id,omitempty"`
	IP            string              `json:"ip,omitempty"`
	Success       bool                `json:"success"`
	FailureReason string              `json:"failure_reason,omitempty"`
	Details       map[string]string   `json:"details,omitempty"`
}

// listData is the response body of GET /audit-events.
type listData struct {
	Events     []listItem `json:"events"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	Total      int64      `json:"total"`
}

func allCategories() []string {
	return []string{audit.CategoryAuth, audit.CategoryAdmin, audit.CategoryMembership}
}

func validCategory(c string) bool {
	if c == "" {
		return true
	}
	for _, v := range allCategories() {
		if c == v {
			return true
		}
	}
	return false
}

func toItem(e audit.Event, emails map[primitive.ObjectID]string) listItem {
	it := listItem{
		ID:            e.ID,
		Timestamp:     e.Timestamp,
		Category:      e.Category,
		EventType:     e.EventType,
		ActorID:       e.ActorID,
		UserID:        e.UserID,
		CohortID:      e.CohortID,
		GroupID:       e.GroupID,
		IP:            e.IP,
		Success:       e.Success,
		FailureReason: e.FailureReason,
		Details:       e.Details,
	}
	if e.ActorID != nil {
		it.ActorEmail = emails[*e.ActorID]
	}
	if e.UserID != nil {
		it.UserEmail = emails[*e.UserID]
	}
	return it
}
