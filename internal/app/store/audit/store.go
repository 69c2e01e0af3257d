// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryAuth       = "auth"
	CategoryAdmin      = "admin"
	CategoryMembership = "membership"
)

// Auth event types
const (
	EventLoginSuccess          = "login_success"
	EventLoginFailedNotAllowed = "login_failed_not_allowed"
	EventUserRegistered        = "user_registered"
	EventTokenRefreshed        = "token_refreshed"
	EventTokenReuseDetected    = "token_reuse_detected"
	EventLogout                = "logout"
)

// Admin event types
const (
	EventCohortCreated         = "cohort_created"
	EventCohortUpdated         = "cohort_updated"
	EventCohortEmailAllowed    = "cohort_email_allowed"
	EventCohortEmailDisallowed = "cohort_email_disallowed"
	EventCohortAdminGranted    = "cohort_admin_granted"
	EventCohortAdminRevoked    = "cohort_admin_revoked"
	EventSystemAdminEnsured    = "system_admin_ensured"
)

// Membership event types
const (
	EventGroupCreated         = "group_created"
	EventGroupDeleted         = "group_deleted"
	EventGroupUpdated         = "group_updated"
	EventApplicationSubmitted = "application_submitted"
	EventApplicationApproved  = "application_approved"
	EventApplicationDenied    = "application_denied"
	EventApplicationWithdrawn = "application_withdrawn"
	EventMemberLeft           = "member_left"
	EventMemberRemoved        = "member_removed"
)

// Event represents an audit event.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Timestamp time.Time          `bson:"timestamp"`

	Category  string `bson:"category"`
	EventType string `bson:"event_type"`

	// Who
	UserID  *primitive.ObjectID `bson:"user_id,omitempty"`  // affected user
	ActorID *primitive.ObjectID `bson:"actor_id,omitempty"` // who performed the action

	// Where
	CohortID *primitive.ObjectID `bson:"cohort_id,omitempty"`
	GroupID  *primitive.ObjectID `bson:"group_id,omitempty"`

	IP        string `bson:"ip,omitempty"`
	UserAgent string `bson:"user_agent,omitempty"`

	Success       bool   `bson:"success"`
	FailureReason string `bson:"failure_reason,omitempty"`

	Details map[string]string `bson:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events.
type QueryFilter struct {
	UserID    *primitive.ObjectID
	GroupID   *primitive.ObjectID
	Category  string
	EventType string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int64
	Offset    int64
}

// Store manages audit event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// Indexes returns the index set for audit_events.
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}, Options: options.Index().SetName("idx_audit_ts")},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_user_ts"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_group_ts"),
		},
		{
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "event_type", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_category_type_ts"),
		},
	}
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

// Query retrieves audit events matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cur, err := s.c.Find(ctx, filter.bson(), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var events []Event
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountByFilter returns the count of events matching the filter.
func (s *Store) CountByFilter(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, filter.bson())
}

// GetByUser retrieves recent audit events for a specific user.
func (s *Store) GetByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{UserID: &userID, Limit: limit})
}

// GetByGroup retrieves the membership history of a group.
func (s *Store) GetByGroup(ctx context.Context, groupID primitive.ObjectID, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{GroupID: &groupID, Limit: limit})
}

func (f QueryFilter) bson() bson.M {
	q := bson.M{}
	if f.UserID != nil {
		q["user_id"] = f.UserID
	}
	if f.GroupID != nil {
		q["group_id"] = f.GroupID
	}
	if f.Category != "" {
		q["category"] = f.Category
	}
	if f.EventType != "" {
		q["event_type"] = f.EventType
	}
	if f.StartTime != nil || f.EndTime != nil {
		tq := bson.M{}
		if f.StartTime != nil {
			tq["$gte"] = *f.StartTime
		}
		if f.EndTime != nil {
			tq["$lte"] = *f.EndTime
		}
		q["timestamp"] = tq
	}
	return q
}
