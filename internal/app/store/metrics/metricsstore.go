package metricsstore

import (
	"context"

	"github.com/dalemusser/cohorthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Counts is the set of totals exported as gauges.
type Counts struct {
	Cohorts             int64
	Groups              int64
	Students            int64
	GroupedUsers        int64
	PendingApplications int64
}

// FetchCounts returns entity totals.
// Intentionally tolerant: on error it returns 0 for that counter.
func FetchCounts(ctx context.Context, db *mongo.Database) Counts {
	var out Counts

	if n, err := db.Collection("cohorts").CountDocuments(ctx, bson.M{}); err == nil {
		out.Cohorts = n
	}
	if n, err := db.Collection("groups").CountDocuments(ctx, bson.M{}); err == nil {
		out.Groups = n
	}
	if n, err := db.Collection("users").CountDocuments(ctx, bson.M{"role": models.RoleStudent}); err == nil {
		out.Students = n
	}
	if n, err := db.Collection("users").CountDocuments(ctx, bson.M{"current_group": bson.M{"$ne": nil}}); err == nil {
		out.GroupedUsers = n
	}
	if n, err := db.Collection("applications").CountDocuments(ctx, bson.M{"status": models.ApplicationUnderReview}); err == nil {
		out.PendingApplications = n
	}

	return out
}

// AsMap returns the counts keyed by gauge label.
func (c Counts) AsMap() map[string]int64 {
	return map[string]int64{
		"cohorts":              c.Cohorts,
		"groups":               c.Groups,
		"students":             c.Students,
		"grouped_users":        c.GroupedUsers,
		"pending_applications": c.PendingApplications,
	}
}
