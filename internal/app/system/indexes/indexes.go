// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/store/audit"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Index names the membership invariants depend on.
const (
	PendingApplicationIndex = "uniq_applications_pending_applicant"
	GroupNameIndex          = "uniq_groups_cohort_nameci"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	for _, set := range []struct {
		coll   string
		models []mongo.IndexModel
	}{
		{"users", userIndexes()},
		{"cohorts", cohortIndexes()},
		{"groups", groupIndexes()},
		{"applications", applicationIndexes()},
		{"audit_events", audit.Indexes()},
		{"oauth_states", oauthStateIndexes()},
	} {
		if err := ensureIndexSet(ctx, db.Collection(set.coll), set.models); err != nil {
			problems = append(problems, set.coll+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name    string   `bson:"name"`
	Key     bson.D   `bson:"key"`
	Unique  *bool    `bson:"unique,omitempty"`
	Sparse  *bool    `bson:"sparse,omitempty"`
	Partial bson.Raw `bson:"partialFilterExpression,omitempty"`
	TTL     *int32   `bson:"expireAfterSeconds,omitempty"`
}

// shape is what must match for an existing index to be reused as-is.
type shape struct {
	unique, sparse, partial, ttl bool
}

func (s shape) String() string {
	return fmt.Sprintf("unique=%t sparse=%t partial=%t ttl=%t", s.unique, s.sparse, s.partial, s.ttl)
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isTrue(b *bool) bool { return b != nil && *b }

func desiredShape(o *options.IndexOptions) shape {
	if o == nil {
		return shape{}
	}
	return shape{
		unique:  isTrue(o.Unique),
		sparse:  isTrue(o.Sparse),
		partial: o.PartialFilterExpression != nil,
		ttl:     o.ExpireAfterSeconds != nil,
	}
}

func (ex existingIndex) shape() shape {
	return shape{
		unique:  isTrue(ex.Unique),
		sparse:  isTrue(ex.Sparse),
		partial: len(ex.Partial) > 0,
		ttl:     ex.TTL != nil,
	}
}

// Best-effort duplicate-detector (works cross-vendors)
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// Mongo returns IndexOptionsConflict / IndexKeySpecsConflict when an index
// with the same keys or name exists with different options.
func isOptionsConflictErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "IndexOptionsConflict") || strings.Contains(s, "IndexKeySpecsConflict")
}

func listExisting(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	existing := map[string]existingIndex{} // sig -> index
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return existing
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string
	for _, m := range models {
		if err := ensureIndex(ctx, coll, m); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func ensureIndex(ctx context.Context, coll *mongo.Collection, m mongo.IndexModel) error {
	var desiredName string
	if m.Options != nil && m.Options.Name != nil {
		desiredName = *m.Options.Name
	}
	want := desiredShape(m.Options)
	sig := keySig(m.Keys.(bson.D))
	start := time.Now()

	log := zap.L().With(
		zap.String("collection", coll.Name()),
		zap.String("name", desiredName),
		zap.String("keys", sig))
	log.Debug("ensuring index", zap.Stringer("shape", want))

	if ex, ok := listExisting(ctx, coll)[sig]; ok {
		if ex.shape() == want && (desiredName == "" || ex.Name == desiredName) {
			log.Debug("reusing existing index", zap.Duration("took", time.Since(start)))
			return nil
		}
		// Name or options differ: drop & recreate.
		log.Info("replacing index",
			zap.String("from", ex.Name),
			zap.Stringer("from_shape", ex.shape()),
			zap.Stringer("to_shape", want))
		if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
			return fmt.Errorf("%s(%s): drop failed: %w", coll.Name(), desiredName, err)
		}
	}

	created, err := coll.Indexes().CreateOne(ctx, m)
	if err != nil {
		switch {
		case isDuplicateKeyErr(err) && want.unique:
			return fmt.Errorf("%s(%s): cannot create unique index (duplicates present on %s)", coll.Name(), desiredName, sig)
		case isOptionsConflictErr(err) && desiredName != "":
			// Same name, different keys: the old definition must go.
			log.Info("dropping index whose name conflicts")
			if _, dropErr := coll.Indexes().DropOne(ctx, desiredName); dropErr != nil {
				return fmt.Errorf("%s(%s): %w", coll.Name(), desiredName, err)
			}
			if created, err = coll.Indexes().CreateOne(ctx, m); err != nil {
				return fmt.Errorf("%s(%s): %w", coll.Name(), desiredName, err)
			}
		default:
			log.Warn("index ensure failed", zap.Duration("took", time.Since(start)), zap.Error(err))
			return fmt.Errorf("%s(%s): %w", coll.Name(), desiredName, err)
		}
	}

	log.Info("index ensured",
		zap.String("created_name", created),
		zap.Duration("took", time.Since(start)))
	return nil
}

/* -------------------------------------------------------------------------- */
/* Per-collection index sets                                                 */
/* -------------------------------------------------------------------------- */

func userIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("uniq_users_email").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "google_id", Value: 1}},
			Options: options.Index().SetName("uniq_users_google_id").SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetName("uniq_users_username").SetUnique(true).SetSparse(true),
		},
		{
			// Membership lookups: members of a group, release-all on delete.
			Keys:    bson.D{{Key: "current_group", Value: 1}},
			Options: options.Index().SetName("idx_users_current_group"),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}},
			Options: options.Index().SetName("idx_users_role"),
		},
	}
}

func cohortIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}},
			Options: options.Index().SetName("uniq_cohorts_nameci").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "allowed_emails", Value: 1}},
			Options: options.Index().SetName("idx_cohorts_allowed_emails"),
		},
	}
}

func groupIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "cohort_id", Value: 1}, {Key: "name_ci", Value: 1}},
			Options: options.Index().SetName(GroupNameIndex).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "created_by", Value: 1}},
			Options: options.Index().SetName("idx_groups_created_by"),
		},
	}
}

func applicationIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			// At most one UNDER_REVIEW application per applicant, system-wide.
			Keys: bson.D{{Key: "applicant_id", Value: 1}},
			Options: options.Index().
				SetName(PendingApplicationIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": models.ApplicationUnderReview}),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_applications_group_status_created"),
		},
		{
			Keys:    bson.D{{Key: "applicant_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_applications_applicant_created"),
		},
	}
}

func oauthStateIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("ttl_oauth_states_expires").SetExpireAfterSeconds(0),
		},
	}
}
