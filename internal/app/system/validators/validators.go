// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/cohorthub/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. Collections must exist up front: creating a collection inside
// a multi-document transaction is not allowed on every server version.
// On servers that don't support collMod/validators we log and skip.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("users", usersSchema())
	ensure("cohorts", cohortsSchema())
	ensure("groups", groupsSchema())
	ensure("applications", applicationsSchema())

	// No validators; the collections still have to exist before the first transaction.
	ensure("audit_events", nil)
	ensure("oauth_states", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Debug("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Debug("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

var nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"email", "role"},
			"properties": bson.M{
				"email":         nonBlank,
				"full_name":     bson.M{"bsonType": "string"},
				"username":      bson.M{"bsonType": "string", "minLength": 3, "maxLength": 15},
				"role":          bson.M{"enum": bson.A{models.RoleSystemAdmin, models.RoleCohortAdmin, models.RoleStudent}},
				"current_group": bson.M{"bsonType": bson.A{"objectId", "null"}},
			},
		},
	}
}

func cohortsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "name_ci", "allowed_emails"},
			"properties": bson.M{
				"name":           nonBlank,
				"name_ci":        nonBlank,
				"allowed_emails": bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string"}},
			},
		},
	}
}

// The creator keeps members_count at one or more in normal operation; the
// schema only rules out impossible values.
func groupsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"cohort_id", "name", "name_ci", "created_by", "members_count", "maximum_members"},
			"properties": bson.M{
				"cohort_id":       bson.M{"bsonType": "objectId"},
				"name":            nonBlank,
				"name_ci":         nonBlank,
				"created_by":      bson.M{"bsonType": "objectId"},
				"members_count":   bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"maximum_members": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 1},
			},
		},
	}
}

func applicationsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"cohort_id", "group_id", "applicant_id", "status", "created_at"},
			"properties": bson.M{
				"cohort_id":    bson.M{"bsonType": "objectId"},
				"group_id":     bson.M{"bsonType": "objectId"},
				"applicant_id": bson.M{"bsonType": "objectId"},
				"status": bson.M{"enum": bson.A{
					models.ApplicationUnderReview,
					models.ApplicationApproved,
					models.ApplicationDenied,
					models.ApplicationWithdrawn,
				}},
				"created_at": bson.M{"bsonType": "date"},
			},
		},
	}
}
