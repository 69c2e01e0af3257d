package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/system/indexes"
	"github.com/dalemusser/cohorthub/internal/app/system/validators"
	"github.com/google/uuid"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TestMongoURIEnv points tests at an existing replica set instead of a
// container, e.g. mongodb://localhost:27017/?replicaSet=rs0.
const TestMongoURIEnv = "COHORTHUB_TEST_MONGO_URI"

var (
	clientOnce sync.Once
	client     *mongo.Client
	clientErr  error
)

// TestContext returns a context bounded to keep a stuck test from hanging
// the whole package.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// SetupTestDB returns a fresh, empty database on a single-node replica set
// (transactions need one). The database is dropped when the test ends.
// The test is skipped under -short or when no MongoDB can be started.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB-backed test in short mode")
	}

	clientOnce.Do(func() {
		client, clientErr = connect()
	})
	if clientErr != nil {
		t.Skipf("MongoDB unavailable: %v", clientErr)
	}

	name := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	db := client.Database(name)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
	})
	return db
}

// SetupSchemaDB is SetupTestDB plus the production collections, validators
// and indexes. Tests of transactional code need it: collections must exist
// before the first transaction, and the partial unique index backs the
// one-pending-application rule.
func SetupSchemaDB(t *testing.T) *mongo.Database {
	t.Helper()
	db := SetupTestDB(t)
	ctx, cancel := TestContext()
	defer cancel()
	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("validators.EnsureAll: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("indexes.EnsureAll: %v", err)
	}
	return db
}

func connect() (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	opts := options.Client()
	if uri := os.Getenv(TestMongoURIEnv); uri != "" {
		opts.ApplyURI(uri)
	} else {
		container, err := tcmongo.Run(ctx, "mongo:7", tcmongo.WithReplicaSet("rs0"))
		if err != nil {
			return nil, fmt.Errorf("start mongo container: %w", err)
		}
		uri, err := container.ConnectionString(ctx)
		if err != nil {
			return nil, fmt.Errorf("mongo connection string: %w", err)
		}
		// The member advertises its container hostname; talk to it directly.
		opts.ApplyURI(uri).SetDirect(true)
	}

	c, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx, nil); err != nil {
		_ = c.Disconnect(ctx)
		return nil, err
	}
	return c, nil
}
