// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	metricsstore "github.com/dalemusser/cohorthub/internal/app/store/metrics"
	"github.com/dalemusser/cohorthub/internal/app/store/oauthstate"
	"github.com/dalemusser/cohorthub/internal/app/system/metrics"
	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// OAuthStateCleanupJob removes expired OAuth state tokens.
// This is a backup for when MongoDB's TTL index cleanup is delayed.
func OAuthStateCleanupJob(stateStore *oauthstate.Store, clock clockwork.Clock, logger *zap.Logger) Job {
	return Job{
		Name:     "oauth-state-cleanup",
		Interval: time.Hour,
		Timeout:  30 * time.Second,
		Run: func(ctx context.Context) error {
			count, err := stateStore.CleanupExpired(ctx, clock.Now())
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Debug("cleaned up expired OAuth states", zap.Int64("count", count))
			}
			return nil
		},
	}
}

// EntityGaugeJob refreshes the stored-entity gauges.
func EntityGaugeJob(db *mongo.Database, m *metrics.Metrics, interval time.Duration) Job {
	return Job{
		Name:     "entity-gauges",
		Interval: interval,
		Timeout:  10 * time.Second,
		Run: func(ctx context.Context) error {
			for kind, n := range metricsstore.FetchCounts(ctx, db).AsMap() {
				m.SetEntity(kind, n)
			}
			return ctx.Err()
		},
	}
}
