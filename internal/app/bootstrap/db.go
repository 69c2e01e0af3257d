// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/store/audit"
	"github.com/dalemusser/cohorthub/internal/app/system/auditlog"
	"github.com/dalemusser/cohorthub/internal/app/system/indexes"
	"github.com/dalemusser/cohorthub/internal/app/system/metrics"
	"github.com/dalemusser/cohorthub/internal/app/system/ratelimit"
	"github.com/dalemusser/cohorthub/internal/app/system/tasks"
	"github.com/dalemusser/cohorthub/internal/app/system/tracing"
	"github.com/dalemusser/cohorthub/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB (and Redis when configured) and builds the
// shared runtime.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	connectCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return DBDeps{}, fmt.Errorf("ping MongoDB: %w", err)
	}
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
	}

	if appCfg.RedisURL != "" {
		ropts, err := redis.ParseURL(appCfg.RedisURL)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return DBDeps{}, fmt.Errorf("invalid redis_url: %w", err)
		}
		rdb := redis.NewClient(ropts)
		if err := rdb.Ping(connectCtx).Err(); err != nil {
			// Limiting fails open, so an unreachable Redis is not fatal.
			logger.Warn("Redis ping failed; rate limiting will fail open until it recovers", zap.Error(err))
		} else {
			logger.Info("connected to Redis", zap.String("addr", ropts.Addr))
		}
		deps.Redis = rdb
	}

	deps.Runtime = newRuntime(appCfg, deps, logger)

	tp, err := tracing.Setup(ctx, tracing.Config{ServiceName: "cohorthub", Exporter: appCfg.TraceExporter})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return DBDeps{}, fmt.Errorf("set up tracing: %w", err)
	}
	if tp != nil {
		logger.Info("tracing enabled", zap.String("exporter", appCfg.TraceExporter))
	}
	deps.Runtime.Tracer = tp
	return deps, nil
}

func newRuntime(appCfg AppConfig, deps DBDeps, logger *zap.Logger) *Runtime {
	clock := clockwork.NewRealClock()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var limiter ratelimit.Limiter
	if deps.Redis != nil {
		limiter = ratelimit.NewRedis(deps.Redis, "cohorthub:ratelimit:", appCfg.RateLimitRequests, appCfg.RateLimitWindow)
	} else {
		limiter = ratelimit.NewMemory(appCfg.RateLimitRequests, appCfg.RateLimitWindow, clock)
	}

	return &Runtime{
		Clock:    clock,
		Registry: reg,
		Metrics:  metrics.New(reg),
		Audit: auditlog.New(audit.New(deps.MongoDatabase), logger, auditlog.Config{
			Auth:              appCfg.AuditLogAuth,
			Admin:             appCfg.AuditLogAdmin,
			Membership:        appCfg.AuditLogMembership,
			TrustProxyHeaders: appCfg.TrustProxyHeaders,
		}),
		Limiter: limiter,
		Tasks:   tasks.NewRunner(logger, clock),
	}
}

// EnsureSchema creates collections with their JSON-schema validators, then
// the indexes the membership invariants rely on. Collections must exist
// before the first multi-document transaction touches them.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := validators.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("ensure validators failed", zap.Error(err))
		return err
	}
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("ensure indexes failed", zap.Error(err))
		return err
	}
	logger.Info("schema ensured")
	return nil
}
