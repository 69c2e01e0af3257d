// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/cohorthub/internal/app/system/ratelimit"
	"github.com/dalemusser/cohorthub/internal/app/system/tracing"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops background work, then tears down backend connections.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if rt := deps.Runtime; rt != nil {
		rt.Tasks.Stop()
		if ml, ok := rt.Limiter.(*ratelimit.MemoryLimiter); ok {
			ml.Close()
		}
		if err := tracing.Shutdown(ctx, rt.Tracer); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}

	if deps.Redis != nil {
		if err := deps.Redis.Close(); err != nil {
			logger.Warn("Redis close failed", zap.Error(err))
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
