// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/store/oauthstate"
	userstore "github.com/dalemusser/cohorthub/internal/app/store/users"
	"github.com/dalemusser/cohorthub/internal/app/system/auditlog"
	"github.com/dalemusser/cohorthub/internal/app/system/tasks"
	"github.com/dalemusser/cohorthub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// entityGaugeInterval is how often the stored-entity gauges are refreshed.
const entityGaugeInterval = time.Minute

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
	})

	if appCfg.SystemAdminEmail != "" {
		if err := ensureSystemAdmin(ctx, deps.MongoDatabase, deps.Runtime.Audit, appCfg.SystemAdminEmail, logger); err != nil {
			return err
		}
	}

	rt := deps.Runtime
	rt.Tasks.Start(
		tasks.OAuthStateCleanupJob(oauthstate.New(deps.MongoDatabase), rt.Clock, logger),
		tasks.EntityGaugeJob(deps.MongoDatabase, rt.Metrics, entityGaugeInterval),
	)
	return nil
}

// ensureSystemAdmin creates the configured system admin or promotes the
// existing account with that email.
func ensureSystemAdmin(ctx context.Context, db *mongo.Database, audit *auditlog.Logger, email string, logger *zap.Logger) error {
	u, action, err := userstore.New(db).EnsureSystemAdmin(ctx, email, "")
	if err != nil {
		logger.Error("ensure system admin failed", zap.String("email", email), zap.Error(err))
		return err
	}
	if action != "unchanged" {
		logger.Info("system admin ensured",
			zap.String("email", u.Email),
			zap.String("user_id", u.ID.Hex()),
			zap.String("action", action))
		audit.SystemAdminEnsured(ctx, u.ID, action)
	}
	return nil
}
