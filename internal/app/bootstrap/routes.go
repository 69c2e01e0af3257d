// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	auditlogfeature "github.com/dalemusser/cohorthub/internal/app/features/auditlog"
	authgooglefeature "github.com/dalemusser/cohorthub/internal/app/features/authgoogle"
	authtokenfeature "github.com/dalemusser/cohorthub/internal/app/features/authtoken"
	cohortsfeature "github.com/dalemusser/cohorthub/internal/app/features/cohorts"
	errorsfeature "github.com/dalemusser/cohorthub/internal/app/features/errors"
	groupsfeature "github.com/dalemusser/cohorthub/internal/app/features/groups"
	healthfeature "github.com/dalemusser/cohorthub/internal/app/features/health"
	usersfeature "github.com/dalemusser/cohorthub/internal/app/features/users"
	"github.com/dalemusser/cohorthub/internal/app/membership"
	cohortstore "github.com/dalemusser/cohorthub/internal/app/store/cohorts"
	"github.com/dalemusser/cohorthub/internal/app/store/oauthstate"
	userstore "github.com/dalemusser/cohorthub/internal/app/store/users"
	"github.com/dalemusser/cohorthub/internal/app/system/auth"
	"github.com/dalemusser/cohorthub/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// CohortHub serves a JSON API under /api/v1 plus /health and /metrics.
// Authentication is by bearer access token; the refresh token lives in a
// signed HTTP-only cookie scoped to /api/v1/auth.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase
	rt := deps.Runtime

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	cookies, err := auth.NewRefreshCookies(appCfg.CookieKey, appCfg.RefreshCookieName, appCfg.CookieDomain,
		appCfg.RefreshTokenTTL, secure, logger)
	if err != nil {
		logger.Error("refresh cookie store init failed", zap.Error(err))
		return nil, err
	}

	users := userstore.New(db)
	tokens := auth.NewTokenService(appCfg.JWTSecret, appCfg.JWTIssuer, appCfg.AccessTokenTTL, appCfg.RefreshTokenTTL, rt.Clock)
	issuer := auth.NewIssuer(tokens, cookies, users)
	mw := auth.NewMiddleware(tokens, users, logger)

	svc := membership.New(db, membership.Config{
		WithdrawalCooldown:    appCfg.WithdrawalCooldown,
		DefaultMaximumMembers: appCfg.MaxGroupMembers,
	}, logger,
		membership.WithClock(rt.Clock),
		membership.WithAudit(rt.Audit),
		membership.WithMetrics(rt.Metrics))

	authLimit := ratelimit.Middleware(rt.Limiter, "auth", appCfg.TrustProxyHeaders, rt.Metrics, logger)
	applyLimit := ratelimit.Middleware(rt.Limiter, "apply", appCfg.TrustProxyHeaders, rt.Metrics, logger)

	errorsHandler := errorsfeature.NewHandler()

	r := chi.NewRouter()
	r.NotFound(errorsHandler.NotFound)
	r.MethodNotAllowed(errorsHandler.MethodNotAllowed)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Handle("/metrics", promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(api chi.Router) {
		api.NotFound(errorsHandler.NotFound)
		api.MethodNotAllowed(errorsHandler.MethodNotAllowed)

		// Authentication
		googleHandler := authgooglefeature.NewHandler(users, cohortstore.New(db), oauthstate.New(db), issuer, rt.Audit,
			authgooglefeature.NewOAuthConfig(authgooglefeature.Config{
				ClientID:     appCfg.GoogleClientID,
				ClientSecret: appCfg.GoogleClientSecret,
				BaseURL:      appCfg.BaseURL,
			}), rt.Clock, logger)
		googleHandler.ClientURL = appCfg.ClientRedirectURL

		tokenHandler := authtokenfeature.NewHandler(users, issuer, rt.Audit, logger)
		authRouter := authtokenfeature.Routes(tokenHandler, mw)
		authRouter.Mount("/google", authgooglefeature.Routes(googleHandler))
		api.With(authLimit).Mount("/auth", authRouter)

		// Users
		usersHandler := usersfeature.NewHandler(db, svc, rt.Audit, logger)
		api.Mount("/users", usersfeature.Routes(usersHandler, mw))

		// Cohorts, with groups and applications nested under each cohort
		groupsHandler := groupsfeature.NewHandler(db, svc, rt.Audit, logger)
		cohortsHandler := cohortsfeature.NewHandler(db, rt.Audit, logger)
		api.Mount("/cohorts", cohortsfeature.Routes(cohortsHandler, mw, groupsfeature.Routes(groupsHandler, applyLimit)))

		// Audit trail (system admins)
		auditHandler := auditlogfeature.NewHandler(db, logger)
		api.Mount("/audit-events", auditlogfeature.Routes(auditHandler, mw))
	})

	return r, nil
}
