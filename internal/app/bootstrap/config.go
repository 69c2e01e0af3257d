// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/cohorthub/internal/app/membership"
	"github.com/dalemusser/cohorthub/internal/app/system/timeouts"
	"github.com/dalemusser/cohorthub/internal/app/system/tracing"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for CohortHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, jwt_secret, etc.
//   - Environment variables: COHORTHUB_MONGO_URI, COHORTHUB_JWT_SECRET, etc.
//   - Command-line flags: --mongo_uri, --jwt_secret, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017/?replicaSet=rs0", Desc: "MongoDB connection URI (replica set required for transactions)"},
	{Name: "mongo_database", Default: "cohort_hub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Tokens
	{Name: "jwt_secret", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Token signing key (at least 32 characters in production)"},
	{Name: "jwt_issuer", Default: "cohorthub", Desc: "Token issuer claim"},
	{Name: "access_token_ttl", Default: "15m", Desc: "Access token lifetime"},
	{Name: "refresh_token_ttl", Default: "24h", Desc: "Refresh token lifetime"},

	// Refresh cookie
	{Name: "cookie_key", Default: "dev-only-cookie-key-change-me-0123456789ABCDEF", Desc: "Refresh cookie signing key (at least 32 characters)"},
	{Name: "refresh_cookie_name", Default: "cohorthub_refresh", Desc: "Refresh cookie name"},
	{Name: "cookie_domain", Default: "", Desc: "Refresh cookie domain (blank means current host)"},

	// Google OAuth configuration
	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},
	{Name: "base_url", Default: "http://localhost:8080", Desc: "Public origin of this API (OAuth callback base)"},
	{Name: "client_redirect_url", Default: "", Desc: "Browser client origin; sign-in return paths resolve against it"},

	// Membership rules
	{Name: "withdrawal_cooldown", Default: "24h", Desc: "How long an application stays under review before it can be withdrawn"},
	{Name: "max_group_members", Default: membership.DefaultMaximumMembers, Desc: "Capacity of groups created without maximum_members"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_membership", Default: "all", Desc: "Membership event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// System admin bootstrap
	{Name: "system_admin_email", Default: "", Desc: "Email of the system admin user (promotes/creates on startup)"},

	// Rate limiting
	{Name: "redis_url", Default: "", Desc: "Redis URL for shared rate limit counters (blank uses in-process counters)"},
	{Name: "rate_limit_requests", Default: 30, Desc: "Requests allowed per client IP per window on limited routes"},
	{Name: "rate_limit_window", Default: "1m", Desc: "Rate limit window"},
	{Name: "trust_proxy_headers", Default: false, Desc: "Key rate limits and audit IPs on X-Forwarded-For/X-Real-IP (enable only behind a trusted proxy)"},

	// Tracing
	{Name: "trace_exporter", Default: "off", Desc: "Transaction span exporter: 'off' or 'stdout'"},

	// Timeouts
	{Name: "timeout_short", Default: "5s", Desc: "Timeout for single-document reads and writes"},
	{Name: "timeout_medium", Default: "10s", Desc: "Timeout for listings"},
	{Name: "timeout_long", Default: "30s", Desc: "Timeout for transactional membership operations"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, COHORTHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "COHORTHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		// Tokens
		JWTSecret:       appValues.String("jwt_secret"),
		JWTIssuer:       appValues.String("jwt_issuer"),
		AccessTokenTTL:  appValues.Duration("access_token_ttl", 15*time.Minute),
		RefreshTokenTTL: appValues.Duration("refresh_token_ttl", 24*time.Hour),

		// Refresh cookie
		CookieKey:         appValues.String("cookie_key"),
		RefreshCookieName: appValues.String("refresh_cookie_name"),
		CookieDomain:      appValues.String("cookie_domain"),

		// Google OAuth
		GoogleClientID:     appValues.String("google_client_id"),
		GoogleClientSecret: appValues.String("google_client_secret"),
		BaseURL:            appValues.String("base_url"),
		ClientRedirectURL:  appValues.String("client_redirect_url"),

		// Membership
		WithdrawalCooldown: appValues.Duration("withdrawal_cooldown", membership.DefaultWithdrawalCooldown),
		MaxGroupMembers:    appValues.Int("max_group_members"),

		// Audit logging
		AuditLogAuth:       appValues.String("audit_log_auth"),
		AuditLogAdmin:      appValues.String("audit_log_admin"),
		AuditLogMembership: appValues.String("audit_log_membership"),

		SystemAdminEmail: appValues.String("system_admin_email"),

		// Rate limiting
		RedisURL:          appValues.String("redis_url"),
		RateLimitRequests: appValues.Int("rate_limit_requests"),
		RateLimitWindow:   appValues.Duration("rate_limit_window", time.Minute),
		TrustProxyHeaders: appValues.Bool("trust_proxy_headers"),

		TraceExporter: appValues.String("trace_exporter"),

		// Timeouts
		TimeoutShort:  appValues.Duration("timeout_short", timeouts.DefaultShort),
		TimeoutMedium: appValues.Duration("timeout_medium", timeouts.DefaultMedium),
		TimeoutLong:   appValues.Duration("timeout_long", timeouts.DefaultLong),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI is checked before any connection is attempted.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if coreCfg != nil && coreCfg.Env == "prod" && len(appCfg.JWTSecret) < 32 {
		return fmt.Errorf("jwt_secret must be at least 32 characters in production")
	}
	if appCfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if len(appCfg.CookieKey) < 32 {
		return fmt.Errorf("cookie_key must be at least 32 characters, got %d", len(appCfg.CookieKey))
	}
	if appCfg.AccessTokenTTL <= 0 || appCfg.RefreshTokenTTL <= 0 {
		return fmt.Errorf("access_token_ttl and refresh_token_ttl must be positive")
	}
	if appCfg.WithdrawalCooldown <= 0 {
		return fmt.Errorf("withdrawal_cooldown must be positive, got %s", appCfg.WithdrawalCooldown)
	}
	if appCfg.MaxGroupMembers < 2 {
		return fmt.Errorf("max_group_members must be at least 2, got %d", appCfg.MaxGroupMembers)
	}
	if appCfg.RateLimitRequests < 1 || appCfg.RateLimitWindow <= 0 {
		return fmt.Errorf("rate_limit_requests and rate_limit_window must be positive")
	}
	if appCfg.RedisURL != "" {
		if _, err := redis.ParseURL(appCfg.RedisURL); err != nil {
			return fmt.Errorf("invalid redis_url: %w", err)
		}
	}

	if !tracing.ValidExporter(appCfg.TraceExporter) {
		return fmt.Errorf("trace_exporter must be 'off' or 'stdout', got %q", appCfg.TraceExporter)
	}
	if appCfg.TrustProxyHeaders {
		logger.Warn("trusting proxy headers for client IPs; make sure a proxy overwrites X-Forwarded-For")
	}

	if appCfg.GoogleClientID == "" || appCfg.GoogleClientSecret == "" {
		logger.Warn("Google OAuth is not configured; sign-in is disabled")
	}

	return nil
}
