// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//
// The struct is passed to every lifecycle hook, so anything needed during
// startup, request handling, or shutdown lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string; must reach a replica set for transactions
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Token issuing
	JWTSecret       string        // HMAC key for access and refresh tokens
	JWTIssuer       string        // iss claim
	AccessTokenTTL  time.Duration // lifetime of access tokens (default 15m)
	RefreshTokenTTL time.Duration // lifetime of refresh tokens and their cookie (default 24h)

	// Refresh cookie
	CookieKey         string // securecookie hash (+ optional block) key, at least 32 chars
	RefreshCookieName string
	CookieDomain      string // blank means current host

	// Google OAuth
	GoogleClientID     string
	GoogleClientSecret string
	BaseURL            string // public origin of this API; the OAuth callback hangs off it
	ClientRedirectURL  string // browser client origin that return paths resolve against

	// Membership rules
	WithdrawalCooldown time.Duration
	MaxGroupMembers    int // capacity of groups created without one

	// Audit logging: "all", "db", "log" or "off" per category
	AuditLogAuth       string
	AuditLogAdmin      string
	AuditLogMembership string

	// Promoted or created as system admin on every startup when set
	SystemAdminEmail string

	// Rate limiting; RedisURL shares the counters between instances
	RedisURL          string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Honor X-Forwarded-For / X-Real-IP; only safe behind a proxy that sets them
	TrustProxyHeaders bool

	// Span exporter for transaction traces: "off" or "stdout"
	TraceExporter string

	// Store call timeouts
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
}
