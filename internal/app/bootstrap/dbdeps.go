// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/cohorthub/internal/app/system/auditlog"
	"github.com/dalemusser/cohorthub/internal/app/system/metrics"
	"github.com/dalemusser/cohorthub/internal/app/system/ratelimit"
	"github.com/dalemusser/cohorthub/internal/app/system/tasks"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DBDeps holds database/back-end dependencies for the app.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Redis is nil unless redis_url is set.
	Redis redis.UniversalClient

	// Runtime is shared by Startup, BuildHandler and Shutdown, which all
	// receive DBDeps by value.
	Runtime *Runtime
}

// Runtime is the process-wide machinery built once after connecting.
type Runtime struct {
	Clock    clockwork.Clock
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Audit    *auditlog.Logger
	Limiter  ratelimit.Limiter
	Tasks    *tasks.Runner

	// Tracer is nil when trace_exporter is "off".
	Tracer *sdktrace.TracerProvider
}
