// internal/app/system/txn/txn.go
package txn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrUnsupported is returned when the deployment cannot run multi-document
// transactions (standalone mongod, some DocumentDB setups). Membership
// changes never fall back to unguarded writes.
var ErrUnsupported = errors.New("multi-document transactions are not supported by this deployment")

const instrumentation = "github.com/dalemusser/cohorthub/internal/app/system/txn"

// Run executes fn inside a majority read/write transaction. fn receives the
// session context and must pass it to every store call that belongs to the
// transaction. Any error returned by fn aborts the transaction and is
// returned unchanged; transient commit errors are retried by the driver.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer(instrumentation).Start(ctx, "mongo.transaction",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", "mongodb"), attribute.String("db.name", db.Name())),
	)
	defer span.End()

	sess, err := db.Client().StartSession()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start session")
		if IsNotSupported(err) {
			log.Error("transactions unavailable", zap.Error(err))
			return fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	}, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction aborted")
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return err
		}
		if IsNotSupported(err) {
			log.Error("transactions unavailable", zap.Error(err))
			return fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return err
	}
	return nil
}

// Server codes seen when transactions cannot run at all.
var notSupportedCodes = map[int32]bool{20: true, 51: true, 263: true}

var notSupportedKeywords = []string{
	"transaction",
	"replica set",
	"session",
	"not supported",
	"illegal operation",
}

// IsNotSupported reports whether err indicates that the server cannot run
// transactions at all, as opposed to a transaction that simply failed.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && notSupportedCodes[ce.Code] {
		return true
	}
	msg := strings.ToLower(err.Error())
	hits := 0
	for _, kw := range notSupportedKeywords {
		if strings.Contains(msg, kw) {
			hits++
		}
	}
	return hits >= 2
}
