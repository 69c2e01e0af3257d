// Package membership is the application/group-membership state machine.
//
// It owns every write to users.current_group, groups.members_count and
// applications.status. Single-document transitions (deny, withdraw) are
// compare-and-swap updates; anything touching two or more entities runs in
// a multi-document transaction so a failure leaves no partial writes.
//
// Callers authenticate and authorize before calling in: the service trusts
// reviewer and actor identities and only checks what is intrinsic to an
// invariant (applicant identity on withdraw, creator protection).
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	applicationstore "github.com/dalemusser/cohorthub/internal/app/store/applications"
	groupstore "github.com/dalemusser/cohorthub/internal/app/store/groups"
	userstore "github.com/dalemusser/cohorthub/internal/app/store/users"
	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/app/system/auditlog"
	"github.com/dalemusser/cohorthub/internal/app/system/metrics"
	"github.com/dalemusser/cohorthub/internal/app/system/txn"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultWithdrawalCooldown = 24 * time.Hour
	DefaultMaximumMembers     = 4
)

// Config tunes the state machine.
type Config struct {
	// WithdrawalCooldown is how long an application must have been under
	// review before its applicant may withdraw it.
	WithdrawalCooldown time.Duration
	// DefaultMaximumMembers is the capacity of groups created without one.
	DefaultMaximumMembers int
}

// Service runs membership operations against one database.
type Service struct {
	db     *mongo.Database
	users  *userstore.Store
	groups *groupstore.Store
	apps   *applicationstore.Store

	cfg     Config
	clock   clockwork.Clock
	audit   *auditlog.Logger
	metrics *metrics.Metrics
	log     *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock injects the clock used for cooldowns and timestamps.
func WithClock(c clockwork.Clock) Option { return func(s *Service) { s.clock = c } }

// WithAudit records membership events.
func WithAudit(a *auditlog.Logger) Option { return func(s *Service) { s.audit = a } }

// WithMetrics records operation outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// New creates a Service.
func New(db *mongo.Database, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	if cfg.WithdrawalCooldown <= 0 {
		cfg.WithdrawalCooldown = DefaultWithdrawalCooldown
	}
	if cfg.DefaultMaximumMembers < 2 {
		cfg.DefaultMaximumMembers = DefaultMaximumMembers
	}
	s := &Service{
		db:     db,
		users:  userstore.New(db),
		groups: groupstore.New(db),
		apps:   applicationstore.New(db),
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		log:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

func (s *Service) inTxn(ctx context.Context, fn func(ctx context.Context) error) error {
	return txn.Run(ctx, s.db, s.log, fn)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Loaders: translate store misses into NotFound                               |
*─────────────────────────────────────────────────────────────────────────────*/

func (s *Service) loadGroup(ctx context.Context, id primitive.ObjectID) (models.Group, error) {
	g, err := s.groups.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Group{}, apperr.NotFoundf("group not found")
	}
	return g, err
}

func (s *Service) loadUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFoundf("user not found")
	}
	return u, err
}

func (s *Service) loadApplication(ctx context.Context, id primitive.ObjectID) (models.Application, error) {
	a, err := s.apps.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Application{}, apperr.NotFoundf("application not found")
	}
	return a, err
}

// Application returns one application.
func (s *Service) Application(ctx context.Context, id primitive.ObjectID) (models.Application, error) {
	return s.loadApplication(ctx, id)
}

// ListApplications returns a group's applications, optionally filtered by status.
func (s *Service) ListApplications(ctx context.Context, groupID primitive.ObjectID, status string) ([]models.Application, error) {
	return s.apps.ListByGroup(ctx, groupID, status)
}

// ListForApplicant returns every application the user has submitted.
func (s *Service) ListForApplicant(ctx context.Context, applicantID primitive.ObjectID) ([]models.Application, error) {
	return s.apps.ListByApplicant(ctx, applicantID)
}

func invalidTransition(a models.Application, to string) *apperr.Error {
	return apperr.Newf(apperr.InvalidTransition,
		"application is %s and cannot move to %s", a.Status, to).
		WithDetail("current_status", a.Status)
}

// inconsistent reports a broken invariant. It is logged here and never
// corrected silently.
func (s *Service) inconsistent(msg string, fields ...zap.Field) *apperr.Error {
	s.log.Error("membership invariant violated: "+msg, fields...)
	return apperr.New(apperr.InconsistentState, msg)
}

// formatWait renders a remaining duration rounded up to the minute, e.g. "23h 0m".
func formatWait(d time.Duration) string {
	d = d.Truncate(time.Second)
	if rem := d % time.Minute; rem != 0 {
		d += time.Minute - rem
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// observe records an operation outcome; defer it with a pointer to the
// named error result.
func (s *Service) observe(op string, start time.Time, errp *error) {
	s.metrics.ObserveOperation(op, start, *errp)
}
