// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dalemusser/cohorthub/internal/app/store/audit"
	"github.com/dalemusser/cohorthub/internal/app/system/ratelimit"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration. Each field is one of
// "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off".
type Config struct {
	Auth       string
	Admin      string
	Membership string

	// TrustProxyHeaders records the forwarded client IP instead of RemoteAddr.
	TrustProxyHeaders bool
}

// Logger records audit events to MongoDB (via audit.Store) and zap.
// A nil *Logger is a valid no-op logger.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{store: store, zapLog: zapLog, config: config}
}

func (l *Logger) clientIP(r *http.Request) string {
	if l == nil || r == nil {
		return ""
	}
	return ratelimit.ClientIP(r, l.config.TrustProxyHeaders)
}

func userAgent(r *http.Request) string {
	if r == nil {
		return ""
	}
	return r.UserAgent()
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.CohortID != nil {
		fields = append(fields, zap.String("cohort_id", event.CohortID.Hex()))
	}
	if event.GroupID != nil {
		fields = append(fields, zap.String("group_id", event.GroupID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event according to the category's setting.
// Store failures are logged and swallowed: auditing never fails a request.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAdmin:
		setting = l.config.Admin
	case audit.CategoryMembership:
		setting = l.config.Membership
	default:
		setting = "all"
	}

	if setting == "off" {
		return
	}
	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}
	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType))
		}
	}
}

// --- Authentication Events ---

// LoginSuccess logs a successful Google sign-in.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    &userID,
		IP:        l.clientIP(r),
		UserAgent: userAgent(r),
		Success:   true,
		Details:   map[string]string{"email": email},
	})
}

// LoginNotAllowed logs a sign-in refused because the email is on no cohort allow-list.
func (l *Logger) LoginNotAllowed(ctx context.Context, r *http.Request, email string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedNotAllowed,
		IP:            l.clientIP(r),
		UserAgent:     userAgent(r),
		Success:       false,
		FailureReason: "email not allow-listed",
		Details:       map[string]string{"email": email},
	})
}

// UserRegistered logs first sign-in of a new user.
func (l *Logger) UserRegistered(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventUserRegistered,
		UserID:    &userID,
		IP:        l.clientIP(r),
		UserAgent: userAgent(r),
		Success:   true,
		Details:   map[string]string{"email": email},
	})
}

// TokenRefreshed logs a refresh-token rotation.
func (l *Logger) TokenRefreshed(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventTokenRefreshed,
		UserID:    &userID,
		IP:        l.clientIP(r),
		UserAgent: userAgent(r),
		Success:   true,
	})
}

// TokenReuseDetected logs presentation of a refresh token that is no longer current.
func (l *Logger) TokenReuseDetected(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventTokenReuseDetected,
		UserID:        &userID,
		IP:            l.clientIP(r),
		UserAgent:     userAgent(r),
		Success:       false,
		FailureReason: "stale refresh token",
	})
}

// Logout logs a sign-out.
func (l *Logger) Logout(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		UserID:    &userID,
		IP:        l.clientIP(r),
		UserAgent: userAgent(r),
		Success:   true,
	})
}

// --- Admin Events ---

// CohortCreated logs creation of a cohort.
func (l *Logger) CohortCreated(ctx context.Context, actorID primitive.ObjectID, c models.Cohort) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventCohortCreated,
		ActorID:   &actorID,
		CohortID:  &c.ID,
		Success:   true,
		Details: map[string]string{
			"name":           c.Name,
			"allowed_emails": strconv.Itoa(len(c.AllowedEmails)),
		},
	})
}

// CohortUpdated logs a description change.
func (l *Logger) CohortUpdated(ctx context.Context, actorID, cohortID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventCohortUpdated,
		ActorID:   &actorID,
		CohortID:  &cohortID,
		Success:   true,
	})
}

// CohortEmailAllowed logs an allow-list addition.
func (l *Logger) CohortEmailAllowed(ctx context.Context, actorID, cohortID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventCohortEmailAllowed,
		ActorID:   &actorID,
		CohortID:  &cohortID,
		Success:   true,
		Details:   map[string]string{"email": email},
	})
}

// CohortEmailDisallowed logs an allow-list removal.
func (l *Logger) CohortEmailDisallowed(ctx context.Context, actorID, cohortID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventCohortEmailDisallowed,
		ActorID:   &actorID,
		CohortID:  &cohortID,
		Success:   true,
		Details:   map[string]string{"email": email},
	})
}

// CohortAdminGranted logs a promotion to cohort admin.
func (l *Logger) CohortAdminGranted(ctx context.Context, actorID, userID primitive.ObjectID, cohorts int64) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventCohortAdminGranted,
		ActorID:   &actorID,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"cohorts_updated": strconv.FormatInt(cohorts, 10)},
	})
}

// CohortAdminRevoked logs a demotion back to student.
func (l *Logger) CohortAdminRevoked(ctx context.Context, actorID, userID primitive.ObjectID, cohorts int64) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventCohortAdminRevoked,
		ActorID:   &actorID,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"cohorts_updated": strconv.FormatInt(cohorts, 10)},
	})
}

// SystemAdminEnsured logs the startup bootstrap of the system admin account.
func (l *Logger) SystemAdminEnsured(ctx context.Context, userID primitive.ObjectID, action string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventSystemAdminEnsured,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"action": action},
	})
}

// --- Membership Events ---

func (l *Logger) membership(ctx context.Context, eventType string, actorID, userID primitive.ObjectID, g models.Group, details map[string]string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryMembership,
		EventType: eventType,
		ActorID:   &actorID,
		UserID:    &userID,
		CohortID:  &g.CohortID,
		GroupID:   &g.ID,
		Success:   true,
		Details:   details,
	})
}

// GroupCreated logs creation of a group by its creator.
func (l *Logger) GroupCreated(ctx context.Context, g models.Group) {
	if l == nil {
		return
	}
	l.membership(ctx, audit.EventGroupCreated, g.CreatedBy, g.CreatedBy, g, map[string]string{
		"name":            g.Name,
		"maximum_members": strconv.Itoa(g.MaximumMembers),
	})
}

// GroupUpdated logs a role-requirements or announcement change.
func (l *Logger) GroupUpdated(ctx context.Context, actorID primitive.ObjectID, g models.Group, what string) {
	if l == nil {
		return
	}
	l.membership(ctx, audit.EventGroupUpdated, actorID, g.CreatedBy, g, map[string]string{"field": what})
}

// GroupDeleted logs a cascade delete.
func (l *Logger) GroupDeleted(ctx context.Context, actorID primitive.ObjectID, g models.Group, released, applications int64) {
	if l == nil {
		return
	}
	l.membership(ctx, audit.EventGroupDeleted, actorID, g.CreatedBy, g, map[string]string{
		"name":                 g.Name,
		"members_released":     strconv.FormatInt(released, 10),
		"applications_deleted": strconv.FormatInt(applications, 10),
	})
}

// ApplicationEvent logs a submission or a transition of an application.
func (l *Logger) ApplicationEvent(ctx context.Context, eventType string, actorID primitive.ObjectID, g models.Group, a models.Application) {
	if l == nil {
		return
	}
	l.membership(ctx, eventType, actorID, a.ApplicantID, g, map[string]string{
		"application_id": a.ID.Hex(),
		"status":         a.Status,
	})
}

// MemberLeft logs a voluntary departure.
func (l *Logger) MemberLeft(ctx context.Context, userID primitive.ObjectID, g models.Group) {
	if l == nil {
		return
	}
	l.membership(ctx, audit.EventMemberLeft, userID, userID, g, nil)
}

// MemberRemoved logs an admin removing a member.
func (l *Logger) MemberRemoved(ctx context.Context, actorID, userID primitive.ObjectID, g models.Group) {
	if l == nil {
		return
	}
	l.membership(ctx, audit.EventMemberRemoved, actorID, userID, g, nil)
}
