// internal/app/features/authgoogle/handler.go
package authgoogle

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cohortstore "github.com/dalemusser/cohorthub/internal/app/store/cohorts"
	"github.com/dalemusser/cohorthub/internal/app/store/oauthstate"
	userstore "github.com/dalemusser/cohorthub/internal/app/store/users"
	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/app/system/auditlog"
	"github.com/dalemusser/cohorthub/internal/app/system/auth"
	"github.com/dalemusser/cohorthub/internal/app/system/normalize"
	"github.com/dalemusser/cohorthub/internal/app/system/respond"
	"github.com/dalemusser/cohorthub/internal/app/system/timeouts"
	"github.com/dalemusser/cohorthub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/gorilla/securecookie"
	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// StateTTL bounds how long a user may sit on Google's consent screen.
const StateTTL = 10 * time.Minute

// DefaultUserInfoURL is Google's OAuth2 userinfo endpoint.
const DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Handler handles Google OAuth sign-in and first-time registration.
type Handler struct {
	Users   *userstore.Store
	Cohorts *cohortstore.Store
	States  *oauthstate.Store
	Issuer  *auth.Issuer
	Audit   *auditlog.Logger
	Clock   clockwork.Clock
	Log     *zap.Logger

	OAuth       *oauth2.Config
	UserInfoURL string

	// ClientURL is the browser client's origin. The return path echoed
	// back after sign-in is resolved against it; blank leaves it relative.
	ClientURL string
}

// Config carries the Google client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string // public origin of this API, e.g. "https://api.cohorthub.dev"
}

// NewOAuthConfig builds the Google oauth2 configuration for cfg.
func NewOAuthConfig(cfg Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  strings.TrimRight(cfg.BaseURL, "/") + "/api/v1/auth/google/callback",
		Scopes: []string{
			"openid",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

// NewHandler creates a new Google OAuth handler.
func NewHandler(
	users *userstore.Store,
	cohorts *cohortstore.Store,
	states *oauthstate.Store,
	issuer *auth.Issuer,
	audit *auditlog.Logger,
	oauthCfg *oauth2.Config,
	clock clockwork.Clock,
	logger *zap.Logger,
) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{
		Users:       users,
		Cohorts:     cohorts,
		States:      states,
		Issuer:      issuer,
		Audit:       audit,
		Clock:       clock,
		Log:         logger,
		OAuth:       oauthCfg,
		UserInfoURL: DefaultUserInfoURL,
	}
}

// IsConfigured returns true if Google OAuth is configured.
func (h *Handler) IsConfigured() bool {
	return h.OAuth != nil && h.OAuth.ClientID != "" && h.OAuth.ClientSecret != ""
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/google/login                                                       |
| Stores a single-use state + PKCE verifier and redirects to Google.           |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if !h.IsConfigured() {
		h.Log.Warn("Google OAuth not configured")
		respond.Fail(w, r, apperr.Internal, "Google sign-in is not configured")
		return
	}

	state, err := generateState()
	if err != nil {
		respond.Error(w, r, h.Log, fmt.Errorf("generate oauth state: %w", err))
		return
	}
	verifier := oauth2.GenerateVerifier()
	returnURL := urlutil.SafeReturn(query.Get(r, "return"), "", "/")

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "save oauth state")
	defer cancel()

	now := h.Clock.Now().UTC()
	if err := h.States.Save(ctx, oauthstate.State{
		State:     state,
		Verifier:  verifier,
		ReturnURL: returnURL,
		ExpiresAt: now.Add(StateTTL),
		CreatedAt: now,
	}); err != nil {
		respond.Error(w, r, h.Log, fmt.Errorf("save oauth state: %w", err))
		return
	}

	url := h.OAuth.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
	h.Log.Debug("initiating Google OAuth flow", zap.String("return_url", returnURL))
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// loginResponse is the data returned after a completed sign-in.
type loginResponse struct {
	auth.TokenResponse
	User       *models.User `json:"user"`
	Registered bool         `json:"registered"`
	ReturnURL  string       `json:"return_url"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/google/callback                                                    |
| Consumes the state, exchanges the code, signs the user in (registering      |
| them when their email is allow-listed) and returns the token pair.           |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if errParam := query.Get(r, "error"); errParam != "" {
		h.Log.Warn("Google OAuth error",
			zap.String("error", errParam),
			zap.String("description", query.Get(r, "error_description")))
		respond.Fail(w, r, apperr.Unauthorized, "Google sign-in was cancelled or denied")
		return
	}

	state, code := query.Get(r, "state"), query.Get(r, "code")
	if state == "" || code == "" {
		respond.Fail(w, r, apperr.Validation, "state and code are required")
		return
	}

	stCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), h.Log, "consume oauth state")
	st, ok, err := h.States.Consume(stCtx, state, h.Clock.Now())
	cancel()
	if err != nil {
		respond.Error(w, r, h.Log, fmt.Errorf("consume oauth state: %w", err))
		return
	}
	if !ok {
		h.Log.Warn("invalid or expired OAuth state")
		respond.Fail(w, r, apperr.Unauthorized, "sign-in link is invalid or has expired; start again")
		return
	}

	token, err := h.OAuth.Exchange(ctx, code, oauth2.VerifierOption(st.Verifier))
	if err != nil {
		h.Log.Warn("failed to exchange OAuth code", zap.Error(err))
		respond.Fail(w, r, apperr.Unauthorized, "could not complete Google sign-in")
		return
	}

	info, err := h.fetchUserInfo(ctx, token)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}
	if info.Email == "" || !info.EmailVerified {
		respond.Fail(w, r, apperr.Forbidden, "your Google account has no verified email address")
		return
	}

	dbCtx, dbCancel := timeouts.WithTimeout(ctx, timeouts.Medium(), h.Log, "google sign-in")
	defer dbCancel()

	user, registered, err := h.resolveUser(dbCtx, r, info)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	tokens, err := h.Issuer.Start(dbCtx, w, r, user)
	if err != nil {
		respond.Error(w, r, h.Log, err)
		return
	}

	h.Audit.LoginSuccess(ctx, r, user.ID, user.Email)
	h.Log.Info("user signed in via Google",
		zap.String("user_id", user.ID.Hex()),
		zap.Bool("registered", registered))

	status, msg := http.StatusOK, "signed in"
	if registered {
		status, msg = http.StatusCreated, "account created"
	}
	respond.OK(w, status, msg, loginResponse{
		TokenResponse: tokens,
		User:          user,
		Registered:    registered,
		ReturnURL:     strings.TrimRight(h.ClientURL, "/") + st.ReturnURL,
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| User lookup                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// googleUserInfo represents user info returned from Google.
type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (h *Handler) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*googleUserInfo, error) {
	client := h.OAuth.Client(ctx, token)

	resp, err := client.Get(h.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch google user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google user info: unexpected status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode google user info: %w", err)
	}
	info.Email = normalize.Email(info.Email)
	return &info, nil
}

// resolveUser finds the account for info, linking the Google subject on
// first Google sign-in, or registers a student when the email is on at
// least one cohort allow-list.
func (h *Handler) resolveUser(ctx context.Context, r *http.Request, info *googleUserInfo) (*models.User, bool, error) {
	u, err := h.Users.GetByGoogleID(ctx, info.ID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, err
	}

	u, err = h.Users.GetByEmail(ctx, info.Email)
	if err == nil {
		if u.GoogleID == nil || *u.GoogleID == "" {
			if err := h.Users.LinkGoogleAccount(ctx, u.ID, info.ID, info.Name, info.Picture); err != nil {
				return nil, false, fmt.Errorf("link google account: %w", err)
			}
			gid := info.ID
			u.GoogleID = &gid
		}
		return u, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, err
	}

	cohortIDs, err := h.Cohorts.CohortIDsForEmail(ctx, info.Email)
	if err != nil {
		return nil, false, err
	}
	if len(cohortIDs) == 0 {
		h.Audit.LoginNotAllowed(ctx, r, info.Email)
		return nil, false, apperr.New(apperr.Forbidden,
			"your email is not on any cohort's allow-list; ask a cohort admin to add you")
	}

	created, err := h.register(ctx, info, cohortIDs)
	if err != nil {
		return nil, false, err
	}
	h.Audit.UserRegistered(ctx, r, created.ID, created.Email)
	return created, true, nil
}

const usernameAttempts = 3

func (h *Handler) register(ctx context.Context, info *googleUserInfo, cohortIDs []primitive.ObjectID) (*models.User, error) {
	gid := info.ID
	for i := 0; i < usernameAttempts; i++ {
		username, err := generateUsername(info.Email)
		if err != nil {
			return nil, err
		}
		u, err := h.Users.Create(ctx, models.User{
			GoogleID:        &gid,
			Email:           info.Email,
			FullName:        info.Name,
			AvatarURL:       info.Picture,
			Username:        &username,
			Role:            models.RoleStudent,
			EnrolledCohorts: cohortIDs,
		})
		if errors.Is(err, userstore.ErrDuplicateUsername) {
			continue
		}
		if errors.Is(err, userstore.ErrDuplicateEmail) {
			return nil, apperr.New(apperr.Conflict, "an account with this email was created concurrently; sign in again")
		}
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &u, nil
	}
	return nil, apperr.New(apperr.Conflict, "could not allocate a username; try again")
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

// generateState creates a cryptographically secure random state string.
func generateState() (string, error) {
	b := securecookie.GenerateRandomKey(32)
	if b == nil {
		return "", errors.New("random source unavailable")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// generateUsername returns the email's local part, cut to 10 characters,
// followed by 4 random hex characters.
func generateUsername(email string) (string, error) {
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}
	if len(local) > 10 {
		local = local[:10]
	}
	suffix := securecookie.GenerateRandomKey(2)
	if suffix == nil {
		return "", errors.New("random source unavailable")
	}
	return local + hex.EncodeToString(suffix), nil
}
