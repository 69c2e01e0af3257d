package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/cohorthub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrRefreshReused is returned when a refresh token that was already
// rotated out is presented again.
var ErrRefreshReused = errors.New("refresh token reuse detected")

// RefreshHashStore persists the hash of each user's live refresh token.
type RefreshHashStore interface {
	SetRefreshTokenHash(ctx context.Context, id primitive.ObjectID, hash string) error
	RotateRefreshTokenHash(ctx context.Context, id primitive.ObjectID, oldHash, newHash string) (bool, error)
	ClearRefreshTokenHash(ctx context.Context, id primitive.ObjectID) error
}

// TokenResponse is the body returned after sign-in and refresh.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Issuer starts, rotates and ends token sessions: it signs the token pair,
// stores the refresh jti hash and writes the refresh cookie.
type Issuer struct {
	tokens  *TokenService
	cookies *RefreshCookies
	store   RefreshHashStore
}

// NewIssuer creates an Issuer.
func NewIssuer(tokens *TokenService, cookies *RefreshCookies, store RefreshHashStore) *Issuer {
	return &Issuer{tokens: tokens, cookies: cookies, store: store}
}

// Tokens exposes the token service for middleware wiring.
func (i *Issuer) Tokens() *TokenService { return i.tokens }

// Start signs a fresh pair for u, replacing any previous refresh token.
func (i *Issuer) Start(ctx context.Context, w http.ResponseWriter, r *http.Request, u *models.User) (TokenResponse, error) {
	refresh, hash, err := i.newRefresh(u.ID)
	if err != nil {
		return TokenResponse{}, err
	}
	if err := i.store.SetRefreshTokenHash(ctx, u.ID, hash); err != nil {
		return TokenResponse{}, fmt.Errorf("store refresh hash: %w", err)
	}
	return i.finish(w, r, u, refresh)
}

// RefreshClaims reads and validates the refresh cookie on r.
func (i *Issuer) RefreshClaims(r *http.Request) (*Claims, error) {
	tok, err := i.cookies.Get(r)
	if err != nil {
		return nil, err
	}
	return i.tokens.ParseRefresh(tok)
}

// Rotate replaces u's refresh token after checking claims.ID against the
// stored hash. A mismatch means the token was already rotated: every
// session for u is revoked and ErrRefreshReused is returned.
func (i *Issuer) Rotate(ctx context.Context, w http.ResponseWriter, r *http.Request, u *models.User, claims *Claims) (TokenResponse, error) {
	if !MatchJTI(u.RefreshTokenHash, claims.ID) {
		if u.RefreshTokenHash != "" {
			if err := i.store.ClearRefreshTokenHash(ctx, u.ID); err != nil {
				return TokenResponse{}, fmt.Errorf("revoke after reuse: %w", err)
			}
		}
		_ = i.cookies.Clear(w, r)
		return TokenResponse{}, ErrRefreshReused
	}

	refresh, hash, err := i.newRefresh(u.ID)
	if err != nil {
		return TokenResponse{}, err
	}
	ok, err := i.store.RotateRefreshTokenHash(ctx, u.ID, u.RefreshTokenHash, hash)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("rotate refresh hash: %w", err)
	}
	if !ok {
		// A concurrent refresh won with the same token.
		_ = i.cookies.Clear(w, r)
		return TokenResponse{}, ErrRefreshReused
	}
	return i.finish(w, r, u, refresh)
}

// End revokes the stored refresh token and clears the cookie.
func (i *Issuer) End(ctx context.Context, w http.ResponseWriter, r *http.Request, userID primitive.ObjectID) error {
	if err := i.store.ClearRefreshTokenHash(ctx, userID); err != nil {
		return fmt.Errorf("clear refresh hash: %w", err)
	}
	return i.cookies.Clear(w, r)
}

func (i *Issuer) newRefresh(userID primitive.ObjectID) (token, hash string, err error) {
	token, jti, err := i.tokens.IssueRefresh(userID)
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}
	hash, err = HashJTI(jti)
	if err != nil {
		return "", "", fmt.Errorf("hash refresh jti: %w", err)
	}
	return token, hash, nil
}

func (i *Issuer) finish(w http.ResponseWriter, r *http.Request, u *models.User, refresh string) (TokenResponse, error) {
	access, exp, err := i.tokens.IssueAccess(u.ID, u.Email, u.Role)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("sign access token: %w", err)
	}
	if err := i.cookies.Set(w, r, refresh); err != nil {
		return TokenResponse{}, fmt.Errorf("write refresh cookie: %w", err)
	}
	return TokenResponse{AccessToken: access, TokenType: "Bearer", ExpiresAt: exp}, nil
}
