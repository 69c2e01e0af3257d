// internal/app/system/auth/tokens.go
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// Token kinds carried in the "typ" claim so a refresh token can never be
// used as a bearer token and vice versa.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var (
	// ErrTokenExpired is returned for a well-formed token past its expiry.
	ErrTokenExpired = errors.New("token has expired")
	// ErrTokenInvalid covers bad signatures, wrong kind and malformed claims.
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims are the JWT claims for access and refresh tokens.
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	Kind   string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clockwork.Clock
}

// NewTokenService creates a TokenService. A nil clock uses the real clock.
func NewTokenService(signingKey, issuer string, accessTTL, refreshTTL time.Duration, clock clockwork.Clock) *TokenService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		clock:      clock,
	}
}

// RefreshTTL is the lifetime of refresh tokens, used for the cookie max-age.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccess returns a signed access token and its expiry.
func (s *TokenService) IssueAccess(userID primitive.ObjectID, email, role string) (string, time.Time, error) {
	exp := s.clock.Now().Add(s.accessTTL)
	tok, err := s.sign(Claims{
		UserID: userID.Hex(),
		Email:  email,
		Role:   role,
		Kind:   KindAccess,
	}, exp)
	return tok, exp, err
}

// IssueRefresh returns a signed refresh token and its jti. Only a hash of
// the jti is stored server-side.
func (s *TokenService) IssueRefresh(userID primitive.ObjectID) (token, jti string, err error) {
	jti = uuid.NewString()
	token, err = s.sign(Claims{
		UserID:           userID.Hex(),
		Kind:             KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{ID: jti},
	}, s.clock.Now().Add(s.refreshTTL))
	return token, jti, err
}

func (s *TokenService) sign(c Claims, exp time.Time) (string, error) {
	now := s.clock.Now()
	c.Issuer = s.issuer
	c.Subject = c.UserID
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(exp)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.signingKey)
}

// ParseAccess validates an access token.
func (s *TokenService) ParseAccess(token string) (*Claims, error) {
	return s.parse(token, KindAccess)
}

// ParseRefresh validates a refresh token.
func (s *TokenService) ParseRefresh(token string) (*Claims, error) {
	return s.parse(token, KindRefresh)
}

func (s *TokenService) parse(token, kind string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Kind != kind {
		return nil, ErrTokenInvalid
	}
	if _, err := primitive.ObjectIDFromHex(claims.UserID); err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// UserObjectID returns the claims' user id. Claims returned by Parse*
// always carry a valid id.
func (c *Claims) UserObjectID() primitive.ObjectID {
	id, _ := primitive.ObjectIDFromHex(c.UserID)
	return id
}

// HashJTI hashes a refresh token id for storage.
func HashJTI(jti string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(jti), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MatchJTI reports whether jti matches a stored hash.
func MatchJTI(hash, jti string) bool {
	if hash == "" || jti == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(jti)) == nil
}
