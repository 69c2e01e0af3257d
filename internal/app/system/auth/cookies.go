// internal/app/system/auth/cookies.go
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const refreshTokenKey = "refresh_token"

// ErrNoRefreshCookie is returned when the request carries no usable refresh cookie.
var ErrNoRefreshCookie = errors.New("refresh cookie missing or unreadable")

// RefreshCookies stores the refresh token in a signed, encrypted,
// HTTP-only cookie.
type RefreshCookies struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger
}

// NewRefreshCookies builds the cookie store. cookieKey must be at least 32
// bytes; its first 32 bytes sign and the next 32 (when present) encrypt.
//
// In production (secure=true) cookies are Secure + SameSite=None so a
// separately hosted client can send them. Over http://localhost use
// secure=false.
func NewRefreshCookies(cookieKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*RefreshCookies, error) {
	if len(cookieKey) < 32 {
		return nil, fmt.Errorf("cookie key must be at least 32 characters, got %d", len(cookieKey))
	}

	hashKey := []byte(cookieKey[:32])
	var store *sessions.CookieStore
	if len(cookieKey) >= 64 {
		store = sessions.NewCookieStore(hashKey, []byte(cookieKey[32:64]))
	} else {
		store = sessions.NewCookieStore(hashKey)
	}

	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/api/v1/auth",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}
	store.Options = opts
	store.MaxAge(opts.MaxAge)

	logger.Info("refresh cookie store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &RefreshCookies{store: store, name: name, log: logger}, nil
}

// Set writes token into the refresh cookie.
func (c *RefreshCookies) Set(w http.ResponseWriter, r *http.Request, token string) error {
	sess, _ := c.store.New(r, c.name)
	sess.Values[refreshTokenKey] = token
	return sess.Save(r, w)
}

// Get returns the refresh token carried by r.
func (c *RefreshCookies) Get(r *http.Request) (string, error) {
	sess, err := c.store.Get(r, c.name)
	if err != nil {
		var scErr securecookie.Error
		if errors.As(err, &scErr) && scErr.IsDecode() {
			c.log.Debug("refresh cookie failed to decode", zap.Error(err))
		}
		return "", ErrNoRefreshCookie
	}
	tok, _ := sess.Values[refreshTokenKey].(string)
	if tok == "" {
		return "", ErrNoRefreshCookie
	}
	return tok, nil
}

// Clear expires the refresh cookie.
func (c *RefreshCookies) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := c.store.New(r, c.name)
	sess.Options = &sessions.Options{
		Domain:   c.store.Options.Domain,
		Path:     c.store.Options.Path,
		MaxAge:   -1,
		Secure:   c.store.Options.Secure,
		HttpOnly: true,
		SameSite: c.store.Options.SameSite,
	}
	return sess.Save(r, w)
}
