// Package session identifies anonymous shoppers with a signed cookie.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/foodsafe/storefront/internal/common"
)

// CookieName is the session cookie.
const CookieName = "sf_session"

// ErrInvalidToken is returned for tokens that fail signature or claim checks.
var ErrInvalidToken = errors.New("session: invalid token")

// Issuer signs and verifies HS256 session tokens whose subject is the session id.
type Issuer struct {
	Secret    []byte
	Issuer    string
	TTL       time.Duration
	ClockSkew time.Duration
	Now       func() time.Time
}

func (i Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

func (i Issuer) ttl() time.Duration {
	if i.TTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return i.TTL
}

// Issue creates a new session id and its signed token.
func (i Issuer) Issue() (id, token string, err error) {
	if len(i.Secret) == 0 {
		return "", "", errors.New("session: secret not configured")
	}
	id = uuid.NewString()
	now := i.now()
	tok, err := jwt.NewBuilder().
		Issuer(i.Issuer).
		Subject(id).
		IssuedAt(now).
		Expiration(now.Add(i.ttl())).
		JwtID(uuid.NewString()).
		Build()
	if err != nil {
		return "", "", fmt.Errorf("build session token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, i.Secret))
	if err != nil {
		return "", "", fmt.Errorf("sign session token: %w", err)
	}
	return id, string(signed), nil
}

// Parse verifies token and returns its session id.
func (i Issuer) Parse(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(i.Secret) == 0 {
		return "", ErrInvalidToken
	}
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, i.Secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(i.now)),
	}
	if i.ClockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(i.ClockSkew))
	}
	if i.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.Issuer))
	}
	parsed, err := jwt.ParseString(token, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := uuid.Parse(parsed.Subject()); err != nil {
		return "", fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return parsed.Subject(), nil
}

// Middleware attaches the shopper's session id to the request context,
// issuing a fresh session cookie when the request has none or a bad one.
type Middleware struct {
	Issuer   Issuer
	Domain   string
	Secure   bool
	SameSite http.SameSite
	Logger   zerolog.Logger
}

// Handler implements chi middleware.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(CookieName); err == nil {
			id, err := m.Issuer.Parse(c.Value)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(common.WithSessionID(r.Context(), id)))
				return
			}
			m.Logger.Debug().Err(err).Msg("discarding session cookie")
		}
		id, token, err := m.Issuer.Issue()
		if err != nil {
			m.Logger.Error().Err(err).Msg("issue session")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to start session", nil)
			return
		}
		http.SetCookie(w, m.cookie(token))
		next.ServeHTTP(w, r.WithContext(common.WithSessionID(r.Context(), id)))
	})
}

func (m Middleware) cookie(token string) *http.Cookie {
	sameSite := m.SameSite
	if sameSite == http.SameSiteDefaultMode {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Domain:   m.Domain,
		MaxAge:   int(m.Issuer.ttl().Seconds()),
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: sameSite,
	}
}

// FromContext returns the session id set by Middleware.
func FromContext(ctx context.Context) (string, bool) {
	return common.SessionID(ctx)
}
