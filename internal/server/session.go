package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionConfig controls the signed cookie that carries the selected
// user. The selection is trusted as-is; the signature only prevents the
// cookie from being edited by hand, it is not authentication.
type SessionConfig struct {
	// Secret signs the cookie. Generated at startup when empty, which
	// invalidates sessions across restarts.
	Secret string
	Cookie string
	Logger *log.Logger
	// TTL bounds the cookie lifetime.
	TTL time.Duration
}

func (c SessionConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func (c *SessionConfig) applyDefaults() {
	if c.Cookie == "" {
		c.Cookie = "ab_session"
	}
	if c.TTL <= 0 {
		c.TTL = 7 * 24 * time.Hour
	}
	if strings.TrimSpace(c.Secret) == "" {
		c.Secret = uuid.NewString() + uuid.NewString()
		c.logger().Printf("server: no session secret configured, generated one; sessions will not survive a restart")
	}
}

type sessionKey struct{}

func withSessionUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, sessionKey{}, user)
}

// sessionUser returns the selected user, or "" when none is set.
func sessionUser(ctx context.Context) string {
	u, _ := ctx.Value(sessionKey{}).(string)
	return u
}

func currentUser(ctx context.Context) (string, huma.StatusError) {
	if u := sessionUser(ctx); u != "" {
		return u, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "no_session", "no user selected", nil)
}

func (c SessionConfig) issueToken(user string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   user,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.Secret))
}

func (c SessionConfig) parseToken(token string) (string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(c.Secret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", errors.New("invalid session token")
	}
	return claims.Subject, nil
}

// cookieValue builds the Set-Cookie header for a session token. An empty
// token clears the cookie.
func (c SessionConfig) cookieValue(token string) string {
	ck := &http.Cookie{
		Name:     c.Cookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		ck.MaxAge = -1
	} else {
		ck.MaxAge = int(c.TTL / time.Second)
	}
	return ck.String()
}

// newSessionMiddleware decodes the session cookie into the request
// context. A missing or stale cookie is not an error here; handlers
// that need a user reject the request themselves.
func newSessionMiddleware(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ck, err := r.Cookie(cfg.Cookie)
			if err == nil && ck.Value != "" {
				user, err := cfg.parseToken(ck.Value)
				if err != nil {
					cfg.logger().Printf("server: dropping unreadable session cookie: %v", err)
				} else {
					r = r.WithContext(withSessionUser(r.Context(), user))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
