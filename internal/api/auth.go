package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"boothbook/internal/config"
	"boothbook/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionCookieName  = "admin_session"
	revokedSessionKey  = "session_revoked:"
	sessionIssuer      = "boothbook"
	bearerPrefix       = "Bearer "
	defaultSessionTTL  = 12 * time.Hour
	minJWTSecretLength = 16
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrUnauthenticated    = errors.New("authentication required")
)

type adminContextKey struct{}

// AdminSession is an authenticated admin panel session.
type AdminSession struct {
	Username  string
	TokenID   string
	ExpiresAt time.Time
}

// AdminAuth issues and verifies signed admin session tokens. Logout is
// enforced by remembering the token ID in the store until it expires.
type AdminAuth struct {
	username     string
	password     []byte
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	store        domain.Store
	limiter      *keyedLimiter
	now          func() time.Time
}

func NewAdminAuth(cfg config.AdminConfig, store domain.Store) (*AdminAuth, error) {
	if len(cfg.JWTSecret) < minJWTSecretLength {
		return nil, fmt.Errorf("admin jwt secret must be at least %d characters", minJWTSecretLength)
	}
	if cfg.Password == "" && cfg.PasswordHash == "" {
		return nil, errors.New("admin password is not configured")
	}
	ttl := cfg.SessionTTL()
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &AdminAuth{
		username:     cfg.Username,
		password:     []byte(cfg.Password),
		passwordHash: []byte(cfg.PasswordHash),
		secret:       []byte(cfg.JWTSecret),
		ttl:          ttl,
		store:        store,
		limiter:      newKeyedLimiter(cfg.LoginRPS, cfg.LoginBurst),
		now:          time.Now,
	}, nil
}

func (a *AdminAuth) checkPassword(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	var passOK bool
	if len(a.passwordHash) > 0 {
		passOK = bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), a.password) == 1
	}
	return userOK && passOK
}

// Login verifies credentials and returns a signed session token.
func (a *AdminAuth) Login(clientIP, username, password string) (string, AdminSession, error) {
	if !a.limiter.allow(clientIP) {
		return "", AdminSession{}, ErrTooManyAttempts
	}
	if !a.checkPassword(strings.TrimSpace(username), password) {
		return "", AdminSession{}, ErrInvalidCredentials
	}

	now := a.now()
	session := AdminSession{
		Username:  a.username,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(a.ttl),
	}
	claims := jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		Subject:   session.Username,
		ID:        session.TokenID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", AdminSession{}, fmt.Errorf("sign session: %w", err)
	}
	return token, session, nil
}

// Authenticate parses a session token and rejects revoked ones.
func (a *AdminAuth) Authenticate(ctx context.Context, token string) (AdminSession, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return AdminSession{}, ErrUnauthenticated
	}
	if claims.Subject != a.username || claims.ID == "" {
		return AdminSession{}, ErrUnauthenticated
	}

	if a.store != nil {
		revoked, err := a.store.Get(ctx, revokedSessionKey+claims.ID)
		if err != nil {
			return AdminSession{}, fmt.Errorf("check session: %w", err)
		}
		if revoked != nil {
			return AdminSession{}, ErrUnauthenticated
		}
	}

	return AdminSession{
		Username:  claims.Subject,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke invalidates a session for the rest of its lifetime.
func (a *AdminAuth) Revoke(ctx context.Context, session AdminSession) error {
	if a.store == nil {
		return nil
	}
	ttl := session.ExpiresAt.Sub(a.now())
	if ttl <= 0 {
		return nil
	}
	return a.store.Put(ctx, revokedSessionKey+session.TokenID, []byte("1"), ttl)
}

// Require rejects requests without a valid admin session.
func (a *AdminAuth) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
			return
		}
		session, err := a.Authenticate(r.Context(), token)
		if errors.Is(err, ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
			return
		}
		ctx := context.WithValue(r.Context(), adminContextKey{}, session)
		next(w, r.WithContext(ctx))
	}
}

func sessionFromContext(ctx context.Context) (AdminSession, bool) {
	s, ok := ctx.Value(adminContextKey{}).(AdminSession)
	return s, ok
}

func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	if c, err := r.Cookie(sessionCookieName); err == nil {
		return c.Value
	}
	return ""
}
