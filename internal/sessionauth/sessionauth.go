// Package sessionauth implements the out-of-scope "auth service" collaborator
// from spec.md §1: resolve_session(credential) -> user. The credential is a
// cookie, following original_source/src/auth.rs's PrivateCookieJar-backed
// session rather than a bearer header — the cookie value is a signed JWT
// (HS256, keyed by COOKIE_KEY) carrying the user id.
package sessionauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/airwave/stationd/internal/catalog"
)

const CookieName = "auth_session"

var (
	ErrInvalidToken       = errors.New("sessionauth: invalid session cookie")
	ErrExpiredToken       = errors.New("sessionauth: session has expired")
	ErrMissingToken       = errors.New("sessionauth: no session cookie present")
	ErrInvalidCredentials = errors.New("sessionauth: invalid username or password")
	ErrRateLimited        = errors.New("sessionauth: too many login attempts, please try again later")
	ErrUsernameTaken      = errors.New("sessionauth: username already registered")
)

// claims is the JWT payload stored in the session cookie.
type claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Manager issues and resolves session cookies against the catalog's user
// table.
type Manager struct {
	store    *catalog.Store
	key      []byte
	tokenTTL time.Duration
	secure   bool
	limiter  *rateLimiter
}

type Options struct {
	CookieKey string
	TokenTTL  time.Duration
	// Secure controls the cookie's Secure attribute; disable only for local
	// plain-HTTP development.
	Secure bool
}

func New(store *catalog.Store, opts Options) *Manager {
	if opts.TokenTTL == 0 {
		opts.TokenTTL = 30 * 24 * time.Hour
	}
	return &Manager{
		store:    store,
		key:      []byte(opts.CookieKey),
		tokenTTL: opts.TokenTTL,
		secure:   opts.Secure,
		limiter:  newRateLimiter(5, 15*time.Minute),
	}
}

// Login verifies username/password against the catalog, bcrypt-hashing the
// supplied password for comparison, and on success writes a signed session
// cookie to w.
func (m *Manager) Login(ctx context.Context, w http.ResponseWriter, username, password, remoteAddr string) (catalog.User, error) {
	ip := extractIP(remoteAddr)
	if !m.limiter.isAllowed(ip) {
		return catalog.User{}, fmt.Errorf("%w: try again in %s", ErrRateLimited, m.limiter.remainingLockout(ip).Round(time.Second))
	}

	user, err := m.store.FindUserByUsername(ctx, username)
	if err != nil {
		m.limiter.recordFailure(ip)
		if errors.Is(err, catalog.ErrUserNotFound) {
			// Still run a bcrypt comparison against a dummy hash so a
			// nonexistent username doesn't return faster than a wrong
			// password would, which would leak which usernames exist.
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return catalog.User{}, ErrInvalidCredentials
		}
		return catalog.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		m.limiter.recordFailure(ip)
		return catalog.User{}, ErrInvalidCredentials
	}

	m.limiter.recordSuccess(ip)

	if err := m.IssueSession(w, user); err != nil {
		return catalog.User{}, err
	}
	return user, nil
}

// Register creates a new catalog user with a bcrypt-hashed password.
func (m *Manager) Register(ctx context.Context, username, password string) (catalog.User, error) {
	if _, err := m.store.FindUserByUsername(ctx, username); err == nil {
		return catalog.User{}, ErrUsernameTaken
	} else if !errors.Is(err, catalog.ErrUserNotFound) {
		return catalog.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return catalog.User{}, fmt.Errorf("sessionauth: hash password: %w", err)
	}
	return m.store.CreateUser(ctx, username, string(hash))
}

// IssueSession signs a JWT for user and sets it as the session cookie.
func (m *Manager) IssueSession(w http.ResponseWriter, user catalog.User) error {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	})

	signed, err := tok.SignedString(m.key)
	if err != nil {
		return fmt.Errorf("sessionauth: sign session token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  now.Add(m.tokenTTL),
	})
	return nil
}

// ClearSession removes the session cookie, e.g. on logout.
func (m *Manager) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// ResolveSession is the auth service collaborator named in spec.md §1: it
// turns the request's session cookie into a catalog user.
func (m *Manager) ResolveSession(ctx context.Context, r *http.Request) (catalog.User, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return catalog.User{}, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(cookie.Value, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return catalog.User{}, ErrExpiredToken
		}
		return catalog.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.UserID == 0 {
		return catalog.User{}, ErrInvalidToken
	}

	user, err := m.store.GetUserByID(ctx, c.UserID)
	if err != nil {
		return catalog.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return user, nil
}

// dummyHash is a valid bcrypt hash of a random, never-used password, used to
// keep login timing uniform when a username does not exist.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5a2v0fdXfTsTAh4tHj4ELXoCqFyUe"
