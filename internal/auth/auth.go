// Package auth implements password verification and DB-backed sessions.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tally/internal/core"
	"tally/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

// Ports for the stores the manager needs. Both the SQLite repository and the
// in-memory store satisfy them.
type (
	UserStore interface {
		CreateUser(ctx context.Context, email, passwordHash string) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		GetUser(ctx context.Context, id int64) (core.User, error)
	}

	SessionStore interface {
		CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error
		GetSession(ctx context.Context, token string) (int64, time.Time, error)
		TouchSession(ctx context.Context, token string, expiresAt time.Time) error
		DeleteSession(ctx context.Context, token string) error
		DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	}
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrNoSession          = errors.New("no valid session")
)

// Manager issues and resolves opaque session tokens.
type Manager struct {
	users    UserStore
	sessions SessionStore
	ttl      time.Duration
	cost     int
}

func NewManager(users UserStore, sessions SessionStore, ttl time.Duration, bcryptCost int) *Manager {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Manager{
		users:    users,
		sessions: sessions,
		ttl:      ttl,
		cost:     bcryptCost,
	}
}

// Register creates a user and an initial session for it.
func (m *Manager) Register(ctx context.Context, email, password string) (core.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := core.ValidateEmail(email); err != nil {
		return core.User{}, "", err
	}
	if err := core.ValidatePassword(password); err != nil {
		return core.User{}, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return core.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := m.users.CreateUser(ctx, email, string(hash))
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return core.User{}, "", ErrEmailTaken
		}
		return core.User{}, "", fmt.Errorf("create user: %w", err)
	}

	token, err := m.issueSession(ctx, user.ID)
	if err != nil {
		return core.User{}, "", err
	}
	return user, token, nil
}

// Login verifies the password and issues a fresh session. Unknown email and
// wrong password return the same error so the endpoint cannot be used to
// probe registered addresses.
func (m *Manager) Login(ctx context.Context, email, password string) (core.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := m.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Burn comparable time on a dummy hash so timing does not
			// reveal whether the email exists.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return core.User{}, "", ErrInvalidCredentials
		}
		return core.User{}, "", fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return core.User{}, "", ErrInvalidCredentials
	}

	token, err := m.issueSession(ctx, user.ID)
	if err != nil {
		return core.User{}, "", err
	}

	slog.InfoContext(ctx, "User logged in", "user_id", user.ID)
	return user, token, nil
}

// Logout deletes the session. Unknown tokens are not an error.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.sessions.DeleteSession(ctx, token)
}

// Resolve maps a session token to its user, extending the sliding expiry
// when more than half the TTL has elapsed.
func (m *Manager) Resolve(ctx context.Context, token string) (core.User, error) {
	if token == "" {
		return core.User{}, ErrNoSession
	}
	userID, expiresAt, err := m.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.User{}, ErrNoSession
		}
		return core.User{}, fmt.Errorf("lookup session: %w", err)
	}

	now := time.Now()
	if !expiresAt.After(now) {
		_ = m.sessions.DeleteSession(ctx, token)
		return core.User{}, ErrNoSession
	}
	if expiresAt.Sub(now) < m.ttl/2 {
		if err := m.sessions.TouchSession(ctx, token, now.Add(m.ttl)); err != nil {
			slog.WarnContext(ctx, "Failed to extend session", "error", err)
		}
	}

	user, err := m.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.User{}, ErrNoSession
		}
		return core.User{}, fmt.Errorf("lookup session user: %w", err)
	}
	return user, nil
}

// TTL returns the configured session lifetime, used for cookie Max-Age.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// CleanupLoop periodically removes expired sessions until ctx is cancelled.
func (m *Manager) CleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := m.sessions.DeleteExpiredSessions(ctx, time.Now())
			if err != nil {
				slog.ErrorContext(ctx, "Session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "Session cleanup completed", "removed", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) issueSession(ctx context.Context, userID int64) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	if err := m.sessions.CreateSession(ctx, token, userID, time.Now().Add(m.ttl)); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// dummyHash is a valid bcrypt hash of an unguessable value, compared against
// on login for unknown emails.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("tally-login-timing-pad"), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return h
}()

// --- request context plumbing ---

type contextKey string

const userContextKey contextKey = "auth_user"

// WithUser attaches the authenticated user to the context.
func WithUser(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFrom returns the authenticated user, if any.
func UserFrom(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(userContextKey).(core.User)
	return u, ok
}
