// Package session holds the bearer token of the signed-in Telegram user for
// the lifetime of the process.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Vanequal/ideafeed/pkg/logging"
)

// ErrNoInitData is returned when a login is needed but no Telegram init data
// is known
var ErrNoInitData = errors.New("no telegram init data")

// refreshLeeway renews tokens this long before they expire
const refreshLeeway = time.Minute

// Authenticator exchanges Telegram init data for a bearer token
type Authenticator interface {
	AuthTelegram(ctx context.Context, initData string) (string, error)
}

// Session stores the token and the init data it was obtained with
type Session struct {
	auth   Authenticator
	now    func() time.Time
	logger *zap.Logger

	mu       sync.RWMutex
	token    string
	initData string
}

// New creates an empty session
func New(auth Authenticator) *Session {
	return &Session{
		auth:   auth,
		now:    time.Now,
		logger: logging.WithComponent("session"),
	}
}

// Token implements backend.TokenSource
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken installs a token obtained elsewhere
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear forgets the token and init data
func (s *Session) Clear() {
	s.mu.Lock()
	s.token, s.initData = "", ""
	s.mu.Unlock()
}

// Login exchanges initData for a token and keeps both
func (s *Session) Login(ctx context.Context, initData string) error {
	token, err := s.auth.AuthTelegram(ctx, initData)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	s.mu.Lock()
	s.token, s.initData = token, initData
	s.mu.Unlock()

	if exp, ok := ExpiresAt(token); ok {
		s.logger.Info("Signed in", zap.Time("expires_at", exp))
	} else {
		s.logger.Info("Signed in")
	}
	return nil
}

// Ensure logs in again when the token is missing or about to expire
func (s *Session) Ensure(ctx context.Context) error {
	s.mu.RLock()
	token, initData := s.token, s.initData
	s.mu.RUnlock()

	if token != "" && !s.expiring(token) {
		return nil
	}
	if initData == "" {
		return ErrNoInitData
	}
	return s.Login(ctx, initData)
}

func (s *Session) expiring(token string) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return false
	}
	return !s.now().Add(refreshLeeway).Before(exp)
}

// ExpiresAt reads the exp claim of a JWT without verifying it. The client
// never holds the signing key; the backend stays the authority.
func ExpiresAt(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
