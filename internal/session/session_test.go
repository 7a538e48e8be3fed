package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	tokens []string
	calls  int
	err    error
}

func (f *fakeAuth) AuthTelegram(ctx context.Context, initData string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	tok := f.tokens[f.calls%len(f.tokens)]
	f.calls++
	return tok, nil
}

func signed(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: sub, ExpiresAt: jwt.NewNumericDate(exp)}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return tok
}

func TestExpiresAt(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signed(t, "42", exp)

	got, ok := ExpiresAt(tok)
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = ExpiresAt("opaque-token")
	assert.False(t, ok)
}

func TestLoginAndEnsure(t *testing.T) {
	now := time.Now()
	fresh := signed(t, "1", now.Add(time.Hour))
	auth := &fakeAuth{tokens: []string{signed(t, "1", now.Add(30*time.Second)), fresh}}
	s := New(auth)

	assert.ErrorIs(t, s.Ensure(context.Background()), ErrNoInitData)

	require.NoError(t, s.Login(context.Background(), "init"))
	assert.Equal(t, 1, auth.calls)

	// Expires inside the leeway: Ensure logs in again.
	require.NoError(t, s.Ensure(context.Background()))
	assert.Equal(t, 2, auth.calls)
	assert.Equal(t, fresh, s.Token())

	require.NoError(t, s.Ensure(context.Background()))
	assert.Equal(t, 2, auth.calls)
}

func TestOpaqueTokenIsKept(t *testing.T) {
	s := New(&fakeAuth{err: errors.New("unused")})
	s.SetToken("opaque")
	require.NoError(t, s.Ensure(context.Background()))
	assert.Equal(t, "opaque", s.Token())

	s.Clear()
	assert.Empty(t, s.Token())
	assert.ErrorIs(t, s.Ensure(context.Background()), ErrNoInitData)
}

func TestLoginFailure(t *testing.T) {
	s := New(&fakeAuth{err: errors.New("bad init data")})
	err := s.Login(context.Background(), "init")
	require.Error(t, err)
	assert.Empty(t, s.Token())
}
