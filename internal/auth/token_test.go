package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte(strings.Repeat("s", 32))

func newTestIssuer(t *testing.T, now *time.Time) *Issuer {
	t.Helper()
	iss, err := NewIssuer(testSecret, time.Hour, func() time.Time { return *now })
	require.NoError(t, err)
	return iss
}

func TestNewIssuerValidates(t *testing.T) {
	_, err := NewIssuer([]byte("short"), time.Hour, nil)
	assert.Error(t, err)

	_, err = NewIssuer(testSecret, 0, nil)
	assert.Error(t, err)
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := newTestIssuer(t, &now)
	id := Identity{Provider: ProviderGitHub, Subject: "42", Email: "a@example.com", Name: "Alice"}

	tok, err := iss.Issue(id)
	require.NoError(t, err)

	claims, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, id.UserID(), claims.Subject)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, ProviderGitHub, claims.Provider)
}

func TestVerifyExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := newTestIssuer(t, &now)
	tok, err := iss.Issue(Identity{Provider: ProviderGoogle, Subject: "x"})
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = iss.Verify(tok)
	assert.True(t, errors.Is(err, ErrSessionExpired))
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(t, &now)
	other, err := NewIssuer([]byte(strings.Repeat("o", 32)), time.Hour, nil)
	require.NoError(t, err)

	tok, err := other.Issue(Identity{Provider: ProviderGoogle, Subject: "x"})
	require.NoError(t, err)

	_, err = iss.Verify(tok)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestStateTokenIsNotASession(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(t, &now)
	state, err := iss.issueState(ProviderGoogle, "http://127.0.0.1:9/callback", time.Minute)
	require.NoError(t, err)

	_, err = iss.Verify(state)
	assert.Error(t, err)

	st, err := iss.verifyState(state)
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, st.Provider)
}

func TestUserIDIsStable(t *testing.T) {
	a := Identity{Provider: ProviderGoogle, Subject: "123"}
	b := Identity{Provider: ProviderGitHub, Subject: "123"}

	assert.Equal(t, a.UserID(), Identity{Provider: ProviderGoogle, Subject: "123", Email: "changed"}.UserID())
	assert.NotEqual(t, a.UserID(), b.UserID())
	assert.True(t, strings.HasPrefix(a.UserID(), "u--"))
}

func TestSessionFromToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := newTestIssuer(t, &now)
	tok, err := iss.Issue(Identity{Provider: ProviderGoogle, Subject: "s", Name: "Sam"})
	require.NoError(t, err)

	s, err := SessionFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "Sam", s.Name)
	assert.Equal(t, tok, s.Token)
	assert.Equal(t, now.Add(time.Hour), s.ExpiresAt.UTC())
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Hour)))

	_, err = SessionFromToken("not-a-token")
	assert.Error(t, err)
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("github")
	require.NoError(t, err)
	assert.Equal(t, ProviderGitHub, p)

	_, err = ParseProvider("myspace")
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}
