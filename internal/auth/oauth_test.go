package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func fakeGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"g-1","email":"g@example.com","name":"Gina","picture":"https://img/g"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestOAuth(t *testing.T, providerURL string) (*OAuth, *Issuer) {
	t.Helper()
	now := time.Now()
	iss := newTestIssuer(t, &now)
	o := NewOAuth(iss, "https://checklist.example/", map[OAuthProvider]Credentials{
		ProviderGoogle: {
			ClientID:     "cid",
			ClientSecret: "secret",
			Endpoint: oauth2.Endpoint{
				AuthURL:   providerURL + "/authorize",
				TokenURL:  providerURL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			UserInfoURL: providerURL + "/userinfo",
		},
		ProviderGitHub: {},
	})
	return o, iss
}

func TestOAuthEnabled(t *testing.T) {
	o, _ := newTestOAuth(t, "http://unused")
	assert.True(t, o.Enabled(ProviderGoogle))
	assert.False(t, o.Enabled(ProviderGitHub))
}

func TestAuthCodeURLRejectsRemoteRedirect(t *testing.T) {
	o, _ := newTestOAuth(t, "http://unused")
	for _, bad := range []string{"https://127.0.0.1/cb", "http://evil.example/cb", "::"} {
		_, err := o.AuthCodeURL(ProviderGoogle, bad)
		assert.Error(t, err, bad)
	}
	_, err := o.AuthCodeURL(ProviderGitHub, "http://127.0.0.1:1/cb")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestOAuthRoundTrip(t *testing.T) {
	provider := fakeGoogle(t)
	o, iss := newTestOAuth(t, provider.URL)

	start, err := o.AuthCodeURL(ProviderGoogle, "http://127.0.0.1:5555/callback")
	require.NoError(t, err)
	u, err := url.Parse(start)
	require.NoError(t, err)
	assert.Equal(t, "https://checklist.example/auth/google/callback", u.Query().Get("redirect_uri"))
	state := u.Query().Get("state")
	require.NotEmpty(t, state)

	redirect, err := o.Complete(context.Background(), ProviderGoogle, "good-code", state)
	require.NoError(t, err)
	ru, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5555", ru.Host)

	claims, err := iss.Verify(ru.Query().Get("token"))
	require.NoError(t, err)
	assert.Equal(t, Identity{Provider: ProviderGoogle, Subject: "g-1"}.UserID(), claims.Subject)
	assert.Equal(t, "Gina", claims.Name)
	assert.Equal(t, "https://img/g", claims.AvatarURL)
}

func TestCompleteRejectsBadState(t *testing.T) {
	provider := fakeGoogle(t)
	o, _ := newTestOAuth(t, provider.URL)

	_, err := o.Complete(context.Background(), ProviderGoogle, "good-code", "forged")
	assert.Error(t, err)
}

func TestCompleteRejectsBadCode(t *testing.T) {
	provider := fakeGoogle(t)
	o, _ := newTestOAuth(t, provider.URL)
	start, err := o.AuthCodeURL(ProviderGoogle, "http://localhost:5555/callback")
	require.NoError(t, err)
	u, _ := url.Parse(start)

	_, err = o.Complete(context.Background(), ProviderGoogle, "bad-code", u.Query().Get("state"))
	assert.Error(t, err)
}

func TestFailureRedirect(t *testing.T) {
	o, _ := newTestOAuth(t, "http://unused")
	start, err := o.AuthCodeURL(ProviderGoogle, "http://127.0.0.1:7/cb")
	require.NoError(t, err)
	u, _ := url.Parse(start)

	redirect, ok := o.FailureRedirect(u.Query().Get("state"), "access_denied")
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:7/cb?error=access_denied", redirect)

	_, ok = o.FailureRedirect("forged", "x")
	assert.False(t, ok)
}
