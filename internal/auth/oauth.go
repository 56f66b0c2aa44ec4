package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const stateTTL = 10 * time.Minute

// Credentials are the OAuth client registration for one provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
	// Endpoint and UserInfoURL override the provider defaults; used in tests.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

// OAuth runs the server side of the sign-in flow. Clients are redirected to
// the provider, come back to the callback, and are finally sent to their
// loopback redirect URI with a session token.
type OAuth struct {
	issuer    *Issuer
	providers map[OAuthProvider]*oauthProvider
}

type oauthProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewOAuth configures every provider with a client id. publicURL is the
// externally reachable base URL of the backend.
func NewOAuth(issuer *Issuer, publicURL string, creds map[OAuthProvider]Credentials) *OAuth {
	o := &OAuth{issuer: issuer, providers: map[OAuthProvider]*oauthProvider{}}
	base := strings.TrimRight(publicURL, "/")
	for p, c := range creds {
		if c.ClientID == "" {
			continue
		}
		endpoint, userInfo, scopes := providerDefaults(p)
		if c.Endpoint.AuthURL != "" {
			endpoint = c.Endpoint
		}
		if c.UserInfoURL != "" {
			userInfo = c.UserInfoURL
		}
		o.providers[p] = &oauthProvider{
			config: &oauth2.Config{
				ClientID:     c.ClientID,
				ClientSecret: c.ClientSecret,
				Endpoint:     endpoint,
				RedirectURL:  base + "/auth/" + string(p) + "/callback",
				Scopes:       scopes,
			},
			userInfoURL: userInfo,
		}
	}
	return o
}

func providerDefaults(p OAuthProvider) (oauth2.Endpoint, string, []string) {
	switch p {
	case ProviderGoogle:
		return endpoints.Google, "https://openidconnect.googleapis.com/v1/userinfo", []string{"openid", "email", "profile"}
	case ProviderGitHub:
		return endpoints.GitHub, "https://api.github.com/user", []string{"read:user", "user:email"}
	default:
		return oauth2.Endpoint{}, "", nil
	}
}

// Enabled reports whether p has client credentials.
func (o *OAuth) Enabled(p OAuthProvider) bool {
	_, ok := o.providers[p]
	return ok
}

// AuthCodeURL starts a sign-in. redirectURI must be a loopback http URL.
func (o *OAuth) AuthCodeURL(p OAuthProvider, redirectURI string) (string, error) {
	prov, ok := o.providers[p]
	if !ok {
		return "", ErrUnknownProvider
	}
	if err := validateLoopback(redirectURI); err != nil {
		return "", err
	}
	state, err := o.issuer.issueState(p, redirectURI, stateTTL)
	if err != nil {
		return "", err
	}
	return prov.config.AuthCodeURL(state), nil
}

// Complete exchanges the provider code and returns the URL the client should
// be redirected to, carrying the session token.
func (o *OAuth) Complete(ctx context.Context, p OAuthProvider, code, state string) (string, error) {
	prov, ok := o.providers[p]
	if !ok {
		return "", ErrUnknownProvider
	}
	st, err := o.issuer.verifyState(state)
	if err != nil {
		return "", fmt.Errorf("verify state: %w", err)
	}
	if st.Provider != p {
		return "", errors.New("state was issued for another provider")
	}

	tok, err := prov.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	id, err := fetchIdentity(ctx, prov.config.Client(ctx, tok), p, prov.userInfoURL)
	if err != nil {
		return "", err
	}
	session, err := o.issuer.Issue(id)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(st.RedirectURI)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", session)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FailureRedirect builds the loopback URL that reports a failed sign-in, when
// the state is still trustworthy.
func (o *OAuth) FailureRedirect(state, reason string) (string, bool) {
	st, err := o.issuer.verifyState(state)
	if err != nil {
		return "", false
	}
	u, err := url.Parse(st.RedirectURI)
	if err != nil {
		return "", false
	}
	q := u.Query()
	q.Set("error", reason)
	u.RawQuery = q.Encode()
	return u.String(), true
}

func fetchIdentity(ctx context.Context, client *http.Client, p OAuthProvider, userInfoURL string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("fetch user info: status %d", resp.StatusCode)
	}

	switch p {
	case ProviderGoogle:
		var info struct {
			Sub     string `json:"sub"`
			Email   string `json:"email"`
			Name    string `json:"name"`
			Picture string `json:"picture"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return Identity{}, fmt.Errorf("decode user info: %w", err)
		}
		if info.Sub == "" {
			return Identity{}, errors.New("user info has no subject")
		}
		return Identity{Provider: p, Subject: info.Sub, Email: info.Email, Name: info.Name, AvatarURL: info.Picture}, nil
	case ProviderGitHub:
		var info struct {
			ID        int64  `json:"id"`
			Login     string `json:"login"`
			Name      string `json:"name"`
			Email     string `json:"email"`
			AvatarURL string `json:"avatar_url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return Identity{}, fmt.Errorf("decode user info: %w", err)
		}
		if info.ID == 0 {
			return Identity{}, errors.New("user info has no id")
		}
		name := info.Name
		if name == "" {
			name = info.Login
		}
		return Identity{Provider: p, Subject: strconv.FormatInt(info.ID, 10), Email: info.Email, Name: name, AvatarURL: info.AvatarURL}, nil
	default:
		return Identity{}, ErrUnknownProvider
	}
}

func validateLoopback(redirectURI string) error {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Scheme != "http" {
		return errors.New("redirect_uri must be an http loopback URL")
	}
	host := u.Hostname()
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return errors.New("redirect_uri must point at localhost")
}
