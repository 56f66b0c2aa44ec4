package auth

import (
	"context"
	"errors"
	"time"

	"multisigcheck/internal/utils"
)

var (
	// ErrNotConfigured is returned by sign-in when no auth backend is set up.
	ErrNotConfigured = utils.New(utils.KindNotConfigured, "auth", "authentication is not configured")
	// ErrSessionNotFound is returned when a request carries no usable session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when a session token is past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrUnknownProvider is returned for OAuth providers other than google and github.
	ErrUnknownProvider = errors.New("unknown oauth provider")
)

// OAuthProvider names an external identity provider.
type OAuthProvider string

const (
	ProviderGoogle OAuthProvider = "google"
	ProviderGitHub OAuthProvider = "github"
)

// ParseProvider validates a provider name.
func ParseProvider(s string) (OAuthProvider, error) {
	switch p := OAuthProvider(s); p {
	case ProviderGoogle, ProviderGitHub:
		return p, nil
	default:
		return "", utils.Wrap(utils.KindValidation, "parse provider "+s, ErrUnknownProvider)
	}
}

// Session is an authenticated user as seen by the client.
type Session struct {
	UserID    string
	Email     string
	Name      string
	AvatarURL string
	Provider  OAuthProvider
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Provider manages the client's session with the identity backend.
type Provider interface {
	// GetSession returns the current session, or nil when signed out.
	GetSession(ctx context.Context) (*Session, error)
	// SignInWithOAuth runs the external flow and resolves once it returns.
	SignInWithOAuth(ctx context.Context, provider OAuthProvider) error
	// SignOut ends the current session.
	SignOut(ctx context.Context) error
	// OnSessionChange registers fn for every session change. The returned
	// function unregisters it.
	OnSessionChange(fn func(*Session)) (unsubscribe func())
}

// Disabled is the provider used when authentication is not configured.
type Disabled struct{}

func (Disabled) GetSession(context.Context) (*Session, error) { return nil, nil }

func (Disabled) SignInWithOAuth(context.Context, OAuthProvider) error { return ErrNotConfigured }

func (Disabled) SignOut(context.Context) error { return ErrNotConfigured }

func (Disabled) OnSessionChange(func(*Session)) func() { return func() {} }
