package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionAudience = "multisigcheck-session"
	stateAudience   = "multisigcheck-oauth-state"
	tokenIssuer     = "multisigcheck"
)

// Identity is what an OAuth provider tells us about a user.
type Identity struct {
	Provider  OAuthProvider
	Subject   string
	Email     string
	Name      string
	AvatarURL string
}

// UserID maps an external identity to a stable account id.
func (id Identity) UserID() string {
	return "u--" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(string(id.Provider)+":"+id.Subject)).String()
}

// Claims are carried by session tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email     string        `json:"email,omitempty"`
	Name      string        `json:"name,omitempty"`
	AvatarURL string        `json:"avatar_url,omitempty"`
	Provider  OAuthProvider `json:"provider,omitempty"`
}

type stateClaims struct {
	jwt.RegisteredClaims
	Provider    OAuthProvider `json:"provider"`
	RedirectURI string        `json:"redirect_uri"`
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an issuer. now may be nil.
func NewIssuer(secret []byte, ttl time.Duration, now func() time.Time) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: secret, ttl: ttl, now: now}, nil
}

// Issue creates a session token for id.
func (i *Issuer) Issue(id Identity) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   id.UserID(),
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
		Email:     id.Email,
		Name:      id.Name,
		AvatarURL: id.AvatarURL,
		Provider:  id.Provider,
	}
	return i.sign(claims)
}

// Verify checks signature, audience and expiry.
func (i *Issuer) Verify(token string) (*Claims, error) {
	var claims Claims
	if err := i.parse(token, sessionAudience, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (i *Issuer) issueState(provider OAuthProvider, redirectURI string, ttl time.Duration) (string, error) {
	now := i.now()
	return i.sign(stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Provider:    provider,
		RedirectURI: redirectURI,
	})
}

func (i *Issuer) verifyState(state string) (*stateClaims, error) {
	var claims stateClaims
	if err := i.parse(state, stateAudience, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (i *Issuer) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) parse(token, audience string, claims jwt.Claims) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrSessionExpired
		}
		return fmt.Errorf("%w: %w", ErrSessionNotFound, err)
	}
	return nil
}

// SessionFromToken decodes a token without verifying its signature. Clients
// cannot verify tokens; the backend does so on every request.
func SessionFromToken(token string) (*Session, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("decode session token: %w", err)
	}
	if claims.Subject == "" {
		return nil, ErrSessionNotFound
	}
	s := &Session{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		AvatarURL: claims.AvatarURL,
		Provider:  claims.Provider,
		Token:     token,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
