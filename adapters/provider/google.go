// Package provider implements federated identity providers behind the
// ports.AuthProvider interface. One implementation exists per provider kind,
// selected at construction time; nothing else inspects provider types.
package provider

import (
	"context"
	"fmt"
	"net/url"

	"github.com/golang-jwt/jwt/v5"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// GoogleProvider completes a Google redirect-based login. The OAuth dance
// itself happens on the login server; this adapter only builds the redirect
// URL and reads the callback.
type GoogleProvider struct {
	loginURL    string // login server base, e.g. https://login.example.org
	redirectURI string // where the login server sends the user back
}

// NewGoogleProvider creates a Google auth provider.
func NewGoogleProvider(loginURL, redirectURI string) ports.AuthProvider {
	return &GoogleProvider{
		loginURL:    loginURL,
		redirectURI: redirectURI,
	}
}

// Kind identifies the provider.
func (p *GoogleProvider) Kind() core.ProviderKind {
	return core.ProviderGoogle
}

// BeginRedirect returns the URL the user agent must visit to log in.
func (p *GoogleProvider) BeginRedirect() (string, error) {
	u, err := url.Parse(p.loginURL)
	if err != nil {
		return "", fmt.Errorf("invalid login URL: %w", err)
	}
	q := u.Query()
	q.Set("provider", string(core.ProviderGoogle))
	q.Set("redirect_uri", p.redirectURI)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CompleteRedirect inspects a callback URL. URLs without login parameters
// return (nil, nil); an error parameter or an unreadable token surfaces
// core.ErrProviderAuthFailed.
func (p *GoogleProvider) CompleteRedirect(ctx context.Context, callbackURL string) (*core.AuthToken, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad callback URL: %v", core.ErrProviderAuthFailed, err)
	}

	q := u.Query()
	if errCode := q.Get("error"); errCode != "" {
		return nil, fmt.Errorf("%w: provider returned %q", core.ErrProviderAuthFailed, errCode)
	}

	idToken := q.Get("id_token")
	if idToken == "" {
		// Not a login callback.
		return nil, nil
	}

	token := &core.AuthToken{
		Provider: core.ProviderGoogle,
		RawToken: idToken,
	}

	// The token is verified by the signing network, not locally; the claims
	// are parsed without verification only to learn the expiry and subject.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("%w: unreadable id token: %v", core.ErrProviderAuthFailed, err)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		token.ExpiresAt = exp.Time
	}
	if sub, err := claims.GetSubject(); err == nil {
		token.Subject = sub
	}

	return token, nil
}
