package oidc

import (
	"context"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/identity"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/session"
)

// Provider is the identity provider used by client sessions: password
// sign-in and sign-up backed by the identity service, tokens issued here.
type Provider struct {
	identities *identity.Service
	tokens     *OIDCService
	clientID   string
}

func NewProvider(identities *identity.Service, tokens *OIDCService, clientID string) *Provider {
	return &Provider{identities: identities, tokens: tokens, clientID: clientID}
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*session.Identity, error) {
	v, err := p.identities.AuthenticatePassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return p.issue(ctx, v)
}

func (p *Provider) SignUp(ctx context.Context, name, email, password string) (*session.Identity, error) {
	v, err := p.identities.SignUp(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	return p.issue(ctx, v)
}

// SignOut revokes the refresh token and bumps the identity version so
// outstanding access tokens stop resolving.
func (p *Provider) SignOut(ctx context.Context, id *session.Identity) error {
	if id.RefreshToken != "" {
		if err := p.tokens.RevokeRefreshToken(ctx, id.RefreshToken); err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
	}
	return p.identities.BumpVersion(ctx, id.ID)
}

// Resolve verifies an access token and checks it against the current
// identity version.
func (p *Provider) Resolve(ctx context.Context, accessToken string) (*session.Identity, error) {
	claims, err := p.tokens.ParseAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	v, err := p.identities.GetMinimalAuthView(ctx, claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if v.Version != claims.Version {
		return nil, ErrInvalidToken
	}
	return &session.Identity{ID: v.ID, Email: v.Email, Name: v.Name, AccessToken: accessToken}, nil
}

func (p *Provider) issue(ctx context.Context, v *entity.MinimalAuthView) (*session.Identity, error) {
	ts, err := p.tokens.IssueTokens(ctx, v, p.clientID, AccessTTL)
	if err != nil {
		return nil, err
	}
	return &session.Identity{
		ID:           v.ID,
		Email:        v.Email,
		Name:         v.Name,
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		ExpiresAt:    ts.ExpiresAt,
	}, nil
}
