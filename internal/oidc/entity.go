package oidc

import "time"

// RefreshSession represents a persisted refresh session.
type RefreshSession struct {
	ID         int64     `db:"id"`
	IdentityID string    `db:"identity_id"`
	ClientID   string    `db:"client_id"`
	ExpiresAt  time.Time `db:"expires_at"`
}

// TokenSet is what a successful grant hands back to the client.
type TokenSet struct {
	IDToken      string    `json:"id_token"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"-"`
}

// Claims is the verified subset of an access token.
type Claims struct {
	Subject string
	Email   string
	Name    string
	Version int64
}
