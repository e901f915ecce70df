package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/oidc/repo"
)

// AccessTTL is the lifetime of id and access tokens.
const AccessTTL = 15 * time.Minute

// RefreshTTL is the lifetime of opaque refresh tokens.
const RefreshTTL = 30 * 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

// OIDCService manages signing keys and token issuance.
type OIDCService struct {
	key    *rsa.PrivateKey
	kid    string
	issuer string
	// DB-backed refresh repository
	refreshRepo *repo.RefreshRepo
}

func NewOIDCService(db *sqlx.DB, issuer string) (*OIDCService, error) {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	// generate simple kid as base64 of SHA256 of public key
	pubBytes, _ := json.Marshal(k.PublicKey)
	h := sha256.Sum256(pubBytes)
	kid := base64.RawURLEncoding.EncodeToString(h[:8])
	r := repo.NewRefreshRepo(db)
	return &OIDCService{key: k, kid: kid, issuer: issuer, refreshRepo: r}, nil
}

// Issuer returns the configured issuer URL.
func (s *OIDCService) Issuer() string { return s.issuer }

// JWKS returns a minimal JWKS containing the public key.
func (s *OIDCService) JWKS() map[string]any {
	pub := s.key.PublicKey
	n := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	// encode exponent using big.Int to get minimal big-endian bytes
	e := base64.RawURLEncoding.EncodeToString(new(big.Int).SetInt64(int64(pub.E)).Bytes())
	jwk := map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": s.kid,
		"n":   n,
		"e":   e,
	}
	return map[string]any{"keys": []any{jwk}}
}

// PublicKey returns the RSA public key for verification.
func (s *OIDCService) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// IssueTokens creates an id_token, an access_token and a persisted refresh token for u.
func (s *OIDCService) IssueTokens(ctx context.Context, u *entity.MinimalAuthView, audience string, ttl time.Duration) (*TokenSet, error) {
	now := time.Now()
	idClaims := jwt.MapClaims{
		"iss":   s.issuer,
		"sub":   u.ID,
		"aud":   audience,
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
		"v":     u.Version,
		"email": u.Email,
		"name":  u.Name,
	}
	signedID, err := s.sign(idClaims)
	if err != nil {
		return nil, err
	}

	accessClaims := jwt.MapClaims{
		"iss":       s.issuer,
		"sub":       u.ID,
		"aud":       audience,
		"exp":       now.Add(ttl).Unix(),
		"iat":       now.Unix(),
		"v":         u.Version,
		"email":     u.Email,
		"name":      u.Name,
		"token_use": "access",
	}
	signedAccess, err := s.sign(accessClaims)
	if err != nil {
		return nil, err
	}

	// opaque refresh token persisted in DB
	rtBytes := make([]byte, 32)
	if _, err := rand.Read(rtBytes); err != nil {
		return nil, err
	}
	refresh := base64.RawURLEncoding.EncodeToString(rtBytes)
	if _, err := s.refreshRepo.Save(ctx, refresh, u.ID, audience, now.Add(RefreshTTL)); err != nil {
		return nil, fmt.Errorf("save refresh session: %w", err)
	}

	return &TokenSet{
		IDToken:      signedID,
		AccessToken:  signedAccess,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(ttl.Seconds()),
		ExpiresAt:    now.Add(ttl),
	}, nil
}

func (s *OIDCService) sign(claims jwt.MapClaims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	return tok.SignedString(s.key)
}

// ParseAccessToken verifies signature, issuer and expiry of an access token.
func (s *OIDCService) ParseAccessToken(token string) (*Claims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.PublicKey(), nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if use, _ := claims["token_use"].(string); use != "access" {
		return nil, ErrInvalidToken
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, ErrInvalidToken
	}
	out := &Claims{Subject: sub}
	out.Email, _ = claims["email"].(string)
	out.Name, _ = claims["name"].(string)
	if v, ok := claims["v"].(float64); ok {
		out.Version = int64(v)
	}
	return out, nil
}

// ValidateRefreshToken checks an opaque refresh token and returns the session if valid.
func (s *OIDCService) ValidateRefreshToken(ctx context.Context, token string) (*RefreshSession, bool) {
	id, identityID, clientID, expiresAt, err := s.refreshRepo.Get(ctx, token)
	if err != nil {
		return nil, false
	}
	rs := RefreshSession{ID: id, IdentityID: identityID, ClientID: clientID, ExpiresAt: expiresAt}
	if rs.ExpiresAt.Before(time.Now()) {
		return nil, false
	}
	return &rs, true
}

// RevokeRefreshToken removes a refresh token from store.
func (s *OIDCService) RevokeRefreshToken(ctx context.Context, token string) error {
	return s.refreshRepo.Delete(ctx, token)
}
