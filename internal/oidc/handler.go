package oidc

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/identity"
)

type Handler struct {
	svc         *OIDCService
	identitySvc *identity.Service
	logger      *zap.SugaredLogger
}

func NewHandler(svc *OIDCService, identitySvc *identity.Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, identitySvc: identitySvc, logger: logger}
}

func (h *Handler) Discovery(w http.ResponseWriter, r *http.Request) {
	iss := h.svc.Issuer()
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                iss,
		"jwks_uri":                              iss + "/jwks.json",
		"token_endpoint":                        iss + "/token",
		"userinfo_endpoint":                     iss + "/userinfo",
		"revocation_endpoint":                   iss + "/revoke",
		"introspection_endpoint":                iss + "/introspect",
		"grant_types_supported":                 []string{"password", "refresh_token"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.JWKS())
}

// Token implements the password and refresh_token grants.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	clientID := r.Form.Get("client_id")
	switch r.Form.Get("grant_type") {
	case "password":
		v, err := h.identitySvc.AuthenticatePassword(r.Context(), r.Form.Get("username"), r.Form.Get("password"))
		if err != nil {
			h.logger.Debugw("password grant rejected", "err", err)
			oauthError(w, identity.StatusFor(err), "invalid_grant")
			return
		}
		ts, err := h.svc.IssueTokens(r.Context(), v, clientID, AccessTTL)
		if err != nil {
			h.logger.Errorw("issue tokens", "err", err)
			oauthError(w, http.StatusInternalServerError, "server_error")
			return
		}
		writeJSON(w, http.StatusOK, ts)
	case "refresh_token":
		rt := r.Form.Get("refresh_token")
		if rt == "" {
			oauthError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		sess, ok := h.svc.ValidateRefreshToken(r.Context(), rt)
		if !ok {
			oauthError(w, http.StatusUnauthorized, "invalid_grant")
			return
		}
		v, err := h.identitySvc.GetMinimalAuthView(r.Context(), sess.IdentityID)
		if err != nil {
			oauthError(w, http.StatusUnauthorized, "invalid_grant")
			return
		}
		// rotate: the old token must be gone before a new one is issued
		if err := h.svc.RevokeRefreshToken(r.Context(), rt); err != nil {
			oauthError(w, http.StatusUnauthorized, "invalid_grant")
			return
		}
		ts, err := h.svc.IssueTokens(r.Context(), v, sess.ClientID, AccessTTL)
		if err != nil {
			h.logger.Errorw("issue tokens", "err", err)
			oauthError(w, http.StatusInternalServerError, "server_error")
			return
		}
		writeJSON(w, http.StatusOK, ts)
	default:
		oauthError(w, http.StatusBadRequest, "unsupported_grant_type")
	}
}

func (h *Handler) Userinfo(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		oauthError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	claims, err := h.svc.ParseAccessToken(strings.TrimSpace(auth[7:]))
	if err != nil {
		oauthError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":   claims.Subject,
		"email": claims.Email,
		"name":  claims.Name,
	})
}

// Revoke implements RFC 7009 for refresh tokens. Unknown tokens still get 200.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	token := r.Form.Get("token")
	if token == "" {
		oauthError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := h.svc.RevokeRefreshToken(r.Context(), token); err != nil {
		h.logger.Debugw("revoke", "err", err)
	}
	w.WriteHeader(http.StatusOK)
}

// Introspect implements RFC 7662 for refresh tokens and access tokens.
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	token := r.Form.Get("token")
	if token == "" {
		oauthError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if sess, ok := h.svc.ValidateRefreshToken(r.Context(), token); ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"active":     true,
			"client_id":  sess.ClientID,
			"sub":        sess.IdentityID,
			"exp":        sess.ExpiresAt.Unix(),
			"token_type": "refresh_token",
		})
		return
	}

	claims := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return h.svc.PublicKey(), nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithIssuer(h.svc.Issuer()))
	if err != nil || !tkn.Valid {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	out := map[string]any{"active": true, "token_type": "access_token"}
	for _, k := range []string{"sub", "aud", "iss", "exp", "iat"} {
		if v, ok := claims[k]; ok {
			out[k] = v
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func oauthError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
