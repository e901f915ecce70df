package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/account"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/identity"
)

// Resolver turns a bearer access token back into an identity so a client can
// recover its session after a restart.
type Resolver interface {
	Resolve(ctx context.Context, accessToken string) (*Identity, error)
}

// Handler exposes the session flows and the client's notification slot.
type Handler struct {
	reg      *Registry
	resolver Resolver
	logger   *zap.SugaredLogger
}

func NewHandler(reg *Registry, resolver Resolver, logger *zap.SugaredLogger) *Handler {
	return &Handler{reg: reg, resolver: resolver, logger: logger}
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest registration payload.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Authenticated bool      `json:"authenticated"`
	Identity      *Identity `json:"identity"`
	Redirect      string    `json:"redirect,omitempty"`
}

// Get returns the current identity, restoring it from a bearer token when the
// client has none yet.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c := h.reg.ClientFor(w, r)
	if !c.Store.IsAuthenticated() && h.resolver != nil {
		if tok := bearer(r); tok != "" {
			if id, err := h.resolver.Resolve(r.Context(), tok); err == nil {
				c.Store.Restore(id)
			} else {
				h.logger.Debugw("session restore failed", "err", err)
			}
		}
	}
	h.writeSession(w, c, http.StatusOK)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	c := h.reg.ClientFor(w, r)
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := c.Store.Login(r.Context(), req.Email, req.Password); err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	h.writeSession(w, c, http.StatusOK)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	c := h.reg.ClientFor(w, r)
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := c.Store.Register(r.Context(), req.Name, req.Email, req.Password); err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	h.writeSession(w, c, http.StatusCreated)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	c := h.reg.ClientFor(w, r)
	if err := c.Store.Logout(r.Context()); err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	h.writeSession(w, c, http.StatusOK)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	c := h.reg.ClientFor(w, r)
	var upd entity.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := c.Store.UpdateProfile(r.Context(), upd); err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	h.writeSession(w, c, http.StatusOK)
}

// Notification returns the client's current message.
func (h *Handler) Notification(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reg.Notifier(w, r).Current())
}

// DismissNotification hides the client's current message.
func (h *Handler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	h.reg.Notifier(w, r).Hide()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeSession(w http.ResponseWriter, c *Client, status int) {
	cur := c.Store.Current()
	writeJSON(w, status, sessionResponse{
		Authenticated: cur != nil,
		Identity:      cur,
		Redirect:      c.TakeRedirect(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoUser):
		return http.StatusUnauthorized
	case errors.Is(err, account.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, account.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, account.ErrNoChanges):
		return http.StatusBadRequest
	}
	var verr validator.ValidationErrors
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity
	}
	return identity.StatusFor(err)
}

func bearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
