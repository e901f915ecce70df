package plan

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Handler serves the plan catalogue.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// List returns every plan as a JSON array.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	plans, err := h.svc.List(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		h.logger.Errorw("list plans", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(plans)
}
