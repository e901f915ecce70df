package messaging

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per destination phone.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRateLimiter allows perMinute messages per phone with the given burst.
func NewRateLimiter(perMinute float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perMinute / 60),
		burst:    burst,
	}
}

// Allow reports whether phone may receive another message now.
func (rl *RateLimiter) Allow(phone string) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[phone]
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[phone] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

// Cleanup drops every limiter once the map grows past max entries.
func (rl *RateLimiter) Cleanup(max int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) > max {
		rl.limiters = make(map[string]*rate.Limiter)
	}
}

// Function is the send-whatsapp endpoint. There is no gateway behind it:
// accepted messages are logged and acknowledged.
type Function struct {
	limiter *RateLimiter
	logger  *zap.SugaredLogger
}

func NewFunction(limiter *RateLimiter, logger *zap.SugaredLogger) *Function {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Function{limiter: limiter, logger: logger}
}

func (f *Function) SendWhatsApp(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.PhoneNumber == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phoneNumber and message are required"})
		return
	}
	if f.limiter != nil && !f.limiter.Allow(req.PhoneNumber) {
		f.logger.Warnw("send rate limited", "phone", req.PhoneNumber)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		return
	}
	f.logger.Infow("whatsapp message accepted",
		"phone", req.PhoneNumber,
		"request_id", r.Header.Get("X-Request-ID"),
		"length", len(req.Message),
	)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
