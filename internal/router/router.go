package router

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/course"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/identity"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/oidc"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/plan"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/session"
	"github.com/ovaphlow/pitchfork/service-microburst/pkg/utilities"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware tags every request with an X-Request-ID (kept when the
// caller sends one) and logs it at debug level, or warn level for 5xx.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = utilities.NewSnowflakeID()
			}
			w.Header().Set("X-Request-ID", reqID)

			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			fields := []any{
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"size", lrw.size,
			}
			if status >= http.StatusInternalServerError {
				logger.Warnw("http request", fields...)
				return
			}
			logger.Debugw("http request", fields...)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Clickjacking protection
			w.Header().Set("X-Frame-Options", "DENY")

			// Referrer policy
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")

			// Permissions policy (formerly Feature-Policy) - tighten common features
			// allow none for camera, microphone, geolocation by default
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			// Basic Content-Security-Policy, restricting sources to self
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}

			// HSTS - instruct browsers to use HTTPS for future requests. Only set if request is over TLS.
			if r.TLS != nil {
				// 30 days by default
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Deps are the handlers mounted by RegisterRoutes.
type Deps struct {
	Session  *session.Handler
	Courses  *course.Handler
	Plans    *plan.Handler
	Identity *identity.Handler
	OIDC     *oidc.Handler
	Auth     *oidc.Provider
}

const apiPrefix = "/microburst-api"

// RegisterRoutes mounts HTTP handlers on the standard library's http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+apiPrefix+"/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	// client session and notifications
	mux.HandleFunc("GET "+apiPrefix+"/session", d.Session.Get)
	mux.HandleFunc("POST "+apiPrefix+"/auth/login", d.Session.Login)
	mux.HandleFunc("POST "+apiPrefix+"/auth/register", d.Session.Register)
	mux.HandleFunc("POST "+apiPrefix+"/auth/logout", d.Session.Logout)
	mux.HandleFunc("PATCH "+apiPrefix+"/profile", d.Session.UpdateProfile)
	mux.HandleFunc("GET "+apiPrefix+"/notifications", d.Session.Notification)
	mux.HandleFunc("DELETE "+apiPrefix+"/notifications", d.Session.DismissNotification)
	mux.HandleFunc("GET "+apiPrefix+"/plans", d.Plans.List)

	// courses require an access token
	authed := func(h http.HandlerFunc) http.Handler { return d.Auth.RequireBearer(h) }
	mux.Handle("GET "+apiPrefix+"/courses", authed(d.Courses.List))
	mux.Handle("POST "+apiPrefix+"/courses", authed(d.Courses.Create))
	mux.Handle("GET "+apiPrefix+"/courses/{id}", authed(d.Courses.Get))
	mux.Handle("PATCH "+apiPrefix+"/courses/{id}/status", authed(d.Courses.UpdateCourseStatus))
	mux.Handle("PATCH "+apiPrefix+"/lessons/{id}/status", authed(d.Courses.UpdateLessonStatus))
	mux.Handle("POST "+apiPrefix+"/messages", authed(d.Courses.SendMessage))

	// identity provider
	mux.HandleFunc("POST /auth/v1/signup", d.Identity.Signup)
	mux.HandleFunc("POST /auth/v1/token", d.OIDC.Token)
	mux.HandleFunc("GET /auth/v1/userinfo", d.OIDC.Userinfo)
	mux.HandleFunc("POST /auth/v1/revoke", d.OIDC.Revoke)
	mux.HandleFunc("POST /auth/v1/introspect", d.OIDC.Introspect)
	mux.HandleFunc("GET /auth/v1/jwks.json", d.OIDC.JWKS)
	mux.HandleFunc("GET /auth/v1/.well-known/openid-configuration", d.OIDC.Discovery)

	// security headers, then logging, then metrics outermost
	handler := LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
	return metrics.InstrumentHandler(handler)
}
