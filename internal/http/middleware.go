package http

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront/internal/ratelimit"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	SessionCookie = "sf_session"
	SessionHeader = "X-Session-ID"
)

type ctxKey int

const sessionKey ctxKey = iota

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// SessionMiddleware resolves the browsing session id from the X-Session-ID
// header, then the session cookie, and mints a new one when neither is
// usable. A tab that sends its own header gets its own checkout.
func SessionMiddleware(cookieMaxAge time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := r.Header.Get(SessionHeader)
			if !sessionIDPattern.MatchString(sessionID) {
				sessionID = ""
				if c, err := r.Cookie(SessionCookie); err == nil && sessionIDPattern.MatchString(c.Value) {
					sessionID = c.Value
				}
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    sessionID,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
					Secure:   r.TLS != nil,
					MaxAge:   int(cookieMaxAge.Seconds()),
				})
			}
			w.Header().Set(SessionHeader, sessionID)

			ctx := context.WithValue(r.Context(), sessionKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey).(string); ok {
		return id
	}
	return ""
}

// RequestIDMiddleware echoes chi's request id back to the caller.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs method, path, status and duration of every request.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("session_id", sessionIDFromContext(r.Context())))
		})
	}
}

// RateLimit rejects a session, or a client address when there is no
// session yet, once it spends the limiter's budget.
func RateLimit(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := sessionIDFromContext(r.Context())
			if key == "" {
				key = r.RemoteAddr
			}
			if !l.Allow(r.Context(), key) {
				w.Header().Set("Retry-After", strconv.Itoa(int(l.Window().Seconds())))
				respondError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
