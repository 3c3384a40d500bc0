package api

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/google/uuid"
)

// requestIDMiddleware tags each request with an ID for log correlation
func (a *API) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
	})
}

// sessionMiddleware resolves the opaque session identifier cookie, issuing a
// new one when the client has none or presents a malformed value.
func (a *API) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := a.config.Session.CookieName

		var sessionID string
		if cookie, err := r.Cookie(name); err == nil {
			if _, err := uuid.Parse(cookie.Value); err == nil {
				sessionID = cookie.Value
			}
		}

		if sessionID == "" {
			sessionID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     name,
				Value:    sessionID,
				Path:     "/",
				MaxAge:   int(a.config.Session.CookieMaxAge.Seconds()),
				HttpOnly: true,
				Secure:   a.config.Server.TLS,
				SameSite: http.SameSiteLaxMode,
			})
			a.logger.Debugw("Issued session cookie",
				"request_id", GetRequestIDOrDefault(r.Context()))
		}

		next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sessionID)))
	})
}

// securityHeadersMiddleware keeps rendered forms out of foreign frames
func (a *API) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; form-action 'self'")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// errorRecoveryMiddleware turns handler panics into a 500 response
func (a *API) errorRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stackBuf := make([]byte, 4096)
				stackLen := runtime.Stack(stackBuf, false)

				// Stack trace is logged server-side only, never sent to client
				a.logger.Errorw("PANIC RECOVERED",
					"error", fmt.Sprintf("%v", err),
					"request_id", GetRequestIDOrDefault(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"stack_trace", string(stackBuf[:stackLen]))

				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
