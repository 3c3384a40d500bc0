package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dilneiss/CSRFProtector/core"
	"github.com/dilneiss/CSRFProtector/util"
	"github.com/gorilla/mux"
)

// CSRFErrorResponse is the JSON body of a rejected script-driven post
type CSRFErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// csrfProtectionMiddleware enforces the form token on every state-changing
// request. A post carrying no CSRF field at all is a template defect and is
// handled by the guard's mode; a post whose token does not validate is
// rejected with 403.
func (a *API) csrfProtectionMiddleware(jsonErrors bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
			defer cancel()

			scope := mux.Vars(r)["scope"]
			reqCtx := a.requestContext(r)
			tg := a.guard.For(scope, reqCtx)
			requestID := GetRequestIDOrDefault(r.Context())

			redirect := func() {
				http.Redirect(w, r, a.config.Errors.PageURL, http.StatusSeeOther)
			}

			err := tg.RequirePostProtection(ctx, reqCtx.PostFields(), redirect)
			var protErr *core.ProtectionError
			switch {
			case errors.As(err, &protErr) && protErr.Fatal:
				a.logger.Errorw("CSRF AUDIT: aborting unprotected post",
					"scope", scope,
					"method", r.Method,
					"path", r.URL.Path,
					"fields", util.SanitizeFields(reqCtx.PostFields()),
					"request_id", requestID)
				http.Error(w, protErr.Message, http.StatusInternalServerError)
				return
			case errors.Is(err, core.ErrMissingProtection):
				// Redirect already written
				return
			case err != nil:
				a.logger.Errorw("CSRF protection check failed", "error", err, "request_id", requestID)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if !tg.ValidateRequest(ctx) {
				a.logger.Warnw("CSRF AUDIT: token rejected",
					"scope", scope,
					"client_ip", reqCtx.ClientIP(),
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", requestID)
				if jsonErrors {
					a.writeCSRFError(w, http.StatusForbidden, "CSRF token missing or invalid")
				} else {
					a.renderError(w, http.StatusForbidden, tg.ErrorMessage())
				}
				return
			}

			a.logger.Debugw("CSRF AUDIT: validation successful",
				"scope", scope,
				"path", r.URL.Path,
				"request_id", requestID)

			next.ServeHTTP(w, r)
		})
	}
}

// writeCSRFError writes a JSON CSRF error response
func (a *API) writeCSRFError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(CSRFErrorResponse{
		Code:  "CSRF_INVALID",
		Error: message,
	}); err != nil {
		a.logger.Errorw("Failed to encode CSRF error response",
			"error", err,
			"message", message)
	}
}
