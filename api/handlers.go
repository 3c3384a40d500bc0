package api

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/dilneiss/CSRFProtector/core"
	"github.com/gorilla/mux"
)

type formPage struct {
	Scope  string
	Notice string
	Inputs template.HTML
}

type errorPageData struct {
	Message template.HTML
}

// AjaxTokenResponse carries a token to script-driven clients
type AjaxTokenResponse struct {
	Name       string `json:"csrfname"`
	Token      string `json:"csrftoken"`
	Attributes string `json:"attributes"`
}

// respondJSON writes a JSON response with proper error handling
func (a *API) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

func (a *API) renderHTML(w http.ResponseWriter, statusCode int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := a.templates.ExecuteTemplate(w, name, data); err != nil {
		a.logger.Errorw("Failed to render page", "template", name, "error", err)
	}
}

func (a *API) renderError(w http.ResponseWriter, statusCode int, message string) {
	// The generic message is trusted markup
	a.renderHTML(w, statusCode, "error", errorPageData{Message: template.HTML(message)})
}

// renderFormWithToken issues a token for scope and renders the form page
func (a *API) renderFormWithToken(w http.ResponseWriter, r *http.Request, statusCode int, notice string) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	scope := mux.Vars(r)["scope"]
	tg := a.guard.For(scope, a.requestContext(r))

	inputs, err := tg.HiddenInputs(ctx, scope, true)
	if err != nil {
		a.logger.Errorw("Failed to issue CSRF token",
			"scope", scope,
			"error", err,
			"request_id", GetRequestIDOrDefault(r.Context()))
		a.renderError(w, http.StatusInternalServerError, tg.ErrorMessage())
		return
	}

	a.renderHTML(w, statusCode, "form", formPage{Scope: scope, Notice: notice, Inputs: inputs})
}

// renderForm godoc
//
//	@Summary		Render a protected form
//	@Description	Issues a token for the scope and renders a form carrying it as hidden inputs
//	@Tags			forms
//	@Produce		html
//	@Param			scope	path		string	true	"Form scope"
//	@Success		200		{string}	string	"Form page"
//	@Failure		429		{string}	string	"Too many requests"
//	@Failure		500		{string}	string	"Token store unavailable"
//	@Router			/forms/{scope} [get]
func (a *API) renderForm(w http.ResponseWriter, r *http.Request) {
	a.renderFormWithToken(w, r, http.StatusOK, "")
}

// submitForm godoc
//
//	@Summary		Submit a protected form
//	@Description	Accepts the post when it carries a live token for the scope and renders the form again with a fresh token
//	@Tags			forms
//	@Accept			x-www-form-urlencoded
//	@Produce		html
//	@Param			scope		path		string	true	"Form scope"
//	@Param			CSRFName	formData	string	true	"Token name"
//	@Param			CSRFToken	formData	string	true	"Token value"
//	@Success		200			{string}	string	"Form accepted"
//	@Success		303			{string}	string	"Missing protection in production mode"
//	@Failure		403			{string}	string	"Token missing or invalid"
//	@Failure		429			{string}	string	"Too many requests"
//	@Router			/forms/{scope} [post]
func (a *API) submitForm(w http.ResponseWriter, r *http.Request) {
	a.logger.Infow("Form accepted",
		"scope", mux.Vars(r)["scope"],
		"request_id", GetRequestIDOrDefault(r.Context()))
	a.renderFormWithToken(w, r, http.StatusOK, "Form accepted.")
}

// issueAjaxToken godoc
//
//	@Summary		Issue a token for a script-driven post
//	@Tags			ajax
//	@Produce		json
//	@Param			scope	path		string	true	"Form scope"
//	@Success		200		{object}	AjaxTokenResponse
//	@Failure		429		{string}	string	"Too many requests"
//	@Failure		500		{object}	map[string]string
//	@Router			/ajax/{scope} [get]
func (a *API) issueAjaxToken(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	scope := mux.Vars(r)["scope"]
	tg := a.guard.For(scope, a.requestContext(r))

	attrs, err := tg.AjaxAttributes(ctx)
	if err != nil {
		a.logger.Errorw("Failed to issue CSRF token",
			"scope", scope,
			"error", err,
			"request_id", GetRequestIDOrDefault(r.Context()))
		a.respondJSON(w, map[string]string{"error": "failed to issue token"}, http.StatusInternalServerError)
		return
	}

	rec, _ := tg.Record()
	a.respondJSON(w, AjaxTokenResponse{
		Name:       rec.TokenName,
		Token:      rec.TokenValue,
		Attributes: string(attrs),
	}, http.StatusOK)
}

// submitAjax godoc
//
//	@Summary		Submit a script-driven post
//	@Description	The token may be sent as form fields or as X-CSRF-Name and X-CSRF-Token headers
//	@Tags			ajax
//	@Produce		json
//	@Param			scope			path		string	true	"Form scope"
//	@Param			X-CSRF-Name		header		string	false	"Token name"
//	@Param			X-CSRF-Token	header		string	false	"Token value"
//	@Success		200				{object}	map[string]string
//	@Failure		403				{object}	map[string]string	"CSRF_INVALID"
//	@Failure		429				{string}	string				"Too many requests"
//	@Router			/ajax/{scope} [post]
func (a *API) submitAjax(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, map[string]string{"status": "accepted"}, http.StatusOK)
}

// errorPage godoc
//
//	@Summary		Generic error page
//	@Description	Redirect target of production-mode protection violations
//	@Tags			system
//	@Produce		html
//	@Success		200	{string}	string	"Error page"
//	@Router			/error [get]
func (a *API) errorPage(w http.ResponseWriter, r *http.Request) {
	a.renderError(w, http.StatusOK, core.GenericErrorMessage)
}

// healthCheck godoc
//
//	@Summary	Health check
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/health [get]
func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, map[string]string{
		"status": "healthy",
		"mode":   string(a.guard.Mode()),
		"time":   time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}
