// Package api serves server-rendered forms and script endpoints protected by
// per-form CSRF tokens.
//
//	@title			CSRFProtector API
//	@version		1.0
//	@description	Server-rendered forms and script endpoints protected by per-form, single-use CSRF tokens
//
// @BasePath	/
package api

import (
	"context"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/dilneiss/CSRFProtector/config"
	"github.com/dilneiss/CSRFProtector/core"
	_ "github.com/dilneiss/CSRFProtector/docs"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// storeTimeout bounds every token store call made while serving a request
const storeTimeout = 5 * time.Second

// scopePattern restricts form scopes in URLs
const scopePattern = "{scope:[A-Za-z0-9_-]{1,64}}"

// API holds the HTTP server
type API struct {
	router    *mux.Router
	server    *http.Server
	guard     *core.Guard
	config    *config.Config
	logger    *zap.SugaredLogger
	templates *template.Template
	limiters  *clientLimiters
	now       func() time.Time
}

// NewAPI creates the HTTP server around guard
func NewAPI(guard *core.Guard, cfg *config.Config, logger *zap.SugaredLogger) *API {
	a := &API{
		router:    mux.NewRouter(),
		guard:     guard,
		config:    cfg,
		logger:    logger,
		templates: template.Must(template.New("pages").Parse(pageTemplates)),
		now:       time.Now,
	}
	rl := cfg.Server.RateLimit
	if rl.RequestsPerSecond > 0 {
		limiters, err := newClientLimiters(rl.RequestsPerSecond, rl.Burst, rl.MaxClients)
		if err != nil {
			logger.Errorw("Failed to create rate limiters, rate limiting disabled", "error", err)
		} else {
			a.limiters = limiters
		}
	}

	a.setupRoutes()
	a.server = a.newServer()
	return a
}

// setupRoutes sets up the routes
func (a *API) setupRoutes() {
	a.router.Use(a.errorRecoveryMiddleware)
	a.router.Use(a.requestIDMiddleware)
	a.router.Use(a.securityHeadersMiddleware)

	a.router.HandleFunc("/health", a.healthCheck).Methods(http.MethodGet)
	a.router.Handle("/metrics", promhttp.Handler())
	a.router.HandleFunc("/error", a.errorPage).Methods(http.MethodGet)
	if a.config.Server.Docs {
		a.router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)
	}

	forms := a.router.PathPrefix("/forms").Subrouter()
	forms.Use(a.rateLimitMiddleware)
	forms.Use(a.sessionMiddleware)
	forms.Use(a.csrfProtectionMiddleware(false))
	forms.HandleFunc("/"+scopePattern, a.renderForm).Methods(http.MethodGet)
	forms.HandleFunc("/"+scopePattern, a.submitForm).Methods(http.MethodPost)

	ajax := a.router.PathPrefix("/ajax").Subrouter()
	ajax.Use(a.rateLimitMiddleware)
	ajax.Use(a.sessionMiddleware)
	ajax.Use(a.csrfProtectionMiddleware(true))
	ajax.HandleFunc("/"+scopePattern, a.issueAjaxToken).Methods(http.MethodGet)
	ajax.HandleFunc("/"+scopePattern, a.submitAjax).Methods(http.MethodPost)
}

// Handler returns the root handler
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) newServer() *http.Server {
	return &http.Server{
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
	}
}

// Start listens on addr and serves until Stop is called
func (a *API) Start(addr string) error {
	a.server.Addr = addr
	return a.server.ListenAndServe()
}

// StartTLS listens on addr and serves TLS until Stop is called
func (a *API) StartTLS(addr, certFile, keyFile string) error {
	a.server.Addr = addr
	return a.server.ListenAndServeTLS(certFile, keyFile)
}

// Serve serves on an existing listener until Stop is called
func (a *API) Serve(ln net.Listener) error {
	return a.server.Serve(ln)
}

// ServeTLS serves TLS on an existing listener until Stop is called
func (a *API) ServeTLS(ln net.Listener, certFile, keyFile string) error {
	return a.server.ServeTLS(ln, certFile, keyFile)
}

// Stop stops the server. A server stopped before it started never serves.
func (a *API) Stop(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
