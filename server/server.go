package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinchain/backend/auth"
	"github.com/clinchain/backend/ledger"
	"github.com/clinchain/backend/service"
)

// WebServer handles HTTP requests
type WebServer struct {
	httpAddr  string
	server    *http.Server
	logger    cmtlog.Logger
	lots      *service.LotService
	auth      *service.AuthService
	tokens    *auth.TokenProvider
	startTime time.Time
}

// NewWebServer creates a new web server and registers all routes.
func NewWebServer(
	httpPort string,
	lots *service.LotService,
	authSvc *service.AuthService,
	tokens *auth.TokenProvider,
	registry *prometheus.Registry,
	logger cmtlog.Logger,
) *WebServer {
	mux := http.NewServeMux()

	ws := &WebServer{
		httpAddr: ":" + httpPort,
		server: &http.Server{
			Addr:    ":" + httpPort,
			Handler: mux,
		},
		logger:    logger,
		lots:      lots,
		auth:      authSvc,
		tokens:    tokens,
		startTime: time.Now(),
	}

	mux.HandleFunc("/", ws.handleRoot)
	mux.HandleFunc("/auth/login", ws.handleLogin)
	mux.HandleFunc("/lots", ws.handleLots)
	mux.HandleFunc("/lots/stats", ws.handleStats)
	mux.HandleFunc("/lots/", ws.handleLotAPI)
	if registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return ws
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info("Starting web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("web server error: ", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

func (ws *WebServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		JSONError(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "clinchain-backend",
		"uptime":  time.Since(ws.startTime).String(),
	})
}

// writeJSON sends an indented JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.Encode(body)
}

// JSONError sends a JSON formatted error response with the given status code and message
func JSONError(w http.ResponseWriter, message string, statusCode int) {
	errorResponse := struct {
		Error string `json:"error"`
	}{
		Error: message,
	}
	jsonBytes, err := json.Marshal(errorResponse)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(jsonBytes)
}

// serviceError maps a domain error onto an HTTP status and writes it. Ledger
// failures map to 502 so callers can tell a custody chain outage apart from a
// bad request.
func (ws *WebServer) serviceError(w http.ResponseWriter, err error) {
	var opErr *ledger.OperationError
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUnknownActor):
		JSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrForbidden):
		JSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrInvalidCredentials):
		JSONError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, service.ErrIllegalTransition), errors.Is(err, service.ErrInsufficientQuantity):
		JSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrInvalidQuantity), errors.Is(err, ledger.ErrInvalidIdentifier):
		JSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &opErr):
		JSONError(w, opErr.Error(), http.StatusBadGateway)
	case errors.Is(err, ledger.ErrMissingCredential):
		JSONError(w, err.Error(), http.StatusInternalServerError)
	default:
		ws.logger.Error("Unhandled service error", "err", err)
		JSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}
