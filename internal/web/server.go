package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/elys-network/vault-apy/internal/exporter"
	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/metrics"
	"github.com/elys-network/vault-apy/internal/state"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/elys-network/vault-apy/internal/vaults"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// CycleReporter exposes the last export cycle. *exporter.Exporter implements it.
type CycleReporter interface {
	LastCycle() (exporter.CycleResult, bool)
}

// Config holds the dependencies of the web server.
type Config struct {
	Port    string
	Store   state.Store
	Source  vaults.Source
	Engine  exporter.Computer
	Cycles  CycleReporter
	Metrics *metrics.Collector
	// DBCheck reports database health. Nil when no database is used.
	DBCheck func() error
}

// WebServer serves stored vault yields and live computations.
type WebServer struct {
	router  *mux.Router
	port    string
	store   state.Store
	source  vaults.Source
	engine  exporter.Computer
	cycles  CycleReporter
	dbCheck func() error
	started time.Time
	logger  zerolog.Logger
	server  *http.Server
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) *WebServer {
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	ws := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		store:   cfg.Store,
		source:  cfg.Source,
		engine:  cfg.Engine,
		cycles:  cfg.Cycles,
		dbCheck: cfg.DBCheck,
		started: time.Now(),
		logger:  logger.GetForComponent("web_server"),
	}

	ws.setupRoutes(cfg.Metrics)
	return ws
}

// Handler returns the root handler, used by tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes(m *metrics.Collector) {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if m != nil {
		ws.router.Handle("/metrics", m.Handler()).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET", "OPTIONS")
	api.HandleFunc("/vaults", ws.handleGetVaults).Methods("GET", "OPTIONS")
	api.HandleFunc("/vaults/{address}", ws.handleGetVault).Methods("GET", "OPTIONS")
	api.HandleFunc("/vaults/{address}/apy", ws.handleComputeApy).Methods("GET", "OPTIONS")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server and blocks until it stops.
func (ws *WebServer) Start() error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a started server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// Healthy reports whether the last export cycle succeeded and the database answers.
func (ws *WebServer) Healthy() bool {
	healthy, _, _ := ws.healthStatus()
	return healthy
}

func (ws *WebServer) healthStatus() (bool, map[string]interface{}, bool) {
	healthy := true
	cycleInfo := map[string]interface{}{
		"current_cycle":     0,
		"last_cycle_time":   nil,
		"last_cycle_status": "unknown",
	}
	if ws.cycles != nil {
		if last, ok := ws.cycles.LastCycle(); ok {
			status := "completed"
			if last.ErrorMsg != "" {
				status = "failed"
				healthy = false
			}
			cycleInfo = map[string]interface{}{
				"current_cycle":     last.Number,
				"cycle_id":          last.ID,
				"last_cycle_time":   last.Started,
				"last_cycle_status": status,
				"vaults":            last.Vaults,
				"failed":            last.Failed,
				"written":           last.Written,
			}
		} else {
			healthy = false
		}
	}

	dbHealthy := true
	if ws.dbCheck != nil {
		if err := ws.dbCheck(); err != nil {
			dbHealthy = false
			healthy = false
		}
	}
	return healthy, cycleInfo, dbHealthy
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	healthy, cycleInfo, dbHealthy := ws.healthStatus()
	overallStatus := "OK"
	if !healthy {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "vault-apy",
			"version": "1.0.0",
		},
		"exporter_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"cycle_info":       cycleInfo,
		},
	}

	statusCode := http.StatusOK
	if !healthy {
		statusCode = http.StatusServiceUnavailable
	}
	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetVaults returns every stored vault ordered by address.
func (ws *WebServer) handleGetVaults(w http.ResponseWriter, r *http.Request) {
	keys, err := ws.store.Scan(r.Context())
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to list stored vaults")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vaults")
		return
	}
	found, err := ws.store.BatchGet(r.Context(), keys)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to read stored vaults")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vaults")
		return
	}

	out := make([]types.CachedVault, 0, len(found))
	for _, v := range found {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	ws.writeJSONResponse(w, http.StatusOK, out)
}

// handleGetVault returns one stored vault.
func (ws *WebServer) handleGetVault(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	v, err := state.Get(r.Context(), ws.store, address)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Vault not found")
			return
		}
		ws.logger.Error().Err(err).Str("vault", address).Msg("Failed to read stored vault")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, v)
}

// handleComputeApy computes the yield of a known vault now, bypassing the store.
func (ws *WebServer) handleComputeApy(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	v, err := ws.source.Vault(r.Context(), address)
	if err != nil {
		if errors.Is(err, vaults.ErrVaultNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Vault not found")
			return
		}
		ws.logger.Error().Err(err).Str("vault", address).Msg("Failed to load vault")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to load vault")
		return
	}

	apy, err := ws.engine.ComputeApy(r.Context(), v)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, apy)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		ws.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
