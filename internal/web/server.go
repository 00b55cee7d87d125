package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/elys-network/rebalancer/internal/analyzer"
	"github.com/elys-network/rebalancer/internal/logger"
	"github.com/elys-network/rebalancer/internal/planner"
	"github.com/elys-network/rebalancer/internal/state"
	"github.com/elys-network/rebalancer/internal/types"
	"github.com/elys-network/rebalancer/internal/utils"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/mem"
)

var webLogger = logger.GetForComponent("web_server")

// Backend is the rebalancer service as seen by the API.
type Backend interface {
	Manager() types.StrategyID
	PreviewRanking(ctx context.Context, now time.Time) (analyzer.RankingResults, error)
	PreviewPlan(ctx context.Context, now time.Time) (types.RebalancingPlan, error)
	RiskLimits(ctx context.Context) (types.RiskLimits, error)
	RegisterStrategy(ctx context.Context, id types.StrategyID, protocol types.Protocol, initialBalance uint64, now time.Time) (types.Strategy, error)
	UpdatePerformance(ctx context.Context, id types.StrategyID, update types.PerformanceUpdate, now time.Time) (types.Strategy, error)
	SetEmergencyPause(ctx context.Context, paused bool) error
}

// Store is the read side of persistence used by the API.
type Store interface {
	LoadPortfolio(ctx context.Context, manager types.StrategyID) (types.Portfolio, error)
	LoadStrategies(ctx context.Context, manager types.StrategyID) ([]types.Strategy, error)
	GetCurrentCycleNumber(ctx context.Context) (int64, error)
	Ping() error
}

// WebServer serves the rebalancer's HTTP API
type WebServer struct {
	router  *mux.Router
	handler http.Handler
	server  *http.Server
	port    string
	backend Backend
	store   Store
	started time.Time
	now     func() time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, backend Backend, store Store) *WebServer {
	if port == "" {
		port = "8080"
	}

	ws := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		backend: backend,
		store:   store,
		started: time.Now(),
		now:     time.Now,
	}

	ws.setupRoutes()
	return ws
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/portfolio", ws.handleGetPortfolio).Methods("GET")
	api.HandleFunc("/portfolio/pause", ws.handleSetPause).Methods("POST")
	api.HandleFunc("/strategies", ws.handleGetStrategies).Methods("GET")
	api.HandleFunc("/strategies", ws.handleRegisterStrategy).Methods("POST")
	api.HandleFunc("/strategies/{id}/performance", ws.handleUpdatePerformance).Methods("POST")
	api.HandleFunc("/ranking", ws.handleGetRanking).Methods("GET")
	api.HandleFunc("/plan", ws.handleGetPlan).Methods("GET")
	api.HandleFunc("/risk-limits", ws.handleGetRiskLimits).Methods("GET")

	ws.router.Use(ws.loggingMiddleware)

	// CORS wraps the router so preflight requests are answered before route matching.
	ws.handler = cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})(ws.router)
}

// Handler returns the fully wrapped HTTP handler.
func (ws *WebServer) Handler() http.Handler {
	return ws.handler
}

// Start starts the web server and blocks until it stops
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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
	webLogger.Info().Msg("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// handleHealth reports process and database health
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var hostMemoryUsedPercent float64
	if vm, err := mem.VirtualMemory(); err != nil {
		webLogger.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		hostMemoryUsedPercent = vm.UsedPercent
	}

	dbHealthy := true
	if err := ws.store.Ping(); err != nil {
		webLogger.Warn().Err(err).Msg("Database health check failed")
		dbHealthy = false
	}

	var currentCycle int64
	if dbHealthy {
		var err error
		if currentCycle, err = ws.store.GetCurrentCycleNumber(r.Context()); err != nil {
			webLogger.Warn().Err(err).Msg("Failed to read cycle counter")
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": ws.now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"host_memory_used": hostMemoryUsedPercent,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "strategy-rebalancer",
			"version": "1.0.0",
		},
		"rebalancer_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"current_cycle":    currentCycle,
			"manager":          ws.backend.Manager().String(),
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolio, err := ws.store.LoadPortfolio(r.Context(), ws.backend.Manager())
	if err != nil {
		ws.writeDomainError(w, err, "Failed to retrieve portfolio")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"portfolio":      portfolio,
		"next_rebalance": portfolio.NextRebalance(),
		"can_rebalance":  portfolio.CanRebalance(ws.now()),
	})
}

type pauseRequest struct {
	Paused *bool `json:"paused"`
}

func (ws *WebServer) handleSetPause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Paused == nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, `Body must be {"paused": true|false}`)
		return
	}

	if err := ws.backend.SetEmergencyPause(r.Context(), *req.Paused); err != nil {
		ws.writeDomainError(w, err, "Failed to update emergency pause")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"emergency_pause": *req.Paused})
}

func (ws *WebServer) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := ws.store.LoadStrategies(r.Context(), ws.backend.Manager())
	if err != nil {
		ws.writeDomainError(w, err, "Failed to retrieve strategies")
		return
	}
	if strategies == nil {
		strategies = []types.Strategy{}
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"strategies": strategies,
		"count":      len(strategies),
	})
}

// registerStrategyRequest carries the initial balance either in lamports or as a unit string
// such as "1.5", never both.
type registerStrategyRequest struct {
	ID                  types.StrategyID `json:"id"`
	Protocol            json.RawMessage  `json:"protocol"`
	InitialBalance      *uint64          `json:"initial_balance"`
	InitialBalanceUnits string           `json:"initial_balance_units"`
}

func (ws *WebServer) handleRegisterStrategy(w http.ResponseWriter, r *http.Request) {
	var req registerStrategyRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid strategy registration body")
		return
	}

	protocol, err := types.UnmarshalProtocol(req.Protocol)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	var balance uint64
	switch {
	case req.InitialBalance != nil && req.InitialBalanceUnits != "":
		ws.writeErrorResponse(w, http.StatusBadRequest, "Set initial_balance or initial_balance_units, not both")
		return
	case req.InitialBalance != nil:
		balance = *req.InitialBalance
	case req.InitialBalanceUnits != "":
		if balance, err = utils.UnitsToLamports(req.InitialBalanceUnits, utils.LamportDecimals); err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	strategy, err := ws.backend.RegisterStrategy(r.Context(), req.ID, protocol, balance, ws.now())
	if err != nil {
		ws.writeDomainError(w, err, "Failed to register strategy")
		return
	}

	ws.writeJSONResponse(w, http.StatusCreated, strategy)
}

func (ws *WebServer) handleUpdatePerformance(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseStrategyID(mux.Vars(r)["id"])
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid strategy ID")
		return
	}

	var update types.PerformanceUpdate
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&update); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid performance update body")
		return
	}

	strategy, err := ws.backend.UpdatePerformance(r.Context(), id, update, ws.now())
	if err != nil {
		ws.writeDomainError(w, err, "Failed to update performance")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, strategy)
}

func (ws *WebServer) handleGetRanking(w http.ResponseWriter, r *http.Request) {
	ranking, err := ws.backend.PreviewRanking(r.Context(), ws.now())
	if err != nil {
		ws.writeDomainError(w, err, "Failed to rank strategies")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, ranking)
}

func (ws *WebServer) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := ws.backend.PreviewPlan(r.Context(), ws.now())
	if err != nil {
		ws.writeDomainError(w, err, "Failed to generate rebalancing plan")
		return
	}

	summary, err := analyzer.SummarizeAllocations(plan.Redistribution)
	if err != nil {
		ws.writeDomainError(w, err, "Failed to summarize rebalancing plan")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"plan":    plan,
		"summary": summary,
	})
}

func (ws *WebServer) handleGetRiskLimits(w http.ResponseWriter, r *http.Request) {
	limits, err := ws.backend.RiskLimits(r.Context())
	if err != nil {
		ws.writeDomainError(w, err, "Failed to retrieve risk limits")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"risk_limits": limits,
		"percent": map[string]string{
			"max_single_strategy": utils.BpsToPercent(limits.MaxSingleStrategyBps),
			"min_single_strategy": utils.BpsToPercent(limits.MinSingleStrategyBps),
			"platform_fee":        utils.BpsToPercent(limits.PlatformFeeBps),
			"manager_fee":         utils.BpsToPercent(limits.ManagerFeeBps),
			"risk_tolerance":      utils.BpsToPercent(limits.RiskToleranceBps),
		},
		"timestamp": ws.now().UTC(),
	})
}

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, state.ErrPortfolioNotFound), errors.Is(err, state.ErrStrategyNotFound):
		return http.StatusNotFound
	case errors.Is(err, planner.ErrEmergencyPauseActive), errors.Is(err, types.ErrStrategyNotActive),
		errors.Is(err, state.ErrStrategyExists), errors.Is(err, state.ErrStrategyManagerMismatch):
		return http.StatusConflict
	case errors.Is(err, analyzer.ErrInsufficientStrategies), errors.Is(err, planner.ErrInsufficientCapital),
		errors.Is(err, analyzer.ErrNoViableAllocation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, analyzer.ErrInvalidPerformanceUpdate),
		errors.Is(err, types.ErrInvalidYieldRate),
		errors.Is(err, types.ErrInvalidVolatilityScore),
		errors.Is(err, types.ErrBalanceTooLarge),
		errors.Is(err, types.ErrInvalidStrategyID),
		errors.Is(err, types.ErrInvalidProtocolType),
		errors.Is(err, types.ErrInvalidTokenMint),
		errors.Is(err, types.ErrInvalidAllocationPercentage):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (ws *WebServer) writeDomainError(w http.ResponseWriter, err error, message string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		webLogger.Error().Err(err).Msg(message)
		ws.writeErrorResponse(w, status, message)
		return
	}
	webLogger.Debug().Err(err).Int("status", status).Msg(message)
	ws.writeErrorResponse(w, status, err.Error())
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": ws.now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		webLogger.Info().
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
