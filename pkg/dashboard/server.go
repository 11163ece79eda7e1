// Package dashboard provides the eval results web server: a JSON API over
// the results index for listing runs, inspecting result documents, and
// comparing the latest baseline and with-plugin runs of a scenario.
package dashboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/jingkaihe/evalet/pkg/compare"
	"github.com/jingkaihe/evalet/pkg/logger"
	"github.com/jingkaihe/evalet/pkg/presenter"
	"github.com/jingkaihe/evalet/pkg/results"
	"github.com/jingkaihe/evalet/pkg/scenario"
)

// ServerConfig holds the configuration for the dashboard server.
type ServerConfig struct {
	Host         string
	Port         int
	ScenariosDir string
	ResultsDir   string
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.ResultsDir == "" {
		return errors.New("results directory cannot be empty")
	}
	return nil
}

// Server serves the dashboard API.
type Server struct {
	router *mux.Router
	config *ServerConfig
	index  *results.Index
	server *http.Server
}

// NewServer creates a dashboard server over the index inside the configured
// results directory.
func NewServer(ctx context.Context, config *ServerConfig) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server configuration")
	}

	index, err := results.OpenIndex(ctx, filepath.Join(config.ResultsDir, results.IndexFileName))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open results index")
	}

	s := &Server{
		router: mux.NewRouter(),
		config: config,
		index:  index,
	}
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods("GET")
	api.HandleFunc("/scenarios", s.handleListScenarios).Methods("GET")
	api.HandleFunc("/compare", s.handleCompare).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: 200}

		next.ServeHTTP(rw, r)

		logger.G(r.Context()).WithFields(map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration":    time.Since(start),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// corsMiddleware adds CORS headers so a local frontend can call the API.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RunListResponse is the payload of GET /api/runs.
type RunListResponse struct {
	Runs  []results.RunSummary `json:"runs"`
	Total int                  `json:"total"`
}

// handleListRuns handles GET /api/runs.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	opts := results.ListOptions{
		Scenario: query.Get("scenario"),
		Mode:     query.Get("mode"),
	}
	if opts.Mode != "" && !results.ValidMode(opts.Mode) {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid mode %q", opts.Mode), nil)
		return
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			opts.Limit = limit
		}
	}

	runs, err := s.index.List(r.Context(), opts)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}

	s.writeJSONResponse(w, &RunListResponse{Runs: runs, Total: len(runs)})
}

// RunDetailResponse is the payload of GET /api/runs/{id}.
type RunDetailResponse struct {
	Run      *results.RunSummary `json:"run"`
	Document *results.Document   `json:"document"`
}

// handleGetRun handles GET /api/runs/{id}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := s.index.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeErrorResponse(w, http.StatusNotFound, "run not found", nil)
			return
		}
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load run", err)
		return
	}

	doc, err := results.LoadDocument(run.Path)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to load result document", err)
		return
	}

	s.writeJSONResponse(w, &RunDetailResponse{Run: run, Document: doc})
}

// ScenarioSummary is one scenario in GET /api/scenarios.
type ScenarioSummary struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Checks         int    `json:"checks"`
	MaxPoints      int    `json:"max_points"`
}

// handleListScenarios handles GET /api/scenarios.
func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := scenario.Discover(r.Context(), s.config.ScenariosDir)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "failed to list scenarios", err)
		return
	}

	summaries := make([]ScenarioSummary, 0, len(scenarios))
	for _, scn := range scenarios {
		maxPoints := 0
		for _, p := range scn.Scoring {
			maxPoints += p.Points
		}
		summaries = append(summaries, ScenarioSummary{
			Name:           scn.Name,
			Description:    scn.Description,
			TimeoutSeconds: int(scn.Timeout() / time.Second),
			Checks:         len(scn.SuccessCriteria),
			MaxPoints:      maxPoints,
		})
	}

	s.writeJSONResponse(w, map[string]any{"scenarios": summaries, "total": len(summaries)})
}

// handleCompare handles GET /api/compare?scenario=name, comparing the latest
// baseline run against the latest with-plugin run.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("scenario")
	if name == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "scenario query parameter is required", nil)
		return
	}

	baseline, err := s.loadLatest(r.Context(), name, results.ModeBaseline)
	if err != nil {
		s.writeCompareError(w, name, results.ModeBaseline, err)
		return
	}
	withPlugin, err := s.loadLatest(r.Context(), name, results.ModeWithPlugin)
	if err != nil {
		s.writeCompareError(w, name, results.ModeWithPlugin, err)
		return
	}

	s.writeJSONResponse(w, compare.Compare(baseline, withPlugin))
}

func (s *Server) loadLatest(ctx context.Context, name, mode string) (*results.Document, error) {
	run, err := s.index.Latest(ctx, name, mode)
	if err != nil {
		return nil, err
	}
	return results.LoadDocument(run.Path)
}

func (s *Server) writeCompareError(w http.ResponseWriter, name, mode string, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("no %s run recorded for scenario %q", mode, name), nil)
		return
	}
	s.writeErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("failed to load %s run", mode), err)
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, map[string]string{"status": "ok"})
}

// writeJSONResponse writes a JSON response.
func (s *Server) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.G(context.TODO()).WithError(err).Error("failed to encode JSON response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// writeErrorResponse writes an error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	if err != nil {
		logger.G(context.TODO()).WithError(err).Error(message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]any{
		"error":   message,
		"status":  statusCode,
		"success": false,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.G(context.TODO()).WithError(err).Error("failed to encode error response")
	}
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:    address,
		Handler: s.router,
	}

	presenter.Info(fmt.Sprintf("Starting dashboard on http://%s", address))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.G(ctx).WithError(err).Error("dashboard server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Stop stops the server immediately.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// Close stops the server and releases the results index.
func (s *Server) Close() error {
	if err := s.index.Close(); err != nil {
		return errors.Wrap(err, "failed to close results index")
	}
	return s.Stop()
}
