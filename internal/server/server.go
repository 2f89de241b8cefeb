// Package server implements the HTTP server that exposes recipe retrieval
// and generation via a REST API.
// The server is started by the `mealy serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mealy/mealy-go/internal/budget"
	"github.com/mealy/mealy-go/internal/logging"
	"github.com/mealy/mealy-go/internal/rag"
	"github.com/mealy/mealy-go/internal/recipegen"
	"github.com/mealy/mealy-go/internal/store"
)

// defaultHistoryLimit is the number of history entries returned when the
// caller does not specify a limit.
const defaultHistoryLimit = 10

// maxHistoryLimit caps the number of history entries returned per request.
const maxHistoryLimit = 50

// maxRandomCount caps the number of recipes returned by the random endpoint.
const maxRandomCount = 20

// New constructs a Server from the provided engine, generator, history
// store, and config. gen and hist may be nil; the corresponding endpoints
// degrade gracefully.
func New(engine *rag.Engine, gen *recipegen.Generator, hist store.HistoryStore, cfg *Config) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Generation can take a while on slow model backends.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.NewRegistry()
	}

	s := &Server{
		retriever: engine,
		history:   hist,
		cfg:       cfg,
		log:       cfg.Logger,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(cfg.MetricsRegistry),
	}
	// A typed nil must not leak into the interface field, or the nil check
	// in handleGenerate would pass and the handler would panic.
	if gen != nil {
		s.generator = gen
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: no API key configured, authentication disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	protect := func(name string, h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(s.metrics.instrument(name, h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/recipes/generate", protect("generate", s.handleGenerate))
	mux.Handle("POST /api/recipes/retrieve", protect("retrieve", s.handleRetrieve))
	mux.Handle("GET /api/recipes/history", protect("history", s.handleHistory))
	mux.Handle("GET /api/recipes/random", protect("random", s.handleRandom))
	mux.Handle("GET /api/health", s.metrics.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.metrics.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsRegistry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleGenerate handles POST /api/recipes/generate. It retrieves grounding
// recipes, composes the context prompt, invokes the generation model, and
// optionally persists the result to the user's history.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.generator == nil {
		http.Error(w, "recipe generation is not configured", http.StatusServiceUnavailable)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" && req.Requirements.Empty() {
		http.Error(w, "query or requirements are required", http.StatusBadRequest)
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = rag.DefaultTopK
	}

	start := time.Now()
	results, strategy := s.retriever.Retrieve(r.Context(), req.Query, req.Requirements, topK)
	prompt := rag.BuildContextPrompt(req.Query, results, req.Requirements, budget.DefaultMaxPromptTokens)

	basedOn := make([]string, 0, len(results))
	for _, res := range results {
		basedOn = append(basedOn, res.Title)
	}

	recipe, err := s.generator.Generate(r.Context(), prompt, basedOn)
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			outcome = "timeout"
		}
		s.metrics.generateRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.generateDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		log.Error("generation failed",
			slog.String("strategy", string(strategy)),
			slog.Any("error", err),
		)
		http.Error(w, "recipe generation failed", http.StatusBadGateway)
		return
	}

	s.metrics.generateRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.generateDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	if s.history != nil && req.UserID != "" {
		if err := s.history.Save(r.Context(), req.UserID, recipe, string(strategy)); err != nil {
			// History is best-effort; the generated recipe is still returned.
			log.Warn("history save failed", slog.Any("error", err))
		}
	}

	log.Info("recipe generated",
		slog.String("strategy", string(strategy)),
		slog.Int("references", len(results)),
		slog.String("title", recipe.Title),
	)

	writeJSON(w, log, http.StatusOK, generateResponse{
		Recipe:     recipe,
		Strategy:   strategy,
		References: nonNilResults(results),
	})
}

// handleRetrieve handles POST /api/recipes/retrieve. It runs the retrieval
// fallback chain and returns the raw results without invoking the model.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" && req.Requirements.Empty() {
		http.Error(w, "query or requirements are required", http.StatusBadRequest)
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = rag.DefaultTopK
	}

	results, strategy := s.retriever.Retrieve(r.Context(), req.Query, req.Requirements, topK)

	writeJSON(w, log, http.StatusOK, retrieveResponse{
		Results:  nonNilResults(results),
		Strategy: strategy,
	})
}

// handleHistory handles GET /api/recipes/history?user=<id>&limit=<n>.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.history == nil {
		http.Error(w, "history is not configured", http.StatusNotFound)
		return
	}

	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user query parameter is required", http.StatusBadRequest)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.history.Recent(r.Context(), userID, limit)
	if err != nil {
		log.Error("history lookup failed", slog.Any("error", err))
		http.Error(w, "history lookup failed", http.StatusInternalServerError)
		return
	}

	resp := historyResponse{Entries: make([]historyEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, historyEntry{
			ID:        e.ID,
			Title:     e.Title,
			Recipe:    e.Recipe,
			Strategy:  e.Strategy,
			CreatedAt: e.CreatedAt,
		})
	}

	writeJSON(w, log, http.StatusOK, resp)
}

// handleRandom handles GET /api/recipes/random?count=<n>. It returns recipes
// sampled uniformly from the corpus, for inspiration when the caller has no
// constraints.
func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	count := rag.DefaultTopK
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "count must be a positive integer", http.StatusBadRequest)
			return
		}
		count = min(n, maxRandomCount)
	}

	writeJSON(w, log, http.StatusOK, retrieveResponse{
		Results:  nonNilResults(s.retriever.Random(count)),
		Strategy: rag.StrategyRandom,
	})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}

// nonNilResults normalizes a nil result slice to an empty one so the JSON
// response renders [] instead of null.
func nonNilResults(results []rag.Result) []rag.Result {
	if results == nil {
		return []rag.Result{}
	}
	return results
}
