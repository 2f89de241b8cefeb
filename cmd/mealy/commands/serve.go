package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mealy/mealy-go/internal/logging"
	"github.com/mealy/mealy-go/internal/provider"
	"github.com/mealy/mealy-go/internal/recipegen"
	"github.com/mealy/mealy-go/internal/server"
	"github.com/mealy/mealy-go/internal/store"
	"github.com/mealy/mealy-go/internal/tracing"
)

// NewServeCmd constructs the `mealy serve` command, which starts the HTTP
// server exposing recipe retrieval and generation.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Mealy HTTP server",
		Long: `Start the Mealy HTTP server on localhost.

The server exposes recipe retrieval (POST /api/recipes/retrieve), grounded
recipe generation (POST /api/recipes/generate), per-user generation history
(GET /api/recipes/history), random corpus picks (GET /api/recipes/random),
plus health, readiness, and Prometheus metrics endpoints.

Examples:
  mealy serve
  mealy serve --port 9090
  MODEL_PROVIDER=ollama mealy serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			host, port = resolveListenAddr(cmd, host, port)

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			reg := prometheus.NewRegistry()

			engine, corpusStore := buildEngine(ctx, log, reg)
			log.Info("corpus loaded",
				slog.String("path", corpusStore.Path()),
				slog.Int("recipes", corpusStore.Len()),
			)

			// Generation is optional: without a model credential the server
			// still answers retrieval and history requests.
			var generator *recipegen.Generator
			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				log.Warn("recipe generation disabled", slog.Any("error", err))
			} else {
				generator = recipegen.New(chatModel, log)
				log.Info("provider initialised", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "gemini")))
			}

			// Open generated-recipe history store. MEALY_HISTORY_DB overrides
			// the default path (~/.mealy/history.db). Set to "disabled" to disable.
			var historyStore store.HistoryStore
			dbPath := os.Getenv("MEALY_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via MEALY_HISTORY_DB=disabled")
			}

			pingers := []server.Pinger{server.NewEnginePinger(engine)}
			if chatModel != nil {
				pingers = append(pingers, server.NewModelPinger(chatModel, getEnvOrDefault("MODEL_PROVIDER", "gemini")))
			}

			// Optional remote vector store. When configured it replaces the
			// in-process index for semantic search.
			qs, err := buildQdrantStore(ctx, log)
			if err != nil {
				log.Warn("qdrant unavailable, using in-process index", slog.Any("error", err))
			} else if qs != nil {
				engine.SetVectorSearcher(qs)
				pingers = append(pingers, server.NewQdrantPinger(qs))
				defer func() { _ = qs.Close() }()
			}

			srv, err := server.New(engine, generator, historyStore, &server.Config{
				Host:            host,
				Port:            port,
				Logger:          log,
				Pingers:         pingers,
				APIKey:          os.Getenv("MEALY_API_KEY"),
				MetricsRegistry: reg,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}

// resolveListenAddr applies the listen-address precedence: an explicit flag
// wins, then MEALY_HOST / MEALY_PORT (populated from the YAML server.host /
// server.port keys by config.Load), then the flag defaults. It must run after
// config.Load, which is why the env lookup cannot live in the flag defaults.
func resolveListenAddr(cmd *cobra.Command, host string, port int) (string, int) {
	if !cmd.Flags().Changed("host") {
		host = getEnvOrDefault("MEALY_HOST", host)
	}
	if !cmd.Flags().Changed("port") {
		port = getEnvInt("MEALY_PORT", port)
	}
	return host, port
}
