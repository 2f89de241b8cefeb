package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mealy/mealy-go/internal/corpus"
	"github.com/mealy/mealy-go/internal/embedder"
	"github.com/mealy/mealy-go/internal/logging"
	"github.com/mealy/mealy-go/internal/rag/index"
)

// NewIndexCmd constructs the `mealy index` command, which builds the
// embedding index over the recipe corpus and persists it to the binary cache.
func NewIndexCmd() *cobra.Command {
	var maxRows int
	var force bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the recipe embedding index and persist it to disk",
		Long: `Embed every recipe in the corpus and persist the resulting index to the
binary cache, so the first retrieval request does not pay the build cost.

An embedding credential is required. If QDRANT_HOST is set, the built index
is additionally upserted into the remote Qdrant collection.

Required environment variables:
  EMBEDDING_PROVIDER   Embedding backend: gemini, openai, azure, ollama
                       (defaults to MODEL_PROVIDER, then gemini)
  EMBEDDING_API_KEY    Credential for the selected backend (or the
                       provider-specific key, e.g. GEMINI_API_KEY)

Examples:
  mealy index
  mealy index --max-rows 1000
  mealy index --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			store := corpus.NewStore(getEnvOrDefault("RECIPES_CSV", defaultCorpusPath), log)
			if store.Empty() {
				return fmt.Errorf("index: corpus %s is missing or empty", store.Path())
			}

			emb, err := embedder.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("index: failed to initialise embedder: %w", err)
			}
			embedder.Warn(log)

			cachePath := getEnvOrDefault("RAG_CACHE_PATH", defaultCachePath)

			if force {
				if err := index.Invalidate(cachePath); err != nil {
					return fmt.Errorf("index: failed to invalidate cache: %w", err)
				}
				log.Info("cache invalidated", slog.String("path", cachePath))
			}

			ix := index.Load(cachePath, log)
			if ix != nil && ix.MaxRowID() < store.Len() && !force {
				log.Info("cache is current, nothing to do",
					slog.String("path", cachePath),
					slog.Int("rows", ix.Rows()),
				)
			} else {
				if maxRows == 0 {
					maxRows = getEnvInt("RAG_MAX_EMBEDDED_RECIPES", 0)
				}

				ix, _, err = index.Build(ctx, store, emb, index.BuildConfig{
					MaxRows:       maxRows,
					RatePerMinute: getEnvInt("EMBEDDING_RATE_LIMIT", 0),
				}, log)
				if err != nil {
					return fmt.Errorf("index: build failed: %w", err)
				}

				if err := index.Save(ix, cachePath); err != nil {
					return fmt.Errorf("index: failed to persist cache: %w", err)
				}
				log.Info("index persisted",
					slog.String("path", cachePath),
					slog.Int("rows", ix.Rows()),
				)
			}

			// Mirror the index into Qdrant when a remote store is configured.
			qs, err := buildQdrantStore(ctx, log)
			if err != nil {
				return fmt.Errorf("index: qdrant connection failed: %w", err)
			}
			if qs != nil {
				defer func() { _ = qs.Close() }()
				if err := qs.UpsertIndex(ctx, ix, store); err != nil {
					return fmt.Errorf("index: qdrant upsert failed: %w", err)
				}
				log.Info("index upserted to qdrant", slog.Int("rows", ix.Rows()))
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "Cap the number of corpus rows to embed (0 = all)")
	cmd.Flags().BoolVar(&force, "force", false, "Discard the existing cache and rebuild from scratch")

	return cmd
}
