package commands

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mealy/mealy-go/internal/corpus"
	"github.com/mealy/mealy-go/internal/embedder"
	"github.com/mealy/mealy-go/internal/rag"
)

// defaultCorpusPath is the recipe corpus CSV loaded when RECIPES_CSV is unset.
const defaultCorpusPath = "13k-recipes.csv"

// defaultCachePath is where the embedding index cache lives when
// RAG_CACHE_PATH is unset.
const defaultCachePath = "data/recipe_embeddings.bin"

// buildEngine constructs the corpus store and retrieval engine from the
// environment. The embedder is optional: if no embedding credential is
// configured the engine falls back to lexical retrieval and a warning is
// logged, never an error.
func buildEngine(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*rag.Engine, *corpus.Store) {
	store := corpus.NewStore(getEnvOrDefault("RECIPES_CSV", defaultCorpusPath), log)

	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		log.Warn("semantic retrieval disabled", slog.Any("error", err))
		emb = nil
	} else {
		embedder.Warn(log)
	}

	engine := rag.NewEngine(store, emb, rag.Config{
		CachePath:          getEnvOrDefault("RAG_CACHE_PATH", defaultCachePath),
		TopK:               getEnvInt("RAG_TOP_K", rag.DefaultTopK),
		MaxRows:            getEnvInt("RAG_MAX_EMBEDDED_RECIPES", 0),
		EmbedRatePerMinute: getEnvInt("EMBEDDING_RATE_LIMIT", 0),
	}, log, reg)

	return engine, store
}

// buildQdrantStore connects to the optional remote vector store when
// QDRANT_HOST is set. Returns (nil, nil) when Qdrant is not configured.
func buildQdrantStore(ctx context.Context, log *slog.Logger) (*rag.QdrantStore, error) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		return nil, nil
	}

	qs, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "recipes"),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, err
	}

	log.Info("qdrant store ready",
		slog.String("host", host),
		slog.Int("port", getEnvInt("QDRANT_PORT", 6334)),
		slog.String("collection", getEnvOrDefault("QDRANT_COLLECTION", "recipes")),
	)
	return qs, nil
}

// getEnvOrDefault returns the env var value, or fallback if unset/empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as an int, or fallback if unset or
// unparseable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
