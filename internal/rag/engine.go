package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mealy/mealy-go/internal/corpus"
	"github.com/mealy/mealy-go/internal/rag/index"
)

// DefaultTopK is the number of recipes retrieved when the caller does not ask
// for a specific count.
const DefaultTopK = 5

// Config holds the engine's tunables. Zero values select sensible defaults.
type Config struct {
	// CachePath is where the embedding index cache lives on disk.
	CachePath string

	// TopK is the default result count for retrievals (0 = DefaultTopK).
	TopK int

	// MaxRows caps how many corpus rows the index build embeds (0 = all).
	MaxRows int

	// EmbedRatePerMinute throttles embedding calls during index build
	// (0 = no throttle).
	EmbedRatePerMinute int
}

// Engine is the recipe retrieval engine: semantic search over the embedding
// index with lexical fallbacks. One instance is constructed at startup and
// shared across requests; the only mutable state is the lazily built index,
// guarded so concurrent first use triggers at most one build.
type Engine struct {
	store    *corpus.Store
	emb      Embedder
	searcher VectorSearcher
	cfg      Config
	log      *slog.Logger
	metrics  *engineMetrics

	mu sync.Mutex
	// ix is the in-process embedding index, nil until first use.
	ix *index.Index
	// buildFailed records a failed build; semantic retrieval stays disabled
	// for the rest of the process lifetime rather than retrying per query.
	buildFailed bool
}

// NewEngine constructs the engine. emb may be nil, in which case semantic
// retrieval is disabled and every query resolves through the lexical
// fallbacks. Metrics are registered against reg.
func NewEngine(store *corpus.Store, emb Embedder, cfg Config, log *slog.Logger, reg prometheus.Registerer) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Engine{
		store:   store,
		emb:     emb,
		cfg:     cfg,
		log:     log,
		metrics: newEngineMetrics(reg),
	}
}

// SetVectorSearcher substitutes a remote vector store for the in-process
// index. Must be called before the first retrieval.
func (e *Engine) SetVectorSearcher(s VectorSearcher) {
	e.searcher = s
}

// Retrieve runs the full fallback chain: semantic first, then ingredient
// matching (only when the caller named ingredients), then keyword matching.
// The returned strategy identifies which rung produced the results;
// StrategyNone with an empty slice means the whole chain came up dry, which
// is a normal outcome, not an error.
func (e *Engine) Retrieve(ctx context.Context, query string, req Requirements, topK int) ([]Result, Strategy) {
	start := time.Now()
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	results := e.Semantic(ctx, query, req, topK)
	strategy := StrategySemantic

	if len(results) == 0 && len(req.Ingredients) > 0 {
		results = MatchByIngredients(e.store.All(), req.Ingredients, topK)
		strategy = StrategyIngredient
	}
	if len(results) == 0 {
		results = MatchByKeywords(e.store.All(), ExtractKeywords(query, req), topK)
		strategy = StrategyKeyword
	}
	if len(results) == 0 {
		strategy = StrategyNone
	}

	e.metrics.observeRetrieval(strategy, time.Since(start))
	e.log.Info("rag: retrieval complete",
		slog.String("strategy", string(strategy)),
		slog.Int("results", len(results)),
	)
	return results, strategy
}

// ensureReady is the single gate for semantic availability: index already in
// memory, else load from cache, else build (credential and corpus permitting).
// The expensive build path runs at most once regardless of concurrent callers.
func (e *Engine) ensureReady(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ix != nil {
		return true
	}
	if e.buildFailed {
		return false
	}

	if ix := index.Load(e.cfg.CachePath, e.log); ix != nil {
		// A cache whose row ids exceed the live corpus was built against a
		// different corpus file. Rebuild rather than serve stale mappings.
		if ix.MaxRowID() >= e.store.Len() {
			e.log.Warn("rag: cached index outlived the corpus, invalidating",
				slog.Int("cached_max_row", ix.MaxRowID()),
				slog.Int("corpus_rows", e.store.Len()),
			)
			if err := index.Invalidate(e.cfg.CachePath); err != nil {
				e.log.Error("rag: failed to invalidate stale cache", slog.Any("error", err))
			}
		} else {
			e.adoptIndex(ix, 0)
			return true
		}
	}

	if e.emb == nil {
		e.log.Warn("rag: semantic retrieval disabled, no embedding credential configured")
		e.buildFailed = true
		return false
	}
	if e.store.Empty() {
		e.log.Warn("rag: recipe corpus is empty, cannot build embeddings")
		e.buildFailed = true
		return false
	}

	start := time.Now()
	ix, skipped, err := index.Build(ctx, e.store, e.emb, index.BuildConfig{
		MaxRows:       e.cfg.MaxRows,
		RatePerMinute: e.cfg.EmbedRatePerMinute,
	}, e.log)
	if err != nil {
		e.log.Error("rag: index build failed, semantic retrieval unavailable",
			slog.Any("error", err),
		)
		e.buildFailed = true
		return false
	}
	e.metrics.indexBuildSeconds.Observe(time.Since(start).Seconds())

	if err := index.Save(ix, e.cfg.CachePath); err != nil {
		// The in-memory index still works; only reuse across restarts is lost.
		e.log.Error("rag: failed to persist index cache", slog.Any("error", err))
	}

	e.adoptIndex(ix, skipped)
	return true
}

// adoptIndex installs the index and publishes its size metrics.
// Caller must hold e.mu.
func (e *Engine) adoptIndex(ix *index.Index, skipped int) {
	e.ix = ix
	e.metrics.indexSize.Set(float64(ix.Rows()))
	e.metrics.indexSkippedRows.Set(float64(skipped))
}

// Ping reports whether the engine can serve retrievals at all. An empty
// corpus is the one condition that makes every strategy return nothing.
func (e *Engine) Ping(ctx context.Context) error {
	if e.store.Empty() {
		return fmt.Errorf("rag: recipe corpus is empty")
	}
	return nil
}

// Random returns up to n recipes sampled uniformly from the corpus, for
// inspiration when the caller has no query or constraints. Results carry
// StrategyRandom and a zero score.
func (e *Engine) Random(n int) []Result {
	sampled := e.store.Sample(n)
	results := make([]Result, 0, len(sampled))
	for i, rec := range sampled {
		results = append(results, Result{
			Title:        rec.Title,
			Ingredients:  rec.Ingredients,
			Instructions: rec.Instructions,
			Rank:         i + 1,
			Strategy:     StrategyRandom,
		})
	}
	return results
}

// CorpusSize returns the number of recipes available for retrieval.
func (e *Engine) CorpusSize() int { return e.store.Len() }

// IndexReady reports whether the embedding index is currently in memory,
// without triggering a load or build.
func (e *Engine) IndexReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ix != nil
}
