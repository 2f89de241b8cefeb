package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/mealy/mealy-go/internal/corpus"
)

// ErrNoVectors is returned when a build produces zero embeddings. Callers
// must mark semantic retrieval unavailable for the process lifetime rather
// than retrying per query.
var ErrNoVectors = errors.New("index: embedding generation produced no vectors")

// progressInterval is how many embedded rows pass between progress log lines.
const progressInterval = 250

// Embedder is the minimal embedding contract the builder needs.
// rag.Embedder satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelID() string
}

// BuildConfig controls an index build.
type BuildConfig struct {
	// MaxRows caps how many corpus rows are embedded (0 = all rows). Used to
	// bound build cost on very large corpora.
	MaxRows int

	// RatePerMinute throttles embedding calls to stay inside the provider's
	// rate limit (0 = no throttle).
	RatePerMinute int
}

// Build iterates the corpus (or its first MaxRows rows), embeds each recipe,
// and assembles the index. Rows whose embedding call fails are skipped and
// counted, not fatal — the resulting index is simply smaller than the corpus.
// The skipped count is returned so operators can detect systematic embedding
// failures instead of discovering gaps through poor retrieval quality.
//
// Returns ErrNoVectors when not a single row embedded successfully.
func Build(ctx context.Context, store *corpus.Store, emb Embedder, cfg BuildConfig, log *slog.Logger) (*Index, int, error) {
	if store.Empty() {
		return nil, 0, fmt.Errorf("index: cannot build from an empty corpus")
	}

	records := store.All()
	if cfg.MaxRows > 0 && cfg.MaxRows < len(records) {
		records = records[:cfg.MaxRows]
	}

	var limiter *rate.Limiter
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), 1)
	}

	log.Info("index: building recipe embedding index",
		slog.Int("rows", len(records)),
		slog.String("model", emb.ModelID()),
	)

	var (
		vectors []float32
		rowIDs  []int32
		dim     int
		skipped int
	)

	for i, rec := range records {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, skipped, fmt.Errorf("index: build cancelled: %w", err)
			}
		}

		vec, err := emb.Embed(ctx, rec.EmbeddingText())
		if err != nil {
			log.Error("index: failed to embed recipe, skipping row",
				slog.Int("row_id", rec.RowID),
				slog.Any("error", err),
			)
			skipped++
			continue
		}
		if len(vec) == 0 {
			skipped++
			continue
		}

		// The realized dimension is fixed by the first successful vector;
		// anything else from the same model is treated as a row failure.
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			log.Error("index: embedding dimension mismatch, skipping row",
				slog.Int("row_id", rec.RowID),
				slog.Int("got", len(vec)),
				slog.Int("want", dim),
			)
			skipped++
			continue
		}

		vectors = append(vectors, vec...)
		rowIDs = append(rowIDs, int32(rec.RowID))

		if (i+1)%progressInterval == 0 {
			log.Info("index: build progress",
				slog.Int("embedded", i+1),
				slog.Int("total", len(records)),
			)
		}
	}

	if len(rowIDs) == 0 {
		return nil, skipped, ErrNoVectors
	}

	norms := make([]float32, len(rowIDs))
	for row := range rowIDs {
		norms[row] = float32(Norm(vectors[row*dim : (row+1)*dim]))
	}

	meta := Metadata{
		RecipeCount:  len(rowIDs),
		EmbeddingDim: dim,
		Model:        emb.ModelID(),
		SourcePath:   store.Path(),
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	log.Info("index: build complete",
		slog.Int("indexed", len(rowIDs)),
		slog.Int("skipped", skipped),
		slog.Int("dim", dim),
	)

	return New(vectors, norms, rowIDs, dim, meta), skipped, nil
}
