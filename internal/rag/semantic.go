package rag

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/mealy/mealy-go/internal/rag/index"
)

// ComposeSearchText combines the free-text query and the structured
// requirements into the single string fed to the embedding model. Each present
// field contributes one line; absent fields contribute nothing. An empty
// return value means there is nothing to search for and no embedding call
// should be made.
func ComposeSearchText(query string, req Requirements) string {
	var segments []string

	if q := strings.TrimSpace(query); q != "" {
		segments = append(segments, q)
	}
	if len(req.Ingredients) > 0 {
		segments = append(segments, "Ingredients: "+strings.Join(req.Ingredients, ", "))
	}
	if len(req.DietaryPreferences) > 0 {
		segments = append(segments, "Dietary preferences: "+strings.Join(req.DietaryPreferences, ", "))
	}
	if req.MaxCookingTime > 0 {
		segments = append(segments, fmt.Sprintf("Max cooking time: %d minutes", req.MaxCookingTime))
	}
	if req.Difficulty != "" {
		segments = append(segments, "Difficulty: "+req.Difficulty)
	}
	if req.Servings > 0 {
		segments = append(segments, fmt.Sprintf("Servings: %d", req.Servings))
	}

	return strings.TrimSpace(strings.Join(segments, "\n"))
}

// Semantic performs cosine-similarity retrieval over the embedding index.
// It returns an empty result on every degraded condition (empty composition,
// unavailable index, failed query embedding, zero query vector) and never
// falls back internally; the fallback chain lives in Retrieve.
func (e *Engine) Semantic(ctx context.Context, query string, req Requirements, topK int) []Result {
	if e.store.Empty() || topK <= 0 {
		return nil
	}

	searchText := ComposeSearchText(query, req)
	if searchText == "" {
		return nil
	}

	hits := e.searchVectors(ctx, searchText, topK)
	if len(hits) == 0 {
		return nil
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		rec, ok := e.store.ByRowID(h.RowID)
		if !ok {
			// A stale cache can reference rows the corpus no longer has.
			continue
		}
		results = append(results, Result{
			Title:        rec.Title,
			Ingredients:  rec.Ingredients,
			Instructions: rec.Instructions,
			Score:        roundScore(h.Score),
			Rank:         len(results) + 1,
			Strategy:     StrategySemantic,
		})
	}

	e.log.Info("rag: retrieved semantic matches", slog.Int("count", len(results)))
	return results
}

// searchVectors embeds the search text and queries either the remote vector
// store or the in-process index.
func (e *Engine) searchVectors(ctx context.Context, searchText string, topK int) []Hit {
	if e.searcher != nil {
		return e.searchRemote(ctx, searchText, topK)
	}

	if !e.ensureReady(ctx) {
		return nil
	}

	queryVec := e.embedQuery(ctx, searchText)
	if queryVec == nil {
		return nil
	}

	e.mu.Lock()
	ix := e.ix
	e.mu.Unlock()

	ihits := ix.Search(queryVec, topK)
	hits := make([]Hit, 0, len(ihits))
	for _, h := range ihits {
		hits = append(hits, Hit{RowID: int(h.RowID), Score: h.Score})
	}
	return hits
}

// searchRemote queries the configured remote vector store.
func (e *Engine) searchRemote(ctx context.Context, searchText string, topK int) []Hit {
	queryVec := e.embedQuery(ctx, searchText)
	if queryVec == nil {
		return nil
	}

	hits, err := e.searcher.Search(ctx, queryVec, topK)
	if err != nil {
		e.log.Error("rag: remote vector search failed", slog.Any("error", err))
		return nil
	}
	return hits
}

// embedQuery embeds the search text and normalizes the result to unit length.
// Returns nil when no embedder is configured, the call fails, or the embedding
// is a zero vector.
func (e *Engine) embedQuery(ctx context.Context, text string) []float32 {
	if e.emb == nil {
		return nil
	}

	vec, err := e.emb.Embed(ctx, text)
	if err != nil {
		e.log.Error("rag: failed to embed query text", slog.Any("error", err))
		return nil
	}
	if len(vec) == 0 {
		return nil
	}

	normalized, norm := index.NormalizeL2(vec)
	if norm == 0 {
		return nil
	}
	return normalized
}

// roundScore rounds a similarity to 6 decimal places so scores are
// reproducible in tests and API responses.
func roundScore(s float64) float64 {
	return math.Round(s*1e6) / 1e6
}
