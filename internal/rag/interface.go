// Package rag implements the recipe retrieval engine: semantic search over a
// pre-embedded recipe corpus with lexical fallbacks, plus the context prompt
// composer that turns retrieved recipes into grounding material for the
// generation model.
//
// The engine is constructed once at process startup and shared across
// requests. The only mutable state is the lazily built embedding index,
// which is guarded by a mutex so concurrent first use triggers at most one
// build.
package rag

import (
	"context"
	"errors"
)

// ErrEmbedderUnavailable is returned by embedder constructors when no
// credential is configured. Semantic retrieval is disabled for the process
// lifetime; lexical fallbacks remain fully functional.
var ErrEmbedderUnavailable = errors.New("rag: embedding credential not configured")

// Embedder converts a single text into a dense vector embedding.
// Implementations must be stateless aside from their credential and safe to
// call from multiple goroutines. Callers must not assume a fixed dimension —
// the realized dimension is whatever the first successful call returns.
type Embedder interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelID returns the embedding model identifier, recorded in the index
	// cache metadata for staleness diagnosis.
	ModelID() string
}

// Strategy identifies which retrieval strategy produced a result set.
type Strategy string

const (
	// StrategySemantic is cosine-similarity retrieval over the embedding index.
	StrategySemantic Strategy = "semantic"
	// StrategyIngredient is lexical substring matching over ingredient text.
	StrategyIngredient Strategy = "ingredient"
	// StrategyKeyword is broad term matching over title + ingredients + instructions.
	StrategyKeyword Strategy = "keyword"
	// StrategyNone means the whole fallback chain produced nothing.
	StrategyNone Strategy = "none"
	// StrategyRandom is uniform sampling for inspiration, outside the
	// fallback chain.
	StrategyRandom Strategy = "random"
)

// Requirements is the caller-supplied structured filter. It is a pure input
// value: fields shape the search text and the composed prompt, they are never
// applied as a post-hoc hard filter on retrieved results.
type Requirements struct {
	// Ingredients the generated recipe must include.
	Ingredients []string `json:"ingredients,omitempty"`
	// DietaryPreferences are dietary tags (e.g. "vegan", "low-carb").
	DietaryPreferences []string `json:"dietary_preferences,omitempty"`
	// MaxCookingTime is the time budget in minutes (0 = unconstrained).
	MaxCookingTime int `json:"max_cooking_time,omitempty"`
	// Difficulty is the target difficulty (e.g. "easy", "medium").
	Difficulty string `json:"difficulty,omitempty"`
	// Servings is the desired serving count (0 = unconstrained).
	Servings int `json:"servings,omitempty"`
}

// Empty reports whether no requirement field is set.
func (r Requirements) Empty() bool {
	return len(r.Ingredients) == 0 &&
		len(r.DietaryPreferences) == 0 &&
		r.MaxCookingTime == 0 &&
		r.Difficulty == "" &&
		r.Servings == 0
}

// Result is one retrieved recipe. Results are transient — constructed fresh
// per query and never stored.
type Result struct {
	// Title is the recipe title.
	Title string `json:"title"`
	// Ingredients is the recipe's free-text ingredient list.
	Ingredients string `json:"ingredients"`
	// Instructions is the recipe's free-text instructions.
	Instructions string `json:"instructions"`
	// Score is the strategy-specific relevance score: cosine similarity
	// (rounded to 6 decimal places) for semantic, term-overlap count for
	// the lexical strategies.
	Score float64 `json:"score"`
	// Rank is the 1-based position in descending-score order.
	Rank int `json:"rank"`
	// Strategy identifies which retrieval strategy produced this result.
	Strategy Strategy `json:"strategy"`
}

// Hit is a raw vector-search match: a stable corpus row id and its cosine
// similarity. Hits are resolved to Results through the corpus store.
type Hit struct {
	// RowID is the stable corpus row id of the matched recipe.
	RowID int
	// Score is the cosine similarity against the query vector.
	Score float64
}

// VectorSearcher is the seam between the semantic retriever and the vector
// index backend. The in-process matrix index is the default; a Qdrant-backed
// implementation can be substituted for deployments that outgrow it.
// Implementations must be safe to call from multiple goroutines.
type VectorSearcher interface {
	// Search returns the topK nearest hits for the given unit-length query
	// vector, ordered by descending similarity.
	Search(ctx context.Context, query []float32, topK int) ([]Hit, error)
}
