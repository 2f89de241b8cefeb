// Package index builds, persists, and searches the recipe embedding index:
// one vector per corpus row, stored as three co-indexed arrays (vectors,
// norms, row ids) in a binary cache file with a JSON metadata sidecar.
//
// The index is built wholesale and never patched incrementally. A cache that
// is absent, unreadable, or self-inconsistent is treated as "no cache" and
// triggers a rebuild — never a fatal error.
package index

// Metadata is the human-readable sidecar record persisted next to the binary
// cache. It is advisory — used to diagnose cache staleness — but Load rejects
// a cache whose counts disagree with the arrays actually on disk.
type Metadata struct {
	// RecipeCount is the number of indexed rows.
	RecipeCount int `json:"recipe_count"`
	// EmbeddingDim is the vector dimension.
	EmbeddingDim int `json:"embedding_dim"`
	// Model is the embedding model identifier used to build the index.
	Model string `json:"model"`
	// SourcePath is the corpus CSV the index was built from.
	SourcePath string `json:"csv_path"`
	// GeneratedAt is the UTC build timestamp in RFC3339 format.
	GeneratedAt string `json:"generated_at"`
}

// Index holds the embedding matrix and its companion arrays in memory.
//
// Vectors stores the raw, unnormalized embeddings row-major (Rows×Dim) — the
// norms are kept alongside rather than baked in, so normalization stays
// reproducible and the raw vectors survive a change of norm convention.
// The unit-length form is derived once at construction and reused across
// queries.
//
// Invariant: len(Norms) == len(RowIDs) == Rows(), and every RowIDs[i]
// resolves to a live corpus record.
type Index struct {
	// Vectors is the raw embedding matrix, row-major.
	Vectors []float32
	// Norms holds one L2 norm per row, clamped away from zero.
	Norms []float32
	// RowIDs maps index row → stable corpus row id.
	RowIDs []int32
	// Dim is the embedding dimension.
	Dim int
	// Meta is the sidecar metadata the index was built or loaded with.
	Meta Metadata

	// normalized is the unit-length matrix, derived once.
	normalized []float32
}

// Hit is one vector-search match.
type Hit struct {
	// RowID is the stable corpus row id.
	RowID int32
	// Score is the cosine similarity against the query vector.
	Score float64
}

// normEpsilon replaces zero norms so normalization never divides by zero.
const normEpsilon = 1e-12

// New assembles an Index from its three parallel arrays and pre-computes the
// unit-length matrix. Norms equal to zero are clamped to a small epsilon.
func New(vectors, norms []float32, rowIDs []int32, dim int, meta Metadata) *Index {
	for i, n := range norms {
		if n == 0 {
			norms[i] = normEpsilon
		}
	}

	normalized := make([]float32, len(vectors))
	for row := 0; row < len(norms); row++ {
		inv := float32(1.0 / float64(norms[row]))
		base := row * dim
		for j := 0; j < dim; j++ {
			normalized[base+j] = vectors[base+j] * inv
		}
	}

	return &Index{
		Vectors:    vectors,
		Norms:      norms,
		RowIDs:     rowIDs,
		Dim:        dim,
		Meta:       meta,
		normalized: normalized,
	}
}

// Rows returns the number of indexed recipes.
func (ix *Index) Rows() int { return len(ix.RowIDs) }

// MaxRowID returns the largest corpus row id referenced by the index, or -1
// for an empty index. Used to detect a cache that outlived its corpus.
func (ix *Index) MaxRowID() int {
	max := -1
	for _, id := range ix.RowIDs {
		if int(id) > max {
			max = int(id)
		}
	}
	return max
}
