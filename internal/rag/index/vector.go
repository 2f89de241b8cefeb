package index

import (
	"math"
	"sort"
)

// NormalizeL2 returns v scaled to unit L2 norm, along with the original norm.
// A zero vector is returned unchanged with norm 0 — callers must treat that
// as "no usable query vector".
func NormalizeL2(v []float32) ([]float32, float64) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	n := math.Sqrt(sum)

	out := make([]float32, len(v))
	if n == 0 {
		copy(out, v)
		return out, 0
	}
	inv := float32(1.0 / n)
	for i := range v {
		out[i] = v[i] * inv
	}
	return out, n
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Search computes the dot product of a unit-length query vector against every
// pre-normalized index row — exact cosine similarity since both operands are
// unit-length — and returns the topK hits by descending similarity. Ties are
// broken by original index row order (stable sort), so repeated searches over
// an unchanged index return identical ordering.
func (ix *Index) Search(query []float32, topK int) []Hit {
	if ix.Rows() == 0 || len(query) != ix.Dim || topK <= 0 {
		return nil
	}

	sims := make([]float64, ix.Rows())
	for row := 0; row < ix.Rows(); row++ {
		base := row * ix.Dim
		var dot float64
		for j := 0; j < ix.Dim; j++ {
			dot += float64(ix.normalized[base+j]) * float64(query[j])
		}
		sims[row] = dot
	}

	order := make([]int, ix.Rows())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sims[order[a]] > sims[order[b]]
	})

	if topK > len(order) {
		topK = len(order)
	}

	hits := make([]Hit, 0, topK)
	for _, row := range order[:topK] {
		hits = append(hits, Hit{RowID: ix.RowIDs[row], Score: sims[row]})
	}
	return hits
}
