// Package scorer holds the query-time math of hybrid retrieval: dense
// similarity, score normalization, fusion, top-K selection and the
// work-level deduplication and aggregation of chunk hits.
package scorer

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
)

// Cosine scores query against every row of snap using the precomputed row
// norms. Zero vectors on either side score 0.
func Cosine(query []float32, snap *indexstore.Snapshot) []float64 {
	scores := make([]float64, snap.Len())
	if len(query) != snap.Dim {
		return scores
	}
	qn := norm(query)
	if qn == 0 {
		return scores
	}
	for i := range scores {
		rn := snap.Norms[i]
		if rn == 0 {
			continue
		}
		row := snap.Vector(i)
		var dot float64
		for j, x := range row {
			dot += float64(x) * float64(query[j])
		}
		scores[i] = dot / (qn * rn)
	}
	return scores
}

// MeanVector averages vectors component-wise. All vectors must share a
// length; the result is nil for no input.
func MeanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	sum := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	mean := make([]float32, len(sum))
	n := float64(len(vectors))
	for i, s := range sum {
		mean[i] = float32(s / n)
	}
	return mean
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
