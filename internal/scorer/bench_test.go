package scorer

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
)

func randomSnapshot(rows, dim int) *indexstore.Snapshot {
	rng := rand.New(rand.NewSource(42))
	vectors := make([]float32, rows*dim)
	for i := range vectors {
		vectors[i] = rng.Float32()*2 - 1
	}
	metas := make([]indexstore.Meta, rows)
	for i := range metas {
		metas[i] = indexstore.Meta{WorkID: int64(i % 50)}
	}
	return indexstore.NewSnapshot(indexstore.Granular, dim, 1, vectors, metas)
}

func BenchmarkCosine(b *testing.B) {
	const dim = 384
	query := make([]float32, dim)
	for i := range query {
		query[i] = float32(i%7) - 3
	}
	for _, rows := range []int{10000, 100000} {
		snap := randomSnapshot(rows, dim)
		b.Run(fmt.Sprintf("rows_%d", rows), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = Cosine(query, snap)
			}
		})
	}
}

func BenchmarkTopK(b *testing.B) {
	rng := rand.New(rand.NewSource(7))
	scores := make([]float64, 100000)
	for i := range scores {
		scores[i] = rng.Float64()
	}
	for _, k := range []int{20, 100} {
		b.Run(fmt.Sprintf("k_%d", k), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = TopK(scores, k)
			}
		})
	}
}

func BenchmarkFuse(b *testing.B) {
	rng := rand.New(rand.NewSource(9))
	dense := make([]float64, 100000)
	lexical := make([]float64, len(dense))
	for i := range dense {
		dense[i] = rng.Float64()
		lexical[i] = rng.Float64() * 12
	}
	f := DefaultFusion
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = f.Fuse(MinMax(dense, 1e-9), MinMax(lexical, 1e-9))
	}
}
