package scorer

import (
	"fmt"
	"math"
)

// DefaultEpsilon keeps MinMax finite when all scores are equal.
const DefaultEpsilon = 1e-9

// MinMax rescales scores to [0, 1) as (s - min) / (max - min + eps).
func MinMax(scores []float64, eps float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	span := hi - lo + eps
	for i, s := range scores {
		out[i] = finite((s - lo) / span)
	}
	return out
}

// Fusion policies.
const (
	Multiplicative = "multiplicative"
	Linear         = "linear"
)

// Fusion combines normalized dense and lexical scores. Multiplicative is
// dense^DenseWeight * lexical^LexicalWeight; linear is the weighted mean.
type Fusion struct {
	Policy        string
	DenseWeight   float64
	LexicalWeight float64
}

// DefaultFusion rewards lexical agreement sharply and dense similarity
// gently.
var DefaultFusion = Fusion{Policy: Multiplicative, DenseWeight: 0.5, LexicalWeight: 2.0}

// Validate rejects unknown policies and negative weights.
func (f Fusion) Validate() error {
	switch f.Policy {
	case Multiplicative:
	case Linear:
		if f.DenseWeight+f.LexicalWeight <= 0 {
			return fmt.Errorf("linear fusion weights must sum to a positive value")
		}
	default:
		return fmt.Errorf("unknown fusion policy %q", f.Policy)
	}
	if f.DenseWeight < 0 || f.LexicalWeight < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	return nil
}

// Fuse combines pairwise; both slices must have the same length. NaN and
// infinities become 0.
func (f Fusion) Fuse(dense, lexical []float64) []float64 {
	out := make([]float64, len(dense))
	for i := range dense {
		out[i] = f.combine(dense[i], lexical[i])
	}
	return out
}

func (f Fusion) combine(d, l float64) float64 {
	switch f.Policy {
	case Linear:
		total := f.DenseWeight + f.LexicalWeight
		if total == 0 {
			return 0
		}
		return finite((f.DenseWeight*d + f.LexicalWeight*l) / total)
	default:
		return finite(math.Pow(d, f.DenseWeight) * math.Pow(l, f.LexicalWeight))
	}
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

// Round rounds x to the given number of decimals.
func Round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}
