package embedding

import (
	"context"
	"errors"

	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/resilience"
)

// Resilient retries transient embedder failures and stops calling a backend
// that keeps failing.
type Resilient struct {
	next    Embedder
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

func NewResilient(next Embedder, cb resilience.CircuitBreakerConfig, retry resilience.RetryConfig) *Resilient {
	retry.Retryable = func(err error) bool {
		return !errors.Is(err, resilience.ErrCircuitOpen) &&
			!errors.Is(err, context.Canceled) &&
			!errors.Is(err, context.DeadlineExceeded)
	}
	return &Resilient{
		next:    next,
		breaker: resilience.NewCircuitBreaker(next.Name(), cb),
		retry:   retry,
	}
}

func (r *Resilient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return resilience.RetryValue(ctx, "embed:"+r.next.Name(), r.retry, func() ([][]float32, error) {
		var out [][]float32
		err := r.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
			vecs, err := r.next.EmbedTexts(ctx, texts)
			out = vecs
			return err
		})
		return out, err
	})
}

// State reports the circuit breaker state.
func (r *Resilient) State() resilience.State { return r.breaker.GetState() }

func (r *Resilient) Dimension() int { return r.next.Dimension() }

func (r *Resilient) Name() string { return r.next.Name() }
