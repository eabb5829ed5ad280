package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a provider's steady-state request rate by spacing
// successive calls in a batch loop. This is unconditional pacing between
// calls, distinct from backoff-on-error: a loop calls Wait before every
// request regardless of prior outcomes.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a pacer that allows one call per interval. A
// non-positive interval yields an unlimited pacer.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// NewPacerBurst returns a pacer allowing burst calls per interval window.
func NewPacerBurst(interval time.Duration, burst int) *Pacer {
	if burst < 1 {
		burst = 1
	}
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, burst)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Wait blocks until the next call is allowed or the context is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
