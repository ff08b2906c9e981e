package collab

import (
	"time"

	"github.com/cenkalti/backoff"
)

// Policy bounds reconnection: the n-th retry waits min(Base*2^n, Cap), and after
// MaxRetries failed attempts the connection gives up.
type Policy struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
}

func DefaultPolicy() Policy {
	return Policy{Base: time.Second, Cap: 30 * time.Second, MaxRetries: 5}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Base <= 0 {
		p.Base = d.Base
	}
	if p.Cap < p.Base {
		p.Cap = max(d.Cap, p.Base)
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	return p
}

// NewBackOff returns a fresh schedule. Delays are deterministic (no jitter) so
// the doubling is observable.
func (p Policy) NewBackOff() backoff.BackOff {
	p = p.withDefaults()
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.Cap,
		MaxElapsedTime:      0, // bounded by retries, not wall time
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(p.MaxRetries))
}
