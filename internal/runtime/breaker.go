package runtime

import (
	"time"

	cb "github.com/sony/gobreaker"
)

// breaker shields the runner from a wedged container backend: after three
// consecutive CLI failures, or a >5% failure rate past twenty calls, the
// circuit opens and calls fail fast for a minute.
type breaker struct{ cb *cb.CircuitBreaker }

func newBreaker(name string) *breaker {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	return &breaker{cb: cb.NewCircuitBreaker(st)}
}

func (b *breaker) Execute(fn func() (any, error)) (any, error) { return b.cb.Execute(fn) }
