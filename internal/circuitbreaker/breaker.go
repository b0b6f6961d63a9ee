// Package circuitbreaker stops calling a downstream device after repeated
// failures and lets a single trial call through once a cooldown has passed.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrOpen is returned by Do when the circuit for a key rejects the call.
var ErrOpen = errors.New("circuit open")

var transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentledger",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by key, from-state, and to-state.",
}, []string{"key", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(transitions)
}

// circuit is only kept for keys that have failed since their last success.
type circuit struct {
	failures int
	openedAt time.Time
	trial    bool
}

func (c *circuit) open() bool { return !c.openedAt.IsZero() }

type Breaker struct {
	mu        sync.Mutex
	circuits  map[string]*circuit
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// New opens a key after threshold consecutive failures and keeps it open for
// cooldown before allowing a trial call.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Do runs fn unless the circuit for key is open, and records its outcome.
func (b *Breaker) Do(key string, fn func() error) error {
	if err := b.acquire(key); err != nil {
		return err
	}
	err := fn()
	b.release(key, err == nil)
	return err
}

func (b *Breaker) acquire(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuits[key]
	if c == nil || !c.open() {
		return nil
	}
	if c.trial || b.now().Sub(c.openedAt) < b.cooldown {
		return ErrOpen
	}
	c.trial = true
	transitions.WithLabelValues(key, "open", "half_open").Inc()
	return nil
}

func (b *Breaker) release(key string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuits[key]
	if ok {
		if c != nil {
			switch {
			case c.trial:
				transitions.WithLabelValues(key, "half_open", "closed").Inc()
			case c.open():
				transitions.WithLabelValues(key, "open", "closed").Inc()
			}
			delete(b.circuits, key)
		}
		return
	}
	if c == nil {
		c = &circuit{}
		b.circuits[key] = c
	}
	c.failures++
	switch {
	case c.trial:
		c.trial = false
		c.openedAt = b.now()
		transitions.WithLabelValues(key, "half_open", "open").Inc()
	case !c.open() && c.failures >= b.threshold:
		c.openedAt = b.now()
		transitions.WithLabelValues(key, "closed", "open").Inc()
	}
}
