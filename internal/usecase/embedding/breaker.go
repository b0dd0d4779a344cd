package embedding

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/domain"
)

// BreakerState is the circuit breaker state.
type BreakerState int

// Breaker states. Values match the breaker state gauge.
const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	Window           time.Duration
	Cooldown         time.Duration
}

// Breaker is a per-provider circuit breaker shared by every worker of the process.
//
// Closed: consecutive failures inside Window are counted; the threshold-th opens it.
// Open: calls are rejected until Cooldown has elapsed.
// Half-open: exactly one trial call is admitted. Its success closes the
// breaker, its failure reopens it with a fresh cooldown.
type Breaker struct {
	provider string
	cfg      BreakerConfig
	now      func() time.Time

	// gauge and transitions may be nil.
	gauge       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	logger      *zap.Logger

	mu           sync.Mutex
	state        BreakerState
	failures     int
	firstFailure time.Time
	openedAt     time.Time
	trial        bool
	generation   uint64
}

// NewBreaker creates a closed breaker.
func NewBreaker(
	provider string,
	cfg BreakerConfig,
	gauge *prometheus.GaugeVec,
	transitions *prometheus.CounterVec,
	logger *zap.Logger,
) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	b := &Breaker{
		provider:    provider,
		cfg:         cfg,
		now:         time.Now,
		gauge:       gauge,
		transitions: transitions,
		logger:      logger,
	}
	if gauge != nil {
		gauge.WithLabelValues(provider).Set(float64(StateClosed))
	}
	return b
}

// Ticket is an admitted call. Exactly one of Success, Failure or Release must be called.
type Ticket struct {
	b          *Breaker
	generation uint64
	trial      bool
}

// Allow admits a call or returns domain.ErrBreakerOpen.
func (b *Breaker) Allow() (*Ticket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.setState(StateHalfOpen)
	}
	switch b.state {
	case StateOpen:
		return nil, domain.ErrBreakerOpen
	case StateHalfOpen:
		if b.trial {
			return nil, domain.ErrBreakerOpen
		}
		b.trial = true
		return &Ticket{b: b, generation: b.generation, trial: true}, nil
	}
	return &Ticket{b: b, generation: b.generation}, nil
}

// Available reports whether Allow would currently admit a call.
func (b *Breaker) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		return b.now().Sub(b.openedAt) >= b.cfg.Cooldown
	case StateHalfOpen:
		return !b.trial
	}
	return true
}

// State returns the current state without advancing it.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Success records a successful call.
func (t *Ticket) Success() {
	b := t.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.generation != b.generation {
		return
	}
	if t.trial {
		b.trial = false
		b.setState(StateClosed)
		return
	}
	b.failures = 0
}

// Failure records a failed call.
func (t *Ticket) Failure() {
	b := t.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.generation != b.generation {
		return
	}
	now := b.now()
	if t.trial {
		b.trial = false
		b.openedAt = now
		b.setState(StateOpen)
		return
	}
	if b.failures == 0 || now.Sub(b.firstFailure) > b.cfg.Window {
		b.failures = 0
		b.firstFailure = now
	}
	b.failures++
	if b.failures >= b.cfg.FailureThreshold {
		b.openedAt = now
		b.setState(StateOpen)
	}
}

// Release returns the ticket without an outcome, e.g. when the caller's
// context was cancelled before the provider answered.
func (t *Ticket) Release() {
	b := t.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.trial && t.generation == b.generation {
		b.trial = false
	}
}

// setState must be called with mu held. Every state change starts a new
// generation so in-flight tickets from the previous one are ignored.
func (b *Breaker) setState(s BreakerState) {
	if b.state == s {
		return
	}
	from := b.state
	b.state = s
	b.generation++
	b.failures = 0
	if b.gauge != nil {
		b.gauge.WithLabelValues(b.provider).Set(float64(s))
	}
	if b.transitions != nil {
		b.transitions.WithLabelValues(b.provider, s.String()).Inc()
	}
	if b.logger != nil {
		b.logger.Warn("Circuit breaker state changed",
			zap.String("provider", b.provider),
			zap.Stringer("from", from),
			zap.Stringer("to", s),
		)
	}
}
