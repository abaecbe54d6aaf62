// Package resilience wraps backend calls with a circuit breaker, bounded
// retries and graceful degradation.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota

	// StateOpen rejects calls until the recovery window has elapsed.
	StateOpen

	// StateHalfOpen lets a single trial call through to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitOpenError is returned synchronously when a breaker rejects a call.
type CircuitOpenError struct {
	Backend    string
	State      State
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.State == StateHalfOpen {
		return fmt.Sprintf("circuit breaker for %s is half-open: trial call in progress", e.Backend)
	}
	return fmt.Sprintf("circuit breaker for %s is open (retry after %s)", e.Backend, e.RetryAfter.Round(time.Millisecond))
}

// CircuitOpen marks the error for adapter.KindOf.
func (e *CircuitOpenError) CircuitOpen() bool { return true }

// IsCircuitOpen reports whether err is a breaker rejection.
func IsCircuitOpen(err error) bool {
	var open *CircuitOpenError
	return errors.As(err, &open)
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Default: 3
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes that
	// close it again. Default: 2
	SuccessThreshold int

	// RecoveryTimeout is the base open window, scaled by the recovery
	// multiplier. Default: 30 seconds
	RecoveryTimeout time.Duration

	// MaxMultiplier caps the recovery multiplier. Default: 8
	MaxMultiplier int

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(backend string, from, to State)
}

// DefaultBreakerConfig returns the default configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
		MaxMultiplier:    8,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	def := DefaultBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = def.RecoveryTimeout
	}
	if c.MaxMultiplier <= 0 {
		c.MaxMultiplier = def.MaxMultiplier
	}
	return c
}

// BreakerSnapshot is a point-in-time view of a breaker.
type BreakerSnapshot struct {
	Backend              string    `json:"backend"`
	State                State     `json:"-"`
	StateName            string    `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastFailureAt        time.Time `json:"last_failure_at,omitzero"`
	RecoveryMultiplier   int       `json:"recovery_multiplier"`
	TotalCalls           int64     `json:"total_calls"`
	TotalFailures        int64     `json:"total_failures"`
	TotalRejections      int64     `json:"total_rejections"`
}

// Breaker guards the calls of exactly one backend.
type Breaker struct {
	backend string
	config  BreakerConfig
	now     func() time.Time

	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	lastFailureAt        time.Time
	multiplier           int
	trialInFlight        bool

	totalCalls      int64
	totalFailures   int64
	totalRejections int64
}

// NewBreaker creates a closed breaker for backend.
func NewBreaker(backend string, config BreakerConfig) *Breaker {
	return &Breaker{
		backend:    backend,
		config:     config.withDefaults(),
		now:        time.Now,
		state:      StateClosed,
		multiplier: 1,
	}
}

// Backend returns the guarded backend id.
func (b *Breaker) Backend() string {
	return b.backend
}

// Execute runs fn if the breaker admits the call and records its outcome.
// Cancellation of the caller's ctx is not counted against the backend.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(ctx, err)
	return err
}

// Allow admits or rejects a call. An admitted call must be followed by
// exactly one Record.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var change *transition
	defer func() {
		b.mu.Unlock()
		b.notify(change)
	}()

	switch b.state {
	case StateClosed:
		b.totalCalls++
		return nil

	case StateOpen:
		remaining := b.window() - b.now().Sub(b.lastFailureAt)
		if remaining > 0 {
			b.totalRejections++
			return &CircuitOpenError{Backend: b.backend, State: StateOpen, RetryAfter: remaining}
		}
		change = b.transitionTo(StateHalfOpen)
		b.trialInFlight = true
		b.totalCalls++
		return nil

	default:
		if b.trialInFlight {
			b.totalRejections++
			return &CircuitOpenError{Backend: b.backend, State: StateHalfOpen, RetryAfter: time.Second}
		}
		b.trialInFlight = true
		b.totalCalls++
		return nil
	}
}

// Record reports the outcome of an admitted call.
func (b *Breaker) Record(err error) {
	b.record(context.Background(), err)
}

func (b *Breaker) record(ctx context.Context, err error) {
	b.mu.Lock()
	var change *transition
	defer func() {
		b.mu.Unlock()
		b.notify(change)
	}()

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// The caller gave up; the backend was not at fault.
		b.trialInFlight = false
		return
	}

	if err == nil {
		switch b.state {
		case StateClosed:
			b.consecutiveFailures = 0
		case StateHalfOpen:
			b.trialInFlight = false
			b.consecutiveSuccesses++
			if b.consecutiveSuccesses >= b.config.SuccessThreshold {
				change = b.transitionTo(StateClosed)
				b.consecutiveFailures = 0
				b.consecutiveSuccesses = 0
				b.multiplier = 1
			}
		}
		return
	}

	b.totalFailures++
	b.lastFailureAt = b.now()
	b.consecutiveFailures++

	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= b.config.FailureThreshold {
			change = b.open()
		}
	case StateHalfOpen:
		b.trialInFlight = false
		change = b.open()
	}
}

// open moves to OPEN and grows the recovery window. Must be called with lock held.
func (b *Breaker) open() *transition {
	b.consecutiveSuccesses = 0
	b.multiplier *= 2
	if b.multiplier > b.config.MaxMultiplier {
		b.multiplier = b.config.MaxMultiplier
	}
	if b.consecutiveFailures < b.config.FailureThreshold {
		b.consecutiveFailures = b.config.FailureThreshold
	}
	return b.transitionTo(StateOpen)
}

func (b *Breaker) window() time.Duration {
	return b.config.RecoveryTimeout * time.Duration(b.multiplier)
}

// State returns the current state. An OPEN breaker whose window has elapsed
// still reports OPEN until a caller is admitted.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// EffectiveState is the state a new caller would meet. An OPEN breaker
// whose window has elapsed reports HALF_OPEN: the next Allow admits a trial call.
func (b *Breaker) EffectiveState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.lastFailureAt) >= b.window() {
		return StateHalfOpen
	}
	return b.state
}

// Available reports whether Allow would admit a call now, without
// admitting one.
func (b *Breaker) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		return b.now().Sub(b.lastFailureAt) >= b.window()
	default:
		return !b.trialInFlight
	}
}

// Snapshot returns a copy of the breaker's counters.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		Backend:              b.backend,
		State:                b.state,
		StateName:            b.state.String(),
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		LastFailureAt:        b.lastFailureAt,
		RecoveryMultiplier:   b.multiplier,
		TotalCalls:           b.totalCalls,
		TotalFailures:        b.totalFailures,
		TotalRejections:      b.totalRejections,
	}
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	change := b.transitionTo(StateClosed)
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.multiplier = 1
	b.trialInFlight = false
	b.mu.Unlock()
	b.notify(change)
}

type transition struct {
	from, to State
}

// transitionTo changes state. Must be called with lock held.
func (b *Breaker) transitionTo(to State) *transition {
	if b.state == to {
		return nil
	}
	t := &transition{from: b.state, to: to}
	b.state = to
	return t
}

func (b *Breaker) notify(t *transition) {
	if t == nil || b.config.OnStateChange == nil {
		return
	}
	b.config.OnStateChange(b.backend, t.from, t.to)
}

// BreakerRegistry holds one breaker per backend, created on first use.
type BreakerRegistry struct {
	config   BreakerConfig
	logger   *slog.Logger
	breakers map[string]*Breaker
	mu       sync.RWMutex
}

// NewBreakerRegistry creates a registry whose breakers share config. State
// changes are logged and then forwarded to config.OnStateChange.
func NewBreakerRegistry(config BreakerConfig, logger *slog.Logger) *BreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &BreakerRegistry{
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
	next := config.OnStateChange
	config.OnStateChange = func(backend string, from, to State) {
		level := slog.LevelInfo
		if to == StateOpen {
			level = slog.LevelWarn
		}
		r.logger.Log(context.Background(), level, "circuit breaker state change",
			"backend", backend, "from", from.String(), "to", to.String())
		if next != nil {
			next(backend, from, to)
		}
	}
	r.config = config.withDefaults()
	return r
}

// Get returns the breaker for backend, creating it if necessary.
func (r *BreakerRegistry) Get(backend string) *Breaker {
	r.mu.RLock()
	if b, ok := r.breakers[backend]; ok {
		r.mu.RUnlock()
		return b
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[backend]; ok {
		return b
	}
	b := NewBreaker(backend, r.config)
	r.breakers[backend] = b
	return b
}

// State reports the state of backend's breaker without creating one.
func (r *BreakerRegistry) State(backend string) State {
	if b, ok := r.lookup(backend); ok {
		return b.State()
	}
	return StateClosed
}

// EffectiveState reports backend's EffectiveState without creating a breaker.
func (r *BreakerRegistry) EffectiveState(backend string) State {
	if b, ok := r.lookup(backend); ok {
		return b.EffectiveState()
	}
	return StateClosed
}

// Available reports whether backend's breaker would admit a call now.
func (r *BreakerRegistry) Available(backend string) bool {
	if b, ok := r.lookup(backend); ok {
		return b.Available()
	}
	return true
}

func (r *BreakerRegistry) lookup(backend string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[backend]
	return b, ok
}

// Snapshots returns a snapshot of every registered breaker.
func (r *BreakerRegistry) Snapshots() map[string]BreakerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]BreakerSnapshot, len(r.breakers))
	for id, b := range r.breakers {
		out[id] = b.Snapshot()
	}
	return out
}

// ResetAll closes every breaker.
func (r *BreakerRegistry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}
