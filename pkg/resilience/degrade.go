package resilience

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zen-systems/intelgate/pkg/cache"
)

// DefaultRetryAfter is the hint given to callers when no fallback could help.
const DefaultRetryAfter = 30 * time.Second

// DegradedResponse is the minimal structured answer returned when both the
// primary path and its fallback failed.
type DegradedResponse struct {
	Service    string        `json:"service"`
	Error      string        `json:"error"`
	RetryAfter time.Duration `json:"retry_after"`
	Message    string        `json:"message"`
}

// Degraded is the outcome of Execute. Exactly one of these holds:
// the primary succeeded (Degraded false), a fallback value was served
// (Degraded true, Response nil), or nothing could be served (Response set).
type Degraded[T any] struct {
	Value     T
	Degraded  bool
	FromCache bool

	// Err is the primary failure, nil when the primary succeeded.
	Err error

	Response *DegradedResponse
}

// OK reports whether Value holds a usable result.
func (d Degraded[T]) OK() bool {
	return d.Response == nil
}

// ServiceHealth is the health of one registered service.
type ServiceHealth struct {
	Healthy       bool      `json:"healthy"`
	Failures      int64     `json:"failures"`
	LastError     string    `json:"last_error,omitempty"`
	LastFailureAt time.Time `json:"last_failure_at,omitzero"`
}

type service struct {
	fallback func(ctx context.Context, args any) (any, error)
	ttl      time.Duration
	health   ServiceHealth
}

// DegradationManager serves fallbacks for services whose primary path fails.
type DegradationManager struct {
	store      cache.Store
	logger     *slog.Logger
	retryAfter time.Duration
	now        func() time.Time

	mu       sync.RWMutex
	services map[string]*service
}

// NewDegradationManager creates a manager whose fallback results are cached
// in store. A nil store disables fallback caching.
func NewDegradationManager(store cache.Store, logger *slog.Logger, retryAfter time.Duration) *DegradationManager {
	if logger == nil {
		logger = slog.Default()
	}
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &DegradationManager{
		store:      store,
		logger:     logger,
		retryAfter: retryAfter,
		now:        time.Now,
		services:   make(map[string]*service),
	}
}

// Register installs fallback for service. Fallback results are cached for
// ttl keyed by the hash of the call arguments.
func Register[T any](m *DegradationManager, name string, fallback func(ctx context.Context, args any) (T, error), ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	svc := m.serviceLocked(name)
	svc.ttl = ttl
	if fallback == nil {
		svc.fallback = nil
		return
	}
	svc.fallback = func(ctx context.Context, args any) (any, error) {
		return fallback(ctx, args)
	}
}

// Execute runs primary and degrades on failure. It never returns an error
// and never lets a panic escape.
func Execute[T any](ctx context.Context, m *DegradationManager, name string, args any, primary func(context.Context) (T, error)) (out Degraded[T]) {
	value, err := protect(func() (T, error) { return primary(ctx) })
	if err == nil {
		m.markHealthy(name)
		return Degraded[T]{Value: value}
	}

	out.Err = err
	out.Degraded = true
	fallback, ttl := m.markUnhealthy(name, err)

	key := fallbackKey(name, args)
	if m.store != nil {
		if cached, ok := m.cached(ctx, key); ok {
			var v T
			if jsonErr := json.Unmarshal(cached, &v); jsonErr == nil {
				out.Value = v
				out.FromCache = true
				return out
			}
		}
	}

	if fallback == nil {
		out.Response = m.degradedResponse(name, err, "no fallback registered")
		return out
	}

	raw, fbErr := protect(func() (any, error) { return fallback(ctx, args) })
	if fbErr != nil {
		m.logger.Warn("fallback failed", "service", name, "error", fbErr, "primary_error", err)
		out.Response = m.degradedResponse(name, err, fmt.Sprintf("fallback failed: %v", fbErr))
		return out
	}
	v, ok := raw.(T)
	if !ok {
		out.Response = m.degradedResponse(name, err, fmt.Sprintf("fallback returned %T", raw))
		return out
	}

	if m.store != nil && ttl > 0 {
		if data, jsonErr := json.Marshal(v); jsonErr == nil {
			if setErr := m.store.Set(context.WithoutCancel(ctx), key, data, ttl); setErr != nil {
				m.logger.Debug("fallback cache write failed", "service", name, "error", setErr)
			}
		}
	}
	out.Value = v
	return out
}

// Health returns per-service health.
func (m *DegradationManager) Health() map[string]ServiceHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ServiceHealth, len(m.services))
	for name, svc := range m.services {
		out[name] = svc.health
	}
	return out
}

// Services lists registered and observed service names.
func (m *DegradationManager) Services() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *DegradationManager) cached(ctx context.Context, key string) ([]byte, bool) {
	data, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Debug("fallback cache read failed", "key", key, "error", err)
		return nil, false
	}
	return data, ok
}

func (m *DegradationManager) degradedResponse(name string, err error, detail string) *DegradedResponse {
	return &DegradedResponse{
		Service:    name,
		Error:      err.Error(),
		RetryAfter: m.retryAfter,
		Message:    fmt.Sprintf("%s is temporarily degraded: %s", name, detail),
	}
}

func (m *DegradationManager) markHealthy(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serviceLocked(name).health.Healthy = true
}

func (m *DegradationManager) markUnhealthy(name string, err error) (func(context.Context, any) (any, error), time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	svc := m.serviceLocked(name)
	svc.health.Healthy = false
	svc.health.Failures++
	svc.health.LastError = err.Error()
	svc.health.LastFailureAt = m.now()
	return svc.fallback, svc.ttl
}

// serviceLocked returns the named service, creating it healthy. Must be
// called with the write lock held.
func (m *DegradationManager) serviceLocked(name string) *service {
	svc, ok := m.services[name]
	if !ok {
		svc = &service{health: ServiceHealth{Healthy: true}}
		m.services[name] = svc
	}
	return svc
}

func fallbackKey(name string, args any) string {
	data, err := json.Marshal(args)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", args))
	}
	sum := sha256.Sum256(data)
	return "degrade:" + name + ":" + hex.EncodeToString(sum[:])[:16]
}

// protect converts a panic in fn into an error.
func protect[T any](fn func() (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
