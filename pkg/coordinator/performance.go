package coordinator

import (
	"sort"
	"sync"

	"github.com/zen-systems/intelgate/pkg/router"
)

// PerformanceRecord is the moving-average track record of one backend.
type PerformanceRecord struct {
	BackendID     string  `json:"backend_id"`
	AvgConfidence float64 `json:"avg_confidence"`
	SuccessRate   float64 `json:"success_rate"`
	AvgLatencyS   float64 `json:"avg_latency_s"`
	Calls         int64   `json:"calls"`
}

type performanceEntry struct {
	mu     sync.Mutex
	record PerformanceRecord
}

// PerformanceRegistry holds per-backend records. Updates to one backend
// never contend with another.
type PerformanceRegistry struct {
	alpha   float64
	mu      sync.RWMutex
	entries map[string]*performanceEntry
}

// NewPerformanceRegistry creates a registry that smooths with alpha.
func NewPerformanceRegistry(alpha float64) *PerformanceRegistry {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.1
	}
	return &PerformanceRegistry{alpha: alpha, entries: make(map[string]*performanceEntry)}
}

func (r *PerformanceRegistry) entry(backend string) *performanceEntry {
	r.mu.RLock()
	e, ok := r.entries[backend]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[backend]; ok {
		return e
	}
	d := router.DefaultPerformance
	e = &performanceEntry{record: PerformanceRecord{
		BackendID:     backend,
		AvgConfidence: d.AvgConfidence,
		SuccessRate:   d.SuccessRate,
		AvgLatencyS:   d.AvgLatencyS,
	}}
	r.entries[backend] = e
	return e
}

// Observe folds one call outcome into the backend's averages. Confidence
// counts as 0 on failure and latency only updates on success.
func (r *PerformanceRegistry) Observe(backend string, success bool, confidence, latencyS float64) {
	e := r.entry(backend)
	e.mu.Lock()
	defer e.mu.Unlock()

	a := r.alpha
	rec := &e.record
	outcome, conf := 0.0, 0.0
	if success {
		outcome, conf = 1, confidence
		rec.AvgLatencyS = a*latencyS + (1-a)*rec.AvgLatencyS
	}
	rec.SuccessRate = a*outcome + (1-a)*rec.SuccessRate
	rec.AvgConfidence = a*conf + (1-a)*rec.AvgConfidence
	rec.Calls++
}

// Record returns a copy of the backend's record.
func (r *PerformanceRegistry) Record(backend string) PerformanceRecord {
	e := r.entry(backend)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record
}

// Performance implements router.PerformanceSource.
func (r *PerformanceRegistry) Performance(backend string) router.Performance {
	rec := r.Record(backend)
	return router.Performance{
		SuccessRate:   rec.SuccessRate,
		AvgConfidence: rec.AvgConfidence,
		AvgLatencyS:   rec.AvgLatencyS,
	}
}

// Records returns every known record sorted by backend id.
func (r *PerformanceRegistry) Records() []PerformanceRecord {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	out := make([]PerformanceRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.Record(id))
	}
	return out
}
