package coordinator

import (
	"context"
	"sort"

	"github.com/zen-systems/intelgate/pkg/budget"
)

// BackendHealth is the status of one backend.
type BackendHealth struct {
	State               string  `json:"state"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	RecoveryMultiplier  int     `json:"recovery_multiplier"`
	AvgLatencyS         float64 `json:"avg_latency_s"`
	SuccessRate         float64 `json:"success_rate"`
	AvgConfidence       float64 `json:"avg_confidence"`
	Calls               int64   `json:"calls"`
	Routable            bool    `json:"routable"`
}

// SystemStatus is a read-only view for dashboards and health checks.
type SystemStatus struct {
	BackendHealth map[string]BackendHealth `json:"backend_health"`
	Budget        budget.Summary           `json:"budget"`

	// Services maps each degradation service to whether its primary path
	// last succeeded.
	Services map[string]bool `json:"services"`
}

// GetSystemStatus reports breaker, performance, budget and degradation state.
func (c *Coordinator) GetSystemStatus(_ context.Context) SystemStatus {
	routable := make(map[string]bool)
	for _, p := range c.router.Profiles() {
		routable[p.ID] = true
	}

	status := SystemStatus{
		BackendHealth: make(map[string]BackendHealth, len(c.clients)),
		Budget:        c.gate.Summary(),
		Services:      make(map[string]bool),
	}
	for _, id := range c.BackendIDs() {
		snap := c.breakers.Get(id).Snapshot()
		rec := c.perf.Record(id)
		status.BackendHealth[id] = BackendHealth{
			State:               snap.StateName,
			ConsecutiveFailures: snap.ConsecutiveFailures,
			RecoveryMultiplier:  snap.RecoveryMultiplier,
			AvgLatencyS:         rec.AvgLatencyS,
			SuccessRate:         rec.SuccessRate,
			AvgConfidence:       rec.AvgConfidence,
			Calls:               rec.Calls,
			Routable:            routable[id],
		}
	}
	for name, h := range c.degrade.Health() {
		status.Services[name] = h.Healthy
	}
	return status
}

// BackendIDs lists the backends that have a client, sorted.
func (c *Coordinator) BackendIDs() []string {
	ids := make([]string, 0, len(c.clients))
	for id := range c.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Budget returns the budget gate.
func (c *Coordinator) Budget() *budget.Gate {
	return c.gate
}
