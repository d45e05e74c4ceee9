package app

import (
	"context"
	"sync"
	"time"
)

// HealthProber is the cheap liveness check the gate leans on.
type HealthProber interface {
	Health(ctx context.Context) bool
}

// AvailabilityGate decides whether the serving path may touch the vector
// store. An unconfigured store is permanently unavailable; a configured one is
// probed at most once per probeTTL so request latency never pays for repeated
// probes.
type AvailabilityGate struct {
	prober     HealthProber
	configured bool
	probeTTL   time.Duration

	mu        sync.Mutex
	lastProbe time.Time
	lastOK    bool
}

func NewAvailabilityGate(prober HealthProber, configured bool, probeTTL time.Duration) *AvailabilityGate {
	if probeTTL <= 0 {
		probeTTL = 5 * time.Second
	}
	return &AvailabilityGate{
		prober:     prober,
		configured: configured,
		probeTTL:   probeTTL,
	}
}

// Available reports whether retrieval may proceed. The probe runs on a
// detached context: the verdict is shared across requests for probeTTL, so a
// caller that already disconnected must not be able to cache a failure for
// everyone else. The prober bounds its own probe duration.
func (g *AvailabilityGate) Available(_ context.Context) bool {
	if !g.configured || g.prober == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if time.Since(g.lastProbe) < g.probeTTL {
		return g.lastOK
	}
	g.lastOK = g.prober.Health(context.Background())
	g.lastProbe = time.Now()
	return g.lastOK
}

// Configured reports whether the store settings exist at all, which separates
// "misconfigured" from "temporarily down" in logs and degraded results.
func (g *AvailabilityGate) Configured() bool {
	return g.configured
}
