// Package status maintains a local snapshot of backend reachability and
// capability flags, refreshed on a fixed interval.
package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"CampusChat/internal/api"
)

// Mode describes the backend's observed service level.
type Mode string

const (
	// ModeFull means the backend answered with its feature map.
	ModeFull Mode = "full"
	// ModeDegraded means the backend is reachable but reported no
	// feature map, so extended capability is unknown.
	ModeDegraded Mode = "degraded"
	// ModeOffline means the last health check failed.
	ModeOffline Mode = "offline"
)

// Snapshot is the cached view of backend health. It is replaced
// wholesale on a successful poll; a failed poll only flips
// reachability and keeps the previously known feature flags.
type Snapshot struct {
	Reachable      bool
	Mode           Mode
	Features       map[string]bool
	ActiveFeatures int
	CheckedAt      time.Time
}

// HealthFunc performs one health dispatch.
type HealthFunc func(ctx context.Context) (*api.HealthResponse, error)

// Poller drives periodic health checks with at-most-one-in-flight
// discipline: a refresh requested while a poll is outstanding is a
// no-op.
type Poller struct {
	check    HealthFunc
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	polling bool
	snap    Snapshot

	stop     chan struct{}
	stopOnce sync.Once
	onUpdate func(Snapshot)
}

// New creates a poller around the given health dispatch. interval
// defaults to 30s, timeout to 10s.
func New(check HealthFunc, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		check:    check,
		interval: interval,
		timeout:  10 * time.Second,
		logger:   logger,
		snap:     Snapshot{Mode: ModeOffline},
		stop:     make(chan struct{}),
	}
}

// OnUpdate registers a callback invoked after every completed poll.
// Must be set before Start.
func (p *Poller) OnUpdate(fn func(Snapshot)) {
	p.onUpdate = fn
}

// Start launches the polling timer. Stop ends it.
func (p *Poller) Start() {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
				p.Refresh(ctx)
				cancel()
			case <-p.stop:
				return
			}
		}
	}()
}

// Stop halts the polling timer. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Refresh runs one health check synchronously and applies the result.
// Returns false without dispatching when a poll is already in flight.
func (p *Poller) Refresh(ctx context.Context) bool {
	p.mu.Lock()
	if p.polling {
		p.mu.Unlock()
		return false
	}
	p.polling = true
	p.mu.Unlock()

	resp, err := p.check(ctx)

	p.mu.Lock()
	p.polling = false
	p.apply(resp, err)
	snap := p.snap
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(snap)
	}
	return true
}

// apply folds one poll outcome into the snapshot. Caller holds p.mu.
func (p *Poller) apply(resp *api.HealthResponse, err error) {
	now := time.Now()

	if err != nil {
		// Keep the prior feature flags: one transient failure must not
		// erase the last known-good capability view.
		p.snap.Reachable = false
		p.snap.Mode = ModeOffline
		p.snap.CheckedAt = now
		p.logger.Warn("health check failed", "kind", api.AsDispatchError(err).Kind.String(), "error", err)
		return
	}

	if len(resp.Features) == 0 {
		p.snap = Snapshot{Reachable: true, Mode: ModeDegraded, CheckedAt: now}
		return
	}

	features := make(map[string]bool, len(resp.Features))
	active := 0
	for name, state := range resp.Features {
		enabled := state == api.FeatureEnabled
		features[name] = enabled
		if enabled {
			active++
		}
	}
	p.snap = Snapshot{
		Reachable:      true,
		Mode:           ModeFull,
		Features:       features,
		ActiveFeatures: active,
		CheckedAt:      now,
	}
}

// Snapshot returns a copy of the current status view.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := p.snap
	if snap.Features != nil {
		features := make(map[string]bool, len(snap.Features))
		for k, v := range snap.Features {
			features[k] = v
		}
		snap.Features = features
	}
	return snap
}
