package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/hazira/core"
)

// Prober checks whether the remote store is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// Monitor turns periodic reachability probes into connectivity transitions of an Engine.
type Monitor struct {
	engine   *Engine
	prober   Prober
	interval time.Duration
	logger   core.Logger
}

func NewMonitor(engine *Engine, prober Prober, interval time.Duration, logger core.Logger) *Monitor {
	return &Monitor{engine: engine, prober: prober, interval: interval, logger: logger}
}

// Check probes the remote once and reports the result to the engine. It returns the connectivity seen.
func (m *Monitor) Check(ctx context.Context) bool {
	err := m.prober.Probe(ctx)
	online := err == nil
	if !online && m.engine.Online() {
		m.logger.Warn(fmt.Sprintf("remote unreachable: %v", err), err)
	}

	res, err := m.engine.OnConnectivityChange(ctx, online)
	if err != nil {
		m.engine.logFlushError(err)
	} else if res.Synced > 0 {
		m.logger.Info(fmt.Sprintf("synced %d attendance records after reconnecting", res.Synced))
	}
	return online
}

// Run checks connectivity right away, then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
