// Package ticker drives the engine against wall time. Each wall interval
// advances every facility by a fixed simulated step, admits deferred scenario
// jobs, hands completion events to the broadcaster and takes periodic
// snapshots.
package ticker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/engine"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/scenario"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/scheduler"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/telemetry"
)

// Broadcaster receives every tick's completion events. The websocket hub
// implements it.
type Broadcaster interface {
	Broadcast([]scheduler.CompletionEvent)
}

// Config times the loop. Interval is wall time between ticks, Step the
// simulated time each tick advances. SnapshotEvery of zero disables periodic
// saves.
type Config struct {
	Interval      time.Duration
	Step          time.Duration
	SnapshotEvery time.Duration
}

// Driver owns the tick loop.
type Driver struct {
	cfg  Config
	eng  *engine.Engine
	scn  *scenario.Scenario
	sink Broadcaster
	log  *slog.Logger

	clock time.Duration
}

// New builds a driver. The scenario and broadcaster are optional.
func New(cfg Config, eng *engine.Engine, scn *scenario.Scenario, sink Broadcaster, log *slog.Logger) *Driver {
	return &Driver{
		cfg:  cfg,
		eng:  eng,
		scn:  scn,
		sink: sink,
		log:  log,
	}
}

// Clock is the simulated time this driver has pushed facilities to.
func (d *Driver) Clock() time.Duration { return d.clock }

// Run loops until context cancellation.
func (d *Driver) Run(ctx context.Context) error {
	if d.cfg.Interval <= 0 || d.cfg.Step <= 0 {
		return errors.New("ticker: interval and step must be positive")
	}
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	lastSnapshot := time.Now()

	d.log.Info("tick loop started",
		"interval", d.cfg.Interval, "step", d.cfg.Step, "snapshot_every", d.cfg.SnapshotEvery)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Tick(ctx)
			if d.cfg.SnapshotEvery > 0 && time.Since(lastSnapshot) >= d.cfg.SnapshotEvery {
				if err := d.eng.SaveAll(ctx); err != nil {
					d.log.Warn("periodic snapshot failed", "err", err)
				} else {
					lastSnapshot = time.Now()
				}
			}
		}
	}
}

// Tick advances the world by one step. Deferred scenario jobs are admitted
// after the advance so their admission time matches the clock they asked for.
func (d *Driver) Tick(ctx context.Context) {
	start := time.Now()
	prev := d.clock
	d.clock += d.cfg.Step

	d.eng.AdvanceAll(ctx, d.cfg.Step)

	if d.scn != nil {
		for _, j := range d.scn.DueJobs(prev, d.clock) {
			if _, err := d.eng.StartJob(j.Facility, j.Product, j.Method, j.Quantity, j.Priority, j.Rush); err != nil {
				d.log.Warn("deferred admission failed",
					"facility", j.Facility, "method", j.Method, "err", err)
			}
		}
	}

	// Drain even without a sink so the per-facility buffers never grow
	// unbounded.
	events := d.eng.DrainAllEvents()
	if d.sink != nil {
		d.sink.Broadcast(events)
	}

	telemetry.TicksTotal.Inc()
	telemetry.TickDurationSecs.Observe(time.Since(start).Seconds())
}
