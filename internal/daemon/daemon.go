// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package daemon wires the keepalive components together and runs them until
// the process context ends.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/tomoconnor/keepalive/internal/config"
	"github.com/tomoconnor/keepalive/internal/cpuload"
	"github.com/tomoconnor/keepalive/internal/memory"
	"github.com/tomoconnor/keepalive/internal/metrics"
	"github.com/tomoconnor/keepalive/internal/schedule"
	"github.com/tomoconnor/keepalive/internal/server"
	"github.com/tomoconnor/keepalive/internal/status"
	"github.com/tomoconnor/keepalive/internal/traffic"
)

type Daemon struct {
	cfg    config.Config
	status *status.Store
	log    *slog.Logger

	engine *cpuload.Engine
	server *server.Server
	task   *traffic.Task
	sched  *schedule.Scheduler
}

// New builds every component from cfg. Nothing runs until Run.
func New(cfg config.Config) (*Daemon, error) {
	d := &Daemon{
		cfg:    cfg,
		status: status.NewStore(),
		log:    slog.With("component", "daemon"),
	}

	var curve *cpuload.Curve
	if cfg.CPUCurve {
		curve = &cpuload.Curve{
			Min: float64(cfg.CPUCurveMinPercent) / 100,
			Max: float64(cfg.CPUCurveMaxPercent) / 100,
		}
	}
	d.engine = cpuload.New(cpuload.Options{
		Target: cfg.CPUTarget(),
		Period: cfg.CPUPeriod.Std(),
		Curve:  curve,
	}, d.status)

	d.server = server.New(cfg.StatusAddr(), d.status)

	if cfg.TrafficEnabled {
		loc, err := cfg.Location()
		if err != nil {
			return nil, fmt.Errorf("traffic timezone: %w", err)
		}
		d.task = traffic.NewTask(traffic.Options{
			Total:      int64(cfg.TrafficTotal),
			Rate:       int64(cfg.TrafficRate),
			ChunkSize:  int(cfg.TrafficChunk),
			Timeout:    cfg.TrafficTimeout(),
			RetryDelay: cfg.TrafficRetryDelay.Std(),
			MaxRetries: cfg.TrafficMaxRetries,
		}, traffic.NewHTTPSource(cfg.TrafficURL), d.status)
		d.sched = schedule.New(schedule.Options{
			Window:   schedule.Window{Start: cfg.TrafficWindowStart, End: cfg.TrafficWindowEnd},
			Location: loc,
			Interval: cfg.ScheduleInterval.Std(),
		}, d.transfer, d.status)
	}
	return d, nil
}

func (d *Daemon) Status() *status.Store {
	return d.status
}

// Run reserves memory and then runs every component until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	res := d.reserve()
	defer runtime.KeepAlive(res)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.engine.Run(ctx) })
	g.Go(func() error { return d.server.Serve(ctx) })

	if d.sched != nil {
		g.Go(func() error { return d.sched.Run(ctx) })
	} else {
		d.status.Set(status.Traffic, "Disabled")
		d.log.Info("Traffic generation disabled.")
	}

	if d.cfg.MetricsAddr != "" {
		reg := metrics.NewRegistry(metrics.NewCollector(d.metricSources(res)))
		g.Go(func() error { return metrics.Serve(ctx, d.cfg.MetricsAddr, reg) })
	}

	d.log.Info("Keepalive running.", "status", d.cfg.StatusAddr())
	err := g.Wait()
	d.log.Info("Keepalive stopped.")
	return err
}

// reserve never fails the daemon; problems only show up in the status record.
func (d *Daemon) reserve() *memory.Reservation {
	mb := d.cfg.TargetMemoryMB
	if mb == 0 {
		d.status.Set(status.Memory, "Disabled")
		return nil
	}

	res, err := memory.Reserve(mb, d.cfg.MemoryLock)
	var lockErr *memory.LockError
	switch {
	case errors.As(err, &lockErr):
		d.log.Warn("Memory reserved but not locked.", "size_mb", mb, "err", err)
		d.status.Set(status.Memory, fmt.Sprintf("Allocated (%dMB, unlocked)", mb))
	case err != nil:
		d.log.Error("Memory reservation failed.", "size_mb", mb, "err", err)
		d.status.Set(status.Memory, fmt.Sprintf("Failed: %v", err))
		return nil
	case res.Locked():
		d.log.Info("Memory reserved and locked.", "size_mb", mb)
		d.status.Set(status.Memory, fmt.Sprintf("Allocated (%dMB, locked)", mb))
	default:
		d.log.Info("Memory reserved.", "size_mb", mb)
		d.status.Set(status.Memory, fmt.Sprintf("Allocated (%dMB)", mb))
	}
	return res
}

func (d *Daemon) transfer(ctx context.Context) {
	// The result is recorded in the status store and logs by the task itself.
	_, _ = d.task.Run(ctx)
}

func (d *Daemon) metricSources(res *memory.Reservation) metrics.Sources {
	src := metrics.Sources{
		CPU:           d.engine,
		ReservedBytes: int64(res.Size()),
	}
	if d.task != nil {
		src.Traffic = d.task
	}
	if d.sched != nil {
		src.Schedule = d.sched
	}
	return src
}
