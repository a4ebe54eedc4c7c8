// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package cpuload generates a target average CPU utilization on one OS thread
// using a fixed-period work/sleep duty cycle.
package cpuload

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomoconnor/keepalive/internal/status"
)

const (
	DefaultPeriod   = 100 * time.Millisecond
	DefaultMinSleep = time.Millisecond
	DefaultSlice    = 10 * time.Millisecond
)

type Options struct {
	// Target is the long-run utilization fraction. Values <= 0 disable the
	// engine, values above 1 are treated as 1.
	Target   float64
	Period   time.Duration
	MinSleep time.Duration
	// Slice is the work granularity inside the active phase when a Curve is set.
	Slice time.Duration
	Curve *Curve
}

type Stats struct {
	Busy   time.Duration
	Idle   time.Duration
	Cycles uint64
}

type Engine struct {
	opts   Options
	clock  clockwork.Clock
	spin   func(time.Duration)
	status *status.Store
	log    *slog.Logger

	busy   atomic.Int64
	idle   atomic.Int64
	cycles atomic.Uint64
}

type Option func(*Engine)

func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithSpinner replaces the busy-work function. The function must not return
// before d has elapsed on the engine clock.
func WithSpinner(f func(d time.Duration)) Option {
	return func(e *Engine) { e.spin = f }
}

func New(opts Options, st *status.Store, options ...Option) *Engine {
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.MinSleep <= 0 {
		opts.MinSleep = DefaultMinSleep
	}
	if opts.Slice <= 0 {
		opts.Slice = DefaultSlice
	}
	if opts.Target > 1 {
		opts.Target = 1
	}

	e := &Engine{
		opts:   opts,
		clock:  clockwork.NewRealClock(),
		status: st,
		log:    slog.With("component", "cpu"),
	}
	for _, o := range options {
		o(e)
	}
	if e.spin == nil {
		e.spin = Spin(e.clock)
	}
	return e
}

// Run drives the duty cycle until ctx is done. It never fails.
func (e *Engine) Run(ctx context.Context) error {
	if e.opts.Target <= 0 {
		e.status.Set(status.CPU, "Disabled")
		e.log.Info("CPU load disabled.")
		<-ctx.Done()
		return nil
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.status.Set(status.CPU, e.describe())
	e.log.Info("Starting CPU duty cycle.", "target", e.opts.Target, "period", e.opts.Period,
		"curve", e.opts.Curve != nil)

	for ctx.Err() == nil {
		e.cycle(ctx)
	}
	return nil
}

func (e *Engine) Stats() Stats {
	return Stats{
		Busy:   time.Duration(e.busy.Load()),
		Idle:   time.Duration(e.idle.Load()),
		Cycles: e.cycles.Load(),
	}
}

// cycle runs one period: the work quantum Target*Period is done in slices at
// the current active load, then the rest of the period is idle.
func (e *Engine) cycle(ctx context.Context) {
	start := e.clock.Now()
	e.cycles.Add(1)

	if e.opts.Target <= 0 {
		e.sleep(ctx, e.opts.Period)
		return
	}

	load := 1.0
	if e.opts.Curve != nil {
		load = e.opts.Curve.Load(start, e.opts.Target)
	}

	quantum := time.Duration(float64(e.opts.Period) * e.opts.Target)
	for done := time.Duration(0); done < quantum; {
		w := time.Duration(float64(e.opts.Slice) * load)
		if w <= 0 || w > quantum-done {
			w = quantum - done
		}
		e.burn(w)
		done += w

		if load < 1 {
			if rest := time.Duration(float64(w) * (1 - load) / load); rest > e.opts.MinSleep {
				e.sleep(ctx, rest)
			}
		}
		if ctx.Err() != nil {
			return
		}
	}

	if remain := e.opts.Period - e.clock.Since(start); remain > e.opts.MinSleep {
		e.sleep(ctx, remain)
	}
}

func (e *Engine) burn(d time.Duration) {
	e.spin(d)
	e.busy.Add(int64(d))
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-e.clock.After(d):
		e.idle.Add(int64(d))
	}
}

func (e *Engine) describe() string {
	s := fmt.Sprintf("Running (target %.0f%%", e.opts.Target*100)
	if c := e.opts.Curve; c != nil {
		s += fmt.Sprintf(", curve %.0f%%-%.0f%%", c.Min*100, c.Max*100)
	}
	return s + ")"
}

var sink uint64

// Spin returns a busy loop of pure integer arithmetic that checks the clock
// every few thousand iterations.
func Spin(clock clockwork.Clock) func(time.Duration) {
	return func(d time.Duration) {
		start := clock.Now()
		x := sink | 1
		for clock.Since(start) < d {
			for i := 0; i < 4096; i++ {
				x = x*6364136223846793005 + 1442695040888963407
			}
		}
		sink = x
	}
}
