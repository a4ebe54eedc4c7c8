// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cpuload

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoconnor/keepalive/internal/status"
	"github.com/tomoconnor/keepalive/internal/testutil"
)

var epoch = time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

func newTestEngine(opts Options) (*Engine, *testutil.InstantClock) {
	clock := testutil.NewInstantClock(epoch)
	e := New(opts, status.NewStore(),
		WithClock(clock),
		WithSpinner(func(d time.Duration) { clock.Advance(d) }),
	)
	return e, clock
}

func TestEngineConvergesToTarget(t *testing.T) {
	targets := []float64{0.05, 0.15, 0.3, 0.5, 1.0}
	curves := map[string]*Curve{
		"flat":  nil,
		"curve": {Min: 0.2, Max: 0.5},
	}

	for _, target := range targets {
		for name, curve := range curves {
			t.Run(fmt.Sprintf("%s/%.2f", name, target), func(t *testing.T) {
				e, clock := newTestEngine(Options{Target: target, Period: 100 * time.Millisecond, Curve: curve})
				start := clock.Now()

				for i := 0; i < 600; i++ {
					e.cycle(context.Background())
				}

				elapsed := clock.Since(start)
				stats := e.Stats()
				require.Positive(t, elapsed)
				assert.InDelta(t, target, float64(stats.Busy)/float64(elapsed), 0.02)
				assert.Equal(t, uint64(600), stats.Cycles)
			})
		}
	}
}

func TestEngineCycleKeepsPeriod(t *testing.T) {
	e, clock := newTestEngine(Options{Target: 0.15, Curve: &Curve{Min: 0.2, Max: 0.5}})

	for i := 0; i < 50; i++ {
		start := clock.Now()
		e.cycle(context.Background())
		assert.Equal(t, DefaultPeriod, clock.Since(start))
	}
}

func TestEngineZeroTargetNeverSpins(t *testing.T) {
	for _, target := range []float64{0, -0.5} {
		spun := 0
		clock := testutil.NewInstantClock(epoch)
		e := New(Options{Target: target}, status.NewStore(),
			WithClock(clock),
			WithSpinner(func(time.Duration) { spun++ }),
		)

		for i := 0; i < 100; i++ {
			e.cycle(context.Background())
		}

		assert.Zero(t, spun)
		assert.Zero(t, e.Stats().Busy)
	}
}

func TestEngineRunDisabled(t *testing.T) {
	st := status.NewStore()
	e := New(Options{Target: 0}, st, WithSpinner(func(time.Duration) { t.Fatal("spinner called") }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, e.Run(ctx))
	assert.Equal(t, "Disabled", st.Get(status.CPU))
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	st := status.NewStore()
	clock := testutil.NewInstantClock(epoch)
	e := New(Options{Target: 0.15, Curve: &Curve{Min: 0.2, Max: 0.5}}, st,
		WithClock(clock),
		WithSpinner(func(d time.Duration) { clock.Advance(d) }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error)
	go func() {
		doneCh <- e.Run(ctx)
	}()

	// give the loop time to run some cycles
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-doneCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context was canceled")
	}

	assert.Positive(t, e.Stats().Cycles)
	assert.Equal(t, "Running (target 15%, curve 20%-50%)", st.Get(status.CPU))
}

func TestNewClampsTarget(t *testing.T) {
	e := New(Options{Target: 3}, status.NewStore())
	assert.Equal(t, 1.0, e.opts.Target)
	assert.Equal(t, DefaultPeriod, e.opts.Period)
}

func TestCurveLoad(t *testing.T) {
	c := Curve{Min: 0.2, Max: 0.5}
	seen := map[bool]bool{}
	for i := 0; i < 1000; i++ {
		ts := epoch.Add(time.Duration(i) * 37 * time.Millisecond)
		load := c.Load(ts, 0.15)
		assert.GreaterOrEqual(t, load, 0.2-1e-9)
		assert.LessOrEqual(t, load, 0.5+1e-9)
		seen[load > 0.35] = true
	}
	assert.Len(t, seen, 2, "load should swing on both sides of the midpoint")

	assert.Equal(t, 0.6, c.Load(epoch, 0.6))
}

func TestSpinBurnsAtLeastDuration(t *testing.T) {
	clock := clockwork.NewRealClock()
	start := time.Now()
	Spin(clock)(5 * time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}
