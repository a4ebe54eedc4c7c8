// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package schedule fires a trigger at most once per hour while the local time
// is inside an active window.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomoconnor/keepalive/internal/status"
)

const DefaultInterval = 30 * time.Second

// NoHour is the cursor value when nothing has fired in the current window.
const NoHour = -1

// Trigger is started in its own goroutine and never awaited.
type Trigger func(ctx context.Context)

type Options struct {
	Window   Window
	Location *time.Location
	Interval time.Duration
}

type Scheduler struct {
	opts    Options
	trigger Trigger
	status  *status.Store
	clock   clockwork.Clock
	spawn   func(func())
	log     *slog.Logger

	mu       sync.Mutex
	cursor   int
	triggers atomic.Uint64
}

type Option func(*Scheduler)

func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithSpawn replaces the goroutine launcher used for triggers.
func WithSpawn(f func(func())) Option {
	return func(s *Scheduler) { s.spawn = f }
}

func New(opts Options, trigger Trigger, st *status.Store, options ...Option) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	s := &Scheduler{
		opts:    opts,
		trigger: trigger,
		status:  st,
		clock:   clockwork.NewRealClock(),
		spawn:   func(f func()) { go f() },
		log:     slog.With("component", "schedule"),
		cursor:  NoHour,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Run polls immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("Starting transfer scheduler.", "window", s.opts.Window.String(),
		"timezone", s.opts.Location.String(), "interval", s.opts.Interval)

	ticker := s.clock.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.Poll(ctx, s.clock.Now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.Poll(ctx, s.clock.Now())
		}
	}
}

// Poll advances the state machine to now and reports whether it fired.
func (s *Scheduler) Poll(ctx context.Context, now time.Time) bool {
	local := now.In(s.opts.Location)
	hour := local.Hour()
	s.status.Set(status.ClockDisplay, fmt.Sprintf("%s (window %s)",
		local.Format(status.TimeLayout), s.opts.Window))

	s.mu.Lock()
	if !s.opts.Window.Contains(hour) {
		s.cursor = NoHour
		s.mu.Unlock()
		return false
	}
	if s.cursor == hour {
		s.mu.Unlock()
		return false
	}
	s.cursor = hour
	s.mu.Unlock()

	s.triggers.Add(1)
	s.log.Info("Triggering transfer.", "hour", hour)
	s.spawn(func() { s.trigger(ctx) })
	return true
}

func (s *Scheduler) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Scheduler) Triggers() uint64 {
	return s.triggers.Load()
}
