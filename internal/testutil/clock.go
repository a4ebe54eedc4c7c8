// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package testutil provides helpers shared by package tests.
package testutil

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// InstantClock is a fake clock whose After and Sleep return immediately after
// advancing time by the requested duration. Every requested wait is recorded.
type InstantClock struct {
	*clockwork.FakeClock

	mu     sync.Mutex
	sleeps []time.Duration
}

var _ clockwork.Clock = (*InstantClock)(nil)

func NewInstantClock(start time.Time) *InstantClock {
	return &InstantClock{FakeClock: clockwork.NewFakeClockAt(start)}
}

func (c *InstantClock) After(d time.Duration) <-chan time.Time {
	c.Sleep(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func (c *InstantClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	if d > 0 {
		c.Advance(d)
	}
}

// Sleeps returns a copy of every duration passed to After or Sleep.
func (c *InstantClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Slept is the sum of Sleeps.
func (c *InstantClock) Slept() time.Duration {
	var total time.Duration
	for _, d := range c.Sleeps() {
		total += d
	}
	return total
}
