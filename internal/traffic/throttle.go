// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package traffic

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// throttle paces a stream to a byte rate. It is applied per chunk: after each
// chunk the reader waits until the chunk's share of time at the target rate has
// passed, so jitter in one read is absorbed by the next pause.
type throttle struct {
	clock clockwork.Clock
	rate  float64 // bytes per second
}

func newThrottle(clock clockwork.Clock, bytesPerSecond int64) *throttle {
	return &throttle{
		clock: clock,
		rate:  float64(bytesPerSecond),
	}
}

// delay is how long to pause after n bytes whose read took elapsed.
func (t *throttle) delay(n int, elapsed time.Duration) time.Duration {
	if t.rate <= 0 || n <= 0 {
		return 0
	}
	expected := time.Duration(float64(n) / t.rate * float64(time.Second))
	if elapsed >= expected {
		return 0
	}
	return expected - elapsed
}

// pace blocks for the remainder of the n-byte chunk that started at started.
func (t *throttle) pace(ctx context.Context, n int, started time.Time) error {
	return sleep(ctx, t.clock, t.delay(n, t.clock.Since(started)))
}

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-clock.After(d):
		return nil
	}
}
