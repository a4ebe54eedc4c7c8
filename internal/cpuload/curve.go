// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cpuload

import (
	"math"
	"time"
)

// Curve makes the active-phase load oscillate between Min and Max as a sine of
// wall-clock seconds. Only the shape of the load changes, the work done per
// period stays the same.
type Curve struct {
	Min float64
	Max float64
}

// Load returns the active load at t. It never drops below floor, since the
// active phase would otherwise not fit into one period.
func (c Curve) Load(t time.Time, floor float64) float64 {
	mid := (c.Min + c.Max) / 2
	amp := (c.Max - c.Min) / 2
	seconds := float64(t.UnixNano()) / float64(time.Second)

	load := mid + amp*math.Sin(seconds)
	return math.Min(1, math.Max(load, floor))
}
