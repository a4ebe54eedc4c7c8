// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package traffic

import "time"

// Session is the progress of one transfer run.
type Session struct {
	Target      int64
	Transferred int64
	Started     time.Time
	Rate        int64
}

func (s *Session) Add(n int) {
	s.Transferred += int64(n)
}

func (s *Session) Remaining() int64 {
	return max(s.Target-s.Transferred, 0)
}

func (s *Session) Done() bool {
	return s.Transferred >= s.Target
}

func (s *Session) Percent() float64 {
	if s.Target <= 0 {
		return 100
	}
	return float64(s.Transferred) / float64(s.Target) * 100
}

// AverageRate is bytes per second since the session started.
func (s *Session) AverageRate(now time.Time) float64 {
	elapsed := now.Sub(s.Started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Transferred) / elapsed
}
