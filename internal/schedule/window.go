// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package schedule

import "fmt"

// Window is an inclusive range of hours of the day. Start may be greater than
// End, in which case the window wraps past midnight.
type Window struct {
	Start int
	End   int
}

func (w Window) Contains(hour int) bool {
	if w.Start <= w.End {
		return hour >= w.Start && hour <= w.End
	}
	return hour >= w.Start || hour <= w.End
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:00-%02d:59", w.Start, w.End)
}
