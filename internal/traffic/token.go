// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package traffic

import "sync/atomic"

// Token admits at most one holder at a time. Acquisition never blocks.
type Token struct {
	held atomic.Bool
}

// TryAcquire reports whether the caller became the holder.
func (t *Token) TryAcquire() bool {
	return t.held.CompareAndSwap(false, true)
}

func (t *Token) Release() {
	t.held.Store(false)
}

func (t *Token) Held() bool {
	return t.held.Load()
}
