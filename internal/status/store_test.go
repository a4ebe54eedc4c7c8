// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package status

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewStoreDefaults(t *testing.T) {
	s := NewStore()

	assert.Equal(t, "Not Allocated", s.Get(Memory))
	assert.Equal(t, "Idle", s.Get(Traffic))
	assert.Equal(t, "Never", s.Get(LastRun))
	assert.Len(t, s.Snapshot(), len(Fields))
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()
	snap[CPU] = "mutated"

	assert.Equal(t, "Starting", s.Get(CPU))
}

func TestStoreSetTime(t *testing.T) {
	s := NewStore()
	ts := time.Date(2026, 10, 18, 3, 4, 5, 0, time.UTC)
	s.SetTime(LastRun, ts)

	assert.Equal(t, "2026-10-18 03:04:05 UTC", s.Get(LastRun))
}

func TestStoreConcurrentWriters(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Set(Traffic, fmt.Sprintf("writer %d step %d", i, j))
				_ = s.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	assert.Contains(t, s.Get(Traffic), "step 99")
}
