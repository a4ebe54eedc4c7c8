// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package status holds the process-wide status record that every keepalive
// component writes and the status responder reads. Values are advisory: the
// last writer wins and readers may observe a mix of old and new fields.
package status

import (
	"sync"
	"time"
)

// Field names a slot of the status record.
type Field string

const (
	Memory       Field = "memory"
	CPU          Field = "cpu"
	Traffic      Field = "traffic"
	LastRun      Field = "last_run"
	ClockDisplay Field = "clock_display"
)

// TimeLayout is used for every timestamp written into the record.
const TimeLayout = "2006-01-02 15:04:05 MST"

// Fields lists the record fields in display order.
var Fields = []Field{Memory, CPU, Traffic, LastRun, ClockDisplay}

// Store is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	values map[Field]string
}

func NewStore() *Store {
	return &Store{
		values: map[Field]string{
			Memory:       "Not Allocated",
			CPU:          "Starting",
			Traffic:      "Idle",
			LastRun:      "Never",
			ClockDisplay: "",
		},
	}
}

func (s *Store) Set(f Field, value string) {
	s.mu.Lock()
	s.values[f] = value
	s.mu.Unlock()
}

// SetTime stores t formatted with TimeLayout.
func (s *Store) SetTime(f Field, t time.Time) {
	s.Set(f, t.Format(TimeLayout))
}

func (s *Store) Get(f Field) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[f]
}

// Snapshot returns a copy of the record.
func (s *Store) Snapshot() map[Field]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Field]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
