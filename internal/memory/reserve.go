// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package memory reserves a block of physical memory for the lifetime of the
// process.
package memory

import (
	"fmt"
	"os"
)

const MiB = 1 << 20

// Reservation is a committed block of memory. Keep a reference to it for as
// long as the memory should stay resident.
type Reservation struct {
	data   []byte
	locked bool
	unmap  func([]byte) error
}

// Reserve allocates sizeMB mebibytes and writes every page once so the kernel
// backs it with physical memory. With lock set the pages are also pinned; a
// failed pin is reported through LockErr but does not fail the reservation.
// A size of zero returns a nil Reservation.
func Reserve(sizeMB int, lock bool) (*Reservation, error) {
	if sizeMB < 0 {
		return nil, fmt.Errorf("negative size %dMB", sizeMB)
	}
	if sizeMB == 0 {
		return nil, nil
	}

	r, err := allocate(sizeMB * MiB)
	if err != nil {
		return nil, fmt.Errorf("allocate %dMB: %w", sizeMB, err)
	}
	touch(r.data, os.Getpagesize())

	if lock {
		if err := pin(r.data); err != nil {
			return r, &LockError{Err: err}
		}
		r.locked = true
	}
	return r, nil
}

// LockError is returned alongside a usable Reservation when pinning failed.
type LockError struct {
	Err error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("lock memory: %v", e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

func (r *Reservation) Size() int {
	if r == nil {
		return 0
	}
	return len(r.data)
}

func (r *Reservation) Locked() bool {
	return r != nil && r.locked
}

// Release returns the memory to the system. The daemon never calls it.
func (r *Reservation) Release() error {
	if r == nil || r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil
	if r.unmap != nil {
		return r.unmap(data)
	}
	return nil
}

func touch(b []byte, page int) {
	for i := 0; i < len(b); i += page {
		b[i] = 1
	}
	if len(b) > 0 {
		b[len(b)-1] = 1
	}
}
