// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build unix

package memory

import "golang.org/x/sys/unix"

// allocate maps anonymous memory so that a failure comes back as an error
// instead of a fatal runtime out-of-memory.
func allocate(size int) (*Reservation, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &Reservation{data: data, unmap: unix.Munmap}, nil
}

func pin(b []byte) error {
	return unix.Mlock(b)
}
