// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !unix

package memory

import "errors"

func allocate(size int) (*Reservation, error) {
	return &Reservation{data: make([]byte, size)}, nil
}

func pin([]byte) error {
	return errors.ErrUnsupported
}
