// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveZeroDisables(t *testing.T) {
	r, err := Reserve(0, false)
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Zero(t, r.Size())
	assert.NoError(t, r.Release())
}

func TestReserveNegative(t *testing.T) {
	_, err := Reserve(-1, false)
	assert.Error(t, err)
}

func TestReserveCommitsPages(t *testing.T) {
	r, err := Reserve(4, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Release() })

	assert.Equal(t, 4*MiB, r.Size())
	assert.False(t, r.Locked())
	assert.Equal(t, byte(1), r.data[0])
	assert.Equal(t, byte(1), r.data[len(r.data)-1])
}

func TestReserveLockFailureKeepsReservation(t *testing.T) {
	r, err := Reserve(1, true)
	t.Cleanup(func() { _ = r.Release() })

	// Pinning depends on RLIMIT_MEMLOCK; either outcome leaves usable memory.
	if err != nil {
		var lockErr *LockError
		require.True(t, errors.As(err, &lockErr))
		assert.False(t, r.Locked())
	} else {
		assert.True(t, r.Locked())
	}
	assert.Equal(t, MiB, r.Size())
}

func TestTouch(t *testing.T) {
	b := make([]byte, 10)
	touch(b, 4)
	assert.Equal(t, []byte{1, 0, 0, 0, 1, 0, 0, 0, 1, 1}, b)
}
