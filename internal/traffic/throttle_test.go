// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package traffic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/go-units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoconnor/keepalive/internal/testutil"
)

func TestThrottleDelay(t *testing.T) {
	th := newThrottle(testutil.NewInstantClock(epoch), units.MiB)

	assert.Equal(t, 500*time.Millisecond, th.delay(512*units.KiB, 0))
	assert.Equal(t, 300*time.Millisecond, th.delay(512*units.KiB, 200*time.Millisecond))
	assert.Zero(t, th.delay(512*units.KiB, time.Second))
	assert.Zero(t, th.delay(0, 0))

	unlimited := newThrottle(testutil.NewInstantClock(epoch), 0)
	assert.Zero(t, unlimited.delay(units.MiB, 0))
}

func TestThrottlePaceSelfCorrects(t *testing.T) {
	clock := testutil.NewInstantClock(epoch)
	th := newThrottle(clock, units.MiB)

	// A slow read is followed by a short pause, a fast one by a long pause.
	started := clock.Now()
	clock.Advance(400 * time.Millisecond)
	require.NoError(t, th.pace(context.Background(), 512*units.KiB, started))

	started = clock.Now()
	require.NoError(t, th.pace(context.Background(), 512*units.KiB, started))

	assert.Equal(t, []time.Duration{100 * time.Millisecond, 500 * time.Millisecond}, clock.Sleeps())
}

func TestSleepHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sleep(ctx, testutil.NewInstantClock(epoch), time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenSingleHolder(t *testing.T) {
	var tok Token
	require.True(t, tok.TryAcquire())
	assert.False(t, tok.TryAcquire())
	assert.True(t, tok.Held())

	tok.Release()
	assert.False(t, tok.Held())
	assert.True(t, tok.TryAcquire())
}

func TestSessionProgress(t *testing.T) {
	s := &Session{Target: 4 * units.MiB, Started: epoch}
	s.Add(units.MiB)

	assert.Equal(t, 25.0, s.Percent())
	assert.Equal(t, int64(3*units.MiB), s.Remaining())
	assert.False(t, s.Done())
	assert.Equal(t, float64(units.MiB)/2, s.AverageRate(epoch.Add(2*time.Second)))
	assert.Zero(t, s.AverageRate(epoch))

	s.Add(4 * units.MiB)
	assert.True(t, s.Done())
	assert.Zero(t, s.Remaining())
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.UserAgent())
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write(make([]byte, 1024))
		case "/missing":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(srv.Close)

	body, err := NewHTTPSource(srv.URL + "/ok").Open(context.Background())
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Len(t, data, 1024)
	require.NoError(t, body.Close())

	_, err = NewHTTPSource(srv.URL + "/missing").Open(context.Background())
	var permanent *backoff.PermanentError
	assert.ErrorAs(t, err, &permanent)

	_, err = NewHTTPSource(srv.URL + "/busy").Open(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.False(t, errors.As(err, &permanent))
}
