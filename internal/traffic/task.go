// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package traffic downloads and discards a bounded volume of data at a capped
// rate, retrying on connection failures, with at most one run in flight.
package traffic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/go-units"
	"github.com/jonboulle/clockwork"

	"github.com/tomoconnor/keepalive/internal/status"
)

const (
	DefaultChunkSize  = 512 * units.KiB
	DefaultRetryDelay = 5 * time.Second
)

// ErrEmptyStream means a connection ended without yielding a single byte.
var ErrEmptyStream = errors.New("stream ended before any data")

var errTimeout = errors.New("transfer timeout exceeded")

type Result int

const (
	ResultCompleted Result = iota
	ResultTimedOut
	ResultFailed
	ResultSkipped
	ResultCancelled
	numResults
)

func (r Result) String() string {
	switch r {
	case ResultCompleted:
		return "completed"
	case ResultTimedOut:
		return "timed out"
	case ResultFailed:
		return "failed"
	case ResultSkipped:
		return "skipped"
	case ResultCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Results lists every Result value.
func Results() []Result {
	out := make([]Result, 0, numResults)
	for r := Result(0); r < numResults; r++ {
		out = append(out, r)
	}
	return out
}

type Options struct {
	// Total is the byte budget of one run.
	Total int64
	// Rate is the ceiling in bytes per second. Zero disables pacing.
	Rate      int64
	ChunkSize int
	// Timeout bounds a whole run. Zero disables it.
	Timeout    time.Duration
	RetryDelay time.Duration
	// MaxRetries caps consecutive failed attempts without progress. Zero
	// means retry until the timeout.
	MaxRetries int
}

type Stats struct {
	Bytes   int64
	Retries int64
	Runs    map[Result]uint64
}

// Task is long-lived; each Run is one transfer session.
type Task struct {
	opts       Options
	source     Source
	status     *status.Store
	clock      clockwork.Clock
	token      *Token
	newBackOff func() backoff.BackOff
	log        *slog.Logger

	bytes   atomic.Int64
	retries atomic.Int64
	runs    [numResults]atomic.Uint64
}

type Option func(*Task)

func WithClock(c clockwork.Clock) Option {
	return func(t *Task) { t.clock = c }
}

// WithToken shares an exclusivity token between tasks.
func WithToken(tok *Token) Option {
	return func(t *Task) { t.token = tok }
}

func WithBackOff(f func() backoff.BackOff) Option {
	return func(t *Task) { t.newBackOff = f }
}

func NewTask(opts Options, source Source, st *status.Store, options ...Option) *Task {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	t := &Task{
		opts:   opts,
		source: source,
		status: st,
		clock:  clockwork.NewRealClock(),
		token:  &Token{},
		log:    slog.With("component", "traffic"),
	}
	t.newBackOff = t.defaultBackOff
	for _, o := range options {
		o(t)
	}
	return t
}

func (t *Task) defaultBackOff() backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(t.opts.RetryDelay)
	if t.opts.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(t.opts.MaxRetries))
	}
	return b
}

// Run performs one transfer session. It returns ResultSkipped at once when
// another run holds the token. A timeout is a normal end, not an error.
func (t *Task) Run(ctx context.Context) (result Result, err error) {
	if !t.token.TryAcquire() {
		t.log.Info("Transfer already running, skipping.")
		t.runs[ResultSkipped].Add(1)
		return ResultSkipped, nil
	}
	defer t.token.Release()

	sess := &Session{
		Target:  t.opts.Total,
		Started: t.clock.Now(),
		Rate:    t.opts.Rate,
	}
	defer func() {
		t.finish(sess, result, err)
	}()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if t.opts.Timeout > 0 {
		timer := t.clock.AfterFunc(t.opts.Timeout, func() { cancel(errTimeout) })
		defer timer.Stop()
	}

	t.log.Info("Starting transfer.", "total", units.BytesSize(float64(sess.Target)),
		"rate", units.BytesSize(float64(sess.Rate))+"/s", "timeout", t.opts.Timeout)
	t.status.Set(status.Traffic, "Running: 0.0%")

	err = t.transfer(ctx, sess)
	switch {
	case err == nil:
		return ResultCompleted, nil
	case errors.Is(context.Cause(ctx), errTimeout):
		return ResultTimedOut, nil
	case ctx.Err() != nil:
		return ResultCancelled, err
	default:
		return ResultFailed, err
	}
}

func (t *Task) Stats() Stats {
	s := Stats{
		Bytes:   t.bytes.Load(),
		Retries: t.retries.Load(),
		Runs:    make(map[Result]uint64, numResults),
	}
	for r := Result(0); r < numResults; r++ {
		s.Runs[r] = t.runs[r].Load()
	}
	return s
}

// transfer reopens the source until the budget is met. Progress survives
// reconnects; a clean end of stream after some data reconnects without delay.
func (t *Task) transfer(ctx context.Context, sess *Session) error {
	b := t.newBackOff()
	b.Reset()
	buf := make([]byte, t.opts.ChunkSize)

	for !sess.Done() {
		n, err := t.stream(ctx, sess, buf)
		if n > 0 {
			b.Reset()
		}
		if err == nil {
			if !sess.Done() {
				t.log.Debug("Stream ended, reopening.", "transferred", sess.Transferred)
			}
			continue
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return fmt.Errorf("giving up: %w", err)
		}

		t.retries.Add(1)
		t.log.Warn("Transfer interrupted, retrying.", "err", err, "delay", delay,
			"transferred", sess.Transferred)
		t.status.Set(status.Traffic, fmt.Sprintf("Retrying in %s after error: %v (%.1f%%)",
			delay, err, sess.Percent()))
		if err := sleep(ctx, t.clock, delay); err != nil {
			return err
		}
	}
	return nil
}

// stream reads one connection in paced chunks and returns the bytes it added.
func (t *Task) stream(ctx context.Context, sess *Session, buf []byte) (int64, error) {
	body, err := t.source.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("open stream: %w", err)
	}
	defer body.Close()

	pacer := newThrottle(t.clock, t.opts.Rate)
	var got int64
	for !sess.Done() {
		want := int(min(int64(len(buf)), sess.Remaining()))
		started := t.clock.Now()

		n, err := io.ReadFull(body, buf[:want])
		if n > 0 {
			sess.Add(n)
			got += int64(n)
			t.bytes.Add(int64(n))
			t.report(sess)
		}
		eof := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !eof {
			return got, fmt.Errorf("read stream: %w", err)
		}
		// A short tail before EOF is paced like any chunk, so reconnects
		// cannot exceed the rate.
		if err := pacer.pace(ctx, n, started); err != nil {
			return got, err
		}
		if eof {
			if got == 0 {
				return 0, ErrEmptyStream
			}
			return got, nil
		}
	}
	return got, nil
}

func (t *Task) report(sess *Session) {
	now := t.clock.Now()
	t.status.Set(status.Traffic, fmt.Sprintf("Running: %.1f%% (%s / %s) avg %s/s",
		sess.Percent(),
		units.BytesSize(float64(sess.Transferred)),
		units.BytesSize(float64(sess.Target)),
		units.BytesSize(sess.AverageRate(now)),
	))
	t.log.Debug("Chunk transferred.", "transferred", sess.Transferred, "percent", sess.Percent())
}

func (t *Task) finish(sess *Session, result Result, err error) {
	t.runs[result].Add(1)
	now := t.clock.Now()
	stamp := now.Format(status.TimeLayout)

	msg := fmt.Sprintf("Idle (%s at %s, %s transferred)", result, stamp,
		units.BytesSize(float64(sess.Transferred)))
	if err != nil && result == ResultFailed {
		msg = fmt.Sprintf("Idle (failed at %s: %v)", stamp, err)
	}
	t.status.Set(status.Traffic, msg)
	t.status.Set(status.LastRun, stamp)

	attrs := []any{"result", result.String(), "transferred", sess.Transferred,
		"elapsed", now.Sub(sess.Started).Round(time.Second)}
	if err != nil {
		t.log.Error("Transfer ended.", append(attrs, "err", err)...)
		return
	}
	t.log.Info("Transfer ended.", attrs...)
}
