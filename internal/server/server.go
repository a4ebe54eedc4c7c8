// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package server exposes the status record as a plain-text page.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomoconnor/keepalive/internal/hoststat"
	"github.com/tomoconnor/keepalive/internal/status"
)

const shutdownTimeout = 5 * time.Second

// HostSampler returns host statistics for the page. Errors drop the Host line.
type HostSampler func(ctx context.Context) (*hoststat.Stats, error)

type Server struct {
	addr   string
	status *status.Store
	host   HostSampler
	clock  clockwork.Clock
	log    *slog.Logger
}

type Option func(*Server)

func WithClock(c clockwork.Clock) Option {
	return func(s *Server) { s.clock = c }
}

func WithHostSampler(f HostSampler) Option {
	return func(s *Server) { s.host = f }
}

func New(addr string, st *status.Store, options ...Option) *Server {
	s := &Server{
		addr:   addr,
		status: st,
		host:   hoststat.Sample,
		clock:  clockwork.NewRealClock(),
		log:    slog.With("component", "server"),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Serve listens on the configured address until ctx is done. A bind failure is
// logged and Serve returns nil so the rest of the process keeps running.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.log.Error("Status responder disabled, cannot bind.", "addr", s.addr, "err", err)
		return nil
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 4096,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("Status responder shutdown.", "err", err)
		}
	}()

	s.log.Info("Status responder listening.", "addr", ln.Addr().String())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve status: %w", err)
	}
	<-stopped
	return nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", s.index)
	return mux
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeText(w, http.StatusMethodNotAllowed, "method not allowed\n")
		return
	}
	writeText(w, http.StatusOK, s.render(r.Context()))
}

func (s *Server) render(ctx context.Context) string {
	snap := s.status.Snapshot()

	var b strings.Builder
	b.WriteString("Keepalive Running.\n")
	fmt.Fprintf(&b, "Memory: %s\n", snap[status.Memory])
	fmt.Fprintf(&b, "CPU: %s\n", snap[status.CPU])
	fmt.Fprintf(&b, "Traffic: %s\n", snap[status.Traffic])
	fmt.Fprintf(&b, "Last Run: %s\n", snap[status.LastRun])
	fmt.Fprintf(&b, "Clock: %s\n", snap[status.ClockDisplay])
	if s.host != nil {
		if host, err := s.host(ctx); err != nil {
			s.log.Debug("Host sample failed.", "err", err)
		} else {
			fmt.Fprintf(&b, "Host: %s\n", host)
		}
	}
	fmt.Fprintf(&b, "Time: %s\n", s.clock.Now().Format(status.TimeLayout))
	return b.String()
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
