// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build windows

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/eventlog"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/tomoconnor/keepalive/internal/daemon"
	"github.com/tomoconnor/keepalive/internal/log"
)

const serviceName = "Keepalive"

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

func runService(ctx context.Context, d *daemon.Daemon) error {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return fmt.Errorf("failed to detect service mode: %w", err)
	}
	if !isService {
		return runInteractive(ctx, d)
	}

	elog, err := eventlog.Open(serviceName)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer elog.Close()

	slog.SetDefault(log.New(&eventLogWriter{elog: elog}, slog.Default().Enabled(ctx, slog.LevelDebug)))

	return svc.Run(serviceName, &keepaliveService{ctx: ctx, daemon: d})
}

type keepaliveService struct {
	ctx    context.Context
	daemon *daemon.Daemon
}

func (s *keepaliveService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.daemon.Run(ctx)
	}()

	changes <- svc.Status{State: svc.Running, Accepts: svc.AcceptStop | svc.AcceptShutdown}
	slog.Info("Service started.")

	for {
		select {
		case err := <-errCh:
			if err != nil {
				slog.Error("Daemon stopped.", "err", err)
				return false, 1
			}
			return false, 0
		case c := <-r:
			switch c.Cmd {
			case svc.Stop, svc.Shutdown:
				changes <- svc.Status{State: svc.StopPending}
				slog.Info("Service stopping.")
				cancel()
				<-errCh
				return false, 0
			case svc.Interrogate:
				changes <- c.CurrentStatus
			}
		}
	}
}

type eventLogWriter struct {
	elog *eventlog.Log
}

func (w *eventLogWriter) Write(p []byte) (int, error) {
	err := w.elog.Info(1, string(p))
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func addServiceCommands(root *cobra.Command) {
	root.AddCommand(&cobra.Command{
		Use:   "install [flags to pass to the service]",
		Short: "Install and start keepalive as a Windows service",
		// Everything after install is handed to the service verbatim.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serviceInstall(args)
		},
	}, &cobra.Command{
		Use:   "remove",
		Short: "Remove the keepalive Windows service",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return serviceRemove()
		},
	})
}

func serviceInstall(args []string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to service manager: %w", err)
	}
	defer m.Disconnect()

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	s, err := m.CreateService(serviceName, exePath, mgr.Config{
		DisplayName: "Keepalive",
		Description: "Keeps an idle cloud VM busy with CPU, memory and network activity",
		StartType:   mgr.StartAutomatic,
	}, args...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer s.Close()

	err = eventlog.InstallAsEventCreate(serviceName, eventlog.Info|eventlog.Warning|eventlog.Error)
	if err != nil {
		s.Delete()
		return fmt.Errorf("failed to install event log source: %w", err)
	}

	fmt.Printf("service %q installed\n", serviceName)

	if err := s.Start(); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	fmt.Printf("service %q started\n", serviceName)
	return nil
}

func serviceRemove() error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to service manager: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(serviceName)
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer s.Close()

	if err := s.Delete(); err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}

	_ = eventlog.Remove(serviceName)

	fmt.Printf("service %q removed\n", serviceName)
	return nil
}
