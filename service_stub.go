// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !windows

package main

import (
	"context"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomoconnor/keepalive/internal/daemon"
)

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

func runService(ctx context.Context, d *daemon.Daemon) error {
	return runInteractive(ctx, d)
}

// Service management is only available on Windows.
func addServiceCommands(*cobra.Command) {}
