// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/tomoconnor/keepalive/internal/config"
	"github.com/tomoconnor/keepalive/internal/daemon"
	"github.com/tomoconnor/keepalive/internal/log"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:          "keepalive",
		Short:        "Keep an idle cloud VM busy with CPU, memory and network activity",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log.Init(debug || cfg.Debug)

			d, err := daemon.New(cfg)
			if err != nil {
				return err
			}
			return runService(cmd.Context(), d)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	addServiceCommands(cmd)
	return cmd
}

// runInteractive runs the daemon in the foreground until a shutdown signal.
func runInteractive(ctx context.Context, d *daemon.Daemon) error {
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()
	return d.Run(ctx)
}
