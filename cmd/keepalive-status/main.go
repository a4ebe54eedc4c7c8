// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultServer = "http://127.0.0.1:65080"

type config struct {
	Server string `yaml:"server"`
}

func main() {
	if err := newCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	var configPath, server string

	cmd := &cobra.Command{
		Use:          "keepalive-status",
		Short:        "Print the status page of a running keepalive daemon",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if server != "" {
				cfg.Server = server
			}
			return fetch(cmd.Context(), cmd.OutOrStdout(), cfg.Server)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "keepalive-status.yml", "path to config file")
	cmd.Flags().StringVar(&server, "server", "", "status page URL, overrides the config file")
	return cmd
}

// loadConfig reads path if it exists. A missing file yields the defaults.
func loadConfig(path string) (config, error) {
	cfg := config{Server: defaultServer}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Server == "" {
		return cfg, errors.New("'server' must not be empty in config")
	}
	return cfg, nil
}

func fetch(ctx context.Context, out io.Writer, server string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	url := strings.TrimSuffix(server, "/") + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
