// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPrintsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		_, _ = w.Write([]byte("Keepalive Running.\n"))
	}))
	defer srv.Close()

	cmd := newCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yml"), "--server", srv.URL + "/"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "Keepalive Running.\n", out.String())
}

func TestFetchFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cmd := newCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yml"), "--server", srv.URL})

	assert.ErrorContains(t, cmd.Execute(), "unexpected status 404")
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := loadConfig(filepath.Join(dir, "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, defaultServer, cfg.Server)

	path := filepath.Join(dir, "keepalive-status.yml")
	require.NoError(t, os.WriteFile(path, []byte("server: http://vm.example:65080\n"), 0o600))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://vm.example:65080", cfg.Server)

	require.NoError(t, os.WriteFile(path, []byte("server: ''\n"), 0o600))
	_, err = loadConfig(path)
	assert.Error(t, err)
}
