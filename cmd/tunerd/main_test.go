// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tunerd.yaml")
	body := fmt.Sprintf(`logLevel: warn
dataDir: %s
devices:
  - id: sat-0
    name: dvb00
    kind: dvb-s
    source: astra
  - id: ter-0
    name: dvb10
    kind: dvb-t
    adapter: 1
    source: city
`, dir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tunerd ")
}

func TestDevicesCommand(t *testing.T) {
	out, err := execute(t, "devices", "--config", writeConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "sat-0")
	assert.Contains(t, out, "DVB-T")
}

func TestScanCommandRequiresOneSelector(t *testing.T) {
	_, err := execute(t, "scan", "--config", writeConfig(t), "x.scan")
	require.Error(t, err)

	_, err = execute(t, "scan", "--config", writeConfig(t), "--device", "sat-0", "--source", "astra", "x.scan")
	require.Error(t, err)
}

func TestScanCommandWithStubBackend(t *testing.T) {
	cfgPath := writeConfig(t)
	scanFile := filepath.Join(filepath.Dir(cfgPath), "city.scan")
	require.NoError(t, os.WriteFile(scanFile, []byte("T 578000000 8MHz 3/4 NONE QAM64 8k 1/32 NONE\n"), 0o600))

	out, err := execute(t, "scan", "--config", cfgPath, "--source", "city", scanFile)
	require.NoError(t, err)
	assert.Contains(t, out, "scan complete on ter-0")
	assert.Contains(t, out, "1 channels")
}
