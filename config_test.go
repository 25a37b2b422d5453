package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flfctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
printer:
  address: 192.168.1.25
  poll_interval: 5
scan:
  timeout_ms: 500
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.25", cfg.Printer.Address)
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.Equal(t, 500*time.Millisecond, cfg.ScanTimeout())
	// Unset sections keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 7126, cfg.Server.Port)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadConfig(writeConfig(t, "printer: [not, a, map]"))
	assert.ErrorContains(t, err, "parsing config")

	_, err = LoadConfig(writeConfig(t, "scan:\n  timeout_ms: 0\n"))
	assert.ErrorContains(t, err, "timeout_ms")
}

func TestPrinterAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Printer.Address = "10.0.0.2"

	env := map[string]string{}
	getenv := func(k string) string { return env[k] }

	addr, err := cfg.PrinterAddr("", getenv)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:8899", addr)

	env[addressEnv] = "10.0.0.3:9000"
	addr, err = cfg.PrinterAddr("", getenv)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3:9000", addr)

	addr, err = cfg.PrinterAddr("printer.lan", getenv)
	require.NoError(t, err)
	assert.Equal(t, "printer.lan:8899", addr)

	_, err = DefaultConfig().PrinterAddr("", func(string) string { return "" })
	assert.ErrorContains(t, err, addressEnv)
}
