package main

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunUsage(t *testing.T) {
	assert.Equal(t, exitUsage, run(nil))
	assert.Equal(t, exitOK, run([]string{"help"}))
}

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconkit.yaml")
	require.Equal(t, exitOK, run([]string{"init", "-config", path}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "scheduler:")
}

func TestRunUnknownKind(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "missing.yaml")
	assert.Equal(t, exitFailure, run([]string{"smtp", "-config", cfg}))
}

func TestRunTCPToFile(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	dir := t.TempDir()
	input := filepath.Join(dir, "targets.txt")
	require.NoError(t, os.WriteFile(input, []byte(ln.Addr().String()+"\nnot a target\n"), 0o644))
	out := filepath.Join(dir, "out.json")

	code := run([]string{"tcp",
		"-config", filepath.Join(dir, "none.yaml"),
		"-input", input,
		"-format", "json",
		"-output", out,
	})
	require.Equal(t, exitOK, code)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var state struct {
		Results []struct {
			Status string `json:"status"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(data, &state))
	require.Len(t, state.Results, 2)
	assert.Equal(t, "Open", state.Results[0].Status)
	assert.Equal(t, "Invalid", state.Results[1].Status)
}

func TestRunBadPortRange(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "hosts.txt")
	require.NoError(t, os.WriteFile(input, []byte("127.0.0.1\n"), 0o644))

	code := run([]string{"tcp", "-config", filepath.Join(dir, "none.yaml"), "-input", input, "-ports", "100-1"})
	assert.Equal(t, exitFailure, code)
}
