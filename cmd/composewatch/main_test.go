package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunExitCodes(t *testing.T) {
	for _, k := range []string{"DOCKER_HOST", "COMPOSEWATCH_CONFIG", "COMPOSEWATCH_COMPOSE_NAME", "COMPOSEWATCH_ALERT_URL", "COMPOSEWATCH_DOCKER_SOCKET"} {
		t.Setenv(k, "")
	}
	missing := "unix://" + filepath.Join(t.TempDir(), "missing.sock")

	assert.Equal(t, exitUsage, run(context.Background(), []string{"--no-such-flag"}))
	assert.Equal(t, exitUsage, run(context.Background(), []string{"extra-arg"}))
	assert.Equal(t, exitUsage, run(context.Background(), []string{"-u", "https://hooks.example.com/a"}), "missing compose name")
	assert.Equal(t, exitUsage, run(context.Background(), []string{"-c", "shop", "-u", "https://hooks.example.com/a", "-r", "0"}))
	assert.Equal(t, exitConnection, run(context.Background(), []string{"-c", "shop", "-u", "https://hooks.example.com/a", "-d", missing, "--log-level", "error"}))
}

func TestRunInterruptedDuringStartupExitsCleanly(t *testing.T) {
	for _, k := range []string{"DOCKER_HOST", "COMPOSEWATCH_CONFIG", "COMPOSEWATCH_DOCKER_SOCKET"} {
		t.Setenv(k, "")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	missing := "unix://" + filepath.Join(t.TempDir(), "missing.sock")
	code := run(ctx, []string{"-c", "shop", "-u", "https://hooks.example.com/a", "-d", missing, "--log-level", "error"})
	assert.Equal(t, exitOK, code)
}
