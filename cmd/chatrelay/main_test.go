package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	t.Setenv("CHATRELAY_DATABASE_PATH", filepath.Join(dir, "chatrelay.db"))
	t.Setenv("CHATRELAY_HTTP_HOST", "127.0.0.1")
	t.Setenv("CHATRELAY_HTTP_PORT", strconv.Itoa(port))
	t.Setenv("CHATRELAY_AI_DEFAULT_PROVIDER", "mock")
	t.Setenv("CHATRELAY_LOG_LEVEL", "error")
	t.Setenv("CHATRELAY_CONFIG_FILE", "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	url := "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port)) + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRun_ConfigFileOverridesEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw, err := json.Marshal(map[string]interface{}{
		"http": map[string]interface{}{"port": 70000},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	t.Setenv("CHATRELAY_DATABASE_PATH", filepath.Join(dir, "chatrelay.db"))
	t.Setenv("CHATRELAY_HTTP_PORT", "8080")
	t.Setenv("CHATRELAY_CONFIG_FILE", path)

	err = run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestRun_MissingConfigFile(t *testing.T) {
	t.Setenv("CHATRELAY_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.json"))

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
