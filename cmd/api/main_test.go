package main

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langcard-insight/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func offlineConfig() *config.AIConfig {
	cfg := config.DefaultAIConfig()
	cfg.Backend = config.BackendNone
	cfg.AvailabilityRefresh = ""
	return cfg
}

func TestSetupServer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		proxies string
		mutate  func(*config.AIConfig)
		wantErr string
	}{
		{
			name:    "invalid trusted proxy",
			proxies: "10.0.0.0/8,not-an-ip",
			mutate:  func(*config.AIConfig) {},
			wantErr: "TRUSTED_PROXIES",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *config.AIConfig) { c.Backend = "bogus" },
			wantErr: "initialize AI backend",
		},
		{
			name:    "invalid service config",
			mutate:  func(c *config.AIConfig) { c.Retry.MaxRetries = 0 },
			wantErr: "initialize insight service",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TRUSTED_PROXIES", tt.proxies)
			cfg := offlineConfig()
			tt.mutate(cfg)

			components, err := setupServer(discardLogger(), cfg, "test")
			require.Error(t, err)
			assert.Nil(t, components)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSetupServer_Offline(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8")

	components, err := setupServer(discardLogger(), offlineConfig(), "test")
	require.NoError(t, err)
	defer components.Close(discardLogger())

	assert.NotNil(t, components.Handler)
	assert.False(t, components.Service.Available())
	assert.Equal(t, "test", components.Version)
}

func TestRunServer_ListenFailureReturnsError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	components, err := setupServer(discardLogger(), offlineConfig(), "test")
	require.NoError(t, err)
	defer components.Close(discardLogger())
	components.Addr = busy.Addr().String()

	done := make(chan error, 1)
	go func() { done <- runServer(discardLogger(), components, make(chan struct{})) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listen on")
	case <-time.After(5 * time.Second):
		t.Fatal("runServer did not return after the listener failed")
	}
}

func TestRunServer_StopsCleanly(t *testing.T) {
	components, err := setupServer(discardLogger(), offlineConfig(), "test")
	require.NoError(t, err)
	defer components.Close(discardLogger())
	components.Addr = "127.0.0.1:0"

	stop := make(chan struct{})
	close(stop)
	assert.NoError(t, runServer(discardLogger(), components, stop))
}

func TestSessionOptions(t *testing.T) {
	tests := []struct {
		name        string
		enabled     bool
		maxRetries  int
		wantEnabled bool
		wantMax     int
	}{
		{"disabled", false, 2, false, 2},
		{"zero retries means none", true, 0, true, -1},
		{"explicit retries", true, 5, true, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultAIConfig()
			cfg.AutoRetry.Enabled = tt.enabled
			cfg.AutoRetry.MaxRetries = tt.maxRetries

			opts := sessionOptions(cfg, nil)
			require.NotNil(t, opts.AutoRetry)
			assert.Equal(t, tt.wantEnabled, *opts.AutoRetry)
			assert.Equal(t, tt.wantMax, opts.MaxAutoRetries)
			assert.Equal(t, cfg.AutoRetry.Delay, opts.RetryDelay)
		})
	}
}
