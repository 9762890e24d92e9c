package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadServer_Defaults(t *testing.T) {
	req := require.New(t)
	unsetEnv(t, "RELAY_ADDR", "RELAY_LOG_LEVEL", "RELAY_WELCOME", "RELAY_HISTORY_SIZE", "RELAY_WRITE_TIMEOUT")

	cfg, err := LoadServer()
	req.NoError(err)

	req.Equal(":8080", cfg.Addr)
	req.Equal("INFO", cfg.LogLevel)
	req.Equal(DefaultWelcome, cfg.Welcome)
	req.Equal(10, cfg.HistorySize)
	req.Equal(10*time.Second, cfg.WriteTimeout)
}

func TestLoadServer_FromEnvironment(t *testing.T) {
	req := require.New(t)
	t.Setenv("RELAY_ADDR", "127.0.0.1:9000")
	t.Setenv("RELAY_LOG_LEVEL", "debug")
	t.Setenv("RELAY_WELCOME", "Hi there")
	t.Setenv("RELAY_HISTORY_SIZE", "25")
	t.Setenv("RELAY_WRITE_TIMEOUT", "2s")

	cfg, err := LoadServer()
	req.NoError(err)

	req.Equal("127.0.0.1:9000", cfg.Addr)
	req.Equal("DEBUG", cfg.LogLevel)
	req.Equal("Hi there", cfg.Welcome)
	req.Equal(25, cfg.HistorySize)
	req.Equal(2*time.Second, cfg.WriteTimeout)
}

func TestServer_Validate(t *testing.T) {
	valid := Server{Addr: ":8080", LogLevel: "warn", Welcome: "hi", HistorySize: 1}

	cases := []struct {
		name    string
		mutate  func(*Server)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Server) {}},
		{name: "empty addr", mutate: func(c *Server) { c.Addr = "" }, wantErr: true},
		{name: "unknown level", mutate: func(c *Server) { c.LogLevel = "TRACE" }, wantErr: true},
		{name: "zero history", mutate: func(c *Server) { c.HistorySize = 0 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Server) { c.WriteTimeout = -time.Second }, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "WARN", cfg.LogLevel)
		})
	}
}

func TestLoadClient_Defaults(t *testing.T) {
	unsetEnv(t, "RELAY_SERVER_ADDR")
	cfg, err := LoadClient()
	require.NoError(t, err)
	require.Equal(t, "localhost:8080", cfg.ServerAddr)
}

// unsetEnv removes keys for the duration of the test; t.Setenv restores them.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}
