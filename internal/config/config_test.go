package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStateServiceMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadStateService(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultStateService(), cfg)
}

func TestLoadLobbyServerOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lobby.yaml")
	data := []byte("port: 23472\nstate_host: 10.0.0.5\nlog_level: debug\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadLobbyServer(path)
	require.NoError(t, err)

	assert.Equal(t, 23472, cfg.Port)
	assert.Equal(t, "10.0.0.5", cfg.StateHost)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched fields keep defaults.
	assert.Equal(t, DefaultLobbyServer().MatchPortMin, cfg.MatchPortMin)
	assert.Equal(t, "10.0.0.5:12977", cfg.StateAddr())
}

func TestLoadLobbyServerMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lobby.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [not an int"), 0o644))

	_, err := LoadLobbyServer(path)
	assert.Error(t, err)
}

func TestTetrisServerStateAddrEmptyHost(t *testing.T) {
	cfg := DefaultTetrisServer()
	assert.Equal(t, "", cfg.StateAddr())

	cfg.StateHost = "127.0.0.1"
	assert.Equal(t, "127.0.0.1:12977", cfg.StateAddr())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("verbose"))
}
