package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okonogi/gamehall/internal/constants"
)

// StateService holds all configuration for the state service.
type StateService struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Persistence
	SnapshotPath string `yaml:"snapshot_path"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// DefaultStateService returns StateService config with sensible defaults.
func DefaultStateService() StateService {
	return StateService{
		BindAddress:  "0.0.0.0",
		Port:         constants.DefaultStatePort,
		SnapshotPath: "state.txt",
		LogLevel:     "info",
	}
}

// LoadStateService loads state service config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadStateService(path string) (StateService, error) {
	cfg := DefaultStateService()
	if err := loadInto(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LobbyServer holds all configuration for the lobby.
type LobbyServer struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// State service connection
	StateHost string `yaml:"state_host"`
	StatePort int    `yaml:"state_port"`

	// Match endpoint allocation
	MatchPortMin   int `yaml:"match_port_min"`
	MatchPortMax   int `yaml:"match_port_max"`
	MatchPortTries int `yaml:"match_port_tries"`

	// Match pacing
	TickMillis int `yaml:"tick_millis"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// StateAddr returns the state service's host:port.
func (c LobbyServer) StateAddr() string {
	return net.JoinHostPort(c.StateHost, strconv.Itoa(c.StatePort))
}

// Tick returns the match gravity tick as a duration.
func (c LobbyServer) Tick() time.Duration {
	return time.Duration(c.TickMillis) * time.Millisecond
}

// DefaultLobbyServer returns LobbyServer config with sensible defaults.
func DefaultLobbyServer() LobbyServer {
	return LobbyServer{
		BindAddress:    "0.0.0.0",
		Port:           constants.DefaultLobbyPort,
		StateHost:      "127.0.0.1",
		StatePort:      constants.DefaultStatePort,
		MatchPortMin:   constants.MatchPortMin,
		MatchPortMax:   constants.MatchPortMax,
		MatchPortTries: constants.MatchPortTries,
		TickMillis:     constants.DefaultTickMillis,
		LogLevel:       "info",
	}
}

// LoadLobbyServer loads lobby config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadLobbyServer(path string) (LobbyServer, error) {
	cfg := DefaultLobbyServer()
	if err := loadInto(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TetrisServer holds configuration for the standalone match binary.
type TetrisServer struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Seats
	RoomID  int    `yaml:"room_id"`
	Player1 string `yaml:"player1"`
	Player2 string `yaml:"player2"`
	Token   string `yaml:"token"`

	// Optional state service for result reporting; empty host logs only.
	StateHost string `yaml:"state_host"`
	StatePort int    `yaml:"state_port"`

	// Match pacing
	TickMillis int `yaml:"tick_millis"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// StateAddr returns the state service's host:port, or "" when unset.
func (c TetrisServer) StateAddr() string {
	if c.StateHost == "" {
		return ""
	}
	return net.JoinHostPort(c.StateHost, strconv.Itoa(c.StatePort))
}

// Tick returns the match gravity tick as a duration.
func (c TetrisServer) Tick() time.Duration {
	return time.Duration(c.TickMillis) * time.Millisecond
}

// DefaultTetrisServer returns TetrisServer config with sensible defaults.
func DefaultTetrisServer() TetrisServer {
	return TetrisServer{
		BindAddress: "0.0.0.0",
		Port:        constants.DefaultMatchPort,
		RoomID:      1,
		Player1:     "p1",
		Player2:     "p2",
		Token:       "demo",
		StatePort:   constants.DefaultStatePort,
		TickMillis:  constants.DefaultTickMillis,
		LogLevel:    "info",
	}
}

// LoadTetrisServer loads standalone match config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadTetrisServer(path string) (TetrisServer, error) {
	cfg := DefaultTetrisServer()
	if err := loadInto(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseLogLevel converts a config log level string to slog.Level.
// Defaults to Info if invalid or empty.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadInto(path string, cfg any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}
