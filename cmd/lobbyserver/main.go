package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/okonogi/gamehall/internal/config"
	"github.com/okonogi/gamehall/internal/db"
	"github.com/okonogi/gamehall/internal/lobby"
)

const ConfigPath = "config/lobbyserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("GAMEHALL_LOBBY_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadLobbyServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := applyArgs(&cfg, os.Args[1:]); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))
	slog.Info("gamehall lobby starting",
		"bind", cfg.BindAddress, "port", cfg.Port, "state_service", cfg.StateAddr())

	database, err := db.Dial(ctx, cfg.StateAddr())
	if err != nil {
		return fmt.Errorf("connecting to state service: %w", err)
	}
	defer database.Close()
	slog.Info("state service connected", "addr", database.Addr())

	srv := lobby.NewServer(cfg, database)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("lobby: %w", err)
	}
	return nil
}

// applyArgs overlays positional arguments: <bind-ip> <port> [state-addr].
func applyArgs(cfg *config.LobbyServer, args []string) error {
	if len(args) > 0 {
		cfg.BindAddress = args[0]
	}
	if len(args) > 1 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[1], err)
		}
		cfg.Port = port
	}
	if len(args) > 2 {
		host, portStr, err := net.SplitHostPort(args[2])
		if err != nil {
			return fmt.Errorf("invalid state service address %q: %w", args[2], err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid state service port %q: %w", portStr, err)
		}
		cfg.StateHost, cfg.StatePort = host, port
	}
	return nil
}
