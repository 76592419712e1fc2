package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/okonogi/gamehall/internal/config"
	"github.com/okonogi/gamehall/internal/state"
)

const ConfigPath = "config/stateserver.yaml"

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
	if p := os.Getenv("GAMEHALL_STATE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadStateService(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := applyArgs(&cfg, os.Args[1:]); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))
	slog.Info("gamehall state service starting",
		"bind", cfg.BindAddress, "port", cfg.Port, "snapshot", cfg.SnapshotPath)

	store := state.NewStore()
	if err := store.LoadFile(cfg.SnapshotPath); err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}

	srv := state.NewServer(cfg, store)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("state service: %w", err)
	}

	// Clean shutdown is the only moment state hits disk.
	if err := store.SaveFile(cfg.SnapshotPath); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	slog.Info("snapshot written", "path", cfg.SnapshotPath)
	return nil
}

// applyArgs overlays positional arguments: <bind-ip> <port> [snapshot-path].
func applyArgs(cfg *config.StateService, args []string) error {
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
		cfg.SnapshotPath = args[2]
	}
	return nil
}
