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
	"github.com/okonogi/gamehall/internal/match"
	"github.com/okonogi/gamehall/internal/tetris"
)

const ConfigPath = "config/tetrisserver.yaml"

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

// run hosts exactly one match and returns when it ends.
func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("GAMEHALL_TETRIS_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadTetrisServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := applyArgs(&cfg, os.Args[1:]); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))
	slog.Info("gamehall tetris server starting",
		"bind", cfg.BindAddress, "port", cfg.Port,
		"p1", cfg.Player1, "p2", cfg.Player2)

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port))
	if err != nil {
		return fmt.Errorf("binding match port: %w", err)
	}

	srv := match.NewServer(match.Config{
		RoomID:       cfg.RoomID,
		Player1:      cfg.Player1,
		Player2:      cfg.Player2,
		Token:        cfg.Token,
		TickInterval: cfg.Tick(),
		NewEngine: func(seed int64) match.Engine {
			return tetris.NewGame(seed)
		},
		StateAddr: cfg.StateAddr(),
	})

	if err := srv.Serve(ctx, ln); err != nil {
		return fmt.Errorf("match runtime: %w", err)
	}
	return nil
}

// applyArgs overlays positional arguments: [port [p1 p2]].
func applyArgs(cfg *config.TetrisServer, args []string) error {
	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[0], err)
		}
		cfg.Port = port
	}
	if len(args) > 1 {
		cfg.Player1 = args[1]
	}
	if len(args) > 2 {
		cfg.Player2 = args[2]
	}
	return nil
}
