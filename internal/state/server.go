package state

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/okonogi/gamehall/internal/config"
	"github.com/okonogi/gamehall/internal/protocol"
	"github.com/okonogi/gamehall/internal/wirelog"
)

// Server is the state service's framed TCP front.
// Each connection is strict request/response: one frame in, one frame out.
type Server struct {
	cfg     config.StateService
	store   *Store
	handler *Handler

	listener net.Listener
	mu       sync.Mutex
}

// NewServer creates a state service server over the given store.
func NewServer(cfg config.StateService, store *Store) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		handler: NewHandler(store),
	}
}

// Addr returns the listening address, or nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the listener and stops accepting.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run listens on cfg.BindAddress:cfg.Port and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve accepts connections on a ready listener.
// Split from Run so tests can serve on an arbitrary listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-done:
		}
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		slog.Info("state service started", "address", ln.Addr())
		acceptLoop(ctx, &wg, s, ln)
	})

	wg.Wait()

	return nil
}

func acceptLoop(ctx context.Context, wg *sync.WaitGroup, srv *Server, ln net.Listener) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				slog.Error("Failed to accept new connection", "error", err)
				continue
			}
			wg.Go(func() {
				handleConnection(ctx, srv, conn)
			})
		}
	}
}

func handleConnection(ctx context.Context, srv *Server, conn net.Conn) {
	done := make(chan struct{})
	defer close(done)
	defer conn.Close()

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	remote := conn.RemoteAddr().String()
	slog.Debug("client connected", "remote", remote)

	for {
		req, err := protocol.ReadMessage(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				slog.Debug("client disconnected", "remote", remote)
			} else {
				slog.Warn("reading request", "remote", remote, "err", err)
			}
			return
		}

		reply := srv.handler.Handle(req)
		slog.Debug("command handled",
			"remote", remote,
			"request", wirelog.Sanitize(req),
			"reply", wirelog.Sanitize(reply),
		)

		if err := protocol.WriteMessage(conn, reply); err != nil {
			slog.Warn("writing reply", "remote", remote, "err", err)
			return
		}
	}
}
