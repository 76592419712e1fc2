// Package lobby is the user-facing front of the platform: registration,
// login, rooms, invites, spectating, and match launch. It holds no durable
// state of its own; every fact that matters lives in the state service,
// reached over one shared framed connection.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/okonogi/gamehall/internal/config"
	"github.com/okonogi/gamehall/internal/db"
	"github.com/okonogi/gamehall/internal/match"
	"github.com/okonogi/gamehall/internal/protocol"
	"github.com/okonogi/gamehall/internal/tetris"
	"github.com/okonogi/gamehall/internal/wirelog"
)

const reconcileTimeout = 5 * time.Second

// ServerOption is a functional option for Server configuration.
type ServerOption func(*Server)

// WithEngineFactory overrides the rules engine started matches run.
func WithEngineFactory(f match.EngineFactory) ServerOption {
	return func(s *Server) {
		s.newEngine = f
	}
}

// Server is the lobby. It owns the session set, the game registry, the
// match port allocator, and the shared state service client.
type Server struct {
	cfg       config.LobbyServer
	db        *db.Client
	sessions  *Sessions
	games     *GameRegistry
	ports     *PortAllocator
	newEngine match.EngineFactory

	// stop tears the whole lobby down once the state service connection
	// is lost.
	stop context.CancelCauseFunc
	wg   *sync.WaitGroup

	listener net.Listener
	mu       sync.Mutex
}

// NewServer creates a lobby over an established state service client.
func NewServer(cfg config.LobbyServer, dbc *db.Client, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		db:       dbc,
		sessions: NewSessions(),
		games:    NewGameRegistry(),
		ports:    NewPortAllocator(cfg.MatchPortMin, cfg.MatchPortMax, cfg.MatchPortTries),
		newEngine: func(seed int64) match.Engine {
			return tetris.NewGame(seed)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Games exposes the registry of live matches.
func (s *Server) Games() *GameRegistry {
	return s.games
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

// Run listens on cfg.BindAddress:cfg.Port and serves until ctx is done or
// the state service connection dies.
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

// Serve accepts lobby connections on a ready listener. It returns nil on
// ordinary shutdown and the fatal cause when the lobby stopped itself.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	s.stop = cancel

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
	s.wg = &wg
	wg.Go(func() {
		slog.Info("lobby started", "address", ln.Addr(), "state_service", s.db.Addr())
		acceptLoop(ctx, &wg, s, ln)
	})

	wg.Wait()

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
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

	sess := NewSession(conn)
	srv.sessions.Add(sess)
	defer func() {
		srv.sessions.Remove(sess)
		srv.release(sess)
	}()

	remote := sess.RemoteAddr()
	slog.Debug("client connected", "remote", remote)

	if err := sess.Send("WELCOME LOBBY"); err != nil {
		slog.Debug("greeting client", "remote", remote, "err", err)
		return
	}

	for {
		line, err := protocol.ReadMessage(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				slog.Debug("client disconnected", "remote", remote, "user", sess.Username())
			} else {
				slog.Warn("reading command", "remote", remote, "err", err)
			}
			return
		}
		slog.Debug("command received", "remote", remote, "command", wirelog.Sanitize(line))
		srv.handleCommand(ctx, sess, line)
	}
}

// release reconciles a session that logged out or vanished: presence off,
// seat freed, spectate slot freed. Fire and forget; failures are logged
// and settle on the state service's next boot.
func (s *Server) release(sess *Session) {
	if !sess.Authed() {
		return
	}
	username := sess.Username()

	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	if _, err := s.db.Request(ctx, "User setOnline username="+username+" online=0"); err != nil {
		slog.Warn("releasing presence", "user", username, "err", err)
	}
	if id := sess.RoomID(); id != 0 {
		if _, err := s.db.Request(ctx, fmt.Sprintf("Room leave roomId=%d user=%s", id, username)); err != nil {
			slog.Warn("releasing seat", "user", username, "room", id, "err", err)
		}
	}
	if id := sess.SpectateRoomID(); id != 0 {
		if _, err := s.db.Request(ctx, fmt.Sprintf("Room unspectate roomId=%d user=%s", id, username)); err != nil {
			slog.Warn("releasing spectate slot", "user", username, "room", id, "err", err)
		}
	}
	sess.Reset()
	slog.Info("session released", "user", username)
}

// request runs one state service command on the shared connection. A
// transport failure is fatal to the whole lobby: the caller gets ERR db to
// pass on, and the server begins shutting down.
func (s *Server) request(ctx context.Context, cmd string) (string, bool) {
	reply, err := s.db.Request(ctx, cmd)
	if err != nil {
		slog.Error("state service connection lost", "err", err)
		s.stop(fmt.Errorf("state service connection lost: %w", err))
		return "ERR db", false
	}
	return reply, true
}
