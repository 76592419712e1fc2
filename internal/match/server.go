// Package match runs one room's real-time game round: it admits the two
// seated players and any spectators, drives both engines on a fixed tick,
// fans out board snapshots, and reports the result when either board ends.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/okonogi/gamehall/internal/constants"
	"github.com/okonogi/gamehall/internal/db"
	"github.com/okonogi/gamehall/internal/protocol"
)

const eventBacklog = 64

// Config describes one match.
type Config struct {
	RoomID  int
	Player1 string
	Player2 string
	// Token gates admission; the lobby hands it to both players and to
	// approved spectators.
	Token        string
	TickInterval time.Duration
	// Seed drives both piece bags. Zero picks a random seed.
	Seed      int64
	NewEngine EngineFactory
	// OnFinish, when set, receives the result exactly once. When nil the
	// runtime falls back to reporting straight to the state service at
	// StateAddr; with neither, the result is only logged.
	OnFinish  func(Result)
	StateAddr string
}

// Result is the outcome handed to OnFinish.
type Result struct {
	RoomID  int
	Player1 string
	Score1  int
	Player2 string
	Score2  int
}

type role int

const (
	roleNone role = iota
	rolePlayer
	roleSpectator
)

type client struct {
	conn net.Conn
	name string
	role role
	seat int
	// closed marks a connection the loop has given up on; writes skip it.
	closed bool
}

type eventKind int

const (
	evMessage eventKind = iota
	evClosed
)

type event struct {
	kind eventKind
	c    *client
	line string
	err  error
}

// Server is one match runtime. All fields below cfg are owned by the run
// goroutine; nothing else reads or writes them.
type Server struct {
	cfg  Config
	seed int64

	seats      [2]*client
	spectators map[*client]struct{}
	engines    [2]Engine
	forfeit    [2]bool
	started    bool
}

// NewServer builds a runtime for one round. The seed is fixed here so every
// joiner, however early, learns the same value.
func NewServer(cfg Config) *Server {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = constants.DefaultTickMillis * time.Millisecond
	}
	seed := cfg.Seed
	for seed == 0 {
		seed = rand.Int64()
	}
	return &Server{
		cfg:        cfg,
		seed:       seed,
		spectators: make(map[*client]struct{}),
	}
}

// Seed returns the match seed sent to every joiner.
func (s *Server) Seed() int64 {
	return s.seed
}

// Serve accepts on ln and runs the match to completion. It returns once the
// round has ended and been reported, or once ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.NewEngine == nil {
		return errors.New("match: no engine factory configured")
	}

	events := make(chan event, eventBacklog)
	stop := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stop:
		}
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		s.acceptLoop(&wg, ln, events, stop)
	})

	slog.Info("match runtime started",
		"room", s.cfg.RoomID, "address", ln.Addr(),
		"p1", s.cfg.Player1, "p2", s.cfg.Player2)

	err := s.run(ctx, events)

	close(stop)
	ln.Close()
	wg.Wait()
	return err
}

func (s *Server) acceptLoop(wg *sync.WaitGroup, ln net.Listener, events chan<- event, stop <-chan struct{}) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("Failed to accept new connection", "error", err)
			continue
		}
		c := &client{conn: conn}
		wg.Go(func() {
			readLoop(c, events, stop)
		})
	}
}

// readLoop forwards a connection's frames to the run goroutine. The stop
// channel keeps it from blocking forever once the loop has exited.
func readLoop(c *client, events chan<- event, stop <-chan struct{}) {
	for {
		line, err := protocol.ReadMessage(c.conn)
		if err != nil {
			select {
			case events <- event{kind: evClosed, c: c, err: err}:
			case <-stop:
			}
			return
		}
		select {
		case events <- event{kind: evMessage, c: c, line: line}:
		case <-stop:
			return
		}
	}
}

// run is the match event loop. It owns every seat, engine, and socket
// write; readers and the ticker merely feed it.
func (s *Server) run(ctx context.Context, events <-chan event) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	defer s.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			switch ev.kind {
			case evMessage:
				s.handleMessage(ev.c, ev.line)
			case evClosed:
				s.handleClosed(ev.c)
			}
		case <-ticker.C:
			s.tick()
		}

		if s.started && s.overNow() {
			s.finish()
			return nil
		}
	}
}

func (s *Server) handleMessage(c *client, line string) {
	if c.role == roleNone {
		s.admit(c, line)
		return
	}
	action, ok := strings.CutPrefix(line, "INPUT ")
	if !ok {
		slog.Debug("ignoring frame", "room", s.cfg.RoomID, "from", c.name, "frame", line)
		return
	}
	if c.role != rolePlayer || !s.started {
		return
	}
	s.engines[c.seat].Apply(action)
}

// admit processes a connection's first frame, which must be a HELLO
// carrying the match token. Valid tokens naming a free seat take the seat;
// every other valid token watches.
func (s *Server) admit(c *client, line string) {
	f := protocol.ParseFields(line)
	if !strings.HasPrefix(line, "HELLO ") || f["token"] != s.cfg.Token {
		s.send(c, "ERR invalid_player_or_token")
		c.closed = true
		c.conn.Close()
		return
	}

	username := f["username"]
	seat := -1
	if f["role"] != "SPEC" {
		switch {
		case username == s.cfg.Player1 && s.seats[0] == nil:
			seat = 0
		case username == s.cfg.Player2 && s.seats[1] == nil:
			seat = 1
		}
	}

	c.name = username
	if seat >= 0 {
		c.role = rolePlayer
		c.seat = seat
		s.seats[seat] = c
		s.send(c, s.welcome(fmt.Sprintf("P%d", seat+1)))
		slog.Info("player seated", "room", s.cfg.RoomID, "user", username, "seat", seat+1)
		if s.seats[0] != nil && s.seats[1] != nil && !s.started {
			s.start()
		}
		return
	}

	c.role = roleSpectator
	s.spectators[c] = struct{}{}
	s.send(c, s.welcome("SPEC"))
	slog.Info("spectator admitted", "room", s.cfg.RoomID, "user", username)
}

func (s *Server) welcome(roleName string) string {
	return fmt.Sprintf("WELCOME role=%s seed=%d gravity=%d bag=%d",
		roleName, s.seed, s.cfg.TickInterval.Milliseconds(), constants.BagSize)
}

func (s *Server) start() {
	s.engines[0] = s.cfg.NewEngine(s.seed)
	s.engines[1] = s.cfg.NewEngine(s.seed)
	s.started = true
	slog.Info("match started", "room", s.cfg.RoomID, "seed", s.seed)
}

func (s *Server) handleClosed(c *client) {
	c.closed = true
	c.conn.Close()

	switch c.role {
	case roleSpectator:
		delete(s.spectators, c)
		slog.Debug("spectator left", "room", s.cfg.RoomID, "user", c.name)
	case rolePlayer:
		if !s.started {
			s.seats[c.seat] = nil
			slog.Info("seat freed", "room", s.cfg.RoomID, "user", c.name, "seat", c.seat+1)
			return
		}
		s.forfeit[c.seat] = true
		slog.Info("player forfeits by disconnect",
			"room", s.cfg.RoomID, "user", c.name, "seat", c.seat+1)
	}
}

func (s *Server) tick() {
	if !s.started {
		return
	}
	s.engines[0].Tick()
	s.engines[1].Tick()
	for seat := range s.seats {
		s.broadcast(s.snapshot(seat))
	}
}

func (s *Server) snapshot(seat int) string {
	name := s.cfg.Player1
	if seat == 1 {
		name = s.cfg.Player2
	}
	e := s.engines[seat]
	over := 0
	if e.Over() || s.forfeit[seat] {
		over = 1
	}
	return fmt.Sprintf("SNAPSHOT user=%s score=%d lines=%d gameover=%d board=%s",
		name, e.Score(), e.Lines(), over, e.Board())
}

func (s *Server) overNow() bool {
	return s.forfeit[0] || s.forfeit[1] || s.engines[0].Over() || s.engines[1].Over()
}

// finish ends the round: one GAME_OVER to everyone, then exactly one
// report.
func (s *Server) finish() {
	res := Result{
		RoomID:  s.cfg.RoomID,
		Player1: s.cfg.Player1,
		Score1:  s.engines[0].Score(),
		Player2: s.cfg.Player2,
		Score2:  s.engines[1].Score(),
	}
	s.broadcast(fmt.Sprintf("GAME_OVER p1_score=%d p2_score=%d", res.Score1, res.Score2))
	slog.Info("match over",
		"room", res.RoomID,
		"p1", res.Player1, "p1_score", res.Score1,
		"p2", res.Player2, "p2_score", res.Score2)
	s.report(res)
}

// report hands the result to the completion callback, or falls back to
// writing it straight to the state service. Failures are logged, not
// retried; the state service reconciles on its next boot.
func (s *Server) report(res Result) {
	if s.cfg.OnFinish != nil {
		s.cfg.OnFinish(res)
		return
	}
	if s.cfg.StateAddr == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := db.Dial(ctx, s.cfg.StateAddr)
	if err != nil {
		slog.Error("reporting match result", "room", res.RoomID, "error", err)
		return
	}
	defer client.Close()

	if _, err := client.CreateGameLog(ctx, res.RoomID, res.Player1, res.Score1, res.Player2, res.Score2); err != nil {
		slog.Error("writing game log", "room", res.RoomID, "error", err)
	}
	if err := client.SetRoomStatus(ctx, res.RoomID, "idle"); err != nil {
		slog.Error("resetting room status", "room", res.RoomID, "error", err)
	}
}

func (s *Server) broadcast(msg string) {
	for _, c := range s.seats {
		if c != nil {
			s.send(c, msg)
		}
	}
	for c := range s.spectators {
		s.send(c, msg)
	}
}

// send writes one frame, dropping the client on failure. The read loop
// will surface the close as an event for seat bookkeeping.
func (s *Server) send(c *client, msg string) {
	if c.closed {
		return
	}
	if err := protocol.WriteMessage(c.conn, msg); err != nil {
		slog.Debug("dropping unwritable client",
			"room", s.cfg.RoomID, "user", c.name, "error", err)
		c.closed = true
		c.conn.Close()
	}
}

func (s *Server) closeAll() {
	for _, c := range s.seats {
		if c != nil {
			c.conn.Close()
		}
	}
	for c := range s.spectators {
		c.conn.Close()
	}
}
