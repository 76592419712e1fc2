package match

import (
	"context"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okonogi/gamehall/internal/config"
	"github.com/okonogi/gamehall/internal/db"
	"github.com/okonogi/gamehall/internal/protocol"
	"github.com/okonogi/gamehall/internal/state"
	"github.com/okonogi/gamehall/internal/tetris"
)

// stubEngine is a scriptable Engine. It carries its own lock because tests
// poke it from outside the run goroutine.
type stubEngine struct {
	mu      sync.Mutex
	ticks   int
	applied []string
	over    bool
	score   int
	lines   int
}

func (e *stubEngine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticks++
}

func (e *stubEngine) Apply(action string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applied = append(e.applied, action)
}

func (e *stubEngine) Over() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.over
}

func (e *stubEngine) Score() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score
}

func (e *stubEngine) Lines() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lines
}

func (e *stubEngine) Board() string {
	return strings.Repeat("0", 200)
}

func (e *stubEngine) setScore(score int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.score = score
}

func (e *stubEngine) setOver(score int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.over = true
	e.score = score
}

func (e *stubEngine) appliedActions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.applied)
}

type stubFactory struct {
	mu      sync.Mutex
	engines []*stubEngine
}

func (f *stubFactory) new(int64) Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &stubEngine{}
	f.engines = append(f.engines, e)
	return e
}

func (f *stubFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func (f *stubFactory) engine(i int) *stubEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[i]
}

// startMatch serves cfg on a loopback listener. The returned channel closes
// when Serve returns.
func startMatch(t *testing.T, cfg Config) (addr string, srv *Server, done chan struct{}) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv = NewServer(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done = make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("match runtime did not stop")
		}
	})

	return ln.Addr().String(), srv, done
}

func dialMatch(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func joinMatch(t *testing.T, addr, hello string) (net.Conn, string) {
	t.Helper()
	conn := dialMatch(t, addr)
	require.NoError(t, protocol.WriteMessage(conn, hello))
	return conn, readFrame(t, conn)
}

func readFrame(t *testing.T, conn net.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msg, err := protocol.ReadMessage(conn)
	require.NoError(t, err)
	return msg
}

func readUntilPrefix(t *testing.T, conn net.Conn, prefix string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msg := readFrame(t, conn)
		if strings.HasPrefix(msg, prefix) {
			return msg
		}
	}
	t.Fatalf("no frame with prefix %q", prefix)
	return ""
}

func TestAdmissionSeatsAndSpectators(t *testing.T) {
	factory := &stubFactory{}
	cfg := Config{
		RoomID:       1,
		Player1:      "alice",
		Player2:      "bob",
		Token:        "tok123",
		TickInterval: time.Hour,
		NewEngine:    factory.new,
	}
	addr, srv, _ := startMatch(t, cfg)
	seed := strconv.FormatInt(srv.Seed(), 10)

	_, reply := joinMatch(t, addr, "HELLO username=alice token=tok123")
	require.True(t, strings.HasPrefix(reply, "WELCOME "), "reply %q", reply)
	f := protocol.ParseFields(reply)
	assert.Equal(t, "P1", f["role"])
	assert.Equal(t, seed, f["seed"])
	assert.Equal(t, "7", f["bag"])
	assert.Equal(t, strconv.Itoa(int(time.Hour.Milliseconds())), f["gravity"])

	// Same username again: the seat is taken, so they watch.
	_, reply = joinMatch(t, addr, "HELLO username=alice token=tok123")
	assert.Equal(t, "SPEC", protocol.ParseFields(reply)["role"])

	// A stranger with the right token watches too.
	_, reply = joinMatch(t, addr, "HELLO username=carol token=tok123")
	assert.Equal(t, "SPEC", protocol.ParseFields(reply)["role"])

	// An explicit SPEC from a seat owner must not consume the seat.
	_, reply = joinMatch(t, addr, "HELLO username=bob token=tok123 role=SPEC")
	assert.Equal(t, "SPEC", protocol.ParseFields(reply)["role"])

	_, reply = joinMatch(t, addr, "HELLO username=bob token=tok123")
	assert.Equal(t, "P2", protocol.ParseFields(reply)["role"])
	assert.Equal(t, seed, protocol.ParseFields(reply)["seed"])
}

func TestAdmissionRejects(t *testing.T) {
	factory := &stubFactory{}
	cfg := Config{
		RoomID:       1,
		Player1:      "alice",
		Player2:      "bob",
		Token:        "tok123",
		TickInterval: time.Hour,
		NewEngine:    factory.new,
	}
	addr, _, _ := startMatch(t, cfg)

	conn, reply := joinMatch(t, addr, "HELLO username=alice token=WRONG")
	assert.Equal(t, "ERR invalid_player_or_token", reply)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := protocol.ReadMessage(conn)
	assert.Error(t, err, "rejected connections must be closed")

	// Any first frame that is not a HELLO is rejected the same way.
	conn, reply = joinMatch(t, addr, "INPUT LEFT")
	assert.Equal(t, "ERR invalid_player_or_token", reply)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = protocol.ReadMessage(conn)
	assert.Error(t, err)

	// Rejections must not burn the seat.
	_, reply = joinMatch(t, addr, "HELLO username=alice token=tok123")
	assert.Equal(t, "P1", protocol.ParseFields(reply)["role"])
}

func TestSeatFreedBeforeStart(t *testing.T) {
	factory := &stubFactory{}
	cfg := Config{
		RoomID:       1,
		Player1:      "alice",
		Player2:      "bob",
		Token:        "tok123",
		TickInterval: time.Hour,
		NewEngine:    factory.new,
	}
	addr, _, _ := startMatch(t, cfg)

	conn, reply := joinMatch(t, addr, "HELLO username=alice token=tok123")
	require.Equal(t, "P1", protocol.ParseFields(reply)["role"])
	conn.Close()

	// The close races the rejoin, so retry until the freed seat is ours.
	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		defer c.Close()
		if err := protocol.WriteMessage(c, "HELLO username=alice token=tok123"); err != nil {
			return false
		}
		c.SetReadDeadline(time.Now().Add(time.Second))
		welcome, err := protocol.ReadMessage(c)
		return err == nil && protocol.ParseFields(welcome)["role"] == "P1"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestMatchLifecycle(t *testing.T) {
	factory := &stubFactory{}
	var calls atomic.Int32
	results := make(chan Result, 1)
	cfg := Config{
		RoomID:       7,
		Player1:      "alice",
		Player2:      "bob",
		Token:        "t0k",
		TickInterval: 20 * time.Millisecond,
		Seed:         4242,
		NewEngine:    factory.new,
		OnFinish: func(r Result) {
			calls.Add(1)
			results <- r
		},
	}
	addr, _, done := startMatch(t, cfg)

	p1, reply := joinMatch(t, addr, "HELLO username=alice token=t0k")
	require.Equal(t, "P1", protocol.ParseFields(reply)["role"])
	p2, reply := joinMatch(t, addr, "HELLO username=bob token=t0k")
	require.Equal(t, "P2", protocol.ParseFields(reply)["role"])
	spec, reply := joinMatch(t, addr, "HELLO username=carol token=t0k")
	require.Equal(t, "SPEC", protocol.ParseFields(reply)["role"])

	// Every tick fans out one snapshot per seat, in seat order, to every
	// connection.
	snap := readUntilPrefix(t, p1, "SNAPSHOT")
	f := protocol.ParseFields(snap)
	assert.Equal(t, "alice", f["user"])
	assert.Equal(t, "0", f["score"])
	assert.Equal(t, "0", f["gameover"])
	assert.Len(t, f["board"], 200)
	f = protocol.ParseFields(readFrame(t, p1))
	assert.Equal(t, "bob", f["user"])
	readUntilPrefix(t, spec, "SNAPSHOT")

	// Player input reaches that player's engine only; spectator input goes
	// nowhere.
	require.NoError(t, protocol.WriteMessage(p1, "INPUT LEFT"))
	require.NoError(t, protocol.WriteMessage(spec, "INPUT RIGHT"))
	require.Eventually(t, func() bool {
		return slices.Contains(factory.engine(0).appliedActions(), "LEFT")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, factory.engine(1).appliedActions())
	assert.NotContains(t, factory.engine(0).appliedActions(), "RIGHT")

	// Ending one board ends the match for everyone.
	factory.engine(1).setScore(75)
	factory.engine(0).setOver(150)

	for _, conn := range []net.Conn{p1, p2, spec} {
		over := readUntilPrefix(t, conn, "GAME_OVER")
		assert.Equal(t, "GAME_OVER p1_score=150 p2_score=75", over)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("match runtime did not finish")
	}

	res := <-results
	assert.Equal(t, Result{RoomID: 7, Player1: "alice", Score1: 150, Player2: "bob", Score2: 75}, res)
	assert.EqualValues(t, 1, calls.Load(), "completion must be reported exactly once")

	p1.SetReadDeadline(time.Now().Add(time.Second))
	_, err := protocol.ReadMessage(p1)
	assert.Error(t, err, "connections must be closed after the match")
}

func TestForfeitAfterStart(t *testing.T) {
	results := make(chan Result, 1)
	cfg := Config{
		RoomID:       2,
		Player1:      "alice",
		Player2:      "bob",
		Token:        "demo",
		TickInterval: 20 * time.Millisecond,
		NewEngine:    func(seed int64) Engine { return tetris.NewGame(seed) },
		OnFinish:     func(r Result) { results <- r },
	}
	addr, _, done := startMatch(t, cfg)

	p1, _ := joinMatch(t, addr, "HELLO username=alice token=demo")
	p2, _ := joinMatch(t, addr, "HELLO username=bob token=demo")

	snap := protocol.ParseFields(readUntilPrefix(t, p2, "SNAPSHOT"))
	require.Len(t, snap["board"], 200)
	require.Equal(t, "0", snap["gameover"])

	p1.Close()

	over := readUntilPrefix(t, p2, "GAME_OVER")
	f := protocol.ParseFields(over)
	assert.Contains(t, f, "p1_score")
	assert.Contains(t, f, "p2_score")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("match runtime did not finish")
	}
	res := <-results
	assert.Equal(t, 2, res.RoomID)
	assert.Equal(t, "alice", res.Player1)
}

func TestFallbackReportsToStateService(t *testing.T) {
	stateLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	stateSrv := state.NewServer(config.DefaultStateService(), state.NewStore())
	stateCtx, stateCancel := context.WithCancel(context.Background())
	stateDone := make(chan struct{})
	go func() {
		defer close(stateDone)
		stateSrv.Serve(stateCtx, stateLn)
	}()
	t.Cleanup(func() {
		stateCancel()
		select {
		case <-stateDone:
		case <-time.After(5 * time.Second):
			t.Error("state server did not stop")
		}
	})
	stateAddr := stateLn.Addr().String()

	dbc, err := db.Dial(context.Background(), stateAddr)
	require.NoError(t, err)
	t.Cleanup(func() { dbc.Close() })
	ctx := context.Background()
	reply, err := dbc.Request(ctx, "Room create name=arena host=alice visibility=public")
	require.NoError(t, err)
	require.Equal(t, "OK roomId=1", reply)
	require.NoError(t, dbc.SetRoomStatus(ctx, 1, "playing"))

	factory := &stubFactory{}
	cfg := Config{
		RoomID:       1,
		Player1:      "alice",
		Player2:      "bob",
		Token:        "t0k",
		TickInterval: 20 * time.Millisecond,
		NewEngine:    factory.new,
		StateAddr:    stateAddr,
	}
	addr, _, done := startMatch(t, cfg)

	joinMatch(t, addr, "HELLO username=alice token=t0k")
	joinMatch(t, addr, "HELLO username=bob token=t0k")

	require.Eventually(t, func() bool { return factory.count() == 2 }, 5*time.Second, 10*time.Millisecond)
	factory.engine(1).setScore(40)
	factory.engine(0).setOver(90)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("match runtime did not finish")
	}

	room, err := dbc.GetRoom(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "idle", room.Status)

	logs, err := dbc.Request(ctx, "GameLog list")
	require.NoError(t, err)
	assert.Equal(t, "OK id=1 room=1 p1=alice s1=90 p2=bob s2=40;", logs)
}

func TestServeRequiresEngineFactory(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(Config{})
	err = srv.Serve(context.Background(), ln)
	require.Error(t, err)
}
