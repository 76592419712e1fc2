package lobby

import (
	"net"
	"sync"

	"github.com/okonogi/gamehall/internal/protocol"
)

// Session is one client connection's lobby-side state: who is logged in on
// it and which room or spectate slot it currently holds. The room fields
// mirror what the state service has confirmed, nothing more.
type Session struct {
	conn net.Conn

	// writeMu serializes outbound frames. Synchronous replies and pushed
	// notifications come from different goroutines and must never
	// interleave on the socket.
	writeMu sync.Mutex

	mu             sync.Mutex
	username       string
	authed         bool
	roomID         int
	spectateRoomID int
}

// NewSession wraps a freshly accepted connection, unauthenticated.
func NewSession(conn net.Conn) *Session {
	return &Session{conn: conn}
}

// Send writes one frame to the client.
func (s *Session) Send(msg string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.WriteMessage(s.conn, msg)
}

// RemoteAddr returns the peer address for logging.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// Username returns the logged-in username, empty when unauthenticated.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Authed reports whether LOGIN has succeeded on this connection.
func (s *Session) Authed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authed
}

// SetAuthed marks the session logged in as username.
func (s *Session) SetAuthed(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
	s.authed = true
}

// RoomID returns the room this session is seated in, 0 when none.
func (s *Session) RoomID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// SetRoomID records the seat confirmed by the state service.
func (s *Session) SetRoomID(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = id
}

// SpectateRoomID returns the room this session spectates, 0 when none.
func (s *Session) SpectateRoomID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spectateRoomID
}

// SetSpectateRoomID records the spectate slot confirmed by the state
// service.
func (s *Session) SetSpectateRoomID(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spectateRoomID = id
}

// Reset returns the session to the unauthenticated state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = ""
	s.authed = false
	s.roomID = 0
	s.spectateRoomID = 0
}

// Sessions tracks every live connection so pushed notifications can find a
// user's socket and LOGIN can fast-path its duplicate check. The state
// service CAS stays the authority; this set is best effort.
type Sessions struct {
	mu  sync.Mutex
	all map[*Session]struct{}
}

// NewSessions returns an empty session set.
func NewSessions() *Sessions {
	return &Sessions{all: make(map[*Session]struct{})}
}

// Add registers a connection.
func (r *Sessions) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all[s] = struct{}{}
}

// Remove unregisters a connection.
func (r *Sessions) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.all, s)
}

// FindByUsername returns the authed session holding username, nil when the
// user has no live connection.
func (r *Sessions) FindByUsername(username string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.all {
		if s.Authed() && s.Username() == username {
			return s
		}
	}
	return nil
}

// Count returns the number of live connections.
func (r *Sessions) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.all)
}
