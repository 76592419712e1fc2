// Package state implements the authoritative store of users, rooms, and
// game logs behind the state service's framed command protocol.
package state

import (
	"errors"
	"sort"
	"sync"

	"github.com/okonogi/gamehall/internal/model"
)

// Store errors carry the wire error kind as their message; the handler
// forwards them as `ERR <kind>` verbatim.
var (
	ErrExists        = errors.New("exists")
	ErrNotFound      = errors.New("not_found")
	ErrMismatch      = errors.New("mismatch")
	ErrPlaying       = errors.New("playing")
	ErrFull          = errors.New("full")
	ErrAlreadyInRoom = errors.New("already_in_room")
	ErrNotInvited    = errors.New("private_room_not_invited")
	ErrNotHost       = errors.New("not_host")
	ErrNotPlaying    = errors.New("not_playing")
	ErrNotSpectating = errors.New("not_spectating")
	ErrNotInRoom     = errors.New("not_in_room")
)

// Store holds all durable state. Every exported method is one atomic
// command: it acquires the store lock, runs to completion, and only then
// can the next command observe the result.
type Store struct {
	mu         sync.RWMutex
	users      map[string]*model.User
	rooms      map[int]*model.Room
	logs       []model.GameLog
	nextRoomID int
	nextLogID  int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:      make(map[string]*model.User),
		rooms:      make(map[int]*model.Room),
		nextRoomID: 1,
		nextLogID:  1,
	}
}

// CreateUser registers a new user with online=false.
func (s *Store) CreateUser(username, pass string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return ErrExists
	}
	s.users[username] = &model.User{Username: username, Pass: pass}
	return nil
}

// ReadUser returns a copy of the user record.
func (s *Store) ReadUser(username string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return *u, nil
}

// CompareSetOnline atomically flips the online flag from expect to value.
// This is the primitive that makes duplicate logins impossible: two racing
// LOGINs both expect online=false, and only one CAS can win.
func (s *Store) CompareSetOnline(username string, expect, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return ErrNotFound
	}
	if u.Online != expect {
		return ErrMismatch
	}
	u.Online = value
	return nil
}

// SetOnline unconditionally sets the online flag (logout and reaper paths).
func (s *Store) SetOnline(username string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return ErrNotFound
	}
	u.Online = online
	return nil
}

// ListOnline returns the usernames currently online, sorted.
func (s *Store) ListOnline() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var online []string
	for _, u := range s.users {
		if u.Online {
			online = append(online, u.Username)
		}
	}
	sort.Strings(online)
	return online
}

// CreateRoom creates an idle room and returns its id.
func (s *Store) CreateRoom(name, host, visibility string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if visibility != model.VisibilityPrivate {
		visibility = model.VisibilityPublic
	}
	id := s.nextRoomID
	s.nextRoomID++
	s.rooms[id] = model.NewRoom(id, name, host, visibility)
	return id
}

// JoinRoom seats user as P2.
func (s *Store) JoinRoom(id int, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status == model.StatusPlaying {
		return ErrPlaying
	}
	if r.Seated(user) {
		return ErrAlreadyInRoom
	}
	if r.P2 != "" {
		return ErrFull
	}
	if r.Visibility == model.VisibilityPrivate {
		if _, invited := r.Invites[user]; !invited {
			return ErrNotInvited
		}
	}
	delete(r.Invites, user)
	r.P2 = user
	return nil
}

// LeaveRoom removes user from the room. The rules run in order: spectators
// just leave; a departing host hands the room to P2 or, alone, closes it
// (closed=true); a departing P2 frees the seat. Host departure and seat
// changes reset the round state (status, token, spectators), keeping any
// pending invites.
func (s *Store) LeaveRoom(id int, user string) (closed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return false, ErrNotFound
	}

	if _, spec := r.Spectators[user]; spec {
		delete(r.Spectators, user)
		return false, nil
	}

	switch user {
	case r.Host:
		if r.P2 == "" {
			delete(s.rooms, id)
			return true, nil
		}
		r.Host = r.P2
		r.P1 = r.P2
		r.P2 = ""
		resetRound(r)
		return false, nil
	case r.P2:
		r.P2 = ""
		resetRound(r)
		return false, nil
	}
	return false, ErrNotInRoom
}

// resetRound clears the state that only matters while a match is live.
func resetRound(r *model.Room) {
	r.Status = model.StatusIdle
	r.Token = ""
	r.Spectators = make(map[string]struct{})
}

// ListRooms returns copies of all public rooms, sorted by id.
func (s *Store) ListRooms() []model.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rooms []model.Room
	for _, r := range s.rooms {
		if r.Visibility == model.VisibilityPublic {
			rooms = append(rooms, cloneRoom(r))
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

// GetRoom returns a copy of the room.
func (s *Store) GetRoom(id int) (model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[id]
	if !ok {
		return model.Room{}, ErrNotFound
	}
	return cloneRoom(r), nil
}

// SetRoomStatus updates the status. Returning to idle ends the round:
// token, invites, and spectators are all cleared.
func (s *Store) SetRoomStatus(id int, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	if status == model.StatusIdle {
		r.Token = ""
		r.Invites = make(map[string]struct{})
		r.Spectators = make(map[string]struct{})
	}
	return nil
}

// SetRoomToken stores the match token issued by the lobby.
func (s *Store) SetRoomToken(id int, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return ErrNotFound
	}
	r.Token = token
	return nil
}

// InviteToRoom authorizes user to join a private room. Only the current
// host may invite.
func (s *Store) InviteToRoom(id int, user, host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return ErrNotFound
	}
	if r.Host != host {
		return ErrNotHost
	}
	r.Invites[user] = struct{}{}
	return nil
}

// Spectate adds user to the room's spectator set; the room must be playing.
func (s *Store) Spectate(id int, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != model.StatusPlaying {
		return ErrNotPlaying
	}
	r.Spectators[user] = struct{}{}
	return nil
}

// Unspectate removes user from the room's spectator set.
func (s *Store) Unspectate(id int, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return ErrNotFound
	}
	if _, spec := r.Spectators[user]; !spec {
		return ErrNotSpectating
	}
	delete(r.Spectators, user)
	return nil
}

// ListInvites returns copies of the rooms holding an invite for user,
// sorted by id.
func (s *Store) ListInvites(user string) []model.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rooms []model.Room
	for _, r := range s.rooms {
		if _, invited := r.Invites[user]; invited {
			rooms = append(rooms, cloneRoom(r))
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

// CreateGameLog appends a finished-match record and returns its id.
func (s *Store) CreateGameLog(roomID int, user1, user2 string, score1, score2 int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextLogID
	s.nextLogID++
	s.logs = append(s.logs, model.GameLog{
		ID:     id,
		RoomID: roomID,
		User1:  user1,
		User2:  user2,
		Score1: score1,
		Score2: score2,
	})
	return id
}

// GameLogs returns a copy of all match records in creation order.
func (s *Store) GameLogs() []model.GameLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]model.GameLog, len(s.logs))
	copy(logs, s.logs)
	return logs
}

func cloneRoom(r *model.Room) model.Room {
	c := *r
	c.Invites = make(map[string]struct{}, len(r.Invites))
	for u := range r.Invites {
		c.Invites[u] = struct{}{}
	}
	c.Spectators = make(map[string]struct{}, len(r.Spectators))
	for u := range r.Spectators {
		c.Spectators[u] = struct{}{}
	}
	return c
}
