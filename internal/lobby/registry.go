package lobby

import "sync"

// GameEntry locates one live match runtime.
type GameEntry struct {
	Port  int
	Token string
}

// GameRegistry maps room ids with a running match to its endpoint. An
// entry lives from just before the runtime starts accepting until the
// completion callback (or the runtime's exit) removes it.
type GameRegistry struct {
	mu    sync.Mutex
	games map[int]GameEntry
}

// NewGameRegistry returns an empty registry.
func NewGameRegistry() *GameRegistry {
	return &GameRegistry{games: make(map[int]GameEntry)}
}

// Add records a starting match.
func (r *GameRegistry) Add(roomID int, entry GameEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[roomID] = entry
}

// Lookup returns the entry for roomID, if a match is live.
func (r *GameRegistry) Lookup(roomID int) (GameEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.games[roomID]
	return entry, ok
}

// Remove deletes the entry for roomID. Removing twice is harmless.
func (r *GameRegistry) Remove(roomID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.games, roomID)
}
