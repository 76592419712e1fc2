package model

// Room visibility values.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Room status values.
const (
	StatusIdle    = "idle"
	StatusPlaying = "playing"
)

// Room is a matchmaking container holding up to two seated players.
// P1 is always the host while the host is present; P2 is empty until a
// guest joins. Token is set only while a match is running.
type Room struct {
	ID         int
	Name       string
	Host       string
	Visibility string
	Status     string
	P1         string
	P2         string
	Token      string
	Invites    map[string]struct{}
	Spectators map[string]struct{}
}

// NewRoom creates an idle room hosted (and seated as P1) by host.
func NewRoom(id int, name, host, visibility string) *Room {
	return &Room{
		ID:         id,
		Name:       name,
		Host:       host,
		Visibility: visibility,
		Status:     StatusIdle,
		P1:         host,
		Invites:    make(map[string]struct{}),
		Spectators: make(map[string]struct{}),
	}
}

// Seated reports whether user holds one of the two seats.
func (r *Room) Seated(user string) bool {
	return user == r.P1 || (r.P2 != "" && user == r.P2)
}
