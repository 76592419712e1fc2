package model

// User represents a registered participant.
// Pass is an opaque shared secret compared by equality; Online is the
// presence flag the lobby flips on login/logout.
type User struct {
	Username string
	Pass     string
	Online   bool
}
