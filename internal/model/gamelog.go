package model

// GameLog is an immutable record of one finished match.
type GameLog struct {
	ID     int
	RoomID int
	User1  string
	User2  string
	Score1 int
	Score2 int
}
