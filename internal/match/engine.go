package match

// Engine is the ruleset a match runtime drives. The runtime owns sockets,
// seats, and the tick clock; the engine owns one player's board and score.
// Engines are only ever touched from the runtime's run goroutine.
type Engine interface {
	// Tick advances gravity by one step.
	Tick()
	// Apply runs one player action. Unknown actions are ignored.
	Apply(action string)
	// Over reports whether this board is finished.
	Over() bool
	Score() int
	Lines() int
	// Board returns the fixed-length wire serialization of the board.
	Board() string
}

// EngineFactory builds one player's engine from the shared match seed. The
// runtime calls it twice with the same seed so both boards deal the same
// pieces.
type EngineFactory func(seed int64) Engine
