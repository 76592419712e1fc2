// Package tetris is the authoritative rules engine for the real-time game:
// board, piece bag, gravity, scoring. It knows nothing about sockets; the
// match runtime drives it through Tick and Apply.
package tetris

import "math/rand/v2"

// Board dimensions. The wire serialization is exactly Width*Height chars.
const (
	BoardWidth  = 10
	BoardHeight = 20
)

// Actions understood by Apply.
const (
	ActionLeft   = "LEFT"
	ActionRight  = "RIGHT"
	ActionDown   = "DOWN"
	ActionRotate = "ROTATE"
	ActionDrop   = "DROP"
	ActionHold   = "HOLD"
)

const (
	spawnX = 3
	spawnY = 0
)

// lineScores[n] is the award for clearing n rows with a single lock.
var lineScores = [5]int{0, 100, 300, 500, 800}

type piece struct {
	id    int
	cells [4][4]uint8
	x, y  int
}

// Game is one player's board. It is not safe for concurrent use; the match
// runtime owns each game from its run goroutine.
type Game struct {
	rng   *rand.Rand
	board [BoardHeight][BoardWidth]uint8
	bag   []int
	cur   piece
	hold  int
	held  bool
	score int
	lines int
	over  bool
}

// NewGame seeds the piece bag and spawns the first piece. Two games built
// from the same seed deal identical piece sequences.
func NewGame(seed int64) *Game {
	g := &Game{
		rng:  rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
		hold: -1,
	}
	g.spawn(g.draw())
	return g
}

// draw takes the next shape id from the bag, reshuffling all seven when it
// runs empty.
func (g *Game) draw() int {
	if len(g.bag) == 0 {
		g.bag = g.rng.Perm(len(shapes))
	}
	id := g.bag[0]
	g.bag = g.bag[1:]
	return id
}

// spawn places the shape at the spawn position. A collision right at spawn
// tops the game out.
func (g *Game) spawn(id int) {
	g.cur = piece{id: id, cells: shapes[id], x: spawnX, y: spawnY}
	g.held = false
	if g.collides(g.cur) {
		g.over = true
	}
}

// collides reports whether p overlaps a wall, the floor, or a locked cell.
func (g *Game) collides(p piece) bool {
	for y := range 4 {
		for x := range 4 {
			if p.cells[y][x] == 0 {
				continue
			}
			bx, by := p.x+x, p.y+y
			if bx < 0 || bx >= BoardWidth || by < 0 || by >= BoardHeight {
				return true
			}
			if g.board[by][bx] != 0 {
				return true
			}
		}
	}
	return false
}

// Tick applies one gravity step: the piece falls one row or, if it cannot,
// locks in place.
func (g *Game) Tick() {
	if g.over {
		return
	}
	if !g.move(0, 1) {
		g.lock()
	}
}

// Apply runs one player action. Unknown actions and input after game over
// are ignored.
func (g *Game) Apply(action string) {
	if g.over {
		return
	}
	switch action {
	case ActionLeft:
		g.move(-1, 0)
	case ActionRight:
		g.move(1, 0)
	case ActionDown:
		if g.move(0, 1) {
			g.score++
		}
	case ActionRotate:
		g.rotate()
	case ActionDrop:
		g.hardDrop()
	case ActionHold:
		g.holdPiece()
	}
}

// Over reports whether the board has topped out.
func (g *Game) Over() bool { return g.over }

// Score returns the accumulated score.
func (g *Game) Score() int { return g.score }

// Lines returns the total number of cleared rows.
func (g *Game) Lines() int { return g.lines }

// Board serializes the board as BoardWidth*BoardHeight digit characters,
// row-major from the top, with the falling piece stamped into the copy.
func (g *Game) Board() string {
	grid := g.board
	if !g.over {
		for y := range 4 {
			for x := range 4 {
				if g.cur.cells[y][x] == 0 {
					continue
				}
				bx, by := g.cur.x+x, g.cur.y+y
				if bx >= 0 && bx < BoardWidth && by >= 0 && by < BoardHeight {
					grid[by][bx] = uint8(g.cur.id + 1)
				}
			}
		}
	}

	buf := make([]byte, 0, BoardWidth*BoardHeight)
	for y := range BoardHeight {
		for x := range BoardWidth {
			buf = append(buf, '0'+grid[y][x])
		}
	}
	return string(buf)
}

// move shifts the current piece if the target cells are free.
func (g *Game) move(dx, dy int) bool {
	moved := g.cur
	moved.x += dx
	moved.y += dy
	if g.collides(moved) {
		return false
	}
	g.cur = moved
	return true
}

// rotate turns the piece clockwise, kicking one column left or right when
// the turned piece would overlap. All three placements blocked reverts the
// rotation.
func (g *Game) rotate() {
	turned := g.cur
	turned.cells = rotateCW(turned.cells)
	for _, kick := range [...]int{0, -1, 1} {
		try := turned
		try.x += kick
		if !g.collides(try) {
			g.cur = try
			return
		}
	}
}

// hardDrop sends the piece to the floor, two points per row, and locks it.
func (g *Game) hardDrop() {
	for g.move(0, 1) {
		g.score += 2
	}
	g.lock()
}

// holdPiece swaps the current shape with the held one at the spawn
// position. Usable once per drop; the first hold takes the next bag piece.
func (g *Game) holdPiece() {
	if g.held {
		return
	}
	swapped := g.cur.id
	next := g.hold
	if next < 0 {
		next = g.draw()
	}
	g.hold = swapped
	g.spawn(next)
	g.held = true
}

// lock stamps the piece into the board, scores cleared lines, and spawns
// the next piece.
func (g *Game) lock() {
	for y := range 4 {
		for x := range 4 {
			if g.cur.cells[y][x] != 0 {
				g.board[g.cur.y+y][g.cur.x+x] = uint8(g.cur.id + 1)
			}
		}
	}
	cleared := g.clearLines()
	g.score += lineScores[cleared]
	g.lines += cleared
	g.spawn(g.draw())
}

// clearLines removes full rows and drops everything above them.
func (g *Game) clearLines() int {
	cleared := 0
	for y := BoardHeight - 1; y >= 0; y-- {
		full := true
		for x := range BoardWidth {
			if g.board[y][x] == 0 {
				full = false
				break
			}
		}
		if !full {
			continue
		}
		cleared++
		for yy := y; yy > 0; yy-- {
			g.board[yy] = g.board[yy-1]
		}
		g.board[0] = [BoardWidth]uint8{}
		y++
	}
	return cleared
}
