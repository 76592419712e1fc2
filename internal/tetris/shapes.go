package tetris

// Tetromino bitmaps in 4x4 matrices. Ids are positional and stable across
// the wire: I, T, L, J, O, S, Z. Board cells store id+1 so 0 stays "empty".
var shapes = [7][4][4]uint8{
	// I
	{
		{0, 0, 0, 0},
		{1, 1, 1, 1},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	},
	// T
	{
		{0, 1, 0, 0},
		{1, 1, 1, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	},
	// L
	{
		{0, 0, 1, 0},
		{1, 1, 1, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	},
	// J
	{
		{1, 0, 0, 0},
		{1, 1, 1, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	},
	// O
	{
		{0, 1, 1, 0},
		{0, 1, 1, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	},
	// S
	{
		{0, 1, 1, 0},
		{1, 1, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	},
	// Z
	{
		{1, 1, 0, 0},
		{0, 1, 1, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	},
}

// rotateCW turns a shape matrix 90 degrees clockwise.
func rotateCW(m [4][4]uint8) [4][4]uint8 {
	var out [4][4]uint8
	for y := range 4 {
		for x := range 4 {
			out[x][3-y] = m[y][x]
		}
	}
	return out
}
