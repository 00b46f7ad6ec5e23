package fps

type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Cell) add(dx, dy int) Cell { return Cell{c.X + dx, c.Y + dy} }

// distance is the Chebyshev distance, matching eight-way movement.
func distance(a, b Cell) int {
	return max(abs(a.X-b.X), abs(a.Y-b.Y))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// line returns the Bresenham cells strictly between a and b.
func line(a, b Cell) []Cell {
	dx, dy := abs(b.X-a.X), -abs(b.Y-a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	var cells []Cell
	err := dx + dy
	x, y := a.X, a.Y
	for {
		if x == b.X && y == b.Y {
			return cells
		}
		if x != a.X || y != a.Y {
			cells = append(cells, Cell{x, y})
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func (m *Match) inBounds(c Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < m.Config.Width && c.Y < m.Config.Height
}

func (m *Match) wall(c Cell) bool {
	for _, w := range m.State.Walls {
		if w == c {
			return true
		}
	}
	return false
}

func (m *Match) occupant(c Cell) string {
	for _, id := range m.PlayerIDs() {
		if m.State.Players[id].Pos == c {
			return id
		}
	}
	return ""
}

func (m *Match) lineOfSight(a, b Cell) bool {
	for _, c := range line(a, b) {
		if m.wall(c) {
			return false
		}
	}
	return true
}

// spawnPoints are the arena corners in seat order.
func spawnPoints(w, h int) []Cell {
	return []Cell{{0, 0}, {w - 1, h - 1}, {w - 1, 0}, {0, h - 1}}
}
