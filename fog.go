package taverna

// Cell addresses one square of a scene grid.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// FogGrid holds per-cell visibility, indexed [row][col]. True means revealed.
type FogGrid [][]bool

// NewFogGrid returns a fully hidden height x width grid. Negative sizes give
// an empty grid.
func NewFogGrid(height, width int) FogGrid {
	if height < 0 {
		height = 0
	}
	if width < 0 {
		width = 0
	}
	g := make(FogGrid, height)
	for r := range g {
		g[r] = make([]bool, width)
	}
	return g
}

// InBounds reports whether c addresses an existing cell.
func (g FogGrid) InBounds(c Cell) bool {
	return c.Row >= 0 && c.Row < len(g) && c.Col >= 0 && c.Col < len(g[c.Row])
}

// Reveal marks cells as visible and returns how many changed. Cells outside
// the grid are ignored.
func (g FogGrid) Reveal(cells []Cell) int {
	changed := 0
	for _, c := range cells {
		if !g.InBounds(c) {
			continue
		}
		if !g[c.Row][c.Col] {
			g[c.Row][c.Col] = true
			changed++
		}
	}
	return changed
}

// Revealed counts visible cells.
func (g FogGrid) Revealed() int {
	n := 0
	for _, row := range g {
		for _, v := range row {
			if v {
				n++
			}
		}
	}
	return n
}
