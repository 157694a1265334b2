package mcpserver

import (
	"math"

	"scenes/internal/domain"
)

const (
	GridSize = 10.0
	Padding  = 20.0 // 2 grid cells between nodes
	MaxRowW  = 1600.0
)

// LayoutEngine places nodes created through MCP so they don't overlap
// their siblings.
type LayoutEngine struct {
	gridSize float64
	padding  float64
	maxRowW  float64
}

func NewLayoutEngine() *LayoutEngine {
	return &LayoutEngine{
		gridSize: GridSize,
		padding:  Padding,
		maxRowW:  MaxRowW,
	}
}

// snap rounds v to the nearest grid point.
func (le *LayoutEngine) snap(v float64) float64 {
	return math.Round(v/le.gridSize) * le.gridSize
}

// rect is an axis-aligned bounding box in scene coordinates.
type rect struct {
	x, y, w, h float64
}

func nodeRect(n *domain.Node) rect {
	return rect{n.Position.X, n.Position.Y, n.Size.W, n.Size.H}
}

func (a rect) intersects(b rect) bool {
	return a.x < b.x+b.w && a.x+a.w > b.x &&
		a.y < b.y+b.h && a.y+a.h > b.y
}

func (a rect) padded(p float64) rect {
	return rect{a.x - p, a.y - p, a.w + p*2, a.h + p*2}
}

func (a rect) center() point {
	return point{a.x + a.w/2, a.y + a.h/2}
}

// NextPosition finds the first grid slot, scanning rows top to bottom,
// where a w×h node clears every existing node by the padding.
func (le *LayoutEngine) NextPosition(existing []*domain.Node, w, h float64) domain.Point {
	if len(existing) == 0 {
		return domain.Point{}
	}

	occupied := make([]rect, len(existing))
	for i, n := range existing {
		occupied[i] = nodeRect(n).padded(le.padding)
	}

	candidate := rect{w: w, h: h}
	for y := 0.0; y < 100000; y += le.gridSize {
		for x := 0.0; x+w <= le.maxRowW || x == 0; x += le.gridSize {
			candidate.x = le.snap(x)
			candidate.y = le.snap(y)

			overlaps := false
			for _, occ := range occupied {
				if candidate.intersects(occ) {
					overlaps = true
					break
				}
			}
			if !overlaps {
				return domain.Point{X: candidate.x, Y: candidate.y}
			}
		}
	}

	// Fallback: below everything
	maxY := 0.0
	for _, n := range existing {
		maxY = math.Max(maxY, n.Position.Y+n.Size.H)
	}
	return domain.Point{X: 0, Y: le.snap(maxY + le.padding)}
}

// ArrangeGroup lays nodes out left to right from start, wrapping rows at
// the maximum row width. It returns the new position of each node by id.
func (le *LayoutEngine) ArrangeGroup(nodes []*domain.Node, start domain.Point) map[string]domain.Point {
	out := make(map[string]domain.Point, len(nodes))
	x := le.snap(start.X)
	y := le.snap(start.Y)
	rowHeight := 0.0

	for _, n := range nodes {
		if x > le.snap(start.X) && x+n.Size.W > le.maxRowW {
			x = le.snap(start.X)
			y += le.snap(rowHeight + le.padding)
			rowHeight = 0
		}
		out[n.ID] = domain.Point{X: x, Y: y}
		rowHeight = math.Max(rowHeight, n.Size.H)
		x += le.snap(n.Size.W + le.padding)
	}

	return out
}
