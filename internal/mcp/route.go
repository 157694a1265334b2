package mcpserver

import (
	"math"
	"sort"

	"scenes/internal/domain"
)

// ═══════════════════════════════════════════════════════════════
// Orthogonal pipe routing with obstacle avoidance (Dijkstra over a
// sparse grid of candidate bend points)
// ═══════════════════════════════════════════════════════════════

const routeMargin = 20.0

type point struct{ x, y float64 }

func pt(x, y float64) point { return point{x, y} }

func rectContains(r rect, p point, margin float64) bool {
	return p.x > r.x-margin && p.x < r.x+r.w+margin &&
		p.y > r.y-margin && p.y < r.y+r.h+margin
}

// edgeCrossesRect checks if an axis-aligned segment crosses a rect interior.
func edgeCrossesRect(a, b point, r rect) bool {
	if math.Abs(a.y-b.y) < 0.5 {
		y := a.y
		if y <= r.y || y >= r.y+r.h {
			return false
		}
		return math.Min(a.x, b.x) < r.x+r.w && math.Max(a.x, b.x) > r.x
	}
	if math.Abs(a.x-b.x) < 0.5 {
		x := a.x
		if x <= r.x || x >= r.x+r.w {
			return false
		}
		return math.Min(a.y, b.y) < r.y+r.h && math.Max(a.y, b.y) > r.y
	}
	return false
}

// ── Priority queue (min-heap by distance) ──────────────────

type gNode struct {
	pt   point
	dist float64
	prev *gNode
	dir  byte // 'h' or 'v' or 0
}

type priorityQueue []*gNode

func (pq *priorityQueue) push(n *gNode) {
	*pq = append(*pq, n)
	pq.up(len(*pq) - 1)
}

func (pq *priorityQueue) pop() *gNode {
	old := *pq
	n := len(old)
	item := old[0]
	old[0] = old[n-1]
	*pq = old[:n-1]
	if len(*pq) > 0 {
		pq.down(0)
	}
	return item
}

func (pq *priorityQueue) up(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if (*pq)[i].dist >= (*pq)[p].dist {
			break
		}
		(*pq)[i], (*pq)[p] = (*pq)[p], (*pq)[i]
		i = p
	}
}

func (pq *priorityQueue) down(i int) {
	n := len(*pq)
	for {
		s, l, r := i, 2*i+1, 2*i+2
		if l < n && (*pq)[l].dist < (*pq)[s].dist {
			s = l
		}
		if r < n && (*pq)[r].dist < (*pq)[s].dist {
			s = r
		}
		if s == i {
			break
		}
		(*pq)[i], (*pq)[s] = (*pq)[s], (*pq)[i]
		i = s
	}
}

func coordKey(v float64) int64 { return int64(math.Round(v * 100)) }

func ptKey(p point) [2]int64 { return [2]int64{coordKey(p.x), coordKey(p.y)} }

type edge struct {
	to  point
	w   float64
	dir byte
}

// shortestOrtho runs Dijkstra over spots, joining neighbours on the same
// row or column unless the segment crosses an obstacle. Bends are
// penalised so routes prefer long straight runs.
func shortestOrtho(spots []point, origin, dest point, obstacles []rect) []point {
	byX := map[int64][]point{}
	byY := map[int64][]point{}
	for _, s := range spots {
		byX[coordKey(s.x)] = append(byX[coordKey(s.x)], s)
		byY[coordKey(s.y)] = append(byY[coordKey(s.y)], s)
	}
	for _, arr := range byX {
		sort.Slice(arr, func(i, j int) bool { return arr[i].y < arr[j].y })
	}
	for _, arr := range byY {
		sort.Slice(arr, func(i, j int) bool { return arr[i].x < arr[j].x })
	}

	blocked := func(a, b point) bool {
		for _, r := range obstacles {
			if edgeCrossesRect(a, b, r) {
				return true
			}
		}
		return false
	}

	adj := map[[2]int64][]edge{}
	link := func(lines map[int64][]point, dir byte) {
		for _, arr := range lines {
			for i := 0; i < len(arr)-1; i++ {
				a, b := arr[i], arr[i+1]
				if blocked(a, b) {
					continue
				}
				w := math.Abs(b.x-a.x) + math.Abs(b.y-a.y)
				adj[ptKey(a)] = append(adj[ptKey(a)], edge{b, w, dir})
				adj[ptKey(b)] = append(adj[ptKey(b)], edge{a, w, dir})
			}
		}
	}
	link(byX, 'v')
	link(byY, 'h')

	nodes := map[[2]int64]*gNode{}
	for _, s := range spots {
		nodes[ptKey(s)] = &gNode{pt: s, dist: math.Inf(1)}
	}
	start, goal := nodes[ptKey(origin)], nodes[ptKey(dest)]
	if start == nil || goal == nil {
		return []point{origin, pt(dest.x, origin.y), dest}
	}

	start.dist = 0
	visited := map[[2]int64]bool{}
	heap := &priorityQueue{start}
	for len(*heap) > 0 {
		cur := heap.pop()
		ck := ptKey(cur.pt)
		if visited[ck] {
			continue
		}
		visited[ck] = true
		if cur == goal {
			break
		}
		for _, e := range adj[ck] {
			next := nodes[ptKey(e.to)]
			if next == nil || visited[ptKey(e.to)] {
				continue
			}
			bend := 0.0
			if cur.dir != 0 && cur.dir != e.dir {
				bend = (e.w + 1) * (e.w + 1)
			}
			if d := cur.dist + e.w + bend; d < next.dist {
				next.dist, next.prev, next.dir = d, cur, e.dir
				heap.push(next)
			}
		}
	}

	if math.IsInf(goal.dist, 1) {
		return []point{origin, pt(dest.x, origin.y), dest}
	}
	var path []point
	for n := goal; n != nil; n = n.prev {
		path = append([]point{n.pt}, path...)
	}
	return simplifyOrtho(path)
}

// simplifyOrtho drops points that lie on a straight run.
func simplifyOrtho(pts []point) []point {
	if len(pts) < 3 {
		return pts
	}
	out := []point{pts[0]}
	for i := 1; i < len(pts)-1; i++ {
		a, b, c := out[len(out)-1], pts[i], pts[i+1]
		sameX := math.Abs(a.x-b.x) < 0.5 && math.Abs(b.x-c.x) < 0.5
		sameY := math.Abs(a.y-b.y) < 0.5 && math.Abs(b.y-c.y) < 0.5
		if !sameX && !sameY {
			out = append(out, b)
		}
	}
	return append(out, pts[len(pts)-1])
}

// port returns the point on the side of r that faces toward.
func port(r rect, toward point) point {
	c := r.center()
	dx, dy := toward.x-c.x, toward.y-c.y
	if math.Abs(dx) >= math.Abs(dy) {
		if dx >= 0 {
			return pt(r.x+r.w, c.y)
		}
		return pt(r.x, c.y)
	}
	if dy >= 0 {
		return pt(c.x, r.y+r.h)
	}
	return pt(c.x, r.y)
}

// RoutePipe returns the bend points of an orthogonal route from the side
// of src facing dst to the side of dst facing src, avoiding obstacles.
func RoutePipe(src, dst *domain.Node, obstacles []*domain.Node) []domain.Point {
	sr, dr := nodeRect(src), nodeRect(dst)
	origin := port(sr, dr.center())
	dest := port(dr, sr.center())

	rects := make([]rect, 0, len(obstacles))
	xs := []float64{origin.x, dest.x}
	ys := []float64{origin.y, dest.y}
	for _, o := range obstacles {
		r := nodeRect(o)
		rects = append(rects, r)
		xs = append(xs, r.x-routeMargin, r.x+r.w+routeMargin)
		ys = append(ys, r.y-routeMargin, r.y+r.h+routeMargin)
	}
	for _, r := range []rect{sr, dr} {
		xs = append(xs, r.x-routeMargin, r.x+r.w+routeMargin)
		ys = append(ys, r.y-routeMargin, r.y+r.h+routeMargin)
	}
	// Endpoints sit on the boundary of their own node; those nodes only
	// block the interior.
	rects = append(rects, sr, dr)

	var spots []point
	for _, x := range uniqSorted(xs) {
		for _, y := range uniqSorted(ys) {
			p := pt(x, y)
			inside := false
			for _, r := range rects {
				if rectContains(r, p, 0) {
					inside = true
					break
				}
			}
			if !inside || ptKey(p) == ptKey(origin) || ptKey(p) == ptKey(dest) {
				spots = append(spots, p)
			}
		}
	}

	path := shortestOrtho(spots, origin, dest, rects)
	out := make([]domain.Point, len(path))
	for i, p := range path {
		out[i] = domain.Point{X: p.x, Y: p.y}
	}
	return out
}

func uniqSorted(vals []float64) []float64 {
	sort.Float64s(vals)
	out := vals[:0]
	for i, v := range vals {
		if i == 0 || math.Abs(v-out[len(out)-1]) > 0.01 {
			out = append(out, v)
		}
	}
	return out
}

// PipeSegments turns a route into one pipe node box per straight run.
func PipeSegments(route []domain.Point, thickness float64) []domain.Node {
	var out []domain.Node
	for i := 0; i+1 < len(route); i++ {
		a, b := route[i], route[i+1]
		n := domain.Node{PrimitiveType: "pipe", Properties: map[string]any{}}
		if math.Abs(a.Y-b.Y) < 0.5 {
			n.Position = domain.Point{X: math.Min(a.X, b.X), Y: a.Y - thickness/2}
			n.Size = domain.Size{W: math.Abs(b.X - a.X), H: thickness}
			n.Properties["orientation"] = "horizontal"
		} else {
			n.Position = domain.Point{X: a.X - thickness/2, Y: math.Min(a.Y, b.Y)}
			n.Size = domain.Size{W: thickness, H: math.Abs(b.Y - a.Y)}
			n.Properties["orientation"] = "vertical"
		}
		if n.Size.W == 0 || n.Size.H == 0 {
			continue
		}
		out = append(out, n)
	}
	return out
}
