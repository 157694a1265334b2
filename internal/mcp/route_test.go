package mcpserver

import (
	"math"
	"testing"

	"scenes/internal/domain"
)

func assertOrthogonal(t *testing.T, route []domain.Point) {
	t.Helper()
	for i := 0; i+1 < len(route); i++ {
		a, b := route[i], route[i+1]
		if math.Abs(a.X-b.X) > 0.5 && math.Abs(a.Y-b.Y) > 0.5 {
			t.Errorf("segment %d (%v -> %v) is diagonal", i, a, b)
		}
	}
}

func TestRoutePipe_StraightRun(t *testing.T) {
	src := node("src", 0, 0, 40, 40)
	dst := node("dst", 200, 0, 40, 40)

	route := RoutePipe(src, dst, nil)
	if len(route) < 2 {
		t.Fatalf("expected a route, got %v", route)
	}
	if route[0] != (domain.Point{X: 40, Y: 20}) {
		t.Errorf("expected start on the right side of src, got %v", route[0])
	}
	if last := route[len(route)-1]; last != (domain.Point{X: 200, Y: 20}) {
		t.Errorf("expected end on the left side of dst, got %v", last)
	}
	for _, p := range route {
		if p.Y != 20 {
			t.Errorf("expected a straight horizontal run, got %v", route)
			break
		}
	}
}

func TestRoutePipe_AvoidsObstacle(t *testing.T) {
	src := node("src", 0, 0, 40, 40)
	dst := node("dst", 300, 0, 40, 40)
	wall := node("wall", 140, -40, 40, 120)

	route := RoutePipe(src, dst, []*domain.Node{wall})
	if len(route) < 4 {
		t.Fatalf("expected a route with bends around the wall, got %v", route)
	}
	assertOrthogonal(t, route)

	r := nodeRect(wall)
	for i := 0; i+1 < len(route); i++ {
		a, b := route[i], route[i+1]
		if edgeCrossesRect(pt(a.X, a.Y), pt(b.X, b.Y), r) {
			t.Errorf("segment %v -> %v crosses the wall", a, b)
		}
	}
}

func TestPipeSegments(t *testing.T) {
	route := []domain.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 50}}
	segs := PipeSegments(route, 10)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}

	h, v := segs[0], segs[1]
	if h.Properties["orientation"] != "horizontal" || v.Properties["orientation"] != "vertical" {
		t.Errorf("unexpected orientations %v, %v", h.Properties["orientation"], v.Properties["orientation"])
	}
	if h.Position != (domain.Point{X: 0, Y: -5}) || h.Size != (domain.Size{W: 100, H: 10}) {
		t.Errorf("horizontal segment at %v size %v", h.Position, h.Size)
	}
	if v.Position != (domain.Point{X: 95, Y: 0}) || v.Size != (domain.Size{W: 10, H: 50}) {
		t.Errorf("vertical segment at %v size %v", v.Position, v.Size)
	}
	for _, s := range segs {
		if s.PrimitiveType != "pipe" {
			t.Errorf("expected pipe primitive, got %q", s.PrimitiveType)
		}
	}
}

func TestPipeSegments_DropsZeroLength(t *testing.T) {
	route := []domain.Point{{X: 0, Y: 0}, {X: 0, Y: 0}, {X: 50, Y: 0}}
	if segs := PipeSegments(route, 10); len(segs) != 1 {
		t.Errorf("expected 1 segment, got %d", len(segs))
	}
}
