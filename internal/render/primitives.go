package render

import (
	"fmt"
	"math"

	"scenes/internal/domain"
)

// ── Built-in primitives ─────────────────────────────────────

func withCommon(size domain.Size, fields ...Field) []Field {
	return append(common(size), fields...)
}

func defaultSchemas() []*Schema {
	return []*Schema{
		{
			Type: "rectangle", Size: domain.Size{W: 120, H: 80},
			Fields: withCommon(domain.Size{W: 120, H: 80},
				Field{Name: "fill", Kind: KindColor, Default: "#d9d9d9"},
				Field{Name: "stroke", Kind: KindColor, Default: "#333333"},
				Field{Name: "strokeWidth", Kind: KindNumber, Default: 1.0},
				Field{Name: "cornerRadius", Kind: KindNumber, Default: 0.0},
			),
			paint: paintRectangle,
		},
		{
			Type: "circle", Size: domain.Size{W: 80, H: 80},
			Fields: withCommon(domain.Size{W: 80, H: 80},
				Field{Name: "fill", Kind: KindColor, Default: "#d9d9d9"},
				Field{Name: "stroke", Kind: KindColor, Default: "#333333"},
				Field{Name: "strokeWidth", Kind: KindNumber, Default: 1.0},
			),
			paint: paintCircle,
		},
		{
			Type: "ellipse", Size: domain.Size{W: 120, H: 80},
			Fields: withCommon(domain.Size{W: 120, H: 80},
				Field{Name: "fill", Kind: KindColor, Default: "#d9d9d9"},
				Field{Name: "stroke", Kind: KindColor, Default: "#333333"},
				Field{Name: "strokeWidth", Kind: KindNumber, Default: 1.0},
			),
			paint: paintEllipse,
		},
		{
			Type: "line", Size: domain.Size{W: 120, H: 0},
			Fields: withCommon(domain.Size{W: 120, H: 0},
				Field{Name: "stroke", Kind: KindColor, Default: "#333333"},
				Field{Name: "strokeWidth", Kind: KindNumber, Default: 2.0},
				Field{Name: "dash", Kind: KindEnum, Default: "solid", Options: []string{"solid", "dashed", "dotted"}},
			),
			paint: paintLine,
		},
		{
			Type: "text", Size: domain.Size{W: 100, H: 24},
			Fields: withCommon(domain.Size{W: 100, H: 24},
				Field{Name: "text", Kind: KindString, Default: ""},
				Field{Name: "color", Kind: KindColor, Default: "#000000"},
				Field{Name: "fontSize", Kind: KindNumber, Default: 14.0},
				Field{Name: "fontFamily", Kind: KindString, Default: "sans-serif"},
				Field{Name: "bold", Kind: KindBool, Default: false},
				Field{Name: "align", Kind: KindEnum, Default: "left", Options: []string{"left", "center", "right"}},
			),
			paint: paintText,
		},
		{
			Type: "label", Size: domain.Size{W: 100, H: 28},
			Fields: withCommon(domain.Size{W: 100, H: 28},
				Field{Name: "text", Kind: KindString, Default: "Label"},
				Field{Name: "color", Kind: KindColor, Default: "#000000"},
				Field{Name: "background", Kind: KindColor, Default: "transparent"},
				Field{Name: "border", Kind: KindColor, Default: "none"},
				Field{Name: "fontSize", Kind: KindNumber, Default: 12.0},
				Field{Name: "padding", Kind: KindNumber, Default: 4.0},
				Field{Name: "align", Kind: KindEnum, Default: "center", Options: []string{"left", "center", "right"}},
			),
			paint: paintLabel,
		},
		{
			Type: "gauge", Size: domain.Size{W: 120, H: 120},
			Fields: withCommon(domain.Size{W: 120, H: 120},
				Field{Name: "value", Kind: KindNumber, Default: 0.0},
				Field{Name: "min", Kind: KindNumber, Default: 0.0},
				Field{Name: "max", Kind: KindNumber, Default: 100.0},
				Field{Name: "unit", Kind: KindString, Default: ""},
				Field{Name: "decimals", Kind: KindNumber, Default: 1.0},
				Field{Name: "color", Kind: KindColor, Default: "#2e7d32"},
				Field{Name: "trackColor", Kind: KindColor, Default: "#e0e0e0"},
				Field{Name: "thickness", Kind: KindNumber, Default: 10.0},
				Field{Name: "showValue", Kind: KindBool, Default: true},
			),
			paint: paintGauge,
		},
		{
			Type: "indicator", Size: domain.Size{W: 24, H: 24},
			Fields: withCommon(domain.Size{W: 24, H: 24},
				Field{Name: "on", Kind: KindBool, Default: false},
				Field{Name: "onColor", Kind: KindColor, Default: "#4caf50"},
				Field{Name: "offColor", Kind: KindColor, Default: "#9e9e9e"},
				Field{Name: "shape", Kind: KindEnum, Default: "circle", Options: []string{"circle", "square"}},
				Field{Name: "stroke", Kind: KindColor, Default: "#333333"},
			),
			paint: paintIndicator,
		},
		{
			Type: "pipe", Size: domain.Size{W: 160, H: 12},
			Fields: withCommon(domain.Size{W: 160, H: 12},
				Field{Name: "color", Kind: KindColor, Default: "#607d8b"},
				Field{Name: "orientation", Kind: KindEnum, Default: "horizontal", Options: []string{"horizontal", "vertical"}},
				Field{Name: "flowing", Kind: KindBool, Default: false},
				Field{Name: "flowColor", Kind: KindColor, Default: "#03a9f4"},
			),
			paint: paintPipe,
		},
		{
			Type: "tank", Size: domain.Size{W: 80, H: 140},
			Fields: withCommon(domain.Size{W: 80, H: 140},
				Field{Name: "level", Kind: KindNumber, Default: 0.0},
				Field{Name: "min", Kind: KindNumber, Default: 0.0},
				Field{Name: "max", Kind: KindNumber, Default: 100.0},
				Field{Name: "fill", Kind: KindColor, Default: "#03a9f4"},
				Field{Name: "background", Kind: KindColor, Default: "#eceff1"},
				Field{Name: "stroke", Kind: KindColor, Default: "#455a64"},
				Field{Name: "strokeWidth", Kind: KindNumber, Default: 2.0},
				Field{Name: "showLevel", Kind: KindBool, Default: true},
			),
			paint: paintTank,
		},
		{
			Type: "valve", Size: domain.Size{W: 40, H: 40},
			Fields: withCommon(domain.Size{W: 40, H: 40},
				Field{Name: "open", Kind: KindBool, Default: false},
				Field{Name: "openColor", Kind: KindColor, Default: "#4caf50"},
				Field{Name: "closedColor", Kind: KindColor, Default: "#f44336"},
				Field{Name: "stroke", Kind: KindColor, Default: "#333333"},
				Field{Name: "orientation", Kind: KindEnum, Default: "horizontal", Options: []string{"horizontal", "vertical"}},
			),
			paint: paintValve,
		},
		{
			Type: "button", Size: domain.Size{W: 100, H: 32},
			Fields: withCommon(domain.Size{W: 100, H: 32},
				Field{Name: "text", Kind: KindString, Default: "Button"},
				Field{Name: "fill", Kind: KindColor, Default: "#1976d2"},
				Field{Name: "color", Kind: KindColor, Default: "#ffffff"},
				Field{Name: "disabledFill", Kind: KindColor, Default: "#bdbdbd"},
				Field{Name: "cornerRadius", Kind: KindNumber, Default: 4.0},
				Field{Name: "fontSize", Kind: KindNumber, Default: 14.0},
				Field{Name: "enabled", Kind: KindBool, Default: true},
			),
			paint: paintButton,
		},
		{
			Type: "group", Size: domain.Size{W: 200, H: 150},
			Fields: withCommon(domain.Size{W: 200, H: 150},
				Field{Name: "border", Kind: KindColor, Default: "none"},
				Field{Name: "background", Kind: KindColor, Default: "transparent"},
			),
			paint: paintGroup,
		},
	}
}

// ── Painters ────────────────────────────────────────────────

func box(p Props) Geometry {
	return Geometry{
		Shape:    ShapeRect,
		X:        p.Float("x"),
		Y:        p.Float("y"),
		W:        p.Float("width"),
		H:        p.Float("height"),
		Rotation: p.Float("rotation"),
	}
}

func baseStyle(p Props) Style {
	return Style{Opacity: p.Float("opacity")}
}

func paintRectangle(p Props) Description {
	g := box(p)
	g.RX, g.RY = p.Float("cornerRadius"), p.Float("cornerRadius")
	st := baseStyle(p)
	st.Fill, st.Stroke, st.StrokeWidth = p.String("fill"), p.String("stroke"), p.Float("strokeWidth")
	return Description{Geometry: g, Style: st}
}

func paintCircle(p Props) Description {
	g := box(p)
	r := math.Min(g.W, g.H) / 2
	g.Shape, g.RX, g.RY = ShapeEllipse, r, r
	st := baseStyle(p)
	st.Fill, st.Stroke, st.StrokeWidth = p.String("fill"), p.String("stroke"), p.Float("strokeWidth")
	return Description{Geometry: g, Style: st}
}

func paintEllipse(p Props) Description {
	g := box(p)
	g.Shape, g.RX, g.RY = ShapeEllipse, g.W/2, g.H/2
	st := baseStyle(p)
	st.Fill, st.Stroke, st.StrokeWidth = p.String("fill"), p.String("stroke"), p.Float("strokeWidth")
	return Description{Geometry: g, Style: st}
}

func paintLine(p Props) Description {
	g := box(p)
	g.Shape = ShapeLine
	g.Points = []domain.Point{{X: g.X, Y: g.Y}, {X: g.X + g.W, Y: g.Y + g.H}}
	st := baseStyle(p)
	st.Fill, st.Stroke, st.StrokeWidth = "none", p.String("stroke"), p.Float("strokeWidth")
	st.Dash = dashPattern(p.String("dash"), st.StrokeWidth)
	return Description{Geometry: g, Style: st}
}

func dashPattern(kind string, width float64) []float64 {
	switch kind {
	case "dashed":
		return []float64{4 * width, 2 * width}
	case "dotted":
		return []float64{width, width}
	}
	return nil
}

func textStyle(p Props, color string) Style {
	st := baseStyle(p)
	st.Fill = color
	st.FontSize = p.Float("fontSize")
	st.FontFamily = p.String("fontFamily")
	if st.FontFamily == "" {
		st.FontFamily = "sans-serif"
	}
	st.TextAlign = p.String("align")
	if p.Bool("bold") {
		st.FontWeight = "bold"
	}
	return st
}

func paintText(p Props) Description {
	g := box(p)
	g.Shape = ShapeText
	return Description{Geometry: g, Style: textStyle(p, p.String("color")), Text: p.String("text")}
}

func paintLabel(p Props) Description {
	g := box(p)
	st := baseStyle(p)
	st.Fill, st.Stroke = p.String("background"), p.String("border")
	pad := p.Float("padding")
	inner := Geometry{Shape: ShapeText, X: g.X + pad, Y: g.Y + pad, W: math.Max(g.W-2*pad, 0), H: math.Max(g.H-2*pad, 0)}
	return Description{
		Geometry: g,
		Style:    st,
		Children: []Description{{Geometry: inner, Style: textStyle(p, p.String("color")), Text: p.String("text"), Visible: true}},
	}
}

// fraction maps v into [0,1] over [lo,hi]; a degenerate range is empty.
func fraction(v, lo, hi float64) float64 {
	if hi <= lo || math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, (v-lo)/(hi-lo)))
}

const (
	gaugeStart = 135.0
	gaugeSweep = 270.0
)

func paintGauge(p Props) Description {
	g := box(p)
	g.Shape = ShapeGroup
	cx, cy := g.X+g.W/2, g.Y+g.H/2
	thick := p.Float("thickness")
	r := math.Max(math.Min(g.W, g.H)/2-thick/2, 0)
	frac := fraction(p.Float("value"), p.Float("min"), p.Float("max"))

	arc := func(end float64) Geometry {
		return Geometry{Shape: ShapeArc, X: cx, Y: cy, RX: r, RY: r, StartAngle: gaugeStart, EndAngle: end}
	}
	stroke := func(color string) Style {
		return Style{Fill: "none", Stroke: color, StrokeWidth: thick, Opacity: 1}
	}
	children := []Description{
		{Geometry: arc(gaugeStart + gaugeSweep), Style: stroke(p.String("trackColor")), Visible: true},
		{Geometry: arc(gaugeStart + gaugeSweep*frac), Style: stroke(p.String("color")), Visible: true},
	}
	if p.Bool("showValue") {
		decimals := int(math.Max(0, math.Min(6, p.Float("decimals"))))
		text := fmt.Sprintf("%.*f%s", decimals, p.Float("value"), p.String("unit"))
		children = append(children, Description{
			Geometry: Geometry{Shape: ShapeText, X: g.X, Y: cy - 10, W: g.W, H: 20},
			Style:    Style{Fill: "#000000", FontSize: math.Max(10, g.H/8), FontFamily: "sans-serif", TextAlign: "center", Opacity: 1},
			Text:     text,
			Visible:  true,
		})
	}
	return Description{Geometry: g, Style: baseStyle(p), Children: children}
}

func paintIndicator(p Props) Description {
	g := box(p)
	st := baseStyle(p)
	st.Fill = p.String("offColor")
	if p.Bool("on") {
		st.Fill = p.String("onColor")
	}
	st.Stroke, st.StrokeWidth = p.String("stroke"), 1
	if p.String("shape") == "circle" {
		r := math.Min(g.W, g.H) / 2
		g.Shape, g.RX, g.RY = ShapeEllipse, r, r
	}
	return Description{Geometry: g, Style: st}
}

func paintPipe(p Props) Description {
	g := box(p)
	g.Shape = ShapeLine
	var width float64
	if p.String("orientation") == "vertical" {
		mid := g.X + g.W/2
		g.Points = []domain.Point{{X: mid, Y: g.Y}, {X: mid, Y: g.Y + g.H}}
		width = g.W
	} else {
		mid := g.Y + g.H/2
		g.Points = []domain.Point{{X: g.X, Y: mid}, {X: g.X + g.W, Y: mid}}
		width = g.H
	}
	st := baseStyle(p)
	st.Fill, st.Stroke, st.StrokeWidth = "none", p.String("color"), width
	d := Description{Geometry: g, Style: st}
	if p.Bool("flowing") {
		flow := g
		d.Children = []Description{{
			Geometry:  flow,
			Style:     Style{Fill: "none", Stroke: p.String("flowColor"), StrokeWidth: width / 3, Dash: []float64{width, width}, Opacity: 1},
			Animation: "flow",
			Visible:   true,
		}}
	}
	return d
}

func paintTank(p Props) Description {
	g := box(p)
	st := baseStyle(p)
	st.Fill, st.Stroke, st.StrokeWidth = p.String("background"), p.String("stroke"), p.Float("strokeWidth")
	g.RX, g.RY = math.Min(g.W/8, 10), math.Min(g.W/8, 10)

	frac := fraction(p.Float("level"), p.Float("min"), p.Float("max"))
	h := g.H * frac
	liquid := Description{
		Geometry: Geometry{Shape: ShapeRect, X: g.X, Y: g.Y + g.H - h, W: g.W, H: h},
		Style:    Style{Fill: p.String("fill"), Stroke: "none", Opacity: 1},
		Visible:  true,
	}
	d := Description{Geometry: g, Style: st, Children: []Description{liquid}}
	if p.Bool("showLevel") {
		d.Children = append(d.Children, Description{
			Geometry: Geometry{Shape: ShapeText, X: g.X, Y: g.Y + g.H/2 - 8, W: g.W, H: 16},
			Style:    Style{Fill: "#000000", FontSize: 12, FontFamily: "sans-serif", TextAlign: "center", Opacity: 1},
			Text:     fmt.Sprintf("%.0f%%", frac*100),
			Visible:  true,
		})
	}
	return d
}

// paintValve draws the classic bow-tie: two triangles meeting in the middle.
func paintValve(p Props) Description {
	g := box(p)
	g.Shape = ShapeGroup
	color := p.String("closedColor")
	if p.Bool("open") {
		color = p.String("openColor")
	}
	x0, y0, x1, y1 := g.X, g.Y, g.X+g.W, g.Y+g.H
	cx, cy := g.X+g.W/2, g.Y+g.H/2
	var a, b []domain.Point
	if p.String("orientation") == "vertical" {
		a = []domain.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: cx, Y: cy}}
		b = []domain.Point{{X: x0, Y: y1}, {X: x1, Y: y1}, {X: cx, Y: cy}}
	} else {
		a = []domain.Point{{X: x0, Y: y0}, {X: x0, Y: y1}, {X: cx, Y: cy}}
		b = []domain.Point{{X: x1, Y: y0}, {X: x1, Y: y1}, {X: cx, Y: cy}}
	}
	st := Style{Fill: color, Stroke: p.String("stroke"), StrokeWidth: 1, Opacity: 1}
	return Description{
		Geometry: g,
		Style:    baseStyle(p),
		Children: []Description{
			{Geometry: Geometry{Shape: ShapePolygon, Points: a}, Style: st, Visible: true},
			{Geometry: Geometry{Shape: ShapePolygon, Points: b}, Style: st, Visible: true},
		},
	}
}

func paintButton(p Props) Description {
	g := box(p)
	g.RX, g.RY = p.Float("cornerRadius"), p.Float("cornerRadius")
	st := baseStyle(p)
	st.Fill, st.Stroke = p.String("fill"), "none"
	if !p.Bool("enabled") {
		st.Fill = p.String("disabledFill")
	}
	label := Description{
		Geometry: Geometry{Shape: ShapeText, X: g.X, Y: g.Y, W: g.W, H: g.H},
		Style:    Style{Fill: p.String("color"), FontSize: p.Float("fontSize"), FontFamily: "sans-serif", TextAlign: "center", Opacity: 1},
		Text:     p.String("text"),
		Visible:  true,
	}
	return Description{Geometry: g, Style: st, Children: []Description{label}, Interactive: p.Bool("enabled")}
}

func paintGroup(p Props) Description {
	g := box(p)
	g.Shape = ShapeGroup
	st := baseStyle(p)
	st.Fill, st.Stroke = p.String("background"), p.String("border")
	return Description{Geometry: g, Style: st}
}
