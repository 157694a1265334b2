// Package render maps a primitive type and its resolved properties to a
// render description. Everything here is a pure function of its inputs.
package render

import (
	"sync"

	"scenes/internal/domain"
)

type Shape string

const (
	ShapeRect    Shape = "rect"
	ShapeEllipse Shape = "ellipse"
	ShapeLine    Shape = "line"
	ShapePolygon Shape = "polygon"
	ShapeArc     Shape = "arc"
	ShapeText    Shape = "text"
	ShapeGroup   Shape = "group"
)

// Geometry is in scene coordinates. For ShapeArc, X/Y is the centre and
// angles are degrees clockwise from the positive x axis.
type Geometry struct {
	Shape      Shape          `json:"shape"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	W          float64        `json:"w,omitempty"`
	H          float64        `json:"h,omitempty"`
	RX         float64        `json:"rx,omitempty"`
	RY         float64        `json:"ry,omitempty"`
	Points     []domain.Point `json:"points,omitempty"`
	StartAngle float64        `json:"startAngle,omitempty"`
	EndAngle   float64        `json:"endAngle,omitempty"`
	Rotation   float64        `json:"rotation,omitempty"`
}

type Style struct {
	Fill        string    `json:"fill,omitempty"`
	Stroke      string    `json:"stroke,omitempty"`
	StrokeWidth float64   `json:"strokeWidth,omitempty"`
	Dash        []float64 `json:"dash,omitempty"`
	Opacity     float64   `json:"opacity"`
	FontSize    float64   `json:"fontSize,omitempty"`
	FontFamily  string    `json:"fontFamily,omitempty"`
	FontWeight  string    `json:"fontWeight,omitempty"`
	TextAlign   string    `json:"textAlign,omitempty"`
}

// Description is what a host draws for one node. Children paint after the
// parent, in order.
type Description struct {
	Primitive   string        `json:"primitive,omitempty"`
	Visible     bool          `json:"visible"`
	Geometry    Geometry      `json:"geometry"`
	Style       Style         `json:"style"`
	Text        string        `json:"text,omitempty"`
	Animation   string        `json:"animation,omitempty"`
	Interactive bool          `json:"interactive,omitempty"`
	Children    []Description `json:"children,omitempty"`
	// Warnings lists property values that were rejected in favour of the
	// default.
	Warnings []string `json:"warnings,omitempty"`
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the registry of built-in primitives.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = NewRegistry(defaultSchemas()...)
		defaultReg.Alias("rect", "rectangle")
		defaultReg.Alias("lamp", "indicator")
	})
	return defaultReg
}

// Render describes primitive drawn with props using the built-in registry.
func Render(primitive string, props map[string]any) (Description, error) {
	return Default().Render(primitive, props)
}

// Render resolves props against the primitive's schema and paints it. An
// empty map still yields a visible shape; `visible: false` keeps the
// geometry but marks the description hidden.
func (r *Registry) Render(primitive string, props map[string]any) (Description, error) {
	s, err := r.Schema(primitive)
	if err != nil {
		return Description{}, err
	}
	p, warnings, err := r.Resolve(primitive, props)
	if err != nil {
		return Description{}, err
	}
	paint := s.paint
	if paint == nil {
		paint = paintGroup
	}
	d := paint(p)
	d.Primitive = s.Type
	d.Visible = p.Bool("visible")
	d.Warnings = warnings
	return d, nil
}
