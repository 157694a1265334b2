package render

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"

	"scenes/internal/domain"

	"github.com/spf13/cast"
)

var (
	ErrUnknownPrimitive = errors.New("unknown primitive")
	ErrUnknownProperty  = errors.New("unknown property")
	ErrInvalidProperty  = errors.New("invalid property value")
)

// Kind is the type of one primitive property.
type Kind string

const (
	KindNumber Kind = "number"
	KindString Kind = "string"
	KindBool   Kind = "bool"
	KindColor  Kind = "color"
	KindEnum   Kind = "enum"
)

// Field declares one property with its default.
type Field struct {
	Name    string   `json:"name"`
	Kind    Kind     `json:"kind"`
	Default any      `json:"default"`
	Options []string `json:"options,omitempty"` // KindEnum only
}

// Schema is the closed property set of one primitive type.
type Schema struct {
	Type   string      `json:"type"`
	Size   domain.Size `json:"size"`
	Fields []Field     `json:"fields"`

	paint func(p Props) Description
}

func (s *Schema) field(name string) (Field, bool) {
	i := slices.IndexFunc(s.Fields, func(f Field) bool { return f.Name == name })
	if i < 0 {
		return Field{}, false
	}
	return s.Fields[i], true
}

// common fields every primitive carries. Box defaults come from Schema.Size.
func common(size domain.Size) []Field {
	return []Field{
		{Name: "x", Kind: KindNumber, Default: 0.0},
		{Name: "y", Kind: KindNumber, Default: 0.0},
		{Name: "width", Kind: KindNumber, Default: size.W},
		{Name: "height", Kind: KindNumber, Default: size.H},
		{Name: "visible", Kind: KindBool, Default: true},
		{Name: "opacity", Kind: KindNumber, Default: 1.0},
		{Name: "rotation", Kind: KindNumber, Default: 0.0},
	}
}

var colorRe = regexp.MustCompile(`^(#([0-9a-fA-F]{3}|[0-9a-fA-F]{4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})|rgba?\([0-9.,\s%]+\)|hsla?\([0-9.,\s%deg]+\)|[a-zA-Z]+)$`)

// coerce converts v to the field's kind.
func (f Field) coerce(v any) (any, error) {
	switch f.Kind {
	case KindNumber:
		n, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", f.Name, ErrInvalidProperty, err)
		}
		return n, nil
	case KindBool:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", f.Name, ErrInvalidProperty, err)
		}
		return b, nil
	case KindString:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", f.Name, ErrInvalidProperty, err)
		}
		return s, nil
	case KindColor:
		s, ok := v.(string)
		if !ok || !colorRe.MatchString(s) {
			return nil, fmt.Errorf("%s: %w: %v is not a color", f.Name, ErrInvalidProperty, v)
		}
		return s, nil
	case KindEnum:
		s, ok := v.(string)
		if !ok || !slices.Contains(f.Options, s) {
			return nil, fmt.Errorf("%s: %w: %v not one of %v", f.Name, ErrInvalidProperty, v, f.Options)
		}
		return s, nil
	}
	return nil, fmt.Errorf("%s: %w: kind %q", f.Name, ErrInvalidProperty, f.Kind)
}

// Registry maps primitive type names to schemas.
type Registry struct {
	schemas map[string]*Schema
	aliases map[string]string
}

func NewRegistry(schemas ...*Schema) *Registry {
	r := &Registry{schemas: map[string]*Schema{}, aliases: map[string]string{}}
	for _, s := range schemas {
		r.schemas[s.Type] = s
	}
	return r
}

// Alias lets name resolve to an existing primitive type.
func (r *Registry) Alias(name, target string) {
	r.aliases[name] = target
}

func (r *Registry) Schema(primitive string) (*Schema, error) {
	if t, ok := r.aliases[primitive]; ok {
		primitive = t
	}
	s, ok := r.schemas[primitive]
	if !ok {
		return nil, fmt.Errorf("%q: %w", primitive, ErrUnknownPrimitive)
	}
	return s, nil
}

// Types lists registered primitive names, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultSize returns the primitive's box when none is stored. Unknown
// primitives get a 100x100 box.
func (r *Registry) DefaultSize(primitive string) domain.Size {
	s, err := r.Schema(primitive)
	if err != nil {
		return domain.Size{W: 100, H: 100}
	}
	return s.Size
}

// Validate checks a stored property bag against the closed schema. Every
// unknown key and every value of the wrong kind is reported.
func (r *Registry) Validate(primitive string, props map[string]any) error {
	s, err := r.Schema(primitive)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var errs []error
	for _, k := range keys {
		f, ok := s.field(k)
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", k, ErrUnknownProperty))
			continue
		}
		if props[k] == nil {
			continue
		}
		if _, err := f.coerce(props[k]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Resolve applies defaults and coerces every value. Missing, nil and
// invalid values take the default; invalid ones are returned as warnings.
// Unknown keys are ignored.
func (r *Registry) Resolve(primitive string, props map[string]any) (Props, []string, error) {
	s, err := r.Schema(primitive)
	if err != nil {
		return Props{}, nil, err
	}
	out := Props{values: make(map[string]any, len(s.Fields))}
	var warnings []string
	for _, f := range s.Fields {
		out.values[f.Name] = f.Default
		v, ok := props[f.Name]
		if !ok || v == nil {
			continue
		}
		c, err := f.coerce(v)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		out.values[f.Name] = c
	}
	return out, warnings, nil
}

// Props is a resolved, fully-defaulted property set.
type Props struct {
	values map[string]any
}

func (p Props) Float(name string) float64 {
	f, _ := p.values[name].(float64)
	return f
}

func (p Props) String(name string) string {
	s, _ := p.values[name].(string)
	return s
}

func (p Props) Bool(name string) bool {
	b, _ := p.values[name].(bool)
	return b
}

// Map returns a copy of the resolved values.
func (p Props) Map() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}
