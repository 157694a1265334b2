package domain

import "strings"

// BindingMode selects how a binding expression is resolved.
type BindingMode string

const (
	ModeLiteral BindingMode = "literal"
	ModeField   BindingMode = "field"
	ModeScript  BindingMode = "script"
	ModeTwoWay  BindingMode = "twoWay"
)

// Normalize maps spelling variants found in stored scenes onto the four
// modes. An unrecognised or empty mode normalizes to "".
func (m BindingMode) Normalize() BindingMode {
	switch strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(string(m), "-", ""), "_", "")) {
	case "literal", "static":
		return ModeLiteral
	case "field":
		return ModeField
	case "script", "expression":
		return ModeScript
	case "twoway":
		return ModeTwoWay
	default:
		return ""
	}
}

// Binding links one node property to a data source. At most one binding
// is active per (ComponentID, Property).
type Binding struct {
	ID           string      `json:"id"`
	ComponentID  string      `json:"componentId"`
	Property     string      `json:"property"`
	Expression   string      `json:"expression"`
	Mode         BindingMode `json:"mode"`
	Transform    string      `json:"transform,omitempty"`
	Dependencies []string    `json:"dependencies,omitempty"`
	Description  string      `json:"description,omitempty"`
}

// BindingDefinition is the persisted and evaluated shape of a binding:
// the component is addressed by display name.
type BindingDefinition struct {
	Component    string      `json:"component"`
	Property     string      `json:"property"`
	Expression   string      `json:"expression"`
	Mode         BindingMode `json:"mode"`
	Transform    string      `json:"transform,omitempty"`
	Dependencies []string    `json:"dependencies,omitempty"`
	Description  string      `json:"description,omitempty"`
}

// Key returns the value-map key "Component:property".
func (d BindingDefinition) Key() string { return BindingKey(d.Component, d.Property) }

// BindingKey joins a component name and property the way value maps are keyed.
func BindingKey(component, property string) string { return component + ":" + property }
