package domain

import "encoding/json"

// SceneDocument is the persisted unit for one composed scene. Field names
// are shared with stored scenes and must not change.
type SceneDocument struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name"`
	Layout               []LayoutEntry       `json:"layout"`
	Bindings             []BindingDefinition `json:"bindings"`
	Components           []EntityID          `json:"components"`
	ScriptModules        map[string]string   `json:"scriptModules,omitempty"`
	NotificationChannels []string            `json:"notificationChannels,omitempty"`
	Metadata             Metadata            `json:"metadata"`
}

// LayoutEntry places one component. ParentID holds the parent's component
// name. ComponentID is an optional stable key; legacy documents omit it.
type LayoutEntry struct {
	Component   string    `json:"component"`
	ComponentID *EntityID `json:"componentId,omitempty"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	W           *float64  `json:"w,omitempty"`
	H           *float64  `json:"h,omitempty"`
	ParentID    *string   `json:"parentId"`
	ZIndex      int       `json:"zIndex,omitempty"`
	Hidden      bool      `json:"hidden,omitempty"`
	Locked      bool      `json:"locked,omitempty"`
}

type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Metadata keeps the viewport typed and every other key verbatim.
type Metadata struct {
	Viewport *Viewport
	Extra    map[string]json.RawMessage
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+1)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Viewport != nil {
		raw, err := json.Marshal(m.Viewport)
		if err != nil {
			return nil, err
		}
		out["viewport"] = raw
	}
	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Metadata{}
	if vp, ok := raw["viewport"]; ok {
		var v Viewport
		if err := json.Unmarshal(vp, &v); err != nil {
			return err
		}
		m.Viewport = &v
		delete(raw, "viewport")
	}
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	out := Metadata{}
	if m.Viewport != nil {
		v := *m.Viewport
		out.Viewport = &v
	}
	if m.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}
