package scene

// DefaultHistoryLimit caps the number of snapshots kept per scene.
const DefaultHistoryLimit = 100

// Entry is one history snapshot with the action that produced it.
type Entry struct {
	Label string `json:"label"`
	State *State `json:"state"`
}

// History is a linear undo list. Cursor is the index of the state currently
// shown; pushing after an undo drops every entry past the cursor.
type History struct {
	entries []Entry
	cursor  int
	limit   int
}

func newHistory(initial *State, limit int) *History {
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	return &History{entries: []Entry{{Label: "initial", State: initial}}, limit: limit}
}

func (h *History) current() *State { return h.entries[h.cursor].State }

func (h *History) push(label string, s *State) {
	h.entries = append(h.entries[:h.cursor+1], Entry{Label: label, State: s})
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = append([]Entry(nil), h.entries[over:]...)
	}
	h.cursor = len(h.entries) - 1
}

func (h *History) undo() (*State, error) {
	if h.cursor == 0 {
		return nil, ErrNothingToUndo
	}
	h.cursor--
	return h.current(), nil
}

func (h *History) redo() (*State, error) {
	if h.cursor >= len(h.entries)-1 {
		return nil, ErrNothingToRedo
	}
	h.cursor++
	return h.current(), nil
}

func (h *History) canUndo() bool { return h.cursor > 0 }
func (h *History) canRedo() bool { return h.cursor < len(h.entries)-1 }

// Labels lists the action labels oldest first.
func (h *History) labels() []string {
	out := make([]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Label
	}
	return out
}
