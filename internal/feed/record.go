package feed

import "sort"

// ── Record ─────────────────────────────────────────────────
// Every source emits Records; the entity writer consumes them.

// Record is one row of data flowing through a feed.
type Record struct {
	Data map[string]any `json:"data"`
}

// Columns returns the record's keys, sorted.
func (r Record) Columns() []string {
	cols := make([]string, 0, len(r.Data))
	for k := range r.Data {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func (r Record) clone() Record {
	data := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	return Record{Data: data}
}
