package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ── Source ──────────────────────────────────────────────────
// A Source reads rows from an external system. Implementations live in
// feed/sources, one file per type, and register themselves from init().

var ErrUnknownSource = errors.New("unknown source type")

// SourceConfig is an opaque configuration map parsed per source type.
type SourceConfig map[string]any

// ConfigField describes one configuration input of a source.
type ConfigField struct {
	Key      string `json:"key"`
	Required bool   `json:"required"`
	Default  string `json:"default,omitempty"`
	Help     string `json:"help,omitempty"`
}

// SourceSpec describes a source type and the config keys it reads.
type SourceSpec struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	ConfigFields []ConfigField `json:"configFields"`
}

// Source is the interface every data source implements.
type Source interface {
	Spec() SourceSpec

	// Read streams records until the source is exhausted or ctx is
	// cancelled, then closes the record channel. At most one error is sent
	// on the error channel, which is closed afterwards.
	Read(ctx context.Context, cfg SourceConfig) (<-chan Record, <-chan error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource registers s under its spec type.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Type] = s
}

func GetSource(typ string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, typ)
	}
	return s, nil
}

// ListSources returns the specs of all registered sources, sorted by type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}

// Validate checks that every required key of the source is present.
func (spec SourceSpec) Validate(cfg SourceConfig) error {
	var errs []error
	for _, f := range spec.ConfigFields {
		if !f.Required {
			continue
		}
		if v, ok := cfg[f.Key]; !ok || v == nil || v == "" {
			errs = append(errs, fmt.Errorf("%s: %s is required", spec.Type, f.Key))
		}
	}
	return errors.Join(errs...)
}
