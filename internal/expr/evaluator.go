package expr

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Evaluator caches compiled programs and the loaded module set, and records
// every failure it catches.
type Evaluator struct {
	rec *Recorder

	mu       sync.RWMutex
	programs map[string]*Program
	modules  map[string]*Module
}

func NewEvaluator(rec *Recorder) *Evaluator {
	if rec == nil {
		rec = NewRecorder(0)
	}
	return &Evaluator{
		rec:      rec,
		programs: make(map[string]*Program),
		modules:  make(map[string]*Module),
	}
}

func (e *Evaluator) Recorder() *Recorder { return e.rec }

// Compile returns the cached program for src, compiling it on first use.
func (e *Evaluator) Compile(src string) (*Program, error) {
	e.mu.RLock()
	p, ok := e.programs[src]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}
	p, err := Compile(src)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.programs[src] = p
	e.mu.Unlock()
	return p, nil
}

// LoadModules replaces the module set. Modules are compiled in name order;
// a module that fails is recorded, left out, and reported in the joined
// error while the rest still load.
func (e *Evaluator) LoadModules(ctx context.Context, sources map[string]string) error {
	names := make([]string, 0, len(sources))
	for n := range sources {
		names = append(names, n)
	}
	sort.Strings(names)

	mods := make(map[string]*Module, len(sources))
	var errs []error
	for _, n := range names {
		m, err := CompileModule(ctx, n, sources[n])
		if err != nil {
			e.rec.Record(n, "module load", err)
			errs = append(errs, err)
			continue
		}
		mods[n] = m
	}
	e.mu.Lock()
	e.modules = mods
	e.mu.Unlock()
	return errors.Join(errs...)
}

// Modules returns the current module set. The map must not be modified.
func (e *Evaluator) Modules() map[string]*Module {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.modules
}

// ModuleNames lists loaded module names in sorted order.
func (e *Evaluator) ModuleNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.modules))
	for n := range e.modules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Script compiles and runs src with the loaded modules in scope. Failures
// are recorded under label and returned.
func (e *Evaluator) Script(ctx context.Context, label, src string, scope Scope) (any, error) {
	p, err := e.Compile(src)
	if err == nil {
		scope.Modules = e.Modules()
		var v any
		v, err = p.Eval(ctx, scope)
		if err == nil {
			return v, nil
		}
	}
	e.rec.Record("script", label, err)
	return nil, err
}

// Transform applies src to value. On any failure the failure is recorded
// and value is returned unchanged.
func (e *Evaluator) Transform(ctx context.Context, label, src string, scope Scope, value any) (any, error) {
	p, err := e.Compile(src)
	if err == nil {
		scope.Modules = e.Modules()
		var v any
		v, err = p.Apply(ctx, scope, value)
		if err == nil {
			return v, nil
		}
	}
	e.rec.Record("transform", label, err)
	return value, err
}

// ClearCache drops compiled programs. Loaded modules stay.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	e.programs = make(map[string]*Program)
	e.mu.Unlock()
}
