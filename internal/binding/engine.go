package binding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"scenes/internal/domain"
	"scenes/internal/entity"
	"scenes/internal/expr"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// ErrNotWritable is returned by WriteBack for bindings that are not two-way.
var ErrNotWritable = errors.New("binding is not two-way")

// DefaultConcurrency bounds how many bindings of one pass run at once.
const DefaultConcurrency = 16

// Snapshot is a copy of the engine's value maps after a pass. Keys are
// "Component:property".
type Snapshot struct {
	Pass        uint64               `json:"pass"`
	Expressions map[string]any       `json:"expressionValues"`
	Values      map[string]any       `json:"bindingValues"`
	States      map[string]State     `json:"states"`
	Errors      map[string]string    `json:"errors,omitempty"`
	UpdatedAt   map[string]time.Time `json:"updatedAt"`
}

type outcome struct {
	key   string
	raw   any
	value any
	state State
	err   error
}

// Engine resolves binding definitions against one entity store. Each pass
// builds fresh value maps and swaps them in whole; a pass that finishes
// after a newer one overwrites it.
type Engine struct {
	acc         *entity.Accessor
	ev          *expr.Evaluator
	concurrency int
	now         func() time.Time

	passSeq atomic.Uint64

	mu        sync.RWMutex
	pass      uint64
	exprVals  map[string]any
	bindVals  map[string]any
	states    map[string]State
	errs      map[string]string
	updatedAt map[string]time.Time
}

type Option func(*Engine)

func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(acc *entity.Accessor, ev *expr.Evaluator, opts ...Option) *Engine {
	if ev == nil {
		ev = expr.NewEvaluator(nil)
	}
	e := &Engine{
		acc:         acc,
		ev:          ev,
		concurrency: DefaultConcurrency,
		now:         time.Now,
		exprVals:    map[string]any{},
		bindVals:    map[string]any{},
		states:      map[string]State{},
		errs:        map[string]string{},
		updatedAt:   map[string]time.Time{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Evaluator() *expr.Evaluator { return e.ev }
func (e *Engine) Accessor() *entity.Accessor { return e.acc }

// EvaluateBindings runs a full pass over defs. When two definitions share a
// key the later one is the active binding. Failures stay with their binding;
// only context cancellation aborts the pass, in which case nothing is
// committed and every binding returns to the state it had before.
func (e *Engine) EvaluateBindings(ctx context.Context, defs []domain.BindingDefinition, entityID domain.EntityID, sceneID string) (*Snapshot, error) {
	active := activeDefs(defs)
	pass := e.passSeq.Add(1)
	prev := e.markEvaluating(active, true)

	results, err := e.run(ctx, active, entityID, sceneID)
	if err != nil {
		e.abort(prev, active, true)
		return nil, err
	}
	e.commit(pass, results, true)
	return e.Snapshot(), nil
}

// EvaluateAffected re-runs only the bindings whose dependencies mention one
// of changed. Other keys keep their values.
func (e *Engine) EvaluateAffected(ctx context.Context, defs []domain.BindingDefinition, changed []string, entityID domain.EntityID, sceneID string) (*Snapshot, error) {
	modules := e.ev.ModuleNames()
	affected := lo.Filter(activeDefs(defs), func(d domain.BindingDefinition, _ int) bool {
		return touches(Dependencies(d, modules), changed)
	})
	if len(affected) == 0 {
		return e.Snapshot(), nil
	}
	pass := e.passSeq.Add(1)
	prev := e.markEvaluating(affected, false)
	results, err := e.run(ctx, affected, entityID, sceneID)
	if err != nil {
		e.abort(prev, affected, false)
		return nil, err
	}
	e.commit(pass, results, false)
	return e.Snapshot(), nil
}

func (e *Engine) run(ctx context.Context, defs []domain.BindingDefinition, entityID domain.EntityID, sceneID string) ([]outcome, error) {
	results := make([]outcome, len(defs))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, d := range defs {
		g.Go(func() error {
			results[i] = e.evaluateOne(ctx, d, entityID, sceneID)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("evaluate bindings: %w", err)
	}
	return results, nil
}

func (e *Engine) evaluateOne(ctx context.Context, d domain.BindingDefinition, entityID domain.EntityID, sceneID string) outcome {
	key := d.Key()
	raw, err := e.resolve(ctx, d, entityID, sceneID)
	if err != nil {
		log.Printf("binding: %s failed: %v", key, err)
		return outcome{key: key, state: Failed, err: err}
	}
	value := raw
	if strings.TrimSpace(d.Transform) != "" {
		scope := expr.Scope{EntityID: int64(entityID), SceneID: sceneID, Fields: fieldReader(e.acc, entityID)}
		var terr error
		value, terr = e.ev.Transform(ctx, key, d.Transform, scope, raw)
		if terr != nil {
			log.Printf("binding: %s transform failed, using raw value: %v", key, terr)
		}
	}
	return outcome{key: key, raw: raw, value: value, state: Resolved}
}

// resolve produces the raw value of d per its mode.
func (e *Engine) resolve(ctx context.Context, d domain.BindingDefinition, entityID domain.EntityID, sceneID string) (any, error) {
	switch Mode(d) {
	case domain.ModeLiteral:
		if v, ok := expr.ParseLiteral(d.Expression); ok {
			return v, nil
		}
		return d.Expression, nil
	case domain.ModeField, domain.ModeTwoWay:
		v, err := e.acc.ReadPath(ctx, entityID, strings.TrimSpace(d.Expression))
		if err != nil {
			e.ev.Recorder().Record("field", d.Key(), err)
			return nil, err
		}
		return plain(v)
	default:
		scope := expr.Scope{EntityID: int64(entityID), SceneID: sceneID, Fields: fieldReader(e.acc, entityID)}
		return e.ev.Script(ctx, d.Key(), d.Expression, scope)
	}
}

// markEvaluating returns the states map it replaced. Published maps are
// never written to, so the caller may keep it.
func (e *Engine) markEvaluating(defs []domain.BindingDefinition, full bool) map[string]State {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.states
	states := make(map[string]State, len(defs))
	if !full {
		for k, s := range e.states {
			states[k] = s
		}
	}
	for _, d := range defs {
		states[d.Key()] = Evaluating
	}
	e.states = states
	return prev
}

// abort undoes markEvaluating for a pass that will not commit. Keys a newer
// pass has already settled keep their state.
func (e *Engine) abort(prev map[string]State, defs []domain.BindingDefinition, full bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	states := make(map[string]State, len(e.states))
	copyInto(states, e.states)
	for _, d := range defs {
		k := d.Key()
		if states[k] != Evaluating {
			continue
		}
		if s, ok := prev[k]; ok {
			states[k] = s
		} else {
			delete(states, k)
		}
	}
	if full {
		for k, s := range prev {
			if _, ok := states[k]; !ok {
				states[k] = s
			}
		}
	}
	e.states = states
}

// commit swaps in new maps built from results. For a full pass the maps
// hold exactly the evaluated keys; otherwise results are merged over the
// current maps. Timestamps move only when a key's value changes.
func (e *Engine) commit(pass uint64, results []outcome, full bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exprVals := map[string]any{}
	bindVals := map[string]any{}
	states := map[string]State{}
	errs := map[string]string{}
	updated := map[string]time.Time{}
	if !full {
		copyInto(exprVals, e.exprVals)
		copyInto(bindVals, e.bindVals)
		copyInto(states, e.states)
		copyInto(errs, e.errs)
		copyInto(updated, e.updatedAt)
	}

	now := e.now()
	for _, r := range results {
		prev, had := e.bindVals[r.key]
		exprVals[r.key] = r.raw
		bindVals[r.key] = r.value
		states[r.key] = r.state
		delete(errs, r.key)
		if r.err != nil {
			errs[r.key] = r.err.Error()
		}
		if t, ok := e.updatedAt[r.key]; ok && had && equalValues(prev, r.value) {
			updated[r.key] = t
		} else {
			updated[r.key] = now
		}
	}

	e.pass = pass
	e.exprVals = exprVals
	e.bindVals = bindVals
	e.states = states
	e.errs = errs
	e.updatedAt = updated
}

func copyInto[V any](dst, src map[string]V) {
	for k, v := range src {
		dst[k] = v
	}
}

// WriteBack stores raw into the field a two-way binding reads, following
// indirect paths hop by hop. Write errors are returned, never retried.
func (e *Engine) WriteBack(ctx context.Context, d domain.BindingDefinition, entityID domain.EntityID, raw any) error {
	if Mode(d) != domain.ModeTwoWay {
		return fmt.Errorf("%s: %w", d.Key(), ErrNotWritable)
	}
	if err := e.acc.WritePath(ctx, entityID, strings.TrimSpace(d.Expression), raw); err != nil {
		return fmt.Errorf("write back %s: %w", d.Key(), err)
	}
	return nil
}

// ClearCaches drops the accessor's type lookups and compiled programs.
// Resolved values stay until the next pass.
func (e *Engine) ClearCaches() {
	e.acc.ClearCaches()
	e.ev.ClearCache()
}

// Reset forgets every resolved value, state and timestamp.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exprVals = map[string]any{}
	e.bindVals = map[string]any{}
	e.states = map[string]State{}
	e.errs = map[string]string{}
	e.updatedAt = map[string]time.Time{}
}

// ─────────────────────────────────────────────────────────────
// Readers
// ─────────────────────────────────────────────────────────────

func (e *Engine) BindingValue(component, property string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.bindVals[domain.BindingKey(component, property)]
	return v, ok
}

func (e *Engine) ExpressionValue(component, property string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.exprVals[domain.BindingKey(component, property)]
	return v, ok
}

// State reports Unevaluated for keys the engine has never seen.
func (e *Engine) State(component, property string) State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.states[domain.BindingKey(component, property)]
}

func (e *Engine) UpdatedAt(component, property string) (time.Time, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.updatedAt[domain.BindingKey(component, property)]
	return t, ok
}

// Pass is the number of the last committed pass.
func (e *Engine) Pass() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pass
}

// ComponentValues returns the resolved values of one component keyed by
// property.
func (e *Engine) ComponentValues(component string) map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	prefix := component + ":"
	out := map[string]any{}
	for k, v := range e.bindVals {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out
}

func (e *Engine) Snapshot() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := &Snapshot{
		Pass:        e.pass,
		Expressions: make(map[string]any, len(e.exprVals)),
		Values:      make(map[string]any, len(e.bindVals)),
		States:      make(map[string]State, len(e.states)),
		Errors:      make(map[string]string, len(e.errs)),
		UpdatedAt:   make(map[string]time.Time, len(e.updatedAt)),
	}
	copyInto(s.Expressions, e.exprVals)
	copyInto(s.Values, e.bindVals)
	copyInto(s.States, e.states)
	copyInto(s.Errors, e.errs)
	copyInto(s.UpdatedAt, e.updatedAt)
	return s
}
