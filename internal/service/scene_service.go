package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"scenes/internal/binding"
	"scenes/internal/domain"
	"scenes/internal/entity"
	"scenes/internal/expr"
	"scenes/internal/render"
	"scenes/internal/scene"
	"scenes/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Scene Service: sessions, persistence, evaluation, rendering
// ─────────────────────────────────────────────────────────────

var (
	ErrNoTarget       = errors.New("scene has not been evaluated against an entity yet")
	ErrUnknownBinding = errors.New("no binding for component property")
)

// Options tune sessions opened by a SceneService.
type Options struct {
	Concurrency  int
	HistoryLimit int
	PasteOffset  domain.Point
	Policy       scene.LoadPolicy
	ErrorLimit   int
}

// Bundle is the on-disk export of a scene: the document plus the component
// records it joins against.
type Bundle struct {
	Document   domain.SceneDocument     `json:"document"`
	Components []domain.ComponentRecord `json:"components"`
}

// Session is one open scene: its editor, binding engine and the entity it
// was last evaluated against.
type Session struct {
	ID       string
	EntityID domain.EntityID
	Editor   *scene.Editor
	Engine   *binding.Engine
	Report   *scene.LoadReport

	mu        sync.Mutex
	target    domain.EntityID
	hasTarget bool
}

// Target returns the entity the scene was last evaluated against.
func (s *Session) Target() (domain.EntityID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.hasTarget
}

func (s *Session) setTarget(id domain.EntityID) {
	s.mu.Lock()
	s.target, s.hasTarget = id, true
	s.mu.Unlock()
}

// SceneService manages scenes persisted through the entity layer. It is
// decoupled from any transport via the EventEmitter interface.
type SceneService struct {
	acc      *entity.Accessor
	index    *storage.SceneIndex
	history  *storage.HistoryStore
	registry *render.Registry
	emitter  EventEmitter
	opts     Options
	clip     *scene.Clipboard

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSceneService creates a SceneService ready for use.
func NewSceneService(
	acc *entity.Accessor,
	index *storage.SceneIndex,
	history *storage.HistoryStore,
	registry *render.Registry,
	emitter EventEmitter,
	opts Options,
) *SceneService {
	if registry == nil {
		registry = render.Default()
	}
	if opts.PasteOffset == (domain.Point{}) {
		opts.PasteOffset = scene.DefaultPasteOffset
	}
	return &SceneService{
		acc:      acc,
		index:    index,
		history:  history,
		registry: registry,
		emitter:  emitter,
		opts:     opts,
		clip:     scene.NewClipboard(),
		sessions: make(map[string]*Session),
	}
}

func (s *SceneService) Registry() *render.Registry { return s.registry }

func (s *SceneService) editorOptions() []scene.Option {
	opts := []scene.Option{
		scene.WithSchema(s.registry),
		scene.WithClipboard(s.clip),
		scene.WithPasteOffset(s.opts.PasteOffset),
	}
	if s.opts.HistoryLimit > 0 {
		opts = append(opts, scene.WithHistoryLimit(s.opts.HistoryLimit))
	}
	return opts
}

func (s *SceneService) newSession(ctx context.Context, id string, entityID domain.EntityID, ed *scene.Editor, report *scene.LoadReport) *Session {
	ev := expr.NewEvaluator(expr.NewRecorder(s.opts.ErrorLimit))
	if mods := ed.Header().ScriptModules; len(mods) > 0 {
		if err := ev.LoadModules(ctx, mods); err != nil {
			log.Printf("scene %s: script modules: %v", id, err)
		}
	}
	return &Session{
		ID:       id,
		EntityID: entityID,
		Editor:   ed,
		Engine:   binding.New(s.acc, ev, binding.WithConcurrency(s.opts.Concurrency)),
		Report:   report,
	}
}

// ── CRUD ───────────────────────────────────────────────────

// Create makes an empty scene entity and opens it.
func (s *SceneService) Create(ctx context.Context, name string) (*Session, error) {
	typ, err := s.acc.EntityType(ctx, domain.SceneEntityType)
	if err != nil {
		return nil, err
	}
	entityID, err := s.acc.Store().CreateEntity(ctx, typ, nil, name)
	if err != nil {
		return nil, fmt.Errorf("create scene entity: %w", err)
	}
	id := uuid.New().String()
	ed := scene.New(scene.Header{SceneID: id, Name: name, Components: []domain.EntityID{}}, s.editorOptions()...)
	sess := s.newSession(ctx, id, entityID, ed, &scene.LoadReport{})

	if err := s.acc.WriteValue(ctx, entityID, domain.FieldName, name); err != nil {
		return nil, err
	}
	if err := s.writeDocument(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.index.Upsert(&storage.SceneRecord{ID: id, Name: name, EntityID: entityID}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.emitter.Emit(ctx, "scene:created", map[string]string{"sceneId": id, "name": name})
	return sess, nil
}

// List returns every indexed scene.
func (s *SceneService) List() ([]storage.SceneRecord, error) {
	return s.index.List()
}

// Open returns the session for id, loading it from the entity store on
// first use. Persisted history is restored only when its current state
// still matches the stored document.
func (s *SceneService) Open(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		return sess, nil
	}

	rec, err := s.index.Get(id)
	if err != nil {
		return nil, err
	}
	doc, err := s.readDocument(ctx, rec.EntityID)
	if err != nil {
		return nil, err
	}
	comps, err := s.readComponents(ctx, rec.EntityID)
	if err != nil {
		return nil, err
	}
	ed, report, err := scene.FromDocument(*doc, comps, s.opts.Policy, s.editorOptions()...)
	if err != nil {
		return nil, fmt.Errorf("open scene %s: %w", id, err)
	}
	logReport(id, report)
	s.restoreHistory(id, ed, *doc)

	sess = s.newSession(ctx, id, rec.EntityID, ed, report)
	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok {
		sess = existing
	} else {
		s.sessions[id] = sess
	}
	s.mu.Unlock()
	return sess, nil
}

func logReport(id string, r *scene.LoadReport) {
	for _, d := range r.Dropped {
		log.Printf("scene %s: dropped %s: %s", id, d.Component, d.Reason)
	}
	for _, o := range r.Orphaned {
		log.Printf("scene %s: orphaned %s: %s", id, o.Component, o.Reason)
	}
	for _, i := range r.Invalid {
		log.Printf("scene %s: invalid %s: %s", id, i.Component, i.Reason)
	}
}

func (s *SceneService) restoreHistory(id string, ed *scene.Editor, doc domain.SceneDocument) {
	if s.history == nil {
		return
	}
	entries, cursor, err := s.history.Load(id)
	if err != nil {
		log.Printf("scene %s: load history: %v", id, err)
		return
	}
	if len(entries) == 0 {
		return
	}
	probe := scene.New(ed.Header(), s.editorOptions()...)
	if err := probe.RestoreHistory(entries, cursor); err != nil {
		log.Printf("scene %s: restore history: %v", id, err)
		return
	}
	if !sameDocument(probe.ToDocument(), doc) {
		log.Printf("scene %s: stored history is stale, starting fresh", id)
		return
	}
	if err := ed.RestoreHistory(entries, cursor); err != nil {
		log.Printf("scene %s: restore history: %v", id, err)
	}
}

func sameDocument(a, b domain.SceneDocument) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

// OpenScenes lists the ids of scenes with a live session, sorted.
func (s *SceneService) OpenScenes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := lo.Keys(s.sessions)
	sort.Strings(ids)
	return ids
}

// Close drops the in-memory session. Unsaved edits are lost.
func (s *SceneService) Close(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Sync drops the live session of id when the stored document no longer
// matches it, so the next Open reads what another process wrote. A scene
// that was evaluated is re-evaluated against the same entity. It reports
// whether the session was replaced.
func (s *SceneService) Sync(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	rec, err := s.index.Get(id)
	if errors.Is(err, storage.ErrSceneNotFound) {
		s.Close(id)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	doc, err := s.readDocument(ctx, rec.EntityID)
	if err != nil {
		return false, err
	}
	if sameDocument(sess.Editor.ToDocument(), *doc) {
		return false, nil
	}

	target, hadTarget := sess.Target()
	s.Close(id)
	if hadTarget {
		if _, err := s.Evaluate(ctx, id, target); err != nil {
			return true, err
		}
	} else if _, err := s.Open(ctx, id); err != nil {
		return true, err
	}
	s.emitter.Emit(ctx, "scene:reloaded", map[string]string{"sceneId": id})
	return true, nil
}

// Save writes the scene back through the entity layer: one component
// entity per node, then the document. Writes are not transactional; a
// failure part way leaves earlier writes in place.
func (s *SceneService) Save(ctx context.Context, id string) error {
	sess, err := s.Open(ctx, id)
	if err != nil {
		return err
	}
	if err := s.syncComponents(ctx, sess); err != nil {
		return fmt.Errorf("save scene %s: %w", id, err)
	}
	if err := s.writeDocument(ctx, sess); err != nil {
		return fmt.Errorf("save scene %s: %w", id, err)
	}
	h := sess.Editor.Header()
	rec, err := s.index.Get(id)
	if err != nil {
		rec = &storage.SceneRecord{ID: id, EntityID: sess.EntityID}
	}
	rec.Name = h.Name
	if err := s.index.Upsert(rec); err != nil {
		return err
	}
	if err := s.acc.WriteValue(ctx, sess.EntityID, domain.FieldName, h.Name); err != nil {
		return err
	}
	if s.history != nil {
		entries, cursor := sess.Editor.ExportHistory()
		if err := s.history.Save(id, entries, cursor); err != nil {
			log.Printf("scene %s: save history: %v", id, err)
		}
	}
	s.emitter.Emit(ctx, "scene:saved", id)
	return nil
}

// Delete removes the scene entity, all its component entities, the index
// entry and stored history.
func (s *SceneService) Delete(ctx context.Context, id string) error {
	rec, err := s.index.Get(id)
	if err != nil {
		return err
	}
	children, err := s.componentIDs(ctx, rec.EntityID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := s.acc.Store().DeleteEntity(ctx, c); err != nil {
			return fmt.Errorf("delete component %d: %w", c, err)
		}
	}
	if err := s.acc.Store().DeleteEntity(ctx, rec.EntityID); err != nil {
		return fmt.Errorf("delete scene entity: %w", err)
	}
	if err := s.index.Delete(id); err != nil {
		return err
	}
	s.Close(id)
	s.emitter.Emit(ctx, "scene:deleted", id)
	return nil
}

// Mutate runs fn against the scene's editor, saves, and notifies listeners.
func (s *SceneService) Mutate(ctx context.Context, id string, fn func(ed *scene.Editor) error) error {
	sess, err := s.Open(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(sess.Editor); err != nil {
		return err
	}
	if err := s.Save(ctx, id); err != nil {
		return err
	}
	s.emitter.Emit(ctx, "scene:changed", id)
	return nil
}

// ── Entity-layer projection ────────────────────────────────

func (s *SceneService) readDocument(ctx context.Context, entityID domain.EntityID) (*domain.SceneDocument, error) {
	v, err := s.acc.Lookup(ctx, entityID, domain.FieldDocument)
	if err != nil {
		return nil, fmt.Errorf("read scene document: %w", err)
	}
	raw := ""
	if v != nil {
		raw, _ = v.AsString()
	}
	doc := &domain.SceneDocument{}
	if raw == "" {
		return doc, nil
	}
	if err := json.Unmarshal([]byte(raw), doc); err != nil {
		return nil, fmt.Errorf("decode scene document: %w", err)
	}
	return doc, nil
}

func (s *SceneService) writeDocument(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess.Editor.ToDocument())
	if err != nil {
		return fmt.Errorf("encode scene document: %w", err)
	}
	return s.acc.WriteValue(ctx, sess.EntityID, domain.FieldDocument, string(raw))
}

func (s *SceneService) componentIDs(ctx context.Context, sceneEntity domain.EntityID) ([]domain.EntityID, error) {
	typ, err := s.acc.EntityType(ctx, domain.ComponentEntityType)
	if err != nil {
		return nil, err
	}
	ids, err := s.acc.Store().FindEntities(ctx, typ, domain.Filter{Parent: &sceneEntity})
	if err != nil {
		return nil, fmt.Errorf("find components: %w", err)
	}
	return ids, nil
}

// readComponents loads every component entity under the scene entity.
func (s *SceneService) readComponents(ctx context.Context, sceneEntity domain.EntityID) ([]domain.ComponentRecord, error) {
	ids, err := s.componentIDs(ctx, sceneEntity)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ComponentRecord, 0, len(ids))
	for _, id := range ids {
		rec := domain.ComponentRecord{
			ID:            id,
			Name:          s.acc.ReadString(ctx, id, domain.FieldName),
			PrimitiveType: s.acc.ReadString(ctx, id, domain.FieldPrimitiveType),
			Properties:    map[string]any{},
		}
		if raw := s.acc.ReadString(ctx, id, domain.FieldProperties); raw != "" {
			if err := json.Unmarshal([]byte(raw), &rec.Properties); err != nil {
				log.Printf("component %d: bad properties: %v", id, err)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// syncComponents makes the component entities match the scene's nodes:
// nodes are matched by stored reference, then by name; missing ones are
// created and leftovers deleted.
func (s *SceneService) syncComponents(ctx context.Context, sess *Session) error {
	existing, err := s.readComponents(ctx, sess.EntityID)
	if err != nil {
		return err
	}
	byID := lo.KeyBy(existing, func(c domain.ComponentRecord) domain.EntityID { return c.ID })
	byName := lo.KeyBy(existing, func(c domain.ComponentRecord) string { return c.Name })
	typ, err := s.acc.EntityType(ctx, domain.ComponentEntityType)
	if err != nil {
		return err
	}

	used := map[domain.EntityID]bool{}
	attach := map[string]domain.EntityID{}
	var ids []domain.EntityID
	for _, n := range sess.Editor.Nodes() {
		var cid domain.EntityID
		if n.ComponentRef != nil {
			if _, ok := byID[*n.ComponentRef]; ok {
				cid = *n.ComponentRef
			}
		}
		if cid == 0 {
			if c, ok := byName[n.Name]; ok && !used[c.ID] {
				cid = c.ID
			}
		}
		if cid == 0 {
			parent := sess.EntityID
			cid, err = s.acc.Store().CreateEntity(ctx, typ, &parent, n.Name)
			if err != nil {
				return fmt.Errorf("create component %s: %w", n.Name, err)
			}
		}
		if n.ComponentRef == nil || *n.ComponentRef != cid {
			attach[n.ID] = cid
		}
		used[cid] = true
		ids = append(ids, cid)

		props, err := json.Marshal(n.Properties)
		if err != nil {
			return fmt.Errorf("encode properties of %s: %w", n.Name, err)
		}
		for field, v := range map[string]string{
			domain.FieldName:          n.Name,
			domain.FieldPrimitiveType: n.PrimitiveType,
			domain.FieldProperties:    string(props),
		} {
			if err := s.acc.WriteValue(ctx, cid, field, v); err != nil {
				return err
			}
		}
	}
	for _, c := range existing {
		if !used[c.ID] {
			if err := s.acc.Store().DeleteEntity(ctx, c.ID); err != nil {
				return fmt.Errorf("delete component %s: %w", c.Name, err)
			}
		}
	}

	if len(attach) > 0 {
		sess.Editor.AttachComponents(attach)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	h := sess.Editor.Header()
	h.Components = ids
	if h.Components == nil {
		h.Components = []domain.EntityID{}
	}
	sess.Editor.SetHeader(h)
	return nil
}

// ── Import / export ────────────────────────────────────────

// Export returns the scene as a bundle suitable for a *.scene.json file.
func (s *SceneService) Export(ctx context.Context, id string) (*Bundle, error) {
	sess, err := s.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	doc := sess.Editor.ToDocument()
	comps := make([]domain.ComponentRecord, 0, len(doc.Layout))
	for _, n := range sess.Editor.Nodes() {
		rec := domain.ComponentRecord{Name: n.Name, PrimitiveType: n.PrimitiveType, Properties: n.Properties}
		if n.ComponentRef != nil {
			rec.ID = *n.ComponentRef
		}
		comps = append(comps, rec)
	}
	return &Bundle{Document: doc, Components: comps}, nil
}

// Import loads a bundle. A document whose id is already indexed replaces
// that scene and discards its history; otherwise a new scene is created.
func (s *SceneService) Import(ctx context.Context, b Bundle) (*Session, error) {
	doc := b.Document
	var entityID domain.EntityID
	rec, err := s.index.Get(doc.ID)
	switch {
	case err == nil:
		entityID = rec.EntityID
	case errors.Is(err, storage.ErrSceneNotFound):
		typ, err := s.acc.EntityType(ctx, domain.SceneEntityType)
		if err != nil {
			return nil, err
		}
		if doc.ID == "" {
			doc.ID = uuid.New().String()
		}
		entityID, err = s.acc.Store().CreateEntity(ctx, typ, nil, doc.Name)
		if err != nil {
			return nil, fmt.Errorf("create scene entity: %w", err)
		}
		if err := s.index.Upsert(&storage.SceneRecord{ID: doc.ID, Name: doc.Name, EntityID: entityID}); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	ed, report, err := scene.FromDocument(doc, b.Components, s.opts.Policy, s.editorOptions()...)
	if err != nil {
		return nil, fmt.Errorf("import scene %s: %w", doc.Name, err)
	}
	logReport(doc.ID, report)
	sess := s.newSession(ctx, doc.ID, entityID, ed, report)

	s.mu.Lock()
	s.sessions[doc.ID] = sess
	s.mu.Unlock()
	if s.history != nil {
		if err := s.history.Clear(doc.ID); err != nil {
			log.Printf("scene %s: clear history: %v", doc.ID, err)
		}
	}
	if err := s.Save(ctx, doc.ID); err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, "scene:imported", doc.ID)
	return sess, nil
}

// ExportFile writes the scene bundle into dir and remembers the path, so a
// later edit of that file maps back to this scene.
func (s *SceneService) ExportFile(ctx context.Context, id, dir string) (string, error) {
	b, err := s.Export(ctx, id)
	if err != nil {
		return "", err
	}
	path, err := filepath.Abs(BundleFileName(dir, b.Document.Name))
	if err != nil {
		return "", err
	}
	if err := WriteBundle(path, b); err != nil {
		return "", err
	}
	if err := s.rememberPath(id, path); err != nil {
		return "", err
	}
	s.emitter.Emit(ctx, "scene:exported", map[string]string{"sceneId": id, "path": path})
	return path, nil
}

// ImportFile imports the bundle at path. See ImportBundle.
func (s *SceneService) ImportFile(ctx context.Context, path string) (*Session, error) {
	b, err := ReadBundle(path)
	if err != nil {
		return nil, err
	}
	return s.ImportBundle(ctx, path, *b)
}

// ImportBundle imports b as read from path. A document without an id
// replaces the scene last exported to the same path.
func (s *SceneService) ImportBundle(ctx context.Context, path string, b Bundle) (*Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	b.Document.ID = s.SceneForFile(abs, b.Document.ID)
	sess, err := s.Import(ctx, b)
	if err != nil {
		return nil, err
	}
	if err := s.rememberPath(sess.ID, abs); err != nil {
		return nil, err
	}
	return sess, nil
}

// SceneForFile returns docID when set, otherwise the id of the scene last
// exported to path, or "".
func (s *SceneService) SceneForFile(path, docID string) string {
	if docID != "" {
		return docID
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	rec, err := s.index.ByDocumentPath(abs)
	if err != nil {
		return ""
	}
	return rec.ID
}

func (s *SceneService) rememberPath(id, path string) error {
	rec, err := s.index.Get(id)
	if err != nil {
		return err
	}
	rec.DocumentPath = path
	return s.index.Upsert(rec)
}

// ── Bindings ───────────────────────────────────────────────

// Evaluate runs a full binding pass of the scene against entityID.
func (s *SceneService) Evaluate(ctx context.Context, id string, entityID domain.EntityID) (*binding.Snapshot, error) {
	sess, err := s.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.setTarget(entityID)
	snap, err := sess.Engine.EvaluateBindings(ctx, sess.Editor.Definitions(), entityID, id)
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, "scene:evaluated", map[string]any{"sceneId": id, "pass": snap.Pass})
	return snap, nil
}

// Reevaluate repeats the last full pass against the same entity.
func (s *SceneService) Reevaluate(ctx context.Context, id string) (*binding.Snapshot, error) {
	sess, err := s.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	target, ok := sess.Target()
	if !ok {
		return nil, ErrNoTarget
	}
	return s.Evaluate(ctx, id, target)
}

// Notify re-evaluates the bindings that depend on any of fields.
func (s *SceneService) Notify(ctx context.Context, id string, fields []string) (*binding.Snapshot, error) {
	sess, err := s.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	target, ok := sess.Target()
	if !ok {
		return nil, ErrNoTarget
	}
	snap, err := sess.Engine.EvaluateAffected(ctx, sess.Editor.Definitions(), fields, target, id)
	if err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, "scene:evaluated", map[string]any{"sceneId": id, "pass": snap.Pass})
	return snap, nil
}

// WriteBack writes a user-edited value through a two-way binding and then
// refreshes the bindings that read the written field.
func (s *SceneService) WriteBack(ctx context.Context, id, component, property string, raw any) error {
	sess, err := s.Open(ctx, id)
	if err != nil {
		return err
	}
	target, ok := sess.Target()
	if !ok {
		return ErrNoTarget
	}
	def, ok := lo.Find(sess.Editor.Definitions(), func(d domain.BindingDefinition) bool {
		return d.Component == component && d.Property == property
	})
	if !ok {
		return fmt.Errorf("%s: %w", domain.BindingKey(component, property), ErrUnknownBinding)
	}
	if err := sess.Engine.WriteBack(ctx, def, target, raw); err != nil {
		return err
	}
	_, err = s.Notify(ctx, id, []string{def.Expression})
	return err
}

// Undo moves the scene's history back one step and re-evaluates against
// live data when the scene has been evaluated before.
func (s *SceneService) Undo(ctx context.Context, id string) error {
	return s.step(ctx, id, (*scene.Editor).Undo)
}

func (s *SceneService) Redo(ctx context.Context, id string) error {
	return s.step(ctx, id, (*scene.Editor).Redo)
}

func (s *SceneService) step(ctx context.Context, id string, move func(*scene.Editor) error) error {
	sess, err := s.Open(ctx, id)
	if err != nil {
		return err
	}
	if err := move(sess.Editor); err != nil {
		return err
	}
	if err := s.Save(ctx, id); err != nil {
		return err
	}
	if _, ok := sess.Target(); ok {
		if _, err := s.Reevaluate(ctx, id); err != nil {
			return err
		}
	}
	s.emitter.Emit(ctx, "scene:changed", id)
	return nil
}

// ── Rendering ──────────────────────────────────────────────

// RenderedNode is one node's render description in paint order.
type RenderedNode struct {
	NodeID      string             `json:"nodeId"`
	Name        string             `json:"name"`
	ParentID    string             `json:"parentId,omitempty"`
	Description render.Description `json:"description"`
	Error       string             `json:"error,omitempty"`
}

// Render describes every node of the scene in paint order: parents before
// children, siblings by z-index. Every evaluated binding overrides the
// stored property; a failed or null binding renders the primitive's default
// in place. Hidden nodes and their descendants render invisible.
func (s *SceneService) Render(ctx context.Context, id string) ([]RenderedNode, error) {
	sess, err := s.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []RenderedNode
	var walk func(parentID string, hidden bool)
	walk = func(parentID string, hidden bool) {
		for _, n := range sess.Editor.Siblings(parentID) {
			props := lo.Assign(n.Properties, map[string]any{
				"x":      n.Position.X,
				"y":      n.Position.Y,
				"width":  n.Size.W,
				"height": n.Size.H,
			}, sess.Engine.ComponentValues(n.Name))
			isHidden := hidden || n.Hidden
			if isHidden {
				props["visible"] = false
			}
			rn := RenderedNode{NodeID: n.ID, Name: n.Name, ParentID: n.ParentID}
			d, err := s.registry.Render(n.PrimitiveType, props)
			if err != nil {
				rn.Error = err.Error()
			} else {
				rn.Description = d
			}
			out = append(out, rn)
			walk(n.ID, isHidden)
		}
	}
	walk("", false)
	return out, nil
}
