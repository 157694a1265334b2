package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scenes/internal/domain"
	"scenes/internal/entity"
	"scenes/internal/entitydb"
	_ "scenes/internal/feed/sources"
	"scenes/internal/service"
	"scenes/internal/storage"

	"github.com/mark3labs/mcp-go/mcp"
)

// ─────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────

type testServer struct {
	*Server
	tank domain.EntityID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store := entitydb.NewMemoryStore()
	if err := entitydb.EnsureSchema(ctx, store); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if _, err := store.DefineFieldType(ctx, "Level", domain.KindFloat); err != nil {
		t.Fatalf("define field: %v", err)
	}
	tankType, err := store.DefineEntityType(ctx, "Tank")
	if err != nil {
		t.Fatalf("define entity type: %v", err)
	}
	tank, err := store.CreateEntity(ctx, tankType, nil, "T-101")
	if err != nil {
		t.Fatalf("create tank: %v", err)
	}
	acc := entity.NewAccessor(store)
	if err := acc.WriteValue(ctx, tank, "Level", 42.5); err != nil {
		t.Fatalf("write level: %v", err)
	}

	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "scenes.db"), dir)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	em := &service.MockEmitter{}
	svc := service.NewSceneService(acc, storage.NewSceneIndex(db), storage.NewHistoryStore(db, 0), nil, em, service.Options{})
	refresh := service.NewRefreshService(svc, em)
	s := New(ctx, Deps{
		Emitter: em,
		Scenes:  svc,
		Refresh: refresh,
		Feeds:   service.NewFeedService(acc, refresh, em),
	})
	return &testServer{Server: s, tank: tank}
}

type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func call(t *testing.T, h handler, args map[string]any) string {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("tool call %v: %v", args, err)
	}
	return res.Content[0].(mcp.TextContent).Text
}

func callErr(h handler, args map[string]any) error {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	_, err := h(context.Background(), req)
	return err
}

func decode[T any](t *testing.T, text string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		t.Fatalf("decode %q: %v", text, err)
	}
	return v
}

// createScene creates a scene through the tool and returns its id.
func (s *testServer) createScene(t *testing.T, name string) string {
	t.Helper()
	sum := decode[sceneSummary](t, call(t, s.handleCreateScene, map[string]any{"name": name}))
	return sum.ID
}

// ─────────────────────────────────────────────────────────────
// Scenes
// ─────────────────────────────────────────────────────────────

func TestTools_CreateSetsActiveScene(t *testing.T) {
	s := newTestServer(t)
	id := s.createScene(t, "Boiler")

	got, err := s.resolveSceneID(map[string]any{})
	if err != nil || got != id {
		t.Fatalf("expected active scene %s, got %s (%v)", id, got, err)
	}

	list := call(t, s.handleListScenes, nil)
	if !strings.Contains(list, id) {
		t.Errorf("list_scenes does not contain %s: %s", id, list)
	}
}

func TestTools_NoActiveScene(t *testing.T) {
	s := newTestServer(t)
	if err := callErr(s.handleAddNode, map[string]any{"primitiveType": "rectangle"}); err == nil {
		t.Fatal("expected an error without an active scene")
	}
}

func TestTools_DeleteSceneClearsActive(t *testing.T) {
	s := newTestServer(t)
	id := s.createScene(t, "Temp")
	call(t, s.handleDeleteScene, map[string]any{"sceneId": id})

	if _, err := s.resolveSceneID(map[string]any{}); err == nil {
		t.Error("expected no active scene after delete")
	}
}

// ─────────────────────────────────────────────────────────────
// Nodes
// ─────────────────────────────────────────────────────────────

func TestTools_AddNodeAutoLayout(t *testing.T) {
	s := newTestServer(t)
	s.createScene(t, "Layout")

	a := decode[nodeSummary](t, call(t, s.handleAddNode, map[string]any{"primitiveType": "rectangle", "name": "A"}))
	b := decode[nodeSummary](t, call(t, s.handleAddNode, map[string]any{"primitiveType": "rectangle", "name": "B"}))

	if a.X != 0 || a.Y != 0 {
		t.Errorf("expected first node at origin, got (%.0f, %.0f)", a.X, a.Y)
	}
	if a.Width != 120 || a.Height != 80 {
		t.Errorf("expected default rectangle size, got %.0fx%.0f", a.Width, a.Height)
	}
	ra := rect{a.X, a.Y, a.Width, a.Height}
	rb := rect{b.X, b.Y, b.Width, b.Height}
	if ra.intersects(rb) {
		t.Errorf("auto-placed nodes overlap: %v %v", ra, rb)
	}
}

func TestTools_AddNodeRejectsUnknownProperty(t *testing.T) {
	s := newTestServer(t)
	s.createScene(t, "Strict")

	err := callErr(s.handleAddNode, map[string]any{
		"primitiveType": "rectangle",
		"properties":    `{"wobble": 3}`,
	})
	if err == nil {
		t.Fatal("expected unknown property to be rejected")
	}
}

func TestTools_UpdateByName(t *testing.T) {
	s := newTestServer(t)
	s.createScene(t, "Update")
	call(t, s.handleAddNode, map[string]any{"primitiveType": "rectangle", "name": "Box", "x": 10.0, "y": 10.0})

	n := decode[nodeSummary](t, call(t, s.handleUpdateNode, map[string]any{
		"node":       "Box",
		"x":          50.0,
		"hidden":     true,
		"properties": `{"fill":"#ff0000"}`,
	}))
	if n.X != 50 || n.Y != 10 {
		t.Errorf("expected (50, 10), got (%.0f, %.0f)", n.X, n.Y)
	}
	if !n.Hidden {
		t.Error("expected node hidden")
	}
	if n.Properties["fill"] != "#ff0000" {
		t.Errorf("expected fill updated, got %v", n.Properties["fill"])
	}
}

func TestTools_DeleteAndUndo(t *testing.T) {
	s := newTestServer(t)
	id := s.createScene(t, "Undo")
	call(t, s.handleAddNode, map[string]any{"primitiveType": "circle", "name": "Dot"})
	call(t, s.handleDeleteNodes, map[string]any{"nodes": "Dot"})

	sess, err := s.scenes.Open(context.Background(), id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := sess.Editor.NodeByName("Dot"); err == nil {
		t.Fatal("expected Dot deleted")
	}

	call(t, s.handleUndo, nil)
	if _, err := sess.Editor.NodeByName("Dot"); err != nil {
		t.Errorf("expected Dot restored by undo: %v", err)
	}
}

func TestTools_CopyPaste(t *testing.T) {
	s := newTestServer(t)
	s.createScene(t, "Clip")
	call(t, s.handleAddNode, map[string]any{"primitiveType": "valve", "name": "V1"})
	call(t, s.handleCopyNodes, map[string]any{"nodes": "V1"})

	out := decode[map[string][]string](t, call(t, s.handlePasteNodes, nil))
	if len(out["nodeIds"]) != 1 {
		t.Fatalf("expected one pasted node, got %v", out)
	}
}

func TestTools_ConnectPipe(t *testing.T) {
	s := newTestServer(t)
	s.createScene(t, "Pipes")
	call(t, s.handleAddNode, map[string]any{"primitiveType": "tank", "name": "T1", "x": 0.0, "y": 0.0})
	call(t, s.handleAddNode, map[string]any{"primitiveType": "tank", "name": "T2", "x": 400.0, "y": 200.0})

	segs := decode[[]nodeSummary](t, call(t, s.handleConnectPipe, map[string]any{
		"from":    "T1",
		"to":      "T2",
		"flowing": true,
	}))
	if len(segs) == 0 {
		t.Fatal("expected pipe segments")
	}
	for i, seg := range segs {
		if seg.PrimitiveType != "pipe" {
			t.Errorf("segment %d: expected pipe, got %q", i, seg.PrimitiveType)
		}
		if !strings.HasPrefix(seg.Name, "T1-T2-") {
			t.Errorf("segment %d: unexpected name %q", i, seg.Name)
		}
		if seg.Properties["flowing"] != true {
			t.Errorf("segment %d: expected flowing", i)
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Bindings
// ─────────────────────────────────────────────────────────────

func TestTools_BindEvaluateRender(t *testing.T) {
	s := newTestServer(t)
	s.createScene(t, "Bound")
	call(t, s.handleAddNode, map[string]any{
		"primitiveType": "rectangle", "name": "Tank1",
		"x": 10.0, "y": 20.0, "width": 50.0, "height": 60.0,
	})
	call(t, s.handleSetBinding, map[string]any{
		"node": "Tank1", "property": "width", "expression": "Level", "mode": "field",
	})

	snap := decode[struct {
		Values map[string]any `json:"bindingValues"`
	}](t, call(t, s.handleEvaluateBindings, map[string]any{"entityId": float64(s.tank)}))
	if snap.Values["Tank1:width"] != 42.5 {
		t.Fatalf("expected Tank1:width = 42.5, got %v", snap.Values["Tank1:width"])
	}

	statuses := decode[[]bindingStatus](t, call(t, s.handleListBindings, nil))
	if len(statuses) != 1 || statuses[0].State != "resolved" {
		t.Errorf("expected one resolved binding, got %+v", statuses)
	}

	nodes := decode[[]service.RenderedNode](t, call(t, s.handleRenderScene, nil))
	if len(nodes) != 1 {
		t.Fatalf("expected one rendered node, got %d", len(nodes))
	}
	if w := nodes[0].Description.Geometry.W; w != 42.5 {
		t.Errorf("expected bound width 42.5, got %v", w)
	}
}

func TestTools_EvaluateWithoutTarget(t *testing.T) {
	s := newTestServer(t)
	s.createScene(t, "Fresh")
	if err := callErr(s.handleEvaluateBindings, nil); err == nil {
		t.Error("expected an error before any entity was evaluated")
	}
}

// ─────────────────────────────────────────────────────────────
// Feeds
// ─────────────────────────────────────────────────────────────

func TestTools_RunFeedRefreshesBoundScene(t *testing.T) {
	s := newTestServer(t)
	id := s.createScene(t, "Fed")
	call(t, s.handleAddNode, map[string]any{"primitiveType": "rectangle", "name": "Tank1"})
	call(t, s.handleSetBinding, map[string]any{"node": "Tank1", "property": "width", "expression": "Level"})
	call(t, s.handleEvaluateBindings, map[string]any{"entityId": float64(s.tank)})

	path := filepath.Join(t.TempDir(), "levels.csv")
	if err := os.WriteFile(path, []byte("tank,lvl\n"+s.tank.String()+",12\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	args := map[string]any{
		"source":     "csv_file",
		"config":     `{"filePath": "` + path + `"}`,
		"transforms": `[{"type": "rename", "config": {"mapping": {"lvl": "Level"}}}]`,
		"key":        "tank",
	}

	preview := decode[[]struct {
		Data map[string]any `json:"data"`
	}](t, call(t, s.handleRunFeed, map[string]any{
		"source": args["source"], "config": args["config"], "transforms": args["transforms"], "preview": 5.0,
	}))
	if len(preview) != 1 || preview[0].Data["Level"] != 12.0 {
		t.Fatalf("unexpected preview %+v", preview)
	}

	run := decode[struct {
		Fields []string `json:"fields"`
		Scenes []string `json:"scenes"`
	}](t, call(t, s.handleRunFeed, args))
	if len(run.Scenes) != 1 || run.Scenes[0] != id {
		t.Fatalf("expected scene %s refreshed, got %+v", id, run)
	}

	statuses := decode[[]bindingStatus](t, call(t, s.handleListBindings, nil))
	if len(statuses) != 1 || statuses[0].Value != 12.0 {
		t.Errorf("expected Tank1:width = 12 after the feed, got %+v", statuses)
	}

	if err := callErr(s.handleRunFeed, map[string]any{"key": "tank"}); err == nil {
		t.Error("expected an error without name or source")
	}
}

// ─────────────────────────────────────────────────────────────
// Resources
// ─────────────────────────────────────────────────────────────

func TestSceneIDFromURI(t *testing.T) {
	cases := map[string]string{
		"scenes://scene/abc-123/document": "abc-123",
		"scenes://scene/abc-123":          "",
		"scenes://list":                   "",
	}
	for uri, want := range cases {
		if got := sceneIDFromURI(uri); got != want {
			t.Errorf("sceneIDFromURI(%q) = %q, want %q", uri, got, want)
		}
	}
}
