package scene_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"scenes/internal/domain"
	"scenes/internal/scene"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqIDs() scene.Option {
	n := 0
	return scene.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id%d", n)
	})
}

func newEditor(t *testing.T, opts ...scene.Option) *scene.Editor {
	t.Helper()
	return scene.New(scene.Header{SceneID: "s1", Name: "Plant"}, append([]scene.Option{seqIDs()}, opts...)...)
}

func add(t *testing.T, e *scene.Editor, id, name, parent string) {
	t.Helper()
	_, err := e.AddNode(domain.Node{
		ID: id, Name: name, PrimitiveType: "rectangle", ParentID: parent,
		Position: domain.Point{X: 10, Y: 10}, Size: domain.Size{W: 50, H: 40},
		Properties: map[string]any{"fill": "#fff"},
	})
	require.NoError(t, err)
}

func ids(nodes []*domain.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestAddNodeValidation(t *testing.T) {
	e := newEditor(t)
	add(t, e, "a", "A", "")

	_, err := e.AddNode(domain.Node{ID: "a", Name: "Other"})
	assert.ErrorIs(t, err, scene.ErrDuplicateID)
	_, err = e.AddNode(domain.Node{ID: "b", Name: "A"})
	assert.ErrorIs(t, err, scene.ErrDuplicateName)
	_, err = e.AddNode(domain.Node{ID: "b", Name: "B", ParentID: "missing"})
	assert.ErrorIs(t, err, scene.ErrNodeNotFound)

	n, err := e.AddNode(domain.Node{Name: "C", PrimitiveType: "text"})
	require.NoError(t, err)
	assert.Equal(t, "id1", n.ID)
	assert.True(t, n.AutoWidth && n.AutoHeight)
	assert.NotNil(t, n.Properties)

	labels, cursor := e.HistoryLabels()
	assert.Len(t, labels, 3, "failed mutations push nothing")
	assert.Equal(t, 2, cursor)
}

func TestUpdateNodePatch(t *testing.T) {
	e := newEditor(t)
	add(t, e, "a", "A", "")
	add(t, e, "b", "B", "")

	name := "Tank"
	size := domain.Size{W: 80, H: 90}
	n, err := e.UpdateNode("a", scene.NodePatch{
		Name:       &name,
		Size:       &size,
		Properties: map[string]any{"fill": nil, "stroke": "#000"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Tank", n.Name)
	assert.Equal(t, size, n.Size)
	assert.Equal(t, map[string]any{"stroke": "#000"}, n.Properties)

	taken := "B"
	_, err = e.UpdateNode("a", scene.NodePatch{Name: &taken})
	assert.ErrorIs(t, err, scene.ErrDuplicateName)
	_, err = e.UpdateNode("zz", scene.NodePatch{})
	assert.ErrorIs(t, err, scene.ErrNodeNotFound)

	require.NoError(t, e.Undo())
	old, err := e.Node("a")
	require.NoError(t, err)
	assert.Equal(t, "A", old.Name)
	assert.Equal(t, map[string]any{"fill": "#fff"}, old.Properties, "published node was not written through")
}

func TestReparentRejectsCycles(t *testing.T) {
	e := newEditor(t)
	add(t, e, "a", "A", "")
	add(t, e, "b", "B", "a")
	add(t, e, "c", "C", "b")

	assert.ErrorIs(t, e.Reparent("a", "c"), scene.ErrCycle)
	assert.ErrorIs(t, e.Reparent("a", "a"), scene.ErrCycle)
	assert.ErrorIs(t, e.Reparent("a", "nope"), scene.ErrNodeNotFound)

	require.NoError(t, e.Reparent("c", "a"))
	c, _ := e.Node("c")
	assert.Equal(t, "a", c.ParentID)
	require.NoError(t, e.Reparent("c", ""))
	c, _ = e.Node("c")
	assert.Empty(t, c.ParentID)
}

func TestDeleteCascadesToDescendantsAndBindings(t *testing.T) {
	e := newEditor(t)
	add(t, e, "a", "A", "")
	add(t, e, "b", "B", "a")
	add(t, e, "c", "C", "")
	for _, id := range []string{"a", "b", "c"} {
		_, err := e.SetBinding(domain.Binding{ComponentID: id, Property: "fill", Expression: "Color", Mode: domain.ModeField})
		require.NoError(t, err)
	}

	require.NoError(t, e.DeleteNodes("a"))
	assert.Equal(t, []string{"c"}, ids(e.Nodes()))
	require.Len(t, e.Bindings(), 1)
	assert.Equal(t, "c", e.Bindings()[0].ComponentID)

	assert.ErrorIs(t, e.DeleteNodes("a"), scene.ErrNodeNotFound)
	assert.ErrorIs(t, e.DeleteNodes(), scene.ErrEmptySelection)

	require.NoError(t, e.Undo())
	assert.Equal(t, []string{"a", "b", "c"}, ids(e.Nodes()))
	assert.Len(t, e.Bindings(), 3)
}

func TestReorderSiblings(t *testing.T) {
	e := newEditor(t)
	add(t, e, "a", "A", "")
	add(t, e, "b", "B", "")
	add(t, e, "c", "C", "")
	add(t, e, "x", "X", "a")

	require.NoError(t, e.BringToFront("a"))
	assert.Equal(t, []string{"b", "c", "a"}, ids(e.Siblings("")))
	require.NoError(t, e.SendToBack("a"))
	assert.Equal(t, []string{"a", "b", "c"}, ids(e.Siblings("")))
	require.NoError(t, e.Reorder("c", 0))
	assert.Equal(t, []string{"c", "a", "b"}, ids(e.Siblings("")))
	require.NoError(t, e.Reorder("c", 99))
	assert.Equal(t, []string{"a", "b", "c"}, ids(e.Siblings("")))
	assert.Equal(t, []string{"x"}, ids(e.Siblings("a")))

	for i, n := range e.Siblings("") {
		assert.Equal(t, i, n.ZIndex)
	}
	assert.ErrorIs(t, e.Reorder("nope", 0), scene.ErrNodeNotFound)
}

func TestSetBindingReplacesPerProperty(t *testing.T) {
	e := newEditor(t)
	add(t, e, "a", "A", "")

	first, err := e.SetBinding(domain.Binding{ComponentID: "a", Property: "text", Expression: "Temperature"})
	require.NoError(t, err)
	second, err := e.SetBinding(domain.Binding{ComponentID: "a", Property: "text", Expression: "Pressure"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	bs := e.Bindings()
	require.Len(t, bs, 1)
	assert.Equal(t, "Pressure", bs[0].Expression)

	_, err = e.SetBinding(domain.Binding{ComponentID: "missing", Property: "text"})
	assert.ErrorIs(t, err, scene.ErrNodeNotFound)

	defs := e.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "A:text", defs[0].Key())

	require.NoError(t, e.RemoveBinding("a", "text"))
	assert.ErrorIs(t, e.RemoveBinding("a", "text"), scene.ErrBindingNotFound)
	assert.Empty(t, e.Bindings())
}

func TestUndoRedoRestoresExactState(t *testing.T) {
	e := newEditor(t)
	initial := e.State()

	add(t, e, "a", "A", "")
	add(t, e, "b", "B", "a")
	_, err := e.SetBinding(domain.Binding{ComponentID: "b", Property: "text", Expression: "{Level}"})
	require.NoError(t, err)
	require.NoError(t, e.SetViewport(domain.Viewport{Width: 800, Height: 600}))
	pos := domain.Point{X: 99, Y: 1}
	_, err = e.UpdateNode("a", scene.NodePatch{Position: &pos})
	require.NoError(t, err)
	require.NoError(t, e.Reparent("b", ""))

	const n = 6
	final := e.State()
	for i := 0; i < n; i++ {
		require.NoError(t, e.Undo())
	}
	assert.ErrorIs(t, e.Undo(), scene.ErrNothingToUndo)
	assert.Equal(t, initial, e.State())

	for i := 0; i < n; i++ {
		require.NoError(t, e.Redo())
	}
	assert.ErrorIs(t, e.Redo(), scene.ErrNothingToRedo)
	assert.Equal(t, final, e.State())

	require.NoError(t, e.Undo())
	assert.True(t, e.CanRedo())
	add(t, e, "c", "C", "")
	assert.False(t, e.CanRedo(), "a new mutation drops the redo tail")
}

func TestHistoryLimit(t *testing.T) {
	e := newEditor(t, scene.WithHistoryLimit(3))
	for i := 0; i < 5; i++ {
		add(t, e, fmt.Sprintf("n%d", i), fmt.Sprintf("N%d", i), "")
	}
	labels, cursor := e.HistoryLabels()
	assert.Equal(t, []string{"add N2", "add N3", "add N4"}, labels)
	assert.Equal(t, 2, cursor)
	require.NoError(t, e.Undo())
	require.NoError(t, e.Undo())
	assert.ErrorIs(t, e.Undo(), scene.ErrNothingToUndo)
	assert.Len(t, e.Nodes(), 3)

	single := newEditor(t, scene.WithHistoryLimit(1))
	add(t, single, "a", "A", "")
	add(t, single, "b", "B", "")
	labels, cursor = single.HistoryLabels()
	assert.Equal(t, []string{"add B"}, labels)
	assert.Equal(t, 0, cursor)
	assert.False(t, single.CanUndo())
	assert.Len(t, single.Nodes(), 2)

	unset := newEditor(t, scene.WithHistoryLimit(0))
	for i := 0; i < 5; i++ {
		add(t, unset, fmt.Sprintf("n%d", i), fmt.Sprintf("N%d", i), "")
	}
	labels, _ = unset.HistoryLabels()
	assert.Len(t, labels, 6, "zero keeps the default limit")
	entries, cur := unset.ExportHistory()
	require.NoError(t, unset.RestoreHistory(entries, cur))
	assert.Len(t, unset.Nodes(), 5)
}

func TestPasteRegeneratesIdsAndRemapsBindings(t *testing.T) {
	e := newEditor(t)
	add(t, e, "g", "Group", "")
	add(t, e, "a", "A", "g")
	add(t, e, "other", "Other", "")
	_, err := e.SetBinding(domain.Binding{ComponentID: "a", Property: "text", Expression: "Temperature"})
	require.NoError(t, err)
	_, err = e.SetBinding(domain.Binding{ComponentID: "other", Property: "text", Expression: "Pressure"})
	require.NoError(t, err)

	_, err = e.PasteSelection()
	assert.ErrorIs(t, err, scene.ErrClipboardEmpty)

	copied, err := e.CopySelection("g")
	require.NoError(t, err)
	assert.Equal(t, 2, copied)

	before := map[string]bool{}
	for _, n := range e.Nodes() {
		before[n.ID] = true
	}

	pasted, err := e.PasteSelection()
	require.NoError(t, err)
	require.Len(t, pasted, 2)
	fresh := map[string]bool{}
	for _, id := range pasted {
		assert.False(t, before[id], "pasted id %s collides", id)
		fresh[id] = true
	}

	group, err := e.Node(pasted[0])
	require.NoError(t, err)
	child, err := e.Node(pasted[1])
	require.NoError(t, err)
	assert.Equal(t, "Group copy", group.Name)
	assert.Equal(t, "A copy", child.Name)
	assert.Equal(t, group.ID, child.ParentID)
	assert.Equal(t, domain.Point{X: 30, Y: 30}, child.Position)

	var pastedBindings int
	for _, b := range e.Bindings() {
		if b.ComponentID == "a" || b.ComponentID == "other" {
			continue
		}
		pastedBindings++
		assert.True(t, fresh[b.ComponentID], "binding points at %s", b.ComponentID)
	}
	assert.Equal(t, 1, pastedBindings)

	again, err := e.PasteSelection()
	require.NoError(t, err)
	third, _ := e.Node(again[1])
	assert.Equal(t, domain.Point{X: 50, Y: 50}, third.Position)
	assert.Equal(t, "A copy 2", third.Name)

	require.NoError(t, e.Undo())
	require.NoError(t, e.Undo())
	assert.Len(t, e.Nodes(), 3)
}

func TestPasteKeepsExistingOutsideParent(t *testing.T) {
	e := newEditor(t)
	add(t, e, "g", "Group", "")
	add(t, e, "a", "A", "g")

	_, err := e.CopySelection("a")
	require.NoError(t, err)
	pasted, err := e.PasteSelection()
	require.NoError(t, err)
	n, _ := e.Node(pasted[0])
	assert.Equal(t, "g", n.ParentID)

	require.NoError(t, e.DeleteNodes("g"))
	pasted, err = e.PasteSelection()
	require.NoError(t, err)
	n, _ = e.Node(pasted[0])
	assert.Empty(t, n.ParentID)
}

func TestSharedClipboardAcrossEditors(t *testing.T) {
	clip := scene.NewClipboard()
	src := newEditor(t, scene.WithClipboard(clip))
	dst := newEditor(t, scene.WithClipboard(clip))
	add(t, src, "a", "A", "")

	_, err := src.CopySelection("a")
	require.NoError(t, err)
	pasted, err := dst.PasteSelection()
	require.NoError(t, err)
	n, err := dst.Node(pasted[0])
	require.NoError(t, err)
	assert.Equal(t, "A", n.Name)
}

func ptr[T any](v T) *T { return &v }

func sampleDocument() (domain.SceneDocument, []domain.ComponentRecord) {
	doc := domain.SceneDocument{
		ID:   "7",
		Name: "Boiler",
		Layout: []domain.LayoutEntry{
			{Component: "Frame", X: 0, Y: 0, W: ptr(400.0), H: ptr(300.0)},
			{Component: "Tank", X: 20, Y: 30, W: ptr(80.0), H: ptr(120.0), ParentID: ptr("Frame"), ZIndex: 1},
			{Component: "Label", X: 25, Y: 10, ParentID: ptr("Tank"), ComponentID: ptr(domain.EntityID(103))},
		},
		Bindings: []domain.BindingDefinition{
			{Component: "Tank", Property: "level", Expression: "Level", Mode: domain.ModeField},
			{Component: "Label", Property: "text", Expression: "Temperature", Mode: "field", Transform: "(value) => `${value}°`"},
			{Component: "Ghost", Property: "text", Expression: "'x'", Mode: domain.ModeLiteral},
		},
		Components:           []domain.EntityID{101, 102, 103},
		ScriptModules:        map[string]string{"units": "let toF = (c) => c * 1.8 + 32"},
		NotificationChannels: []string{"Temperature"},
		Metadata: domain.Metadata{
			Viewport: &domain.Viewport{Width: 1024, Height: 768},
			Extra:    map[string]json.RawMessage{"theme": json.RawMessage(`"dark"`)},
		},
	}
	comps := []domain.ComponentRecord{
		{ID: 101, Name: "Frame", PrimitiveType: "group"},
		{ID: 102, Name: "Tank", PrimitiveType: "tank", Properties: map[string]any{"fill": "#0af"}},
		{ID: 103, Name: "Renamed", PrimitiveType: "text"},
	}
	return doc, comps
}

func TestDocumentRoundTrip(t *testing.T) {
	doc, comps := sampleDocument()
	e, report, err := scene.FromDocument(doc, comps, scene.LoadPolicy{}, seqIDs())
	require.NoError(t, err)
	assert.Empty(t, report.Dropped)
	assert.Equal(t, []string{"Ghost:text"}, report.Detached)

	tank, err := e.NodeByName("Tank")
	require.NoError(t, err)
	frame, _ := e.NodeByName("Frame")
	label, _ := e.NodeByName("Label")
	assert.Equal(t, frame.ID, tank.ParentID)
	assert.Equal(t, tank.ID, label.ParentID)
	assert.Equal(t, "text", label.PrimitiveType, "joined by component id despite the rename")
	assert.True(t, label.AutoWidth && label.AutoHeight)
	assert.Equal(t, "#0af", tank.Properties["fill"])

	assert.Equal(t, doc, e.ToDocument())
}

func TestDocumentRoundTripAfterEditAndUndo(t *testing.T) {
	doc, comps := sampleDocument()
	e, _, err := scene.FromDocument(doc, comps, scene.LoadPolicy{}, seqIDs())
	require.NoError(t, err)

	tank, _ := e.NodeByName("Tank")
	require.NoError(t, e.DeleteNodes(tank.ID))
	assert.Len(t, e.ToDocument().Layout, 1)
	require.NoError(t, e.Undo())
	assert.Equal(t, doc, e.ToDocument())
}

func TestDocumentRoundTripPartialSize(t *testing.T) {
	var doc domain.SceneDocument
	require.NoError(t, json.Unmarshal([]byte(`{
		"layout": [
			{"component": "A", "x": 1, "y": 2, "w": 50, "parentId": null},
			{"component": "B", "x": 3, "y": 4, "h": 12, "parentId": "A"}
		],
		"bindings": [],
		"metadata": {}
	}`), &doc))
	comps := []domain.ComponentRecord{
		{ID: 1, Name: "A", PrimitiveType: "rectangle"},
		{ID: 2, Name: "B", PrimitiveType: "text"},
	}

	e, _, err := scene.FromDocument(doc, comps, scene.LoadPolicy{}, seqIDs(), scene.WithSchema(fakeSchema{}))
	require.NoError(t, err)
	a, _ := e.NodeByName("A")
	assert.Equal(t, domain.Size{W: 50, H: 24}, a.Size)
	assert.False(t, a.AutoWidth)
	assert.True(t, a.AutoHeight)

	assert.Equal(t, doc.Layout, e.ToDocument().Layout)

	b, _ := e.NodeByName("B")
	_, err = e.UpdateNode(b.ID, scene.NodePatch{Size: &domain.Size{W: 70, H: 12}})
	require.NoError(t, err)
	layout := e.ToDocument().Layout
	require.NotNil(t, layout[1].W)
	assert.Equal(t, 70.0, *layout[1].W)
	assert.Nil(t, layout[0].H)
}

func TestLoadDuplicateComponentNames(t *testing.T) {
	doc := domain.SceneDocument{
		Name: "dupes",
		Layout: []domain.LayoutEntry{
			{Component: "A", X: 1},
			{Component: "A", X: 99},
			{Component: "B", ParentID: ptr("A")},
		},
		Bindings: []domain.BindingDefinition{
			{Component: "A", Property: "text", Expression: "'hi'", Mode: domain.ModeLiteral},
		},
	}
	comps := []domain.ComponentRecord{
		{ID: 1, Name: "A", PrimitiveType: "text"},
		{ID: 2, Name: "B", PrimitiveType: "text"},
	}

	e, report, err := scene.FromDocument(doc, comps, scene.LoadPolicy{}, seqIDs())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names(e.Nodes()))
	a, _ := e.NodeByName("A")
	assert.Equal(t, 1.0, a.Position.X, "first entry wins")
	require.Len(t, report.Dropped, 1)
	assert.Equal(t, "A", report.Dropped[0].Component)
	assert.False(t, report.Clean())
	require.Len(t, e.Bindings(), 1)
	assert.Equal(t, a.ID, e.Bindings()[0].ComponentID)

	_, _, err = scene.FromDocument(doc, comps, scene.LoadPolicy{MissingComponent: scene.MissingFail}, seqIDs())
	assert.ErrorIs(t, err, scene.ErrDuplicateName)
	assert.True(t, scene.IsStructural(err))
}

type fakeSchema struct{}

func (fakeSchema) Validate(primitive string, props map[string]any) error {
	if primitive == "tank" {
		if _, ok := props["fill"].(string); !ok {
			return errors.New("fill must be a string")
		}
	}
	return nil
}

func (fakeSchema) DefaultSize(primitive string) domain.Size {
	return domain.Size{W: 100, H: 24}
}

func TestLoadPolicies(t *testing.T) {
	doc := domain.SceneDocument{
		Name: "broken",
		Layout: []domain.LayoutEntry{
			{Component: "A"},
			{Component: "Missing"},
			{Component: "B", ParentID: ptr("Nowhere")},
			{Component: "C", ParentID: ptr("B")},
			{Component: "D", ParentID: ptr("E")},
			{Component: "E", ParentID: ptr("D")},
		},
	}
	comps := []domain.ComponentRecord{
		{ID: 1, Name: "A", PrimitiveType: "tank", Properties: map[string]any{"fill": 3}},
		{ID: 2, Name: "B", PrimitiveType: "text"},
		{ID: 3, Name: "C", PrimitiveType: "text"},
		{ID: 4, Name: "D", PrimitiveType: "text"},
		{ID: 5, Name: "E", PrimitiveType: "text"},
	}

	t.Run("default orphans", func(t *testing.T) {
		e, report, err := scene.FromDocument(doc, comps, scene.LoadPolicy{}, seqIDs(), scene.WithSchema(fakeSchema{}))
		require.NoError(t, err)
		require.Len(t, report.Dropped, 1)
		assert.Equal(t, "Missing", report.Dropped[0].Component)
		orphaned := []string{}
		for _, o := range report.Orphaned {
			orphaned = append(orphaned, o.Component)
		}
		assert.Equal(t, []string{"B", "E"}, orphaned)
		require.Len(t, report.Invalid, 1)
		assert.Equal(t, "A", report.Invalid[0].Component)
		assert.Len(t, e.Nodes(), 5)

		a, _ := e.NodeByName("A")
		assert.Equal(t, domain.Size{W: 100, H: 24}, a.Size)
		assertParentsValid(t, e.Nodes())
	})

	t.Run("drop", func(t *testing.T) {
		e, report, err := scene.FromDocument(doc, comps, scene.LoadPolicy{DanglingParent: scene.DanglingDrop}, seqIDs())
		require.NoError(t, err)
		dropped := []string{}
		for _, d := range report.Dropped {
			dropped = append(dropped, d.Component)
		}
		assert.ElementsMatch(t, []string{"Missing", "B", "C", "E", "D"}, dropped)
		assert.Equal(t, []string{"A"}, names(e.Nodes()))
	})

	t.Run("fail", func(t *testing.T) {
		_, _, err := scene.FromDocument(doc, comps, scene.LoadPolicy{MissingComponent: scene.MissingFail}, seqIDs())
		assert.ErrorIs(t, err, scene.ErrMissingComponent)
		assert.True(t, scene.IsStructural(err))

		_, _, err = scene.FromDocument(doc, comps, scene.LoadPolicy{DanglingParent: scene.DanglingFail}, seqIDs())
		assert.ErrorIs(t, err, scene.ErrDanglingParent)
	})

	t.Run("unknown policy", func(t *testing.T) {
		_, _, err := scene.FromDocument(doc, comps, scene.LoadPolicy{DanglingParent: "repair"})
		assert.Error(t, err)
	})
}

func names(nodes []*domain.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}

func assertParentsValid(t *testing.T, nodes []*domain.Node) {
	t.Helper()
	byID := map[string]*domain.Node{}
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for _, n := range nodes {
		seen := map[string]bool{}
		for cur := n; cur.ParentID != ""; {
			p, ok := byID[cur.ParentID]
			require.True(t, ok, "%s has dangling parent %s", cur.Name, cur.ParentID)
			require.False(t, seen[p.ID], "cycle through %s", p.Name)
			seen[p.ID] = true
			cur = p
		}
	}
}

func TestExportRestoreHistory(t *testing.T) {
	e := newEditor(t)
	add(t, e, "a", "A", "")
	add(t, e, "b", "B", "")
	require.NoError(t, e.Undo())

	entries, cursor := e.ExportHistory()
	raw, err := json.Marshal(entries)
	require.NoError(t, err)

	var decoded []scene.Entry
	require.NoError(t, json.Unmarshal(raw, &decoded))

	other := newEditor(t)
	require.NoError(t, other.RestoreHistory(decoded, cursor))
	assert.Equal(t, []string{"a"}, ids(other.Nodes()))
	require.NoError(t, other.Redo())
	assert.Equal(t, []string{"a", "b"}, ids(other.Nodes()))

	assert.Error(t, other.RestoreHistory(decoded, 9))
	assert.Error(t, other.RestoreHistory(nil, 0))
}

func TestAttachComponentsRewritesHistory(t *testing.T) {
	e := newEditor(t)
	add(t, e, "a", "A", "")
	add(t, e, "b", "B", "")

	e.AttachComponents(map[string]domain.EntityID{"a": 11})
	doc := e.ToDocument()
	require.Len(t, doc.Layout, 2)
	assert.Equal(t, domain.EntityID(11), *doc.Layout[0].ComponentID)
	assert.Nil(t, doc.Layout[1].ComponentID)

	require.NoError(t, e.Undo())
	a, _ := e.Node("a")
	require.NotNil(t, a.ComponentRef)
	assert.Equal(t, domain.EntityID(11), *a.ComponentRef)
}
