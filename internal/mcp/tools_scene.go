package mcpserver

import (
	"context"
	"fmt"

	"scenes/internal/domain"
	"scenes/internal/scene"
	"scenes/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerSceneTools() {
	// ── list_scenes ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_scenes",
		mcp.WithDescription("List all scenes"),
	), s.handleListScenes)

	// ── create_scene ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_scene",
		mcp.WithDescription("Create a new empty scene and make it the active scene"),
		mcp.WithString("name", mcp.Description("Name of the new scene"), mcp.Required()),
	), s.handleCreateScene)

	// ── open_scene ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("open_scene",
		mcp.WithDescription("Open a scene, make it active for subsequent tool calls and return its nodes and bindings"),
		mcp.WithString("sceneId", mcp.Description("ID of the scene"), mcp.Required()),
	), s.handleOpenScene)

	// ── get_scene ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_scene",
		mcp.WithDescription("Return nodes, bindings and history state of a scene"),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
	), s.handleGetScene)

	// ── rename_scene ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("rename_scene",
		mcp.WithDescription("Rename a scene"),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
		mcp.WithString("name", mcp.Description("New name"), mcp.Required()),
	), s.handleRenameScene)

	// ── delete_scene (destructive) ─────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_scene",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a scene and all its component entities. May require operator approval."),
		mcp.WithString("sceneId", mcp.Description("ID of the scene"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteScene)

	// ── export_scene ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("export_scene",
		mcp.WithDescription("Export a scene as a document bundle. With dir, writes <name>.scene.json there; otherwise returns the bundle."),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
		mcp.WithString("dir", mcp.Description("Directory to write the bundle to (optional)")),
	), s.handleExportScene)

	// ── import_scene ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("import_scene",
		mcp.WithDescription("Import a scene bundle from a file path or inline JSON. A document whose id exists replaces that scene."),
		mcp.WithString("path", mcp.Description("Path of a *.scene.json file")),
		mcp.WithString("bundle", mcp.Description("Bundle JSON {document, components} (used when path is empty)")),
	), s.handleImportScene)

	// ── undo / redo ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the last change to a scene; bindings are re-evaluated against live data"),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
	), s.handleUndo)
	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the last undone change to a scene"),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
	), s.handleRedo)

	// ── list_primitives ────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_primitives",
		mcp.WithDescription("List primitive types with their properties, kinds and defaults"),
		mcp.WithString("type", mcp.Description("Only describe this primitive (optional)")),
	), s.handleListPrimitives)
}

// ── Summaries ──────────────────────────────────────────────

type nodeSummary struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	PrimitiveType string         `json:"primitiveType"`
	ParentID      string         `json:"parentId,omitempty"`
	X             float64        `json:"x"`
	Y             float64        `json:"y"`
	Width         float64        `json:"width"`
	Height        float64        `json:"height"`
	ZIndex        int            `json:"zIndex,omitempty"`
	Hidden        bool           `json:"hidden,omitempty"`
	Locked        bool           `json:"locked,omitempty"`
	Properties    map[string]any `json:"properties,omitempty"`
}

func summarizeNode(n *domain.Node) nodeSummary {
	return nodeSummary{
		ID:            n.ID,
		Name:          n.Name,
		PrimitiveType: n.PrimitiveType,
		ParentID:      n.ParentID,
		X:             n.Position.X,
		Y:             n.Position.Y,
		Width:         n.Size.W,
		Height:        n.Size.H,
		ZIndex:        n.ZIndex,
		Hidden:        n.Hidden,
		Locked:        n.Locked,
		Properties:    n.Properties,
	}
}

type sceneSummary struct {
	ID       string                     `json:"id"`
	Name     string                     `json:"name"`
	Nodes    []nodeSummary              `json:"nodes"`
	Bindings []domain.BindingDefinition `json:"bindings"`
	CanUndo  bool                       `json:"canUndo"`
	CanRedo  bool                       `json:"canRedo"`
	Report   *scene.LoadReport          `json:"loadReport,omitempty"`
}

func summarizeScene(sess *service.Session) sceneSummary {
	nodes := sess.Editor.Nodes()
	out := sceneSummary{
		ID:       sess.ID,
		Name:     sess.Editor.Header().Name,
		Nodes:    make([]nodeSummary, len(nodes)),
		Bindings: sess.Editor.Definitions(),
		CanUndo:  sess.Editor.CanUndo(),
		CanRedo:  sess.Editor.CanRedo(),
	}
	for i, n := range nodes {
		out.Nodes[i] = summarizeNode(n)
	}
	if sess.Report != nil && !sess.Report.Clean() {
		out.Report = sess.Report
	}
	return out
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleListScenes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scenes, err := s.scenes.List()
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	return jsonResult(scenes)
}

func (s *Server) handleCreateScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	sess, err := s.scenes.Create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create scene: %w", err)
	}
	s.setActive(sess.ID)
	return jsonResult(summarizeScene(sess))
}

func (s *Server) handleOpenScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("sceneId", "")
	if id == "" {
		return nil, fmt.Errorf("sceneId is required")
	}
	sess, err := s.scenes.Open(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open scene: %w", err)
	}
	s.setActive(id)
	return jsonResult(summarizeScene(sess))
}

func (s *Server) handleGetScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveSceneID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	sess, err := s.scenes.Open(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open scene: %w", err)
	}
	return jsonResult(summarizeScene(sess))
}

func (s *Server) handleRenameScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveSceneID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	name := req.GetString("name", "")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	err = s.scenes.Mutate(ctx, id, func(ed *scene.Editor) error {
		h := ed.Header()
		h.Name = name
		ed.SetHeader(h)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rename scene: %w", err)
	}
	s.emitSceneChanged(ctx, id)
	return textResult(fmt.Sprintf("Scene %s renamed to %q", id, name)), nil
}

func (s *Server) handleDeleteScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("sceneId", "")
	if id == "" {
		return nil, fmt.Errorf("sceneId is required")
	}
	meta := fmt.Sprintf(`{"sceneId":%q}`, id)
	approved, err := s.approval.Request("delete_scene", fmt.Sprintf("Delete scene %s", id), meta)
	if err != nil || !approved {
		return textResult("Action rejected by operator"), nil
	}
	if err := s.scenes.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete scene: %w", err)
	}
	s.mu.Lock()
	if s.activeSceneID == id {
		s.activeSceneID = ""
	}
	s.mu.Unlock()
	return textResult(fmt.Sprintf("Scene %s deleted", id)), nil
}

func (s *Server) handleExportScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveSceneID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	if dir := req.GetString("dir", ""); dir != "" {
		path, err := s.scenes.ExportFile(ctx, id, dir)
		if err != nil {
			return nil, fmt.Errorf("export scene: %w", err)
		}
		return textResult(fmt.Sprintf("Scene %s written to %s", id, path)), nil
	}
	b, err := s.scenes.Export(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("export scene: %w", err)
	}
	return jsonResult(b)
}

func (s *Server) handleImportScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		sess *service.Session
		err  error
	)
	if path := req.GetString("path", ""); path != "" {
		sess, err = s.scenes.ImportFile(ctx, path)
	} else {
		raw := req.GetString("bundle", "")
		if raw == "" {
			return nil, fmt.Errorf("path or bundle is required")
		}
		var b *service.Bundle
		if b, err = service.DecodeBundle([]byte(raw)); err == nil {
			sess, err = s.scenes.Import(ctx, *b)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("import scene: %w", err)
	}
	s.setActive(sess.ID)
	return jsonResult(summarizeScene(sess))
}

func (s *Server) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.historyStep(ctx, req, "undo", s.scenes.Undo)
}

func (s *Server) handleRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.historyStep(ctx, req, "redo", s.scenes.Redo)
}

func (s *Server) historyStep(ctx context.Context, req mcp.CallToolRequest, verb string, step func(context.Context, string) error) (*mcp.CallToolResult, error) {
	id, err := s.resolveSceneID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	if err := step(ctx, id); err != nil {
		return nil, fmt.Errorf("%s: %w", verb, err)
	}
	sess, err := s.scenes.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	labels, cursor := sess.Editor.HistoryLabels()
	s.emitSceneChanged(ctx, id)
	return jsonResult(map[string]any{"history": labels, "cursor": cursor})
}

func (s *Server) handleListPrimitives(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reg := s.scenes.Registry()
	if t := req.GetString("type", ""); t != "" {
		schema, err := reg.Schema(t)
		if err != nil {
			return nil, err
		}
		return jsonResult(schema)
	}
	return jsonResult(reg.Types())
}
