package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"scenes/internal/domain"
	"scenes/internal/scene"

	"github.com/mark3labs/mcp-go/mcp"
)

const pipeThickness = 10.0

func (s *Server) registerNodeTools() {
	// ── add_node ───────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_node",
		mcp.WithDescription("Add a primitive node to a scene. Without x/y it is placed in the first free grid slot among its siblings; without width/height the primitive's default size applies."),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
		mcp.WithString("primitiveType", mcp.Description("Primitive type, see list_primitives"), mcp.Required()),
		mcp.WithString("name", mcp.Description("Unique node name; bindings address nodes by name")),
		mcp.WithString("parentId", mcp.Description("Parent node id or name (optional)")),
		mcp.WithNumber("x", mcp.Description("X position")),
		mcp.WithNumber("y", mcp.Description("Y position")),
		mcp.WithNumber("width", mcp.Description("Width")),
		mcp.WithNumber("height", mcp.Description("Height")),
		mcp.WithString("properties", mcp.Description(`Primitive properties as JSON, e.g. {"fill":"#1e90ff"}`)),
	), s.handleAddNode)

	// ── update_node ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_node",
		mcp.WithDescription("Update a node. Only the provided fields change; a null property value removes that property."),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
		mcp.WithString("node", mcp.Description("Node id or name"), mcp.Required()),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("primitiveType", mcp.Description("New primitive type")),
		mcp.WithNumber("x", mcp.Description("X position")),
		mcp.WithNumber("y", mcp.Description("Y position")),
		mcp.WithNumber("width", mcp.Description("Width")),
		mcp.WithNumber("height", mcp.Description("Height")),
		mcp.WithNumber("zIndex", mcp.Description("Z index among siblings")),
		mcp.WithBoolean("hidden", mcp.Description("Hide the node and its children")),
		mcp.WithBoolean("locked", mcp.Description("Lock the node")),
		mcp.WithString("properties", mcp.Description("Properties to merge, as JSON")),
	), s.handleUpdateNode)

	// ── delete_nodes (destructive) ─────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_nodes",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete nodes with their descendants and bindings. May require operator approval."),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
		mcp.WithString("nodes", mcp.Description("Comma-separated node ids or names"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteNodes)

	// ── reparent_node ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("reparent_node",
		mcp.WithDescription("Move a node under another parent, or to the root when parent is empty"),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
		mcp.WithString("node", mcp.Description("Node id or name"), mcp.Required()),
		mcp.WithString("parent", mcp.Description("New parent id or name (empty for root)")),
	), s.handleReparentNode)

	// ── reorder_node ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("reorder_node",
		mcp.WithDescription("Change a node's paint order among its siblings"),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
		mcp.WithString("node", mcp.Description("Node id or name"), mcp.Required()),
		mcp.WithString("to", mcp.Description("front, back or index"), mcp.Enum("front", "back", "index")),
		mcp.WithNumber("index", mcp.Description("Target sibling index when to=index")),
	), s.handleReorderNode)

	// ── copy_nodes / paste_nodes ───────────────────────
	s.mcp.AddTool(mcp.NewTool("copy_nodes",
		mcp.WithDescription("Copy nodes with their descendants and bindings to the clipboard"),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
		mcp.WithString("nodes", mcp.Description("Comma-separated node ids or names"), mcp.Required()),
	), s.handleCopyNodes)
	s.mcp.AddTool(mcp.NewTool("paste_nodes",
		mcp.WithDescription("Paste the clipboard into a scene with fresh ids and unique names, offset from the originals"),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
	), s.handlePasteNodes)

	// ── arrange_nodes ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("arrange_nodes",
		mcp.WithDescription("Lay nodes out in rows, left to right, starting at x/y"),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
		mcp.WithString("nodes", mcp.Description("Comma-separated node ids or names"), mcp.Required()),
		mcp.WithNumber("x", mcp.Description("Start X (default 0)")),
		mcp.WithNumber("y", mcp.Description("Start Y (default 0)")),
	), s.handleArrangeNodes)

	// ── connect_pipe ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("connect_pipe",
		mcp.WithDescription("Route an orthogonal pipe between two nodes around the other root nodes. One pipe node is added per straight run."),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
		mcp.WithString("from", mcp.Description("Source node id or name"), mcp.Required()),
		mcp.WithString("to", mcp.Description("Target node id or name"), mcp.Required()),
		mcp.WithString("name", mcp.Description("Name prefix for the pipe segments (default from-to)")),
		mcp.WithString("color", mcp.Description("Pipe color")),
		mcp.WithBoolean("flowing", mcp.Description("Animate flow")),
	), s.handleConnectPipe)
}

// findNode resolves a node reference by id first, then by name.
func findNode(ed *scene.Editor, ref string) (*domain.Node, error) {
	if n, err := ed.Node(ref); err == nil {
		return n, nil
	}
	return ed.NodeByName(ref)
}

func findNodes(ed *scene.Editor, refs []string) ([]*domain.Node, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("no nodes given")
	}
	out := make([]*domain.Node, 0, len(refs))
	for _, r := range refs {
		n, err := findNode(ed, r)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func nodeIDs(nodes []*domain.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func parseProperties(args map[string]any) (map[string]any, error) {
	raw, _ := args["properties"].(string)
	if raw == "" {
		return nil, nil
	}
	var props map[string]any
	if err := parseJSON(raw, &props); err != nil {
		return nil, fmt.Errorf("invalid properties JSON: %w", err)
	}
	return props, nil
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleAddNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := s.resolveSceneID(args)
	if err != nil {
		return nil, err
	}
	primitive := req.GetString("primitiveType", "")
	reg := s.scenes.Registry()
	props, err := parseProperties(args)
	if err != nil {
		return nil, err
	}
	if err := reg.Validate(primitive, props); err != nil {
		return nil, err
	}

	var added *domain.Node
	err = s.scenes.Mutate(ctx, id, func(ed *scene.Editor) error {
		n := domain.Node{
			PrimitiveType: primitive,
			Name:          req.GetString("name", ""),
			Properties:    props,
		}
		if ref := req.GetString("parentId", ""); ref != "" {
			parent, err := findNode(ed, ref)
			if err != nil {
				return err
			}
			n.ParentID = parent.ID
		}
		def := reg.DefaultSize(primitive)
		n.Size = domain.Size{W: getFloat(args, "width", def.W), H: getFloat(args, "height", def.H)}
		if _, hasW := args["width"]; !hasW {
			if _, hasH := args["height"]; !hasH {
				n.Size = domain.Size{}
			}
		}

		_, hasX := args["x"]
		_, hasY := args["y"]
		if hasX || hasY {
			n.Position = domain.Point{X: getFloat(args, "x", 0), Y: getFloat(args, "y", 0)}
		} else {
			w, h := n.Size.W, n.Size.H
			if n.Size == (domain.Size{}) {
				w, h = def.W, def.H
			}
			n.Position = s.layout.NextPosition(ed.Siblings(n.ParentID), w, h)
		}

		var err error
		added, err = ed.AddNode(n)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add node: %w", err)
	}
	s.emitSceneChanged(ctx, id)
	return jsonResult(summarizeNode(added))
}

func (s *Server) handleUpdateNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := s.resolveSceneID(args)
	if err != nil {
		return nil, err
	}
	props, err := parseProperties(args)
	if err != nil {
		return nil, err
	}

	var updated *domain.Node
	err = s.scenes.Mutate(ctx, id, func(ed *scene.Editor) error {
		n, err := findNode(ed, req.GetString("node", ""))
		if err != nil {
			return err
		}
		patch := scene.NodePatch{
			Name:          optString(args, "name"),
			PrimitiveType: optString(args, "primitiveType"),
			Properties:    props,
		}
		_, hasX := args["x"]
		_, hasY := args["y"]
		if hasX || hasY {
			patch.Position = &domain.Point{X: getFloat(args, "x", n.Position.X), Y: getFloat(args, "y", n.Position.Y)}
		}
		_, hasW := args["width"]
		_, hasH := args["height"]
		if hasW || hasH {
			patch.Size = &domain.Size{W: getFloat(args, "width", n.Size.W), H: getFloat(args, "height", n.Size.H)}
		}
		if _, ok := args["zIndex"]; ok {
			z := int(getFloat(args, "zIndex", 0))
			patch.ZIndex = &z
		}
		if v, ok := getBool(args, "hidden"); ok {
			patch.Hidden = &v
		}
		if v, ok := getBool(args, "locked"); ok {
			patch.Locked = &v
		}
		updated, err = ed.UpdateNode(n.ID, patch)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update node: %w", err)
	}
	s.emitSceneChanged(ctx, id)
	return jsonResult(summarizeNode(updated))
}

func (s *Server) handleDeleteNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := s.resolveSceneID(args)
	if err != nil {
		return nil, err
	}
	refs := splitIDs(req.GetString("nodes", ""))
	meta := fmt.Sprintf(`{"sceneId":%q,"nodes":%q}`, id, strings.Join(refs, ","))
	approved, err := s.approval.Request("delete_nodes", fmt.Sprintf("Delete %d node(s) from scene %s", len(refs), id), meta)
	if err != nil || !approved {
		return textResult("Action rejected by operator"), nil
	}

	err = s.scenes.Mutate(ctx, id, func(ed *scene.Editor) error {
		nodes, err := findNodes(ed, refs)
		if err != nil {
			return err
		}
		return ed.DeleteNodes(nodeIDs(nodes)...)
	})
	if err != nil {
		return nil, fmt.Errorf("delete nodes: %w", err)
	}
	s.emitSceneChanged(ctx, id)
	return textResult(fmt.Sprintf("Deleted %d node(s)", len(refs))), nil
}

func (s *Server) handleReparentNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveSceneID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	err = s.scenes.Mutate(ctx, id, func(ed *scene.Editor) error {
		n, err := findNode(ed, req.GetString("node", ""))
		if err != nil {
			return err
		}
		parentID := ""
		if ref := req.GetString("parent", ""); ref != "" {
			p, err := findNode(ed, ref)
			if err != nil {
				return err
			}
			parentID = p.ID
		}
		return ed.Reparent(n.ID, parentID)
	})
	if err != nil {
		return nil, fmt.Errorf("reparent node: %w", err)
	}
	s.emitSceneChanged(ctx, id)
	return textResult("Node reparented"), nil
}

func (s *Server) handleReorderNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := s.resolveSceneID(args)
	if err != nil {
		return nil, err
	}
	to := req.GetString("to", "front")
	err = s.scenes.Mutate(ctx, id, func(ed *scene.Editor) error {
		n, err := findNode(ed, req.GetString("node", ""))
		if err != nil {
			return err
		}
		switch to {
		case "front":
			return ed.BringToFront(n.ID)
		case "back":
			return ed.SendToBack(n.ID)
		case "index":
			return ed.Reorder(n.ID, int(getFloat(args, "index", 0)))
		}
		return fmt.Errorf("unknown reorder target %q", to)
	})
	if err != nil {
		return nil, fmt.Errorf("reorder node: %w", err)
	}
	s.emitSceneChanged(ctx, id)
	return textResult("Node reordered"), nil
}

func (s *Server) handleCopyNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveSceneID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	sess, err := s.scenes.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	nodes, err := findNodes(sess.Editor, splitIDs(req.GetString("nodes", "")))
	if err != nil {
		return nil, fmt.Errorf("copy nodes: %w", err)
	}
	count, err := sess.Editor.CopySelection(nodeIDs(nodes)...)
	if err != nil {
		return nil, fmt.Errorf("copy nodes: %w", err)
	}
	return textResult(fmt.Sprintf("Copied %d node(s)", count)), nil
}

func (s *Server) handlePasteNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveSceneID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	var ids []string
	err = s.scenes.Mutate(ctx, id, func(ed *scene.Editor) error {
		var err error
		ids, err = ed.PasteSelection()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("paste nodes: %w", err)
	}
	s.emitSceneChanged(ctx, id)
	return jsonResult(map[string]any{"nodeIds": ids})
}

func (s *Server) handleArrangeNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := s.resolveSceneID(args)
	if err != nil {
		return nil, err
	}
	start := domain.Point{X: getFloat(args, "x", 0), Y: getFloat(args, "y", 0)}
	var positions map[string]domain.Point
	err = s.scenes.Mutate(ctx, id, func(ed *scene.Editor) error {
		nodes, err := findNodes(ed, splitIDs(req.GetString("nodes", "")))
		if err != nil {
			return err
		}
		positions = s.layout.ArrangeGroup(nodes, start)
		for _, n := range nodes {
			p := positions[n.ID]
			if _, err := ed.UpdateNode(n.ID, scene.NodePatch{Position: &p}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("arrange nodes: %w", err)
	}
	s.emitSceneChanged(ctx, id)
	return jsonResult(positions)
}

func (s *Server) handleConnectPipe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := s.resolveSceneID(args)
	if err != nil {
		return nil, err
	}
	var created []nodeSummary
	err = s.scenes.Mutate(ctx, id, func(ed *scene.Editor) error {
		src, err := findNode(ed, req.GetString("from", ""))
		if err != nil {
			return err
		}
		dst, err := findNode(ed, req.GetString("to", ""))
		if err != nil {
			return err
		}
		var obstacles []*domain.Node
		for _, n := range ed.Siblings("") {
			if n.ID != src.ID && n.ID != dst.ID && n.PrimitiveType != "pipe" && !n.Hidden {
				obstacles = append(obstacles, n)
			}
		}
		route := RoutePipe(src, dst, obstacles)
		if len(route) < 2 {
			return errors.New("no pipe route found")
		}
		prefix := req.GetString("name", src.Name+"-"+dst.Name)
		for i, seg := range PipeSegments(route, pipeThickness) {
			seg.Name = fmt.Sprintf("%s-%d", prefix, i+1)
			if c := req.GetString("color", ""); c != "" {
				seg.Properties["color"] = c
			}
			if v, ok := getBool(args, "flowing"); ok {
				seg.Properties["flowing"] = v
			}
			n, err := ed.AddNode(seg)
			if err != nil {
				return err
			}
			created = append(created, summarizeNode(n))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect pipe: %w", err)
	}
	s.emitSceneChanged(ctx, id)
	return jsonResult(created)
}
