package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"scenes/internal/domain"
	"scenes/internal/scene"
	"scenes/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerBindingTools() {
	// ── set_binding ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_binding",
		mcp.WithDescription("Bind a node property to an expression over the target entity, e.g. \"Level\" in field mode or \"Pump.Speed * 2\" in script mode. Replaces any binding on the same property."),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
		mcp.WithString("node", mcp.Description("Node id or name"), mcp.Required()),
		mcp.WithString("property", mcp.Description("Property to bind"), mcp.Required()),
		mcp.WithString("expression", mcp.Description("Expression or field path"), mcp.Required()),
		mcp.WithString("mode", mcp.Description("Binding mode"), mcp.Enum(string(domain.ModeLiteral), string(domain.ModeField), string(domain.ModeScript), string(domain.ModeTwoWay))),
		mcp.WithString("transform", mcp.Description("Transform applied to the value, with `value` bound (optional)")),
		mcp.WithString("dependencies", mcp.Description("Comma-separated extra field paths that should trigger re-evaluation")),
		mcp.WithString("description", mcp.Description("Free-form description")),
	), s.handleSetBinding)

	// ── remove_binding ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("remove_binding",
		mcp.WithDescription("Remove the binding on a node property"),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
		mcp.WithString("node", mcp.Description("Node id or name"), mcp.Required()),
		mcp.WithString("property", mcp.Description("Bound property"), mcp.Required()),
	), s.handleRemoveBinding)

	// ── list_bindings ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_bindings",
		mcp.WithDescription("List the bindings of a scene with their last evaluated value and state"),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
	), s.handleListBindings)

	// ── evaluate_bindings ──────────────────────────────
	s.mcp.AddTool(mcp.NewTool("evaluate_bindings",
		mcp.WithDescription("Evaluate every binding of a scene against an entity. Without entityId the last evaluated entity is reused."),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
		mcp.WithNumber("entityId", mcp.Description("Target entity id")),
	), s.handleEvaluateBindings)

	// ── notify_field ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("notify_field",
		mcp.WithDescription("Signal that an entity field changed. Only bindings that depend on it are re-evaluated. Without sceneId every open scene listening on the field is refreshed."),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional)")),
		mcp.WithString("field", mcp.Description("Changed field path"), mcp.Required()),
	), s.handleNotifyField)

	// ── write_back ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("write_back",
		mcp.WithDescription("Write a value through a two-way binding into the target entity"),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
		mcp.WithString("node", mcp.Description("Node id or name"), mcp.Required()),
		mcp.WithString("property", mcp.Description("Bound property"), mcp.Required()),
		mcp.WithString("value", mcp.Description("New value as JSON (number, string, bool)"), mcp.Required()),
	), s.handleWriteBack)

	// ── render_scene ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("render_scene",
		mcp.WithDescription("Render every node in paint order with bound values applied"),
		mcp.WithString("sceneId", mcp.Description("Scene ID (optional, defaults to active scene)")),
	), s.handleRenderScene)
}

func (s *Server) handleSetBinding(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveSceneID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	var set *domain.Binding
	err = s.scenes.Mutate(ctx, id, func(ed *scene.Editor) error {
		n, err := findNode(ed, req.GetString("node", ""))
		if err != nil {
			return err
		}
		set, err = ed.SetBinding(domain.Binding{
			ComponentID:  n.ID,
			Property:     req.GetString("property", ""),
			Expression:   req.GetString("expression", ""),
			Mode:         domain.BindingMode(req.GetString("mode", "")).Normalize(),
			Transform:    req.GetString("transform", ""),
			Dependencies: splitIDs(req.GetString("dependencies", "")),
			Description:  req.GetString("description", ""),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("set binding: %w", err)
	}
	// Without a target the binding is evaluated on the first pass.
	if _, err := s.scenes.Reevaluate(ctx, id); err != nil && !errors.Is(err, service.ErrNoTarget) {
		return nil, fmt.Errorf("evaluate binding: %w", err)
	}
	s.emitSceneChanged(ctx, id)
	return jsonResult(set)
}

func (s *Server) handleRemoveBinding(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveSceneID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	err = s.scenes.Mutate(ctx, id, func(ed *scene.Editor) error {
		n, err := findNode(ed, req.GetString("node", ""))
		if err != nil {
			return err
		}
		return ed.RemoveBinding(n.ID, req.GetString("property", ""))
	})
	if err != nil {
		return nil, fmt.Errorf("remove binding: %w", err)
	}
	s.emitSceneChanged(ctx, id)
	return textResult("Binding removed"), nil
}

type bindingStatus struct {
	domain.BindingDefinition
	Value any    `json:"value"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleListBindings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveSceneID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	sess, err := s.scenes.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	snap := sess.Engine.Snapshot()
	defs := sess.Editor.Definitions()
	out := make([]bindingStatus, len(defs))
	for i, d := range defs {
		key := d.Key()
		out[i] = bindingStatus{
			BindingDefinition: d,
			Value:             snap.Values[key],
			State:             snap.States[key].String(),
			Error:             snap.Errors[key],
		}
	}
	return jsonResult(out)
}

func (s *Server) handleEvaluateBindings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := s.resolveSceneID(args)
	if err != nil {
		return nil, err
	}
	if _, ok := args["entityId"]; ok {
		entity := domain.EntityID(getFloat(args, "entityId", 0))
		if s.refresh != nil {
			snap, err := s.refresh.RunNow(ctx, id, entity)
			if err != nil {
				return nil, fmt.Errorf("evaluate bindings: %w", err)
			}
			return jsonResult(snap)
		}
		snap, err := s.scenes.Evaluate(ctx, id, entity)
		if err != nil {
			return nil, fmt.Errorf("evaluate bindings: %w", err)
		}
		return jsonResult(snap)
	}
	snap, err := s.scenes.Reevaluate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("evaluate bindings: %w", err)
	}
	return jsonResult(snap)
}

func (s *Server) handleNotifyField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	field := req.GetString("field", "")
	if field == "" {
		return nil, fmt.Errorf("field is required")
	}
	sceneID := req.GetString("sceneId", "")
	if sceneID == "" {
		if s.refresh == nil {
			return nil, fmt.Errorf("sceneId is required")
		}
		refreshed := s.refresh.Broadcast(ctx, field)
		return jsonResult(map[string]any{"refreshed": refreshed})
	}
	var (
		snap any
		err  error
	)
	if s.refresh != nil {
		snap, err = s.refresh.Notify(ctx, sceneID, field)
	} else {
		snap, err = s.scenes.Notify(ctx, sceneID, []string{field})
	}
	if err != nil {
		return nil, fmt.Errorf("notify field: %w", err)
	}
	return jsonResult(snap)
}

func (s *Server) handleWriteBack(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveSceneID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	var value any
	if err := parseJSON(req.GetString("value", ""), &value); err != nil {
		return nil, fmt.Errorf("invalid value JSON: %w", err)
	}
	sess, err := s.scenes.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := findNode(sess.Editor, req.GetString("node", ""))
	if err != nil {
		return nil, err
	}
	property := req.GetString("property", "")
	if err := s.scenes.WriteBack(ctx, id, n.Name, property, value); err != nil {
		return nil, fmt.Errorf("write back: %w", err)
	}
	return textResult(fmt.Sprintf("Wrote %v through %s", value, domain.BindingKey(n.Name, property))), nil
}

func (s *Server) handleRenderScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveSceneID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	nodes, err := s.scenes.Render(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("render scene: %w", err)
	}
	return jsonResult(nodes)
}
