package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("process_mimic",
		mcp.WithPromptDescription("Build a process mimic scene with tanks, valves and pipes bound to live data"),
		mcp.WithArgument("process",
			mcp.ArgumentDescription("Process or plant area to draw"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("entityId",
			mcp.ArgumentDescription("Entity the scene reads its values from"),
			mcp.RequiredArgument(),
		),
	), s.handleProcessMimicPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("status_panel",
		mcp.WithPromptDescription("Build a panel of labels, gauges and indicators for an entity's fields"),
		mcp.WithArgument("title",
			mcp.ArgumentDescription("Panel title"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("fields",
			mcp.ArgumentDescription("Comma-separated entity fields to show"),
			mcp.RequiredArgument(),
		),
	), s.handleStatusPanelPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("debug_bindings",
		mcp.WithPromptDescription("Find and fix failing bindings in a scene"),
		mcp.WithArgument("sceneId",
			mcp.ArgumentDescription("Scene to inspect"),
			mcp.RequiredArgument(),
		),
	), s.handleDebugBindingsPrompt)
}

func promptResult(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent{Type: "text", Text: text},
			},
		},
	}
}

func (s *Server) handleProcessMimicPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	process := req.Params.Arguments["process"]
	entityID := req.Params.Arguments["entityId"]
	return promptResult(fmt.Sprintf("Build a mimic of: %s", process),
		fmt.Sprintf(`Build a process mimic scene for "%s" backed by entity %s. Follow these steps:

1. Use create_scene with the name "%s"
2. Call list_primitives to see the tank, valve, pipe, gauge and indicator properties
3. Add one node per vessel and valve with add_node; give each a unique, descriptive name
4. Connect equipment with connect_pipe so pipes route around other nodes
5. Bind live values with set_binding: tank level, valve open, pipe flowing
6. Run evaluate_bindings with entityId %s and check every binding resolved
7. Finish with render_scene and fix any node that reports warnings

Keep the flow left to right and use arrange_nodes when nodes overlap.`, process, entityID, process, entityID)), nil
}

func (s *Server) handleStatusPanelPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	title := req.Params.Arguments["title"]
	fields := req.Params.Arguments["fields"]
	return promptResult(fmt.Sprintf("Build a status panel: %s", title),
		fmt.Sprintf(`Build a status panel titled "%s" on the active scene for the fields: %s.

1. Add a label node for the title at the top
2. For each field add a label for its name, then a gauge for numeric fields or an indicator for booleans
3. Bind each gauge's value (or indicator's on) to the field with set_binding in field mode
4. Use arrange_nodes to lay the rows out evenly
5. Run evaluate_bindings and confirm nothing failed`, title, fields)), nil
}

func (s *Server) handleDebugBindingsPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	sceneID := req.Params.Arguments["sceneId"]
	return promptResult(fmt.Sprintf("Debug bindings of scene %s", sceneID),
		fmt.Sprintf(`Inspect scene %s for broken bindings.

1. open_scene to load it and read any load report
2. list_bindings and collect every binding in the failed state with its error
3. For unknown fields, check the expression against the entity and fix it with set_binding
4. For script errors, simplify the expression or move formatting into a transform
5. evaluate_bindings again and repeat until every binding resolves`, sceneID)), nil
}
