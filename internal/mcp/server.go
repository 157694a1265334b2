package mcpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"scenes/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for scenes. It exposes tools, resources and
// prompts so agents can compose scenes, bind them to data and render them.
type Server struct {
	mcp      *server.MCPServer
	emitter  EventEmitter
	approval *ApprovalQueue
	layout   *LayoutEngine

	scenes  *service.SceneService
	refresh *service.RefreshService
	feeds   *service.FeedService

	// Active scene context (set by open_scene)
	mu            sync.Mutex
	activeSceneID string
}

// Deps holds everything the app layer passes to the MCP server.
type Deps struct {
	Emitter EventEmitter
	Scenes  *service.SceneService
	Refresh *service.RefreshService
	// Feeds enables list_feeds and run_feed when set.
	Feeds *service.FeedService
	// RequireApproval gates delete tools behind an operator decision.
	RequireApproval bool
	ApprovalDB      *sql.DB // when set, approvals go through SQLite (standalone mode)
}

// New creates and configures the MCP server with all tools and resources.
func New(ctx context.Context, deps Deps) *Server {
	approval := NewApprovalQueue(ctx, deps.Emitter, deps.RequireApproval)
	if deps.ApprovalDB != nil {
		approval.SetDB(deps.ApprovalDB)
	}
	s := &Server{
		emitter:  deps.Emitter,
		approval: approval,
		layout:   NewLayoutEngine(),
		scenes:   deps.Scenes,
		refresh:  deps.Refresh,
		feeds:    deps.Feeds,
	}

	s.mcp = server.NewMCPServer(
		"scenes-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerSceneTools()
	s.registerNodeTools()
	s.registerBindingTools()
	if s.feeds != nil {
		s.registerFeedTools()
	}
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// ServeHTTP serves the streamable HTTP transport on addr until ctx ends.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpSrv := server.NewStreamableHTTPServer(s.mcp)
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[MCP] Listening on %s", addr)
		errCh <- httpSrv.Start(addr)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return httpSrv.Shutdown(context.Background())
	}
}

func (s *Server) Approve(actionID string) { s.approval.Approve(actionID) }
func (s *Server) Reject(actionID string)  { s.approval.Reject(actionID) }

// ── Helpers ────────────────────────────────────────────────

func (s *Server) emitSceneChanged(ctx context.Context, sceneID string) {
	s.emitter.Emit(ctx, "mcp:scene-changed", map[string]string{"sceneId": sceneID})
}

func (s *Server) setActive(id string) {
	s.mu.Lock()
	s.activeSceneID = id
	s.mu.Unlock()
}

// resolveSceneID returns sceneId from the tool args or the active scene.
func (s *Server) resolveSceneID(args map[string]any) (string, error) {
	if id, ok := args["sceneId"].(string); ok && id != "" {
		return id, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeSceneID != "" {
		return s.activeSceneID, nil
	}
	return "", fmt.Errorf("no sceneId provided and no active scene set (use open_scene first)")
}

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}
