package app

import (
	"context"
	"fmt"
	"log"

	mcpserver "scenes/internal/mcp"
)

// Transports accepted by Serve.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Serve runs the MCP server with refresh schedules, the document watcher
// and the scene watcher until ctx is cancelled. Approvals go through the
// local SQLite database so `scenes approve` can resolve them from another
// shell.
func (a *App) Serve(ctx context.Context, transport, addr string) error {
	switch transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unknown transport %q (use %s or %s)", transport, TransportStdio, TransportHTTP)
	}
	if err := a.startBackground(ctx); err != nil {
		return err
	}
	watcher := newSceneWatcher(ctx, a)
	watcher.Start()
	defer watcher.Stop()

	srv := mcpserver.New(ctx, mcpserver.Deps{
		Emitter:         a.emitter,
		Scenes:          a.Scenes,
		Refresh:         a.Refresh,
		Feeds:           a.Feeds,
		RequireApproval: a.cfg.MCP.RequireApproval,
		ApprovalDB:      a.db.Conn(),
	})

	defer a.Refresh.WaitRunning(context.Background())
	defer a.Feeds.WaitRunning(context.Background())
	if transport == TransportHTTP {
		return srv.ServeHTTP(ctx, addr)
	}
	log.Println("[MCP] Starting standalone stdio server...")
	return srv.ServeStdio()
}
