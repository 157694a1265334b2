package mcpserver

import (
	"context"
	"fmt"

	"scenes/internal/feed"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerFeedTools() {
	// ── list_feeds ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_feeds",
		mcp.WithDescription("List configured data feeds and the source types an ad-hoc feed can use"),
	), s.handleListFeeds)

	// ── run_feed ───────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("run_feed",
		mcp.WithDescription("Load rows from a file, URL or SQL query into entity fields, then refresh every open scene bound to those fields. Pass name for a configured feed, or source plus config for an ad-hoc one."),
		mcp.WithString("name", mcp.Description("Configured feed name")),
		mcp.WithString("source", mcp.Description("Source type for an ad-hoc feed"), mcp.Enum("csv_file", "json_file", "http", "sql")),
		mcp.WithString("config", mcp.Description(`Source config as a JSON object, e.g. {"filePath": "/data/levels.csv"}`)),
		mcp.WithString("transforms", mcp.Description(`Transform chain as a JSON array, e.g. [{"type": "rename", "config": {"mapping": {"lvl": "Level"}}}]`)),
		mcp.WithString("key", mcp.Description("Column holding the entity id")),
		mcp.WithNumber("entityId", mcp.Description("Write every row to this entity (when key is not given)")),
		mcp.WithNumber("preview", mcp.Description("Return up to this many transformed rows without writing")),
	), s.handleRunFeed)
}

func (s *Server) handleListFeeds(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"feeds":   s.feeds.Jobs(),
		"sources": s.feeds.ListSources(),
	})
}

func (s *Server) handleRunFeed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	job, err := s.feedJob(req)
	if err != nil {
		return nil, err
	}
	if n := int(getFloat(req.GetArguments(), "preview", 0)); n > 0 {
		recs, err := s.feeds.Preview(ctx, job, n)
		if err != nil {
			return nil, fmt.Errorf("preview feed: %w", err)
		}
		return jsonResult(recs)
	}
	run, err := s.feeds.Run(ctx, job)
	if err != nil {
		return nil, err
	}
	for _, id := range run.Scenes {
		s.emitSceneChanged(ctx, id)
	}
	return jsonResult(run)
}

// feedJob builds the job from a configured name or the ad-hoc arguments.
func (s *Server) feedJob(req mcp.CallToolRequest) (feed.Job, error) {
	if name := req.GetString("name", ""); name != "" {
		return s.feeds.Job(name)
	}
	job := feed.Job{
		Source: req.GetString("source", ""),
		Key:    req.GetString("key", ""),
		Entity: int64(getFloat(req.GetArguments(), "entityId", 0)),
	}
	if job.Source == "" {
		return job, fmt.Errorf("name or source is required")
	}
	if raw := req.GetString("config", ""); raw != "" {
		if err := parseJSON(raw, &job.Config); err != nil {
			return job, fmt.Errorf("parse config: %w", err)
		}
	}
	if raw := req.GetString("transforms", ""); raw != "" {
		if err := parseJSON(raw, &job.Transforms); err != nil {
			return job, fmt.Errorf("parse transforms: %w", err)
		}
	}
	return job, nil
}
