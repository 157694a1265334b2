package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"scenes/internal/render"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// ── scenes://list ──────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		"scenes://list",
		"All Scenes",
		mcp.WithMIMEType("application/json"),
	), s.handleScenesResource)

	// ── scenes://primitives ────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		"scenes://primitives",
		"Primitive Schemas",
		mcp.WithMIMEType("application/json"),
	), s.handlePrimitivesResource)

	// ── scenes://scene/{sceneId}/document ──────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"scenes://scene/{sceneId}/document",
			"Scene Document",
		),
		s.handleSceneDocumentResource,
	)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleScenesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	scenes, err := s.scenes.List()
	if err != nil {
		return nil, err
	}

	type sceneEntry struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	entries := make([]sceneEntry, len(scenes))
	for i, sc := range scenes {
		entries[i] = sceneEntry{ID: sc.ID, Name: sc.Name}
	}
	return jsonContents(req.Params.URI, entries)
}

func (s *Server) handlePrimitivesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	reg := s.scenes.Registry()
	var schemas []*render.Schema
	for _, t := range reg.Types() {
		schema, err := reg.Schema(t)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	return jsonContents(req.Params.URI, schemas)
}

func (s *Server) handleSceneDocumentResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	sceneID := sceneIDFromURI(uri)
	if sceneID == "" {
		return nil, fmt.Errorf("could not extract sceneId from URI: %s", uri)
	}
	b, err := s.scenes.Export(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	return jsonContents(uri, b.Document)
}

// sceneIDFromURI extracts the id from "scenes://scene/{id}/document".
func sceneIDFromURI(uri string) string {
	const prefix = "scenes://scene/"
	rest, ok := strings.CutPrefix(uri, prefix)
	if !ok {
		return ""
	}
	id, _, found := strings.Cut(rest, "/")
	if !found {
		return ""
	}
	return id
}
