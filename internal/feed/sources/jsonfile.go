package sources

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cast"

	"scenes/internal/feed"
)

// ── JSON File Source ────────────────────────────────────────

type jsonFileSource struct{}

func init() { feed.RegisterSource(&jsonFileSource{}) }

func (s *jsonFileSource) Spec() feed.SourceSpec {
	return feed.SourceSpec{
		Type:  "json_file",
		Label: "JSON File",
		ConfigFields: []feed.ConfigField{
			{Key: "filePath", Required: true, Help: "Path to the JSON file"},
			{Key: "dataPath", Help: "Dot-separated path to the array, e.g. data.items"},
		},
	}
}

func (s *jsonFileSource) Read(ctx context.Context, cfg feed.SourceConfig) (<-chan feed.Record, <-chan error) {
	return stream(ctx, func() ([]feed.Record, error) {
		filePath := cast.ToString(cfg["filePath"])
		if filePath == "" {
			return nil, fmt.Errorf("filePath is required")
		}
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		return decodeJSON(data, cast.ToString(cfg["dataPath"]))
	})
}
