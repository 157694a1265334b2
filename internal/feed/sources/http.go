package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cast"

	"scenes/internal/feed"
)

// ── HTTP Source ─────────────────────────────────────────────
// Fetches a JSON document from a REST endpoint.

type httpSource struct {
	client *http.Client
}

func init() { feed.RegisterSource(&httpSource{client: &http.Client{Timeout: 30 * time.Second}}) }

func (s *httpSource) Spec() feed.SourceSpec {
	return feed.SourceSpec{
		Type:  "http",
		Label: "HTTP API",
		ConfigFields: []feed.ConfigField{
			{Key: "url", Required: true, Help: "Full URL to fetch"},
			{Key: "method", Default: "GET"},
			{Key: "headers", Help: "Header map, or a JSON object string"},
			{Key: "body", Help: "Request body"},
			{Key: "dataPath", Help: "Dot-separated path to the array in the response"},
		},
	}
}

func (s *httpSource) Read(ctx context.Context, cfg feed.SourceConfig) (<-chan feed.Record, <-chan error) {
	return stream(ctx, func() ([]feed.Record, error) {
		return s.fetch(ctx, cfg)
	})
}

func (s *httpSource) fetch(ctx context.Context, cfg feed.SourceConfig) ([]feed.Record, error) {
	url := cast.ToString(cfg["url"])
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}
	method := strings.ToUpper(cast.ToString(cfg["method"]))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if b := cast.ToString(cfg["body"]); b != "" {
		body = strings.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	// A JSON object string decodes the same way as a TOML table.
	headers, err := cast.ToStringMapStringE(cfg["headers"])
	if err != nil && cfg["headers"] != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return decodeJSON(data, cast.ToString(cfg["dataPath"]))
}
