// Package sources holds the built-in feed sources. Importing it registers
// csv_file, json_file, http and sql.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"scenes/internal/feed"
)

// stream sends records on a buffered channel from a goroutine, stopping
// early when ctx is cancelled.
func stream(ctx context.Context, load func() ([]feed.Record, error)) (<-chan feed.Record, <-chan error) {
	out := make(chan feed.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		records, err := load()
		if err != nil {
			errCh <- err
			return
		}
		for _, rec := range records {
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errCh
}

// navigatePath walks a dot-separated path into nested objects.
func navigatePath(obj any, path string) (any, error) {
	current := obj
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("data path %q: %q is not an object", path, part)
		}
		current, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("data path %q: %q not found", path, part)
		}
	}
	return current, nil
}

// toRecords converts a decoded JSON array or object into records.
func toRecords(raw any) []feed.Record {
	switch v := raw.(type) {
	case []any:
		records := make([]feed.Record, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				records = append(records, feed.Record{Data: flattenMap(m)})
			}
		}
		return records
	case map[string]any:
		return []feed.Record{{Data: flattenMap(v)}}
	default:
		return nil
	}
}

// flattenMap keeps scalars and serializes nested values as JSON strings.
func flattenMap(m map[string]any) map[string]any {
	flat := make(map[string]any, len(m))
	for k, v := range m {
		switch v.(type) {
		case string, float64, bool, nil:
			flat[k] = v
		default:
			b, _ := json.Marshal(v)
			flat[k] = string(b)
		}
	}
	return flat
}

func decodeJSON(data []byte, dataPath string) ([]feed.Record, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if dataPath != "" {
		var err error
		if raw, err = navigatePath(raw, dataPath); err != nil {
			return nil, err
		}
	}
	return toRecords(raw), nil
}

// inferValue parses a text cell as a number or bool; blank cells are null.
func inferValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}
	return s
}
