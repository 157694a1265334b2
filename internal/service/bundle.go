package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scenes/internal/watch"
)

// BundleFileName is the file an exported scene is written to inside dir.
func BundleFileName(dir, name string) string {
	base := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if base == "" {
		base = "scene"
	}
	return filepath.Join(dir, base+watch.DocumentSuffix)
}

// ReadBundle decodes a *.scene.json file. A bare SceneDocument without the
// bundle envelope is accepted too; its components then join by name only
// against an empty set.
func ReadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return DecodeBundle(data)
}

func DecodeBundle(data []byte) (*Bundle, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	b := &Bundle{}
	if _, ok := probe["document"]; ok {
		if err := json.Unmarshal(data, b); err != nil {
			return nil, fmt.Errorf("decode bundle: %w", err)
		}
		return b, nil
	}
	if err := json.Unmarshal(data, &b.Document); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return b, nil
}

// WriteBundle writes b as indented JSON, creating dir as needed.
func WriteBundle(path string, b *Bundle) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	return nil
}
