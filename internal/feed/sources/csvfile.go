package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/spf13/cast"

	"scenes/internal/feed"
)

// ── CSV File Source ─────────────────────────────────────────

type csvFileSource struct{}

func init() { feed.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() feed.SourceSpec {
	return feed.SourceSpec{
		Type:  "csv_file",
		Label: "CSV File",
		ConfigFields: []feed.ConfigField{
			{Key: "filePath", Required: true, Help: "Path to the CSV file"},
			{Key: "delimiter", Default: ",", Help: "Column delimiter"},
			{Key: "hasHeader", Default: "true", Help: "Whether the first row holds column names"},
		},
	}
}

func (s *csvFileSource) Read(ctx context.Context, cfg feed.SourceConfig) (<-chan feed.Record, <-chan error) {
	return stream(ctx, func() ([]feed.Record, error) {
		headers, rows, err := readCSVFile(cfg)
		if err != nil {
			return nil, err
		}
		records := make([]feed.Record, 0, len(rows))
		for _, row := range rows {
			data := make(map[string]any, len(headers))
			for j, h := range headers {
				if j < len(row) {
					data[h] = inferValue(row[j])
				}
			}
			records = append(records, feed.Record{Data: data})
		}
		return records, nil
	})
}

func readCSVFile(cfg feed.SourceConfig) ([]string, [][]string, error) {
	filePath := cast.ToString(cfg["filePath"])
	if filePath == "" {
		return nil, nil, fmt.Errorf("filePath is required")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if delim := cast.ToString(cfg["delimiter"]); delim != "" {
		reader.Comma = []rune(delim)[0]
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("empty csv file")
	}

	hasHeader := true
	if v, ok := cfg["hasHeader"]; ok {
		hasHeader = cast.ToBool(v)
	}
	if hasHeader {
		return rows[0], rows[1:], nil
	}
	headers := make([]string, len(rows[0]))
	for i := range headers {
		headers[i] = fmt.Sprintf("col_%d", i+1)
	}
	return headers, rows, nil
}
