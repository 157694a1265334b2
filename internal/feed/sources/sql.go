package sources

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/spf13/cast"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"scenes/internal/feed"
)

// ── SQL Source ──────────────────────────────────────────────
// Runs one query and emits a record per row.

var sqlDrivers = []string{"sqlite", "postgres", "mysql"}

type sqlSource struct{}

func init() { feed.RegisterSource(&sqlSource{}) }

func (s *sqlSource) Spec() feed.SourceSpec {
	return feed.SourceSpec{
		Type:  "sql",
		Label: "SQL Query",
		ConfigFields: []feed.ConfigField{
			{Key: "driver", Required: true, Help: "sqlite, postgres or mysql"},
			{Key: "dsn", Required: true, Help: "Connection string for the driver"},
			{Key: "query", Required: true, Help: "SELECT statement; column names become fields"},
		},
	}
}

func (s *sqlSource) Read(ctx context.Context, cfg feed.SourceConfig) (<-chan feed.Record, <-chan error) {
	return stream(ctx, func() ([]feed.Record, error) {
		return queryRecords(ctx, cast.ToString(cfg["driver"]), cast.ToString(cfg["dsn"]), cast.ToString(cfg["query"]))
	})
}

func queryRecords(ctx context.Context, driver, dsn, query string) ([]feed.Record, error) {
	if !slices.Contains(sqlDrivers, driver) {
		return nil, fmt.Errorf("sql driver %q: want one of %v", driver, sqlDrivers)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	var records []feed.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		data := make(map[string]any, len(cols))
		for i, c := range cols {
			data[c] = sqlValue(vals[i])
		}
		records = append(records, feed.Record{Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return records, nil
}

// sqlValue turns driver byte slices into text so they infer like CSV cells.
func sqlValue(v any) any {
	if b, ok := v.([]byte); ok {
		return inferValue(string(b))
	}
	return v
}
