package entitydb

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// buildMySQLDSN constructs a MySQL DSN from discrete connection fields.
func buildMySQLDSN(cfg Config) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		cfg.Username, cfg.Password, cfg.Host, port, cfg.Database,
	)
	if cfg.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}

// buildPostgresDSN constructs a Postgres connection string from discrete fields.
func buildPostgresDSN(cfg Config) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.Username, cfg.Password, cfg.Database, sslMode,
	)
}

// buildMongoURI returns cfg.DSN when it is already a connection string,
// otherwise assembles one from host and port.
func buildMongoURI(cfg Config) string {
	if strings.HasPrefix(cfg.DSN, "mongodb://") || strings.HasPrefix(cfg.DSN, "mongodb+srv://") {
		uri := cfg.DSN
		if cfg.Password != "" {
			uri = strings.ReplaceAll(uri, "<password>", cfg.Password)
		}
		return uri
	}
	port := cfg.Port
	if port == 0 {
		port = 27017
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	if cfg.Username != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.Username, cfg.Password, host, port)
	}
	return fmt.Sprintf("mongodb://%s:%d", host, port)
}

// sqliteDSN appends the pragmas used for every sqlite file.
func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" {
		return ":memory:"
	}
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_journal_mode=WAL&_busy_timeout=5000"
}
