package entitydb

// Exported for tests.
var (
	BuildMySQLDSN    = buildMySQLDSN
	BuildPostgresDSN = buildPostgresDSN
	BuildMongoURI    = buildMongoURI
)

func Rebind(driver, query string) string { return dialects[driver].rebind(query) }
