// Package config loads sqlpool configuration from YAML.
//
// # Sections
//
//   - database: path, journal mode and busy timeout
//   - pool: reader pool bound and idle eviction schedule
//   - cache: prepared statements kept per connection
//   - logging: zap level, encoding and development mode
//   - metrics: whether and where to serve /metrics
//   - tracing: stdout span export and sampling
//
// # Usage
//
//	cfg, err := config.LoadFile("sqlpool.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	db, err := sqlite.Open(cfg.SQLite())
//
// # Environment Variable Substitution
//
// ${VAR_NAME} is replaced with the variable's value before parsing, and
// ${VAR_NAME:-fallback} uses fallback when the variable is unset or empty:
//
//	database:
//	  path: ${SQLPOOL_DB:-/var/lib/sqlpool/app.db}
//	pool:
//	  max_total: ${SQLPOOL_READERS}
//
// Fields missing from the file keep their NewDefault values.
package config
