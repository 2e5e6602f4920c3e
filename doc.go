// Package sqlpool provides generic object pools, adaptive LRU caches and a
// pooled SQLite layer built on them.
//
// # Architecture
//
// The module is organized bottom-up:
//
//   - pkg/deque: a doubly linked deque with O(1) node removal and node reuse
//   - pkg/cache: stamped, linked and adaptive LRU caches with disposal hooks
//   - pkg/pool: single, common and tiered object pools with two-pass tagged
//     idle eviction on a scheduler
//   - pkg/sqlite: connections with per-connection statement caches, pooled
//     as one read-write primary plus bounded readers
//
// Supporting packages carry logging (pkg/logger), structured errors
// (pkg/errors), prometheus metrics (pkg/metrics), tracing
// (pkg/observability), YAML configuration (pkg/config) and JSON output
// (pkg/json). cmd/sqlpool is the command line front end.
//
// # Quick Start
//
//	db, err := sqlite.Open(sqlite.DefaultConfig("app.db"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	_, err = db.Exec(ctx, "CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v)")
//	rows, err := db.Query(ctx, "SELECT k, v FROM kv")
//
// Using the pools directly:
//
//	p, err := pool.NewTieredPool[string, *Conn](factory, pool.NewTickerScheduler(), pool.DefaultConfiguration())
//	conn, err := p.BorrowObjectWithKey(ctx, "SELECT 1")
//	defer p.ReturnObject(conn)
package sqlpool
