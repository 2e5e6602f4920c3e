// Package sqlite pools SQLite connections on top of pkg/pool.
//
// # Overview
//
// A Database owns an Engine, a ConnectionFactory and a tiered pool:
//
//   - the primary tier holds the single read-write connection; every write
//     goes through it, so SQLite never sees two writers from one process
//   - the secondary tier holds up to Pool.MaxTotal reader connections,
//     opened query_only when the journal mode is WAL
//
// Each Connection keeps its own prepared statement cache. Reads borrow a
// secondary connection keyed by their SQL text, so a connection that has
// already prepared the statement is preferred.
//
// # Basic Usage
//
//	db, err := sqlite.Open(sqlite.DefaultConfig("app.db"), sqlite.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Exec(ctx, "INSERT INTO kv(k, v) VALUES(?, ?)", "a", 1); err != nil {
//	    return err
//	}
//	rows, err := db.Query(ctx, "SELECT v FROM kv WHERE k = ?", "a")
//
// Connections are not safe for concurrent use. Use WithConnection to run
// several statements on one borrowed connection.
package sqlite
