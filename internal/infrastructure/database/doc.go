// Package database provides the SQLite connection behind the optional
// action audit trail.
//
// The store is a single file (or ":memory:" in tests) opened through
// github.com/mattn/go-sqlite3 with WAL mode and a busy timeout. Schema
// changes are applied from an fs.FS of versioned migration files, normally
// the embedded set in the top-level migrations package:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Device state is never stored here; it stays in memory and is lost on
// restart.
package database
