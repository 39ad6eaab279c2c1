// Package database handles database connections and schema inspection.
//
// It provides a wrapper around GORM to configure MySQL or SQLite connections
// from the application's configuration. MySQL connections report matched rows
// rather than changed rows, so an update that writes an unchanged value still
// counts as applied.
//
// # Connect
//
// Connect opens the configured driver, pings it and sizes the pool. SQLite
// in-memory databases are pinned to a single connection so every query sees
// the same database.
//
// # Schema Inspection
//
// GetTableColumns lists the columns of a table (SHOW COLUMNS on MySQL, PRAGMA
// table_info on SQLite). The integrity feature uses it to verify that the
// ledger tables carry every column the models declare.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	columns, err := database.GetTableColumns(db, "ledger_entries")
package database
