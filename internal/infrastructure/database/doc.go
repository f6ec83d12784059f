// Package database opens the SQLite file behind the connection journal and
// applies the embedded schema migrations to it.
//
//	db, err := database.Open(database.Config{Path: cfg.Journal.Path, WALMode: true, BusyTimeout: 5})
//	...
//	err = db.Migrate(ctx, migrations.FS)
//
// Only *.up.sql files are run; their .down.sql companions exist for manual
// rollback. The file is created with mode 0600.
package database
