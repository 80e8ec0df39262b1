// Package migration applies the versioned SQLite schema of the companion
// store.
//
// Migrations are plain SQL files named {version}_{description}.sql read from
// an fs.FS, normally the set embedded in the sqlite package. Applied versions
// are tracked in the schema_migrations table together with the file checksum
// and execution time, and every migration runs in its own transaction.
//
//	manager := migration.NewMigrationManager(migration.NewFileScanner(), migration.NewSQLiteExecutor(db), migrations, logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
