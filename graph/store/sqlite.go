package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file Store backed by modernc.org/sqlite (pure Go,
// no cgo). It is the default checkpointer of the CLI and server, and the
// equivalent of an in-process memory saver that survives restarts.
//
//	st, err := store.NewSQLiteStore[analyst.State]("./agent.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
// Use ":memory:" for a throwaway database in tests.
type SQLiteStore[S any] struct {
	sqlStore[S]
	path string
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS workflow_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(run_id, step)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_run_id ON workflow_steps(run_id)`,
		`CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			checkpoint_id TEXT NOT NULL UNIQUE,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			state TEXT NOT NULL,
			frontier TEXT NOT NULL,
			status TEXT NOT NULL,
			interrupts TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_run_id ON workflow_checkpoints(run_id)`,
	},
	upsertStep: `
		INSERT INTO workflow_steps (run_id, step, node_id, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET
			node_id = excluded.node_id,
			state = excluded.state`,
	upsertCheckpnt: `
		INSERT INTO workflow_checkpoints (checkpoint_id, run_id, step, state, frontier, status, interrupts, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(checkpoint_id) DO UPDATE SET
			run_id = excluded.run_id,
			step = excluded.step,
			state = excluded.state,
			frontier = excluded.frontier,
			status = excluded.status,
			interrupts = excluded.interrupts,
			updated_at = excluded.updated_at`,
}

// NewSQLiteStore opens (creating if needed) the database at path, enables
// WAL mode and a 5s busy timeout, and migrates the schema.
func NewSQLiteStore[S any](path string, opts ...SQLOption) (*SQLiteStore[S], error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	st := &SQLiteStore[S]{sqlStore: newSQLStore[S](db, sqliteDialect, opts), path: path}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// OpenSQLite opens a SQLite database configured for a single writer.
// It is shared with the vector store so both use the same pragmas.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Path returns the database file location.
func (s *SQLiteStore[S]) Path() string { return s.path }
