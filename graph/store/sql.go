package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// dialect captures the statements that differ between SQL backends.
type dialect struct {
	name           string
	schema         []string
	upsertStep     string
	upsertCheckpnt string
}

// SQLOption configures a SQLiteStore or MySQLStore.
type SQLOption func(*sqlOptions)

type sqlOptions struct {
	namespace string
}

// WithNamespace scopes every run and checkpoint ID to ns so several graphs
// can share one database under the same run ID. Stores opened with
// different namespaces never see each other's rows.
func WithNamespace(ns string) SQLOption {
	return func(o *sqlOptions) { o.namespace = ns }
}

// sqlStore implements Store on database/sql. SQLiteStore and MySQLStore
// embed it with their own dialect.
type sqlStore[S any] struct {
	db      *sql.DB
	dialect dialect
	prefix  string

	mu     sync.RWMutex
	closed bool
}

func newSQLStore[S any](db *sql.DB, d dialect, opts []SQLOption) sqlStore[S] {
	var o sqlOptions
	for _, opt := range opts {
		opt(&o)
	}
	var prefix string
	if o.namespace != "" {
		prefix = o.namespace + "/"
	}
	return sqlStore[S]{db: db, dialect: d, prefix: prefix}
}

// key maps a caller ID to its stored form.
func (s *sqlStore[S]) key(id string) string { return s.prefix + id }

func (s *sqlStore[S]) unkey(stored string) string {
	return strings.TrimPrefix(stored, s.prefix)
}

func (s *sqlStore[S]) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s migration failed: %w", s.dialect.name, err)
		}
	}
	return nil
}

func (s *sqlStore[S]) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// SaveStep implements Store.
func (s *sqlStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsertStep, s.key(runID), step, nodeID, string(stateJSON)); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest implements Store.
func (s *sqlStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
	var zero S
	if err := s.checkOpen(); err != nil {
		return zero, 0, err
	}

	var (
		step      int
		stateJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT step, state FROM workflow_steps WHERE run_id = ? ORDER BY step DESC LIMIT 1`,
		s.key(runID),
	).Scan(&step, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, 0, ErrNotFound
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load latest step: %w", err)
	}

	var state S
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, step, nil
}

// ListSteps implements Store.
func (s *sqlStore[S]) ListSteps(ctx context.Context, runID string) ([]StepRecord[S], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, node_id, state FROM workflow_steps WHERE run_id = ? ORDER BY step ASC`,
		s.key(runID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StepRecord[S]
	for rows.Next() {
		var (
			rec       StepRecord[S]
			stateJSON string
		)
		if err := rows.Scan(&rec.Step, &rec.NodeID, &stateJSON); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step %d: %w", rec.Step, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// SaveCheckpoint implements Store.
func (s *sqlStore[S]) SaveCheckpoint(ctx context.Context, cp Checkpoint[S]) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if cp.ID == "" {
		return fmt.Errorf("checkpoint ID cannot be empty")
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}

	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	frontier, err := json.Marshal(cp.Frontier)
	if err != nil {
		return fmt.Errorf("failed to marshal frontier: %w", err)
	}
	interrupts, err := json.Marshal(cp.Interrupts)
	if err != nil {
		return fmt.Errorf("failed to marshal interrupts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.dialect.upsertCheckpnt,
		s.key(cp.ID), s.key(cp.RunID), cp.Step, string(stateJSON), string(frontier),
		string(cp.Status), string(interrupts), cp.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint implements Store.
func (s *sqlStore[S]) LoadCheckpoint(ctx context.Context, id string) (Checkpoint[S], error) {
	var cp Checkpoint[S]
	if err := s.checkOpen(); err != nil {
		return cp, err
	}

	var (
		stateJSON, frontier, status, interrupts string
		updatedMs                               int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT checkpoint_id, run_id, step, state, frontier, status, interrupts, updated_at
		 FROM workflow_checkpoints WHERE checkpoint_id = ?`,
		s.key(id),
	).Scan(&cp.ID, &cp.RunID, &cp.Step, &stateJSON, &frontier, &status, &interrupts, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return cp, ErrNotFound
	}
	if err != nil {
		return cp, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return cp, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if err := json.Unmarshal([]byte(frontier), &cp.Frontier); err != nil {
		return cp, fmt.Errorf("failed to unmarshal frontier: %w", err)
	}
	if err := json.Unmarshal([]byte(interrupts), &cp.Interrupts); err != nil {
		return cp, fmt.Errorf("failed to unmarshal interrupts: %w", err)
	}
	cp.ID, cp.RunID = s.unkey(cp.ID), s.unkey(cp.RunID)
	cp.Status = Status(status)
	cp.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return cp, nil
}

// DeleteCheckpoint implements Store.
func (s *sqlStore[S]) DeleteCheckpoint(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflow_checkpoints WHERE checkpoint_id = ?`, s.key(id))
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping verifies the database connection.
func (s *sqlStore[S]) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close closes the database. Calling Close twice is a no-op.
func (s *sqlStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
