package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/dshills/analyst-agent/graph/store"
)

const vectorSchema = `
CREATE TABLE IF NOT EXISTS vector_documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL,
	vector BLOB NOT NULL,
	PRIMARY KEY (collection, id)
)`

// SQLiteVectorStore keeps a named collection of embedded documents in a
// SQLite file. Search is a full scan of the collection.
type SQLiteVectorStore struct {
	db         *sql.DB
	collection string
}

// NewSQLiteVectorStore opens (creating if needed) the collection at path.
func NewSQLiteVectorStore(path, collection string) (*SQLiteVectorStore, error) {
	if collection == "" {
		collection = "default"
	}
	db, err := store.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(context.Background(), vectorSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("vector store migration failed: %w", err)
	}
	return &SQLiteVectorStore{db: db, collection: collection}, nil
}

// Close releases the database.
func (s *SQLiteVectorStore) Close() error { return s.db.Close() }

// Add implements VectorStore.
func (s *SQLiteVectorStore) Add(ctx context.Context, docs []Document, vectors [][]float32) ([]string, error) {
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("got %d documents and %d vectors", len(docs), len(vectors))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO vector_documents (collection, id, content, metadata, vector)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(collection, id) DO UPDATE SET
				content = excluded.content,
				metadata = excluded.metadata,
				vector = excluded.vector`,
			s.collection, d.ID, d.PageContent, string(meta), encodeVector(vectors[i]))
		if err != nil {
			return nil, fmt.Errorf("failed to insert document: %w", err)
		}
		ids[i] = d.ID
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit documents: %w", err)
	}
	return ids, nil
}

// Search implements VectorStore.
func (s *SQLiteVectorStore) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]ScoredDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, vector FROM vector_documents WHERE collection = ? ORDER BY rowid`,
		s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var hits []ScoredDocument
	for rows.Next() {
		var (
			d    Document
			meta string
			blob []byte
		)
		if err := rows.Scan(&d.ID, &d.PageContent, &meta, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		if !filter.Matches(d) {
			continue
		}
		v, err := decodeVector(blob)
		if err != nil {
			return nil, err
		}
		if len(v) != len(vector) {
			return nil, fmt.Errorf("document %s: %w (got %d, want %d)", d.ID, ErrDimensionMismatch, len(vector), len(v))
		}
		hits = append(hits, ScoredDocument{Document: d, Score: Cosine(vector, v), Vector: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return topK(hits, k), nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("corrupt vector of %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
