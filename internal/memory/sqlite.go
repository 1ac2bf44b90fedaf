package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hayahq/haya/pkg/models"
)

// SQLiteDB implements DB over SQLite. Lexical search uses an FTS5
// external-content table kept in sync through triggers.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (and migrates) the memory database at path. Use
// ":memory:" for an ephemeral store.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteDB{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			metadata TEXT,
			embedding TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			content,
			content='memories',
			content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
			INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
		END`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init memory schema: %w", err)
		}
	}
	return nil
}

// Save inserts or replaces an entry. A missing id is generated; a zero
// CreatedAt is filled with now.
func (s *SQLiteDB) Save(ctx context.Context, entry *models.MemoryEntry) error {
	if entry.Content == "" {
		return errors.New("memory content is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var metadata any
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = string(raw)
	}
	var embedding any
	if len(entry.Embedding) > 0 {
		raw, err := json.Marshal(entry.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		embedding = string(raw)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, source, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			source = excluded.source,
			metadata = excluded.metadata,
			embedding = excluded.embedding`,
		entry.ID, entry.Content, entry.Source, metadata, embedding, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

// GetByID fetches one entry.
func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*models.MemoryEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, source, metadata, embedding, created_at FROM memories WHERE id = ?`, id)

	var entry models.MemoryEntry
	var metadata, embedding sql.NullString
	err := row.Scan(&entry.ID, &entry.Content, &entry.Source, &metadata, &embedding, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &entry.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	return &entry, nil
}

// Delete removes one entry.
func (s *SQLiteDB) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrMemoryNotFound
	}
	return nil
}

// SearchText returns the top BM25 matches, best first.
func (s *SQLiteDB) SearchText(ctx context.Context, query string, limit int) ([]TextHit, error) {
	match := ftsQuery(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, f.rank
		FROM memories_fts f
		JOIN memories m ON m.rowid = f.rowid
		WHERE memories_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer rows.Close()

	var hits []TextHit
	for rows.Next() {
		var hit TextHit
		if err := rows.Scan(&hit.ID, &hit.Rank); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// ListEmbeddings returns every persisted embedding in insertion order.
func (s *SQLiteDB) ListEmbeddings(ctx context.Context) ([]StoredEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, embedding
		FROM memories
		WHERE embedding IS NOT NULL AND embedding != ''
		ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var stored []StoredEmbedding
	for rows.Next() {
		var entry StoredEmbedding
		var raw string
		if err := rows.Scan(&entry.ID, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &entry.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding %s: %w", entry.ID, err)
		}
		stored = append(stored, entry)
	}
	return stored, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// ftsQuery quotes each term so user text cannot inject FTS5 syntax.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		terms = append(terms, `"`+strings.ReplaceAll(field, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " ")
}
