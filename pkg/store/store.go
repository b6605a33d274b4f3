package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/docindex/docindex/internal/errors"
	"github.com/docindex/docindex/pkg/embedding"
	"github.com/docindex/docindex/pkg/splitter"
)

// Config configures a Store.
type Config struct {
	// Path is the SQLite database file. Empty means in-memory (tests only).
	Path string

	// StoreDimensions is D_store, the fixed width every embedding is padded
	// to before it enters the vector index.
	StoreDimensions int

	// BatchCount and BatchChars bound how many chunks, and how many total
	// input characters, addDocuments sends to the embedder per call.
	BatchCount int
	BatchChars int

	// RRFConstant is k in the RRF formula. Default 60.
	RRFConstant int

	// MaxResults bounds findByContent's default result count.
	MaxResults int
}

// DefaultConfig returns the default tuning values; Path and an Embedder
// still need to be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		StoreDimensions: 1536,
		BatchCount:      100,
		BatchChars:      50_000,
		RRFConstant:     60,
		MaxResults:      10,
	}
}

// Store is the document store: SQLite for libraries/versions/documents and
// BM25 full text, coder/hnsw for dense vector search, one graph per
// (library, version) scope.
type Store struct {
	db       *sql.DB
	embedder embedding.Embedder
	splitter splitter.Splitter
	cfg      Config

	vectors *vectorIndexManager

	urlLocksMu sync.Mutex
	urlLocks   map[string]*sync.Mutex
}

// Open creates or opens a Store at cfg.Path, wiring it to embedder for
// embedQuery/embedDocuments and to the default splitter for AddDocument.
func Open(cfg Config, embedder embedding.Embedder) (*Store, error) {
	dsn := ":memory:"
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, errors.ConnectionError("failed to create store directory", err)
		}
		dsn = cfg.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.ConnectionError("failed to open store", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errors.ConnectionError("failed to set store pragma", err)
		}
	}

	s := &Store{
		db:       db,
		embedder: embedder,
		splitter: splitter.NewDocumentSplitter(splitter.DefaultSplitOptions()),
		cfg:      cfg,
		vectors:  newVectorIndexManager(cfg.StoreDimensions),
		urlLocks: make(map[string]*sync.Mutex),
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.rebuildVectorIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// rebuildVectorIndex replays every persisted embedding into the in-memory
// HNSW graphs, so that a process restart over the same SQLite file does not
// silently empty vector search while the relational chunks survive it. The
// embeddings table is the durable record; the graphs are a rebuildable
// cache over it.
func (s *Store) rebuildVectorIndex() error {
	rows, err := s.db.Query(`SELECT document_id, library_id, version_id, vector FROM embeddings`)
	if err != nil {
		return errors.ConnectionError("failed to query persisted embeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			docID                int64
			libraryID, versionID int64
			blob                 []byte
		)
		if err := rows.Scan(&docID, &libraryID, &versionID, &blob); err != nil {
			return errors.ConnectionError("failed to scan persisted embedding", err)
		}
		vector, err := decodeVector(blob)
		if err != nil {
			return errors.New(errors.ErrCodeStore, "failed to decode persisted embedding", err)
		}
		s.vectors.add(libraryID, versionID, fmt.Sprintf("%d", docID), vector)
	}
	return rows.Err()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS libraries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		library_id INTEGER NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		progress_pages INTEGER NOT NULL DEFAULT 0,
		progress_max_pages INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		source_url TEXT,
		scraper_options TEXT,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		UNIQUE(library_id, name)
	);

	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		library_id INTEGER NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
		version_id INTEGER NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		content TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '[]',
		level INTEGER NOT NULL DEFAULT 0,
		mime_type TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL,
		indexed_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	);

	CREATE INDEX IF NOT EXISTS idx_documents_scope_url
		ON documents(library_id, version_id, url, sort_order);

	CREATE TABLE IF NOT EXISTS embeddings (
		document_id INTEGER PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
		library_id INTEGER NOT NULL,
		version_id INTEGER NOT NULL,
		vector BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_scope
		ON embeddings(library_id, version_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS fts_documents USING fts5(
		doc_id UNINDEXED,
		library_id UNINDEXED,
		version_id UNINDEXED,
		title,
		content,
		tokenize='unicode61'
	);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return errors.ConnectionError("failed to initialize store schema", err)
	}
	return nil
}

// Close releases the database handle, every in-memory vector graph, and the
// splitter's tree-sitter parser.
func (s *Store) Close() error {
	if closer, ok := s.splitter.(interface{ Close() }); ok {
		closer.Close()
	}
	s.vectors.closeAll()
	if err := s.db.Close(); err != nil {
		return errors.ConnectionError("failed to close store", err)
	}
	return nil
}

// resolveIds upserts library and version rows, normalizing names to
// lowercase and the version name to "" for unversioned, and returns their
// row ids.
func (s *Store) resolveIds(ctx context.Context, library, version string) (libraryID, versionID int64, err error) {
	library = normalizeName(library)
	version = normalizeVersionName(version)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, errors.ConnectionError("failed to begin resolveIds transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO libraries(name) VALUES (?)`, library); err != nil {
		return 0, 0, errors.ConnectionError("failed to upsert library", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT id FROM libraries WHERE name = ?`, library).Scan(&libraryID); err != nil {
		return 0, 0, errors.New(errors.ErrCodeStore, "failed to resolve library id", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO versions(library_id, name) VALUES (?, ?)`, libraryID, version); err != nil {
		return 0, 0, errors.ConnectionError("failed to upsert version", err)
	}
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM versions WHERE library_id = ? AND name = ?`, libraryID, version).Scan(&versionID); err != nil {
		return 0, 0, errors.New(errors.ErrCodeStore, "failed to resolve version id", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, errors.ConnectionError("failed to commit resolveIds", err)
	}
	return libraryID, versionID, nil
}

// ResolveIds is the exported form of resolveIds, used by the Pipeline
// Worker and Manager to translate a (library, version) pair to row ids
// before driving Store operations that take ids directly.
func (s *Store) ResolveIds(ctx context.Context, library, version string) (libraryID, versionID int64, err error) {
	return s.resolveIds(ctx, library, version)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeVersionName(version string) string {
	v := strings.ToLower(strings.TrimSpace(version))
	if v == "unversioned" {
		return ""
	}
	return v
}

// urlLock returns a per-(library_id, version_id, url) mutex, creating it on
// first use. This serializes addDocuments at URL-group granularity per the
// store's documented serializability decision, without blocking disjoint
// URLs from proceeding concurrently.
func (s *Store) urlLock(libraryID, versionID int64, url string) *sync.Mutex {
	key := fmt.Sprintf("%d:%d:%s", libraryID, versionID, url)

	s.urlLocksMu.Lock()
	defer s.urlLocksMu.Unlock()

	m, ok := s.urlLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.urlLocks[key] = m
	}
	return m
}
