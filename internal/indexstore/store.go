package indexstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO

	cidxerrors "github.com/cidx-dev/cidx/internal/errors"
	"github.com/cidx-dev/cidx/internal/pathutil"
	"github.com/cidx-dev/cidx/internal/store"
)

// snippetOpen, snippetClose and snippetEllipsis are the BM25 snippet
// markers fixed by the external interface contract.
const (
	snippetOpen     = "<<"
	snippetClose    = ">>"
	snippetEllipsis = "..."
	snippetWindow   = 20 // tokens either side of a match
)

// Store is the persistent index for a single repository: repositories,
// files, symbols, references, and an FTS5-backed BM25 document table.
// It is safe for concurrent use; a single writer connection serializes
// mutations while reads may proceed concurrently.
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	closed    bool
	stopWords map[string]struct{}
	repoLock  *repoLock

	// fileMu serializes index_file for a given relative path, so that a
	// reader never observes a partially-replaced symbol set.
	fileMu   sync.Mutex
	fileLock map[string]*sync.Mutex
}

// Open creates or opens the index database at path. An empty path opens
// an in-memory database (used in tests).
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	var lock *repoLock
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, cidxerrors.NewKind(cidxerrors.KindIO, "cannot create index directory", err)
		}
		l, err := acquireRepoLock(path)
		if err != nil {
			return nil, err
		}
		lock = l
		if err := validateIntegrity(path); err != nil {
			slog.Warn("indexstore_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("indexstore_cleared", slog.String("path", path), slog.String("reason", "corruption detected, reindex required"))
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = lock.release()
		return nil, cidxerrors.NewKind(cidxerrors.KindIO, "cannot open index database", err)
	}
	// Single writer connection avoids SQLite lock contention, matching
	// the store package's existing BM25 index.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			_ = lock.release()
			return nil, cidxerrors.NewKind(cidxerrors.KindIO, "cannot set pragma", err)
		}
	}

	s := &Store{
		db:        db,
		path:      path,
		stopWords: store.BuildStopWordMap(store.DefaultCodeStopWords),
		fileLock:  make(map[string]*sync.Mutex),
		repoLock:  lock,
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		_ = lock.release()
		return nil, cidxerrors.NewKind(cidxerrors.KindCorruption, "cannot initialize index schema", err)
	}
	return s, nil
}

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='repositories'`).Scan(&count); err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS repositories (
	id TEXT PRIMARY KEY,
	root_path TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	absolute_path TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	language TEXT,
	size INTEGER NOT NULL,
	content_hash TEXT NOT NULL,
	mtime_ns INTEGER NOT NULL,
	indexed_at TIMESTAMP NOT NULL,
	deleted_at TIMESTAMP,
	metadata TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_files_repo_relpath_live
	ON files(repository_id, relative_path) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS symbols (
	id TEXT PRIMARY KEY,
	file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	line_start INTEGER NOT NULL,
	line_end INTEGER NOT NULL,
	col_start INTEGER,
	col_end INTEGER,
	signature TEXT,
	documentation TEXT,
	scope TEXT,
	visibility TEXT,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);

CREATE TABLE IF NOT EXISTS symbol_references (
	id TEXT PRIMARY KEY,
	symbol_id TEXT NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
	file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	line INTEGER NOT NULL,
	column INTEGER NOT NULL,
	reference_kind TEXT
);
CREATE INDEX IF NOT EXISTS idx_refs_symbol ON symbol_references(symbol_id);

CREATE VIRTUAL TABLE IF NOT EXISTS bm25_content USING fts5(
	file_id UNINDEXED,
	filepath UNINDEXED,
	language UNINDEXED,
	content,
	tokenize='unicode61'
);

CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);
INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

func (s *Store) initSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) lockFor(relPath string) *sync.Mutex {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	m, ok := s.fileLock[relPath]
	if !ok {
		m = &sync.Mutex{}
		s.fileLock[relPath] = m
	}
	return m
}

// Close releases the database handle. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	closeErr := s.db.Close()
	if lockErr := s.repoLock.release(); lockErr != nil && closeErr == nil {
		return lockErr
	}
	return closeErr
}

// CreateRepository registers a repository root, returning its id.
func (s *Store) CreateRepository(ctx context.Context, root, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := pathutil.ContentHashBytes([]byte(root))[:32]
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO repositories(id, root_path, name, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(root_path) DO UPDATE SET name = excluded.name`,
		id, root, name, time.Now().UTC())
	if err != nil {
		return "", cidxerrors.NewKind(cidxerrors.KindIO, "cannot create repository", err)
	}
	return id, nil
}

// GetRepository looks up a repository by root path.
func (s *Store) GetRepository(ctx context.Context, root string) (*Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, root_path, name, created_at FROM repositories WHERE root_path = ?`, root)
	var r Repository
	if err := row.Scan(&r.ID, &r.RootPath, &r.Name, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, cidxerrors.NewKind(cidxerrors.KindIO, "cannot read repository", err)
	}
	return &r, nil
}

// StoreFile upserts a file row on (repositoryID, relativePath). If an
// unchanged row exists (same content hash) it reports Unchanged=true and
// leaves symbols untouched; otherwise dependent symbols and references
// are cleared so a subsequent store_symbol call starts from empty.
func (s *Store) StoreFile(ctx context.Context, repositoryID, absolutePath, relativePath, language string, size int64, contentHash string, mtimeNs int64) (StoreFileOutcome, error) {
	lock := s.lockFor(relativePath)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, content_hash FROM files WHERE repository_id = ? AND relative_path = ? AND deleted_at IS NULL`,
		repositoryID, relativePath)
	var existingID, existingHash string
	err := row.Scan(&existingID, &existingHash)
	switch {
	case err == nil && existingHash == contentHash:
		// Same content as last time: touch indexed_at and skip re-parsing.
		_, _ = s.db.ExecContext(ctx, `UPDATE files SET indexed_at = ? WHERE id = ?`, time.Now().UTC(), existingID)
		return StoreFileOutcome{FileID: existingID, Unchanged: true}, nil
	case err != nil && err != sql.ErrNoRows:
		return StoreFileOutcome{}, cidxerrors.NewKind(cidxerrors.KindIO, "cannot read file row", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StoreFileOutcome{}, cidxerrors.NewKind(cidxerrors.KindIO, "cannot begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	fileID := existingID
	if fileID == "" {
		fileID = pathutil.ContentHashBytes([]byte(repositoryID + ":" + relativePath))[:32]
	} else {
		// Content changed: the old symbol set no longer matches it.
		if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_id = ?`, fileID); err != nil {
			return StoreFileOutcome{}, cidxerrors.NewKind(cidxerrors.KindIO, "cannot clear stale symbols", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO files(id, repository_id, absolute_path, relative_path, language, size, content_hash, mtime_ns, indexed_at, deleted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		 ON CONFLICT(id) DO UPDATE SET
			absolute_path = excluded.absolute_path,
			language = excluded.language,
			size = excluded.size,
			content_hash = excluded.content_hash,
			mtime_ns = excluded.mtime_ns,
			indexed_at = excluded.indexed_at,
			deleted_at = NULL`,
		fileID, repositoryID, absolutePath, relativePath, language, size, contentHash, mtimeNs, time.Now().UTC())
	if err != nil {
		return StoreFileOutcome{}, cidxerrors.NewKind(cidxerrors.KindIO, "cannot store file", err)
	}

	if err := tx.Commit(); err != nil {
		return StoreFileOutcome{}, cidxerrors.NewKind(cidxerrors.KindIO, "cannot commit file store", err)
	}
	return StoreFileOutcome{FileID: fileID, Unchanged: false}, nil
}

// StoreSymbol inserts one symbol for a file.
func (s *Store) StoreSymbol(ctx context.Context, sym Symbol) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sym.ID == "" {
		sym.ID = pathutil.ContentHashBytes([]byte(fmt.Sprintf("%s:%s:%d:%d", sym.FileID, sym.Name, sym.LineStart, sym.LineEnd)))[:32]
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO symbols(id, file_id, name, kind, line_start, line_end, col_start, col_end, signature, documentation, scope, visibility, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sym.ID, sym.FileID, sym.Name, string(sym.Kind), sym.LineStart, sym.LineEnd, sym.ColStart, sym.ColEnd,
		sym.Signature, sym.Documentation, sym.Scope, sym.Visibility, encodeMetadata(sym.Metadata))
	if err != nil {
		return "", cidxerrors.NewKind(cidxerrors.KindIO, "cannot store symbol", err)
	}
	return sym.ID, nil
}

// StoreReference inserts a use-site reference to a symbol.
func (s *Store) StoreReference(ctx context.Context, ref SymbolReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref.ID == "" {
		ref.ID = pathutil.ContentHashBytes([]byte(fmt.Sprintf("%s:%s:%d:%d", ref.SymbolID, ref.FileID, ref.Line, ref.Column)))[:32]
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO symbol_references(id, symbol_id, file_id, line, column, reference_kind) VALUES (?, ?, ?, ?, ?, ?)`,
		ref.ID, ref.SymbolID, ref.FileID, ref.Line, ref.Column, ref.ReferenceKind)
	if err != nil {
		return cidxerrors.NewKind(cidxerrors.KindIO, "cannot store reference", err)
	}
	return nil
}

// MarkFileDeleted soft-deletes a file so it disappears from live
// queries and search while retaining its row and symbols for
// history/audit.
func (s *Store) MarkFileDeleted(ctx context.Context, repositoryID, relativePath string) error {
	lock := s.lockFor(relativePath)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var fileID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM files WHERE repository_id = ? AND relative_path = ? AND deleted_at IS NULL`,
		repositoryID, relativePath).Scan(&fileID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return cidxerrors.NewKind(cidxerrors.KindIO, "cannot locate file to delete", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cidxerrors.NewKind(cidxerrors.KindIO, "cannot begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE files SET deleted_at = ? WHERE id = ?`, time.Now().UTC(), fileID); err != nil {
		return cidxerrors.NewKind(cidxerrors.KindIO, "cannot mark file deleted", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bm25_content WHERE file_id = ?`, fileID); err != nil {
		return cidxerrors.NewKind(cidxerrors.KindIO, "cannot remove bm25 content", err)
	}
	return tx.Commit()
}

// MoveFile renames a live file atomically, preserving its file_id and
// symbol rows, and recomputing its content hash.
func (s *Store) MoveFile(ctx context.Context, repositoryID, oldRelative, newRelative, newAbsolute, newContentHash string) error {
	lock := s.lockFor(oldRelative)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var fileID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM files WHERE repository_id = ? AND relative_path = ? AND deleted_at IS NULL`,
		repositoryID, oldRelative).Scan(&fileID)
	if err == sql.ErrNoRows {
		return cidxerrors.NewKind(cidxerrors.KindNotFound, "move source not found", nil)
	}
	if err != nil {
		return cidxerrors.NewKind(cidxerrors.KindIO, "cannot locate move source", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE files SET relative_path = ?, absolute_path = ?, content_hash = ?, indexed_at = ? WHERE id = ?`,
		newRelative, newAbsolute, newContentHash, time.Now().UTC(), fileID)
	if err != nil {
		return cidxerrors.NewKind(cidxerrors.KindIO, "cannot move file", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE bm25_content SET filepath = ? WHERE file_id = ?`, newRelative, fileID)
	if err != nil {
		return cidxerrors.NewKind(cidxerrors.KindIO, "cannot update bm25 path", err)
	}
	return nil
}

// GetFileByPath returns a live file by repository + relative path, or
// nil if none exists (deleted files are invisible — P2).
func (s *Store) GetFileByPath(ctx context.Context, repositoryID, relativePath string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, repository_id, absolute_path, relative_path, language, size, content_hash, mtime_ns, indexed_at
		 FROM files WHERE repository_id = ? AND relative_path = ? AND deleted_at IS NULL`,
		repositoryID, relativePath)
	var f File
	if err := row.Scan(&f.ID, &f.RepositoryID, &f.AbsolutePath, &f.RelativePath, &f.Language, &f.Size, &f.ContentHash, &f.MtimeNs, &f.IndexedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, cidxerrors.NewKind(cidxerrors.KindIO, "cannot read file", err)
	}
	return &f, nil
}

// FilePathByID resolves a file_id to its current relative path.
func (s *Store) FilePathByID(ctx context.Context, fileID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var relPath string
	err := s.db.QueryRowContext(ctx, `SELECT relative_path FROM files WHERE id = ?`, fileID).Scan(&relPath)
	if err == sql.ErrNoRows {
		return "", cidxerrors.NewKind(cidxerrors.KindNotFound, "file not found: "+fileID, nil)
	}
	if err != nil {
		return "", cidxerrors.NewKind(cidxerrors.KindIO, "cannot resolve file path", err)
	}
	return relPath, nil
}

// IndexContent writes (or rewrites) the BM25 document for a file. Called
// after StoreFile/StoreSymbol so the FTS table always reflects the most
// recently parsed content of a live, indexable file.
func (s *Store) IndexContent(ctx context.Context, fileID, relativePath, language, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := store.TokenizeCode(content)
	tokens = store.FilterStopWords(tokens, s.stopWords)
	processed := strings.Join(tokens, " ")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cidxerrors.NewKind(cidxerrors.KindIO, "cannot begin bm25 transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bm25_content WHERE file_id = ?`, fileID); err != nil {
		return cidxerrors.NewKind(cidxerrors.KindIO, "cannot clear bm25 content", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bm25_content(file_id, filepath, language, content) VALUES (?, ?, ?, ?)`,
		fileID, relativePath, language, processed); err != nil {
		return cidxerrors.NewKind(cidxerrors.KindIO, "cannot index bm25 content", err)
	}
	return tx.Commit()
}

// SearchBM25 runs a full-text query and returns hits ordered by BM25
// rank, with snippets delimited per the external interface contract.
func (s *Store) SearchBM25(ctx context.Context, query string, limit int) ([]BM25Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.TrimSpace(query)
	if query == "" {
		return []BM25Hit{}, nil
	}
	tokens := store.TokenizeCode(query)
	tokens = store.FilterStopWords(tokens, s.stopWords)
	if len(tokens) == 0 {
		return []BM25Hit{}, nil
	}
	matchQuery := strings.Join(tokens, " ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT filepath,
		       snippet(bm25_content, 3, ?, ?, ?, ?) AS snip,
		       bm25(bm25_content) AS rank
		FROM bm25_content
		WHERE bm25_content MATCH ?
		ORDER BY rank
		LIMIT ?`,
		snippetOpen, snippetClose, snippetEllipsis, snippetWindow, matchQuery, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []BM25Hit{}, nil
		}
		return nil, cidxerrors.NewKind(cidxerrors.KindIO, "bm25 search failed", err)
	}
	defer rows.Close()

	var hits []BM25Hit
	for rows.Next() {
		var h BM25Hit
		if err := rows.Scan(&h.FilePath, &h.Snippet, &h.Rank); err != nil {
			return nil, cidxerrors.NewKind(cidxerrors.KindIO, "cannot scan bm25 row", err)
		}
		h.Rank = -h.Rank // fts5 bm25() is negative; flip so higher is better
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// GetSymbol looks up symbols by name, optionally narrowed to a language
// or file. Results are ordered by file then line for determinism.
func (s *Store) GetSymbol(ctx context.Context, name, language string, limit int) ([]Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.Builder{}
	q.WriteString(`SELECT s.id, s.file_id, s.name, s.kind, s.line_start, s.line_end, s.col_start, s.col_end,
	                      s.signature, s.documentation, s.scope, s.visibility
	               FROM symbols s
	               JOIN files f ON f.id = s.file_id
	               WHERE s.name = ? AND f.deleted_at IS NULL`)
	args := []any{name}
	if language != "" {
		q.WriteString(` AND f.language = ?`)
		args = append(args, language)
	}
	q.WriteString(` ORDER BY f.relative_path, s.line_start LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, cidxerrors.NewKind(cidxerrors.KindIO, "cannot query symbols", err)
	}
	defer rows.Close()

	var out []Symbol
	for rows.Next() {
		var sym Symbol
		var kind string
		if err := rows.Scan(&sym.ID, &sym.FileID, &sym.Name, &kind, &sym.LineStart, &sym.LineEnd,
			&sym.ColStart, &sym.ColEnd, &sym.Signature, &sym.Documentation, &sym.Scope, &sym.Visibility); err != nil {
			return nil, cidxerrors.NewKind(cidxerrors.KindIO, "cannot scan symbol", err)
		}
		sym.Kind = SymbolKind(kind)
		out = append(out, sym)
	}
	return out, rows.Err()
}

// GetStats summarizes the current state of the index.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	stats.Languages = make(map[string]int)

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE deleted_at IS NULL`).Scan(&stats.FileCount); err != nil {
		return stats, cidxerrors.NewKind(cidxerrors.KindIO, "cannot count files", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols`).Scan(&stats.SymbolCount); err != nil {
		return stats, cidxerrors.NewKind(cidxerrors.KindIO, "cannot count symbols", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bm25_content`).Scan(&stats.BM25Count); err != nil {
		return stats, cidxerrors.NewKind(cidxerrors.KindIO, "cannot count bm25 docs", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(language, ''), COUNT(*) FROM files WHERE deleted_at IS NULL GROUP BY language`)
	if err != nil {
		return stats, cidxerrors.NewKind(cidxerrors.KindIO, "cannot group languages", err)
	}
	defer rows.Close()
	for rows.Next() {
		var lang string
		var count int
		if err := rows.Scan(&lang, &count); err != nil {
			return stats, cidxerrors.NewKind(cidxerrors.KindIO, "cannot scan language stat", err)
		}
		stats.Languages[lang] = count
	}
	return stats, rows.Err()
}

// AllLiveFiles returns every non-deleted file's relative path, used by
// the secure export filter and watcher reconciliation.
func (s *Store) AllLiveFiles(ctx context.Context, repositoryID string) ([]File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, repository_id, absolute_path, relative_path, language, size, content_hash, mtime_ns, indexed_at
		 FROM files WHERE repository_id = ? AND deleted_at IS NULL`, repositoryID)
	if err != nil {
		return nil, cidxerrors.NewKind(cidxerrors.KindIO, "cannot list files", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.RepositoryID, &f.AbsolutePath, &f.RelativePath, &f.Language, &f.Size, &f.ContentHash, &f.MtimeNs, &f.IndexedAt); err != nil {
			return nil, cidxerrors.NewKind(cidxerrors.KindIO, "cannot scan file", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SymbolsByFile returns all symbols for a file, used by export.
func (s *Store) SymbolsByFile(ctx context.Context, fileID string) ([]Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_id, name, kind, line_start, line_end, col_start, col_end, signature, documentation, scope, visibility
		 FROM symbols WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, cidxerrors.NewKind(cidxerrors.KindIO, "cannot list symbols", err)
	}
	defer rows.Close()

	var out []Symbol
	for rows.Next() {
		var sym Symbol
		var kind string
		if err := rows.Scan(&sym.ID, &sym.FileID, &sym.Name, &kind, &sym.LineStart, &sym.LineEnd,
			&sym.ColStart, &sym.ColEnd, &sym.Signature, &sym.Documentation, &sym.Scope, &sym.Visibility); err != nil {
			return nil, cidxerrors.NewKind(cidxerrors.KindIO, "cannot scan symbol", err)
		}
		sym.Kind = SymbolKind(kind)
		out = append(out, sym)
	}
	return out, rows.Err()
}

func encodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ";")
}
