package indexstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_InMemorySkipsRepoLock(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()
	assert.Nil(t, s.repoLock)
}

func TestOpen_FileBackedAcquiresExclusiveLock(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")

	first, err := Open(dbPath)
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(dbPath)
	assert.Error(t, err, "a second Open on the same path must fail while the first is still held")
}

func TestOpen_LockReleasedAfterClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")

	first, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(dbPath)
	require.NoError(t, err)
	defer second.Close()
}

func TestCreateRepository_ReturnsStableID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateRepository(ctx, "/repo", "demo")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestStoreFile_FirstWriteIsNotUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repoID, err := s.CreateRepository(ctx, "/repo", "demo")
	require.NoError(t, err)

	outcome, err := s.StoreFile(ctx, repoID, "/repo/main.go", "main.go", "go", 10, "hash1", 1)
	require.NoError(t, err)
	assert.False(t, outcome.Unchanged)
	assert.NotEmpty(t, outcome.FileID)
}

func TestStoreFile_SameHashIsUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repoID, err := s.CreateRepository(ctx, "/repo", "demo")
	require.NoError(t, err)

	first, err := s.StoreFile(ctx, repoID, "/repo/main.go", "main.go", "go", 10, "hash1", 1)
	require.NoError(t, err)

	second, err := s.StoreFile(ctx, repoID, "/repo/main.go", "main.go", "go", 10, "hash1", 2)
	require.NoError(t, err)
	assert.True(t, second.Unchanged)
	assert.Equal(t, first.FileID, second.FileID)
}

func TestStoreFile_ChangedHashClearsStaleSymbols(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repoID, err := s.CreateRepository(ctx, "/repo", "demo")
	require.NoError(t, err)

	outcome, err := s.StoreFile(ctx, repoID, "/repo/main.go", "main.go", "go", 10, "hash1", 1)
	require.NoError(t, err)
	_, err = s.StoreSymbol(ctx, Symbol{FileID: outcome.FileID, Name: "Foo", Kind: SymbolFunction, LineStart: 1, LineEnd: 2})
	require.NoError(t, err)

	second, err := s.StoreFile(ctx, repoID, "/repo/main.go", "main.go", "go", 20, "hash2", 2)
	require.NoError(t, err)
	assert.False(t, second.Unchanged)

	syms, err := s.GetSymbol(ctx, "Foo", "", 10)
	require.NoError(t, err)
	assert.Empty(t, syms, "symbols from the stale content version must not survive a content change")
}

func TestGetSymbol_FindsStoredSymbol(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repoID, err := s.CreateRepository(ctx, "/repo", "demo")
	require.NoError(t, err)

	outcome, err := s.StoreFile(ctx, repoID, "/repo/main.go", "main.go", "go", 10, "hash1", 1)
	require.NoError(t, err)
	_, err = s.StoreSymbol(ctx, Symbol{FileID: outcome.FileID, Name: "Greet", Kind: SymbolFunction, LineStart: 3, LineEnd: 5})
	require.NoError(t, err)

	syms, err := s.GetSymbol(ctx, "Greet", "", 10)
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, 3, syms[0].LineStart)
}

func TestGetFileByPath_DeletedFileIsInvisible(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repoID, err := s.CreateRepository(ctx, "/repo", "demo")
	require.NoError(t, err)

	_, err = s.StoreFile(ctx, repoID, "/repo/main.go", "main.go", "go", 10, "hash1", 1)
	require.NoError(t, err)

	require.NoError(t, s.MarkFileDeleted(ctx, repoID, "main.go"))

	f, err := s.GetFileByPath(ctx, repoID, "main.go")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestMarkFileDeleted_MissingFileIsANoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repoID, err := s.CreateRepository(ctx, "/repo", "demo")
	require.NoError(t, err)

	err = s.MarkFileDeleted(ctx, repoID, "nonexistent.go")
	assert.NoError(t, err)
}

func TestMoveFile_PreservesFileIDAndSymbols(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repoID, err := s.CreateRepository(ctx, "/repo", "demo")
	require.NoError(t, err)

	outcome, err := s.StoreFile(ctx, repoID, "/repo/old.go", "old.go", "go", 10, "hash1", 1)
	require.NoError(t, err)
	_, err = s.StoreSymbol(ctx, Symbol{FileID: outcome.FileID, Name: "Foo", Kind: SymbolFunction})
	require.NoError(t, err)

	require.NoError(t, s.MoveFile(ctx, repoID, "old.go", "new.go", "/repo/new.go", "hash2"))

	old, err := s.GetFileByPath(ctx, repoID, "old.go")
	require.NoError(t, err)
	assert.Nil(t, old)

	moved, err := s.GetFileByPath(ctx, repoID, "new.go")
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, outcome.FileID, moved.ID)
	assert.Equal(t, "hash2", moved.ContentHash)

	syms, err := s.SymbolsByFile(ctx, outcome.FileID)
	require.NoError(t, err)
	assert.Len(t, syms, 1)
}

func TestMoveFile_MissingSourceErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repoID, err := s.CreateRepository(ctx, "/repo", "demo")
	require.NoError(t, err)

	err = s.MoveFile(ctx, repoID, "ghost.go", "new.go", "/repo/new.go", "hash")
	assert.Error(t, err)
}

func TestIndexContentAndSearchBM25_FindsIndexedText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repoID, err := s.CreateRepository(ctx, "/repo", "demo")
	require.NoError(t, err)

	outcome, err := s.StoreFile(ctx, repoID, "/repo/main.go", "main.go", "go", 10, "hash1", 1)
	require.NoError(t, err)
	require.NoError(t, s.IndexContent(ctx, outcome.FileID, "main.go", "go", "func greet returns hello world"))

	hits, err := s.SearchBM25(ctx, "hello", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "main.go", hits[0].FilePath)
}

func TestSearchBM25_EmptyQueryReturnsNoHits(t *testing.T) {
	s := newTestStore(t)
	hits, err := s.SearchBM25(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestGetStats_CountsFilesSymbolsAndLanguages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repoID, err := s.CreateRepository(ctx, "/repo", "demo")
	require.NoError(t, err)

	outcome, err := s.StoreFile(ctx, repoID, "/repo/main.go", "main.go", "go", 10, "hash1", 1)
	require.NoError(t, err)
	_, err = s.StoreSymbol(ctx, Symbol{FileID: outcome.FileID, Name: "Foo", Kind: SymbolFunction})
	require.NoError(t, err)
	require.NoError(t, s.IndexContent(ctx, outcome.FileID, "main.go", "go", "package main"))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FileCount)
	assert.Equal(t, 1, stats.SymbolCount)
	assert.Equal(t, 1, stats.BM25Count)
	assert.Equal(t, 1, stats.Languages["go"])
}

func TestAllLiveFiles_ExcludesDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repoID, err := s.CreateRepository(ctx, "/repo", "demo")
	require.NoError(t, err)

	_, err = s.StoreFile(ctx, repoID, "/repo/keep.go", "keep.go", "go", 10, "hash1", 1)
	require.NoError(t, err)
	_, err = s.StoreFile(ctx, repoID, "/repo/gone.go", "gone.go", "go", 10, "hash2", 1)
	require.NoError(t, err)
	require.NoError(t, s.MarkFileDeleted(ctx, repoID, "gone.go"))

	files, err := s.AllLiveFiles(ctx, repoID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "keep.go", files[0].RelativePath)
}

func TestClose_IsIdempotent(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
