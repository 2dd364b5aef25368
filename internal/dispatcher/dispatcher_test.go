package dispatcher

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cidx-dev/cidx/internal/filetype"
	"github.com/cidx-dev/cidx/internal/indexstore"
	"github.com/cidx-dev/cidx/internal/pathutil"
	"github.com/cidx-dev/cidx/internal/plugin"
)

// fakePlugin is a minimal in-memory plugin.Plugin used to exercise the
// dispatcher's fan-out and indexing paths without a real language
// backend.
type fakePlugin struct {
	language  string
	results   []plugin.SearchResult
	searchErr error
	def       *plugin.SymbolDef
	shard     plugin.Shard
}

func (p *fakePlugin) Language() string          { return p.language }
func (p *fakePlugin) Supports(path string) bool { return true }

func (p *fakePlugin) IndexFile(ctx context.Context, path string, content []byte) (plugin.Shard, error) {
	return p.shard, nil
}

func (p *fakePlugin) GetDefinition(ctx context.Context, symbolName string) (*plugin.SymbolDef, error) {
	return p.def, nil
}

func (p *fakePlugin) FindReferences(ctx context.Context, symbolName string) ([]plugin.Reference, error) {
	return nil, nil
}

func (p *fakePlugin) Search(ctx context.Context, query string, opts plugin.SearchOptions) ([]plugin.SearchResult, error) {
	if p.searchErr != nil {
		return nil, p.searchErr
	}
	return p.results, nil
}

func newTestDispatcher(t *testing.T, root string, plugins ...*fakePlugin) (*Dispatcher, *plugin.Registry) {
	t.Helper()

	store, err := indexstore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	repoID, err := store.CreateRepository(ctx, root, "demo")
	require.NoError(t, err)

	registry := plugin.NewRegistry()
	matcher := filetype.New()
	router := plugin.NewRouter(registry, matcher)

	for _, p := range plugins {
		p := p
		registry.Register(p.language, plugin.Capability{Name: p.language, FileExtensions: []string{".txt"}}, func(ctx context.Context) (plugin.Plugin, error) {
			return p, nil
		})
	}

	resolver, err := pathutil.NewResolver(root)
	require.NoError(t, err)

	d := New(Config{
		Store:        store,
		Router:       router,
		Registry:     registry,
		Resolver:     resolver,
		RepositoryID: repoID,
		LazyLoad:     true,
	})
	return d, registry
}

func TestDispatcher_Search_FansOutAcrossLoadedPlugins(t *testing.T) {
	root := t.TempDir()

	p := &fakePlugin{
		language: "go",
		results: []plugin.SearchResult{
			{FilePath: "main.go", Line: 10, Snippet: "func main() {}", Score: 0.9, MatchType: plugin.MatchExact},
		},
	}
	d, registry := newTestDispatcher(t, root, p)
	registry.LoadAll(context.Background())

	results, err := d.Search(context.Background(), "main", false, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "main.go", results[0].FilePath)
}

func TestDispatcher_Search_PluginErrorDoesNotAbortOtherPlugins(t *testing.T) {
	root := t.TempDir()

	failing := &fakePlugin{language: "broken", searchErr: errors.New("boom")}
	working := &fakePlugin{
		language: "go",
		results: []plugin.SearchResult{
			{FilePath: "ok.go", Line: 1, Snippet: "ok", Score: 0.5, MatchType: plugin.MatchFuzzy},
		},
	}
	d, registry := newTestDispatcher(t, root, failing, working)
	registry.LoadAll(context.Background())

	results, err := d.Search(context.Background(), "ok", false, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "ok.go", results[0].FilePath)
}

func TestDispatcher_Search_FallsBackToBM25WithNoPlugins(t *testing.T) {
	root := t.TempDir()
	d, _ := newTestDispatcher(t, root)

	ctx := context.Background()
	outcome, err := d.store.StoreFile(ctx, d.repositoryID, root+"/a.go", "a.go", "go", 20, "hash-a", 1)
	require.NoError(t, err)
	require.NoError(t, d.store.IndexContent(ctx, outcome.FileID, "a.go", "go", "package widget\n\nfunc Widget() {}\n"))

	results, err := d.Search(ctx, "Widget", false, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a.go", results[0].FilePath)
}

func TestDispatcher_IndexFile_SkipsUnchangedContent(t *testing.T) {
	root := t.TempDir()
	shard := plugin.Shard{Language: "go", Symbols: []plugin.ShardSymbol{{Name: "Widget", Kind: "function", LineStart: 3, LineEnd: 3}}}
	p := &fakePlugin{language: "go", shard: shard}
	d, _ := newTestDispatcher(t, root, p)

	absPath := root + "/widget.go"
	require.NoError(t, os.WriteFile(absPath, []byte("package widget\n\nfunc Widget() {}\n"), 0o644))

	ctx := context.Background()
	require.NoError(t, d.IndexFile(ctx, absPath))
	require.NoError(t, d.IndexFile(ctx, absPath))

	stats, err := d.store.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.FileCount)
	require.Equal(t, 1, stats.SymbolCount)
}

func TestDispatcher_Lookup_MergesAcrossPlugins(t *testing.T) {
	root := t.TempDir()
	p := &fakePlugin{language: "go", def: &plugin.SymbolDef{Name: "Widget", FilePath: "widget.go", Signature: "func Widget()"}}
	d, registry := newTestDispatcher(t, root, p)
	registry.LoadAll(context.Background())

	def, err := d.Lookup(context.Background(), "Widget")
	require.NoError(t, err)
	require.NotNil(t, def)
	require.Equal(t, "widget.go", def.FilePath)
}
