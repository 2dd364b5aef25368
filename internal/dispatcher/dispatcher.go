// Package dispatcher is the public query surface: symbol lookup, BM25
// and documentation-aware search, and file indexing. It classifies and
// expands documentation queries, fans a search out across every loaded
// plugin, and falls back to a direct BM25 query when the plugin
// subsystem has nothing loaded.
package dispatcher

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/cidx-dev/cidx/internal/aggregator"
	cidxerrors "github.com/cidx-dev/cidx/internal/errors"
	"github.com/cidx-dev/cidx/internal/indexstore"
	"github.com/cidx-dev/cidx/internal/notify"
	"github.com/cidx-dev/cidx/internal/pathutil"
	"github.com/cidx-dev/cidx/internal/plugin"
	"github.com/cidx-dev/cidx/internal/querycache"
)

// fileMeta is the (mtime, size, hash) tuple used to skip a redundant
// index_file call before ever touching the store.
type fileMeta struct {
	mtimeNs int64
	size    int64
	hash    string
}

// Config wires a Dispatcher's dependencies. Store, Router, and Registry
// are required; Notifier and Cache may be nil.
type Config struct {
	Store           *indexstore.Store
	Router          *plugin.Router
	Registry        *plugin.Registry
	Resolver        *pathutil.Resolver
	Cache           *querycache.Cache
	Notifier        *notify.Manager
	RepositoryID    string
	SemanticEnabled bool
	LazyLoad        bool
}

// Dispatcher implements lookup/search/search_documentation/index_file
// over a store, a plugin router/registry, and the aggregator/cache
// layers above them.
type Dispatcher struct {
	store           *indexstore.Store
	router          *plugin.Router
	registry        *plugin.Registry
	resolver        *pathutil.Resolver
	aggregator      *aggregator.Aggregator
	cache           *querycache.Cache
	notifier        *notify.Manager
	repositoryID    string
	semanticEnabled bool
	lazyLoad        bool

	mu       sync.Mutex
	loaded   bool
	fileMeta map[string]fileMeta
}

// aggregatorFingerprintTTL is the aggregator's own fingerprint-cache
// TTL, independent of the namespaced query cache's per-namespace TTLs.
const aggregatorFingerprintTTL = 5 * time.Minute

// New returns a Dispatcher over cfg.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		store:           cfg.Store,
		router:          cfg.Router,
		registry:        cfg.Registry,
		resolver:        cfg.Resolver,
		aggregator:      aggregator.New(aggregatorFingerprintTTL),
		cache:           cfg.Cache,
		notifier:        cfg.Notifier,
		repositoryID:    cfg.RepositoryID,
		semanticEnabled: cfg.SemanticEnabled,
		lazyLoad:        cfg.LazyLoad,
		fileMeta:        make(map[string]fileMeta),
	}
}

// Store returns the dispatcher's underlying index store, for callers
// that need status/stats beyond the four public operations (e.g. the
// MCP status() and plugins() surfaces).
func (d *Dispatcher) Store() *indexstore.Store { return d.store }

// Router returns the dispatcher's plugin router.
func (d *Dispatcher) Router() *plugin.Router { return d.router }

// Registry returns the dispatcher's plugin registry.
func (d *Dispatcher) Registry() *plugin.Registry { return d.registry }

// Resolver returns the dispatcher's path resolver.
func (d *Dispatcher) Resolver() *pathutil.Resolver { return d.resolver }

// RepositoryID returns the repository this dispatcher indexes into.
func (d *Dispatcher) RepositoryID() string { return d.repositoryID }

// ensureLoaded eagerly loads every registered plugin the first time a
// query needs the full plugin set, when configured for lazy loading.
func (d *Dispatcher) ensureLoaded(ctx context.Context) {
	d.mu.Lock()
	if d.loaded || !d.lazyLoad {
		d.mu.Unlock()
		return
	}
	d.loaded = true
	d.mu.Unlock()
	d.registry.LoadAll(ctx)
}

// Lookup gathers a symbol's definition across every loaded plugin and
// returns the most complete one, per the aggregator's merge rule.
func (d *Dispatcher) Lookup(ctx context.Context, symbolName string) (*plugin.SymbolDef, error) {
	d.ensureLoaded(ctx)

	if cached, ok := d.cacheGet(querycache.NamespaceSymbolLookup, symbolName); ok {
		return cached.(*plugin.SymbolDef), nil
	}

	plugins := d.registry.Loaded()
	defs := make([]*plugin.SymbolDef, 0, len(plugins))
	for lang, p := range plugins {
		def, err := p.GetDefinition(ctx, symbolName)
		if err != nil {
			slog.Warn("dispatcher_lookup_plugin_error", slog.String("language", lang), slog.String("error", err.Error()))
			continue
		}
		if def != nil {
			defs = append(defs, def)
		}
	}

	merged := aggregator.MergeDefinitions(defs)
	tags := []string{}
	if merged != nil {
		tags = []string{querycache.FileTag(merged.FilePath)}
	}
	d.cacheSet(querycache.NamespaceSymbolLookup, symbolName, merged, tags)
	return merged, nil
}

// Search classifies, optionally expands, fans out, and aggregates a
// query's results.
func (d *Dispatcher) Search(ctx context.Context, query string, semantic bool, limit int) ([]aggregator.Aggregated, error) {
	if limit <= 0 {
		limit = 20
	}
	isDoc := IsDocumentationQuery(query)
	if isDoc {
		semantic = true
	}

	ns := querycache.NamespaceSearch
	if semantic {
		ns = querycache.NamespaceSemanticSearch
	}
	if isDoc {
		ns = querycache.NamespaceDocumentationSearch
	}
	cacheKey := querycache.Key("search", query, boolString(semantic), strings.ToLower(string(ns)))
	if cached, ok := d.cacheGet(ns, cacheKey); ok {
		return cached.([]aggregator.Aggregated), nil
	}

	d.ensureLoaded(ctx)

	queries := []string{query}
	if isDoc {
		queries = ExpandDocumentationQuery(query)
	}

	plugins := d.registry.Loaded()
	if !semantic && !d.semanticEnabled && len(plugins) == 0 {
		results, err := d.searchBM25Fallback(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		d.cacheSearchResult(ns, cacheKey, results)
		return results, nil
	}

	criteria := aggregator.DefaultRankingCriteria()
	if isDoc {
		criteria = aggregator.DocumentationRankingCriteria()
	}

	sourceResults, pluginsUsed := d.fanOut(ctx, queries, plugins, semantic, limit, isDoc)
	results := d.aggregator.Aggregate(pluginsUsed, sourceResults, limit, aggregator.StrategySmart, criteria)

	if isDoc {
		results = prioritizeDocumentationFirst(results)
	}

	d.cacheSearchResult(ns, cacheKey, results)
	return results, nil
}

// SearchDocumentation fans a topic out across the fixed documentation
// query forms and restricts its output to documentation-file results.
func (d *Dispatcher) SearchDocumentation(ctx context.Context, topic string, docTypes []string, limit int) ([]aggregator.Aggregated, error) {
	if limit <= 0 {
		limit = 20
	}
	cacheKey := querycache.Key("search_documentation", topic, strings.Join(docTypes, ","))
	if cached, ok := d.cacheGet(querycache.NamespaceDocumentationSearch, cacheKey); ok {
		return cached.([]aggregator.Aggregated), nil
	}

	d.ensureLoaded(ctx)

	queries := ExpandDocumentationQuery(topic)
	plugins := d.registry.Loaded()
	sourceResults, pluginsUsed := d.fanOut(ctx, queries, plugins, true, limit, true)

	results := d.aggregator.Aggregate(pluginsUsed, sourceResults, limit, aggregator.StrategySmart, aggregator.DocumentationRankingCriteria())
	results = filterDocumentationOnly(results, docTypes)

	d.cacheSearchResult(querycache.NamespaceDocumentationSearch, cacheKey, results)
	return results, nil
}

// fanOut runs every (query, plugin) pair concurrently, deduplicating
// each plugin's own hits on (file, line) before they reach the
// aggregator. A plugin error is logged and otherwise ignored — it never
// aborts the remaining plugins or queries.
func (d *Dispatcher) fanOut(ctx context.Context, queries []string, plugins map[string]plugin.Plugin, semantic bool, limit int, isDoc bool) ([]aggregator.SourceResult, []string) {
	var mu sync.Mutex
	var all []aggregator.SourceResult
	pluginsUsed := make([]string, 0, len(plugins))
	for lang := range plugins {
		pluginsUsed = append(pluginsUsed, lang)
	}

	g, gctx := errgroup.WithContext(ctx)
	for lang, p := range plugins {
		lang, p := lang, p
		for _, q := range queries {
			q := q
			g.Go(func() error {
				start := time.Now()
				hits, err := p.Search(gctx, q, plugin.SearchOptions{Semantic: semantic, Limit: limit})
				d.router.RecordLatency(lang, time.Since(start))
				if err != nil {
					slog.Warn("dispatcher_search_plugin_error", slog.String("language", lang), slog.String("query", q), slog.String("error", err.Error()))
					return nil
				}
				deduped := dedupeByFileLine(hits)
				mu.Lock()
				for _, h := range deduped {
					all = append(all, aggregator.SourceResult{
						Plugin:    lang,
						FilePath:  h.FilePath,
						Line:      h.Line,
						Snippet:   h.Snippet,
						Score:     h.Score,
						MatchType: h.MatchType,
						IsDoc:     isDoc || looksLikeDocumentation(h.FilePath),
						IndexedAt: time.Now(),
					})
				}
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait() // errors are already logged and swallowed per-goroutine

	return all, pluginsUsed
}

// searchBM25Fallback queries the store's full-text index directly,
// bypassing plugins entirely.
func (d *Dispatcher) searchBM25Fallback(ctx context.Context, query string, limit int) ([]aggregator.Aggregated, error) {
	hits, err := d.store.SearchBM25(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	results := make([]aggregator.SourceResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, aggregator.SourceResult{
			Plugin:    "bm25",
			FilePath:  h.FilePath,
			Snippet:   h.Snippet,
			Score:     h.Rank,
			MatchType: plugin.MatchFuzzy,
			IndexedAt: time.Now(),
		})
	}
	return d.aggregator.Aggregate([]string{"bm25"}, results, limit, aggregator.StrategySimple, aggregator.DefaultRankingCriteria()), nil
}

// IndexFile resolves a plugin via the router, reads the file (with a
// latin-1 fallback when it is not valid UTF-8), and persists its
// symbols through the store — skipping the work entirely when the
// (mtime, size, hash) tuple matches what was last indexed.
func (d *Dispatcher) IndexFile(ctx context.Context, absolutePath string) error {
	relPath, err := d.resolver.Normalize(absolutePath)
	if err != nil {
		return err
	}

	info, err := os.Stat(absolutePath)
	if err != nil {
		return cidxerrors.NewKind(cidxerrors.KindIO, "cannot stat file to index", err)
	}

	raw, err := os.ReadFile(absolutePath)
	if err != nil {
		return cidxerrors.NewKind(cidxerrors.KindIO, "cannot read file to index", err)
	}
	content := decodeContent(raw)
	hash := pathutil.ContentHashBytes([]byte(content))

	meta := fileMeta{mtimeNs: info.ModTime().UnixNano(), size: info.Size(), hash: hash}
	d.mu.Lock()
	if prior, ok := d.fileMeta[relPath]; ok && prior == meta {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	candidates := d.router.RouteByPath(absolutePath, info.ModTime(), "")
	if len(candidates) == 0 {
		return cidxerrors.NewKind(cidxerrors.KindPluginUnavailable, "no plugin can index "+relPath, nil)
	}

	var shard plugin.Shard
	var loadErr error
	for _, candidate := range candidates {
		p, err := d.registry.Ensure(ctx, candidate.Language)
		if err != nil {
			loadErr = err
			continue
		}
		start := time.Now()
		shard, loadErr = p.IndexFile(ctx, relPath, []byte(content))
		d.router.RecordLatency(candidate.Language, time.Since(start))
		if loadErr == nil {
			break
		}
		slog.Warn("dispatcher_index_plugin_error", slog.String("language", candidate.Language), slog.String("path", relPath), slog.String("error", loadErr.Error()))
	}
	if loadErr != nil {
		return loadErr
	}

	outcome, err := d.store.StoreFile(ctx, d.repositoryID, absolutePath, relPath, shard.Language, int64(len(content)), hash, info.ModTime().UnixNano())
	if err != nil {
		return err
	}
	if !outcome.Unchanged {
		for _, sym := range shard.Symbols {
			if _, err := d.store.StoreSymbol(ctx, indexstore.Symbol{
				FileID:        outcome.FileID,
				Name:          sym.Name,
				Kind:          indexstore.SymbolKind(sym.Kind),
				LineStart:     sym.LineStart,
				LineEnd:       sym.LineEnd,
				ColStart:      sym.ColStart,
				ColEnd:        sym.ColEnd,
				Signature:     sym.Signature,
				Documentation: sym.Documentation,
				Scope:         sym.Scope,
				Visibility:    sym.Visibility,
			}); err != nil {
				return err
			}
		}
		if err := d.store.IndexContent(ctx, outcome.FileID, relPath, shard.Language, content); err != nil {
			return err
		}
	}

	if d.cache != nil {
		d.cache.InvalidateFileQueries(relPath)
	}
	if d.notifier != nil {
		d.notifier.Notify(notify.EventIndexUpdated, relPath, nil, shard.Language, "dispatcher")
	}

	d.mu.Lock()
	d.fileMeta[relPath] = meta
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) cacheGet(ns querycache.Namespace, key string) (any, bool) {
	if d.cache == nil {
		return nil, false
	}
	return d.cache.Get(ns, key)
}

func (d *Dispatcher) cacheSet(ns querycache.Namespace, key string, value any, tags []string) {
	if d.cache == nil {
		return
	}
	d.cache.Set(ns, key, value, tags)
}

func (d *Dispatcher) cacheSearchResult(ns querycache.Namespace, key string, results []aggregator.Aggregated) {
	tags := make([]string, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if _, ok := seen[r.FilePath]; ok {
			continue
		}
		seen[r.FilePath] = struct{}{}
		tags = append(tags, querycache.FileTag(r.FilePath))
	}
	d.cacheSet(ns, key, results, tags)
}

func dedupeByFileLine(hits []plugin.SearchResult) []plugin.SearchResult {
	seen := make(map[string]struct{}, len(hits))
	out := make([]plugin.SearchResult, 0, len(hits))
	for _, h := range hits {
		key := h.FilePath + ":" + sprintInt(h.Line)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
	}
	return out
}

func sprintInt(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// prioritizeDocumentationFirst boosts every documentation-path result's
// rank by 1.5 and stable-sorts so documentation precedes code.
func prioritizeDocumentationFirst(results []aggregator.Aggregated) []aggregator.Aggregated {
	out := make([]aggregator.Aggregated, len(results))
	copy(out, results)
	for i := range out {
		if looksLikeDocumentation(out[i].FilePath) {
			out[i].Rank *= 1.5
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		iDoc, jDoc := looksLikeDocumentation(out[i].FilePath), looksLikeDocumentation(out[j].FilePath)
		if iDoc != jDoc {
			return iDoc
		}
		return out[i].Rank > out[j].Rank
	})
	return out
}

func filterDocumentationOnly(results []aggregator.Aggregated, docTypes []string) []aggregator.Aggregated {
	out := make([]aggregator.Aggregated, 0, len(results))
	for _, r := range results {
		if !looksLikeDocumentation(r.FilePath) {
			continue
		}
		if len(docTypes) > 0 && !matchesDocType(r.FilePath, docTypes) {
			continue
		}
		out = append(out, r)
	}
	return out
}

var documentationExtensions = map[string]struct{}{
	".md":   {},
	".mdx":  {},
	".rst":  {},
	".txt":  {},
	".adoc": {},
}

func looksLikeDocumentation(path string) bool {
	lower := strings.ToLower(path)
	if strings.Contains(lower, "readme") || strings.Contains(lower, "/docs/") || strings.HasPrefix(lower, "docs/") {
		return true
	}
	for ext := range documentationExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func matchesDocType(path string, docTypes []string) bool {
	lower := strings.ToLower(path)
	for _, t := range docTypes {
		if strings.HasSuffix(lower, "."+strings.ToLower(strings.TrimPrefix(t, "."))) {
			return true
		}
	}
	return false
}

// decodeContent returns content as UTF-8 text, falling back to a
// byte-for-byte Latin-1 reinterpretation when the raw bytes are not
// valid UTF-8 (so indexing never fails outright on a legacy-encoded
// source file).
func decodeContent(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
