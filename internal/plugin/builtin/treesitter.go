// Package builtin provides one reference Plugin implementation,
// wrapping the tree-sitter-backed chunker to prove the plugin contract
// end to end. It is not a complete per-language parser matrix — only
// the languages internal/chunk already registers are supported; a full
// parser suite remains an external plugin's responsibility.
package builtin

import (
	"context"
	"sort"
	"strings"

	"github.com/cidx-dev/cidx/internal/chunk"
	cidxerrors "github.com/cidx-dev/cidx/internal/errors"
	"github.com/cidx-dev/cidx/internal/indexstore"
	"github.com/cidx-dev/cidx/internal/plugin"
)

// TreeSitterPlugin indexes and searches one language using tree-sitter
// symbol extraction, falling back to the shared BM25 index for Search.
// It holds a handle to the index store (for Search/GetDefinition/
// FindReferences) but otherwise keeps no cross-request mutable state,
// as the plugin contract requires.
type TreeSitterPlugin struct {
	language string
	chunker  *chunk.CodeChunker
	store    *indexstore.Store
}

var _ plugin.Plugin = (*TreeSitterPlugin)(nil)

// New returns a plugin for language, backed by store for query
// operations. language must be one internal/chunk's registry supports
// (go, javascript, typescript, python, and friends — see
// chunk.DefaultRegistry).
func New(language string, store *indexstore.Store) *TreeSitterPlugin {
	return &TreeSitterPlugin{
		language: language,
		chunker:  chunk.NewCodeChunker(),
		store:    store,
	}
}

// Close releases the underlying tree-sitter parser.
func (p *TreeSitterPlugin) Close() {
	p.chunker.Close()
}

func (p *TreeSitterPlugin) Language() string { return p.language }

func (p *TreeSitterPlugin) Supports(path string) bool {
	for _, ext := range p.chunker.SupportedExtensions() {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// IndexFile parses content with tree-sitter and reports the extracted
// symbols as a Shard; persistence is the dispatcher's job, not the
// plugin's.
func (p *TreeSitterPlugin) IndexFile(ctx context.Context, path string, content []byte) (plugin.Shard, error) {
	chunks, err := p.chunker.Chunk(ctx, &chunk.FileInput{Path: path, Content: content, Language: p.language})
	if err != nil {
		return plugin.Shard{}, cidxerrors.NewKind(cidxerrors.KindParse, "tree-sitter parse failed for "+path, err)
	}

	var symbols []plugin.ShardSymbol
	for _, c := range chunks {
		for _, sym := range c.Symbols {
			symbols = append(symbols, plugin.ShardSymbol{
				Name:          sym.Name,
				Kind:          string(sym.Type),
				LineStart:     sym.StartLine,
				LineEnd:       sym.EndLine,
				Signature:     sym.Signature,
				Documentation: sym.DocComment,
			})
		}
	}
	return plugin.Shard{Symbols: symbols, Language: p.language}, nil
}

// GetDefinition looks up a symbol by exact name within this language.
func (p *TreeSitterPlugin) GetDefinition(ctx context.Context, symbolName string) (*plugin.SymbolDef, error) {
	rows, err := p.store.GetSymbol(ctx, symbolName, p.language, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	sym := rows[0]
	file, err := p.fileRelPath(ctx, sym.FileID)
	if err != nil {
		return nil, err
	}
	return &plugin.SymbolDef{
		Name:          sym.Name,
		Kind:          string(sym.Kind),
		FilePath:      file,
		LineStart:     sym.LineStart,
		LineEnd:       sym.LineEnd,
		Signature:     sym.Signature,
		Documentation: sym.Documentation,
		Language:      p.language,
	}, nil
}

// FindReferences returns every known reference to symbolName, ordered
// by (file, line).
func (p *TreeSitterPlugin) FindReferences(ctx context.Context, symbolName string) ([]plugin.Reference, error) {
	rows, err := p.store.GetSymbol(ctx, symbolName, p.language, 50)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	var refs []plugin.Reference
	for _, sym := range rows {
		file, err := p.fileRelPath(ctx, sym.FileID)
		if err != nil {
			continue
		}
		refs = append(refs, plugin.Reference{FilePath: file, Line: sym.LineStart, Kind: "definition"})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].FilePath != refs[j].FilePath {
			return refs[i].FilePath < refs[j].FilePath
		}
		return refs[i].Line < refs[j].Line
	})
	return refs, nil
}

// Search delegates to the shared BM25 index, restricted conceptually to
// this plugin's language (the index does not filter by language today;
// callers that need strict isolation should post-filter by path).
func (p *TreeSitterPlugin) Search(ctx context.Context, query string, opts plugin.SearchOptions) ([]plugin.SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	hits, err := p.store.SearchBM25(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	results := make([]plugin.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, plugin.SearchResult{
			FilePath:  h.FilePath,
			Snippet:   h.Snippet,
			Score:     normalizeRank(h.Rank),
			MatchType: plugin.MatchFuzzy,
		})
	}
	return results, nil
}

func (p *TreeSitterPlugin) fileRelPath(ctx context.Context, fileID string) (string, error) {
	// Symbols only carry a file_id; resolving it to a path is a single
	// indexed lookup the store already supports via AllLiveFiles in
	// small repos, but a point lookup keeps this plugin O(1) per call.
	return p.store.FilePathByID(ctx, fileID)
}

func normalizeRank(rank float64) float64 {
	if rank <= 0 {
		return 0
	}
	score := rank / (rank + 1)
	if score > 1 {
		return 1
	}
	return score
}
