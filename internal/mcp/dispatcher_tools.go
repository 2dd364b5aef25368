package mcp

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cidx-dev/cidx/internal/aggregator"
	"github.com/cidx-dev/cidx/internal/dispatcher"
)

// SetDispatcher wires a language-aware Dispatcher into the server and
// registers the tool surface it powers: symbol, code_search,
// search_documentation, reindex, status, plugins. Additive — it never
// touches the engine-backed tools registered in registerTools, so
// existing callers of the search/search_code/search_docs/index_status
// tools are unaffected whether or not a dispatcher is present.
func (s *Server) SetDispatcher(d *dispatcher.Dispatcher) {
	s.mu.Lock()
	s.dispatcher = d
	s.mu.Unlock()

	if d == nil {
		return
	}
	s.registerDispatcherTools()
}

// SymbolInput defines the input schema for the symbol tool.
type SymbolInput struct {
	Name string `json:"name" jsonschema:"the exact symbol name to look up"`
}

// SymbolOutput defines the output schema for the symbol tool.
type SymbolOutput struct {
	Found      bool             `json:"found"`
	Definition *SymbolDefOutput `json:"definition,omitempty"`
}

// SymbolDefOutput mirrors plugin.SymbolDef in MCP wire form.
type SymbolDefOutput struct {
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	FilePath      string `json:"file_path"`
	LineStart     int    `json:"line_start"`
	LineEnd       int    `json:"line_end"`
	Signature     string `json:"signature,omitempty"`
	Documentation string `json:"documentation,omitempty"`
	Language      string `json:"language,omitempty"`
}

// CodeSearchInput defines the input schema for the code_search tool.
type CodeSearchInput struct {
	Query    string `json:"query" jsonschema:"the search query to execute"`
	Semantic bool   `json:"semantic,omitempty" jsonschema:"force semantic/documentation-aware ranking"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// AggregatedResultOutput is one fused, ranked result in MCP wire form.
type AggregatedResultOutput struct {
	FilePath   string   `json:"file_path"`
	Line       int      `json:"line"`
	Snippet    string   `json:"snippet"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
	Rank       float64  `json:"rank"`
	Contexts   []string `json:"contexts,omitempty"`
}

// CodeSearchOutput defines the output schema for the code_search tool.
type CodeSearchOutput struct {
	Results []AggregatedResultOutput `json:"results"`
}

// SearchDocumentationInput defines the input schema for the
// search_documentation tool.
type SearchDocumentationInput struct {
	Topic    string   `json:"topic" jsonschema:"the documentation topic or question"`
	DocTypes []string `json:"doc_types,omitempty" jsonschema:"restrict to these documentation file extensions, e.g. md, rst"`
	Limit    int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchDocumentationOutput defines the output schema for the
// search_documentation tool.
type SearchDocumentationOutput struct {
	Results []AggregatedResultOutput `json:"results"`
}

// ReindexInput defines the input schema for the reindex tool.
type ReindexInput struct {
	Path string `json:"path,omitempty" jsonschema:"a single file to reindex; omit to walk the whole repository"`
}

// ReindexOutput defines the output schema for the reindex tool.
type ReindexOutput struct {
	FilesIndexed int      `json:"files_indexed"`
	FilesFailed  int      `json:"files_failed"`
	Errors       []string `json:"errors,omitempty"`
}

// StatusInput defines the input schema for the status tool (no parameters).
type StatusInput struct{}

// StatusOutput defines the output schema for the status tool.
type StatusOutput struct {
	RepositoryID string               `json:"repository_id"`
	IndexedFiles int                  `json:"indexed_files"`
	Symbols      int                  `json:"symbols"`
	BM25Entries  int                  `json:"bm25_entries"`
	Languages    map[string]int       `json:"languages"`
	Plugins      []PluginStatusOutput `json:"plugins"`
}

// PluginsInput defines the input schema for the plugins tool (no parameters).
type PluginsInput struct{}

// PluginsOutput defines the output schema for the plugins tool.
type PluginsOutput struct {
	Plugins []PluginStatusOutput `json:"plugins"`
}

// PluginStatusOutput reports one language plugin's load state and
// recent performance.
type PluginStatusOutput struct {
	Language         string `json:"language"`
	Loaded           bool   `json:"loaded"`
	Unavailable      bool   `json:"unavailable"`
	AverageLatencyMs int64  `json:"average_latency_ms"`
	UsageCount       int    `json:"usage_count"`
}

func (s *Server) registerDispatcherTools() {
	s.logger.Debug("Registering dispatcher-backed MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "symbol",
		Description: "Looks up the definition of a named symbol across every loaded language plugin, merging and ranking agreement when more than one plugin reports it.",
	}, s.mcpSymbolHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "code_search",
		Description: "Fans a query out across every loaded language plugin and the BM25 full-text index, then fuses and ranks the combined hits. Falls back to BM25-only when no language plugins are loaded.",
	}, s.mcpCodeSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_documentation",
		Description: "Searches documentation files for a topic, expanding the query with known synonyms and boosting documentation files ahead of code in the results.",
	}, s.mcpSearchDocumentationHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reindex",
		Description: "Re-parses one file, or every file in the repository when no path is given, and refreshes the symbol/full-text index.",
	}, s.mcpReindexHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "status",
		Description: "Reports index size, per-language file/symbol counts, and plugin load state.",
	}, s.mcpStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "plugins",
		Description: "Lists every registered language plugin, whether it is currently loaded, and its recent average latency.",
	}, s.mcpPluginsHandler)

	s.logger.Info("dispatcher tools registered", slog.Int("count", 6))
}

func (s *Server) mcpSymbolHandler(ctx context.Context, _ *mcp.CallToolRequest, input SymbolInput) (
	*mcp.CallToolResult,
	SymbolOutput,
	error,
) {
	if input.Name == "" {
		return nil, SymbolOutput{}, NewInvalidParamsError("name parameter is required")
	}

	def, err := s.dispatcher.Lookup(ctx, input.Name)
	if err != nil {
		s.logger.Error("symbol lookup failed", slog.String("name", input.Name), slog.String("error", err.Error()))
		return nil, SymbolOutput{}, MapError(err)
	}
	if def == nil {
		return nil, SymbolOutput{Found: false}, nil
	}

	return nil, SymbolOutput{
		Found: true,
		Definition: &SymbolDefOutput{
			Name:          def.Name,
			Kind:          def.Kind,
			FilePath:      def.FilePath,
			LineStart:     def.LineStart,
			LineEnd:       def.LineEnd,
			Signature:     def.Signature,
			Documentation: def.Documentation,
			Language:      def.Language,
		},
	}, nil
}

func (s *Server) mcpCodeSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input CodeSearchInput) (
	*mcp.CallToolResult,
	CodeSearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, CodeSearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := s.dispatcher.Search(ctx, input.Query, input.Semantic, limit)
	if err != nil {
		s.logger.Error("code_search failed", slog.String("query", input.Query), slog.String("error", err.Error()))
		return nil, CodeSearchOutput{}, MapError(err)
	}

	return nil, CodeSearchOutput{Results: toAggregatedOutputs(results)}, nil
}

func (s *Server) mcpSearchDocumentationHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchDocumentationInput) (
	*mcp.CallToolResult,
	SearchDocumentationOutput,
	error,
) {
	if input.Topic == "" {
		return nil, SearchDocumentationOutput{}, NewInvalidParamsError("topic parameter is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := s.dispatcher.SearchDocumentation(ctx, input.Topic, input.DocTypes, limit)
	if err != nil {
		s.logger.Error("search_documentation failed", slog.String("topic", input.Topic), slog.String("error", err.Error()))
		return nil, SearchDocumentationOutput{}, MapError(err)
	}

	return nil, SearchDocumentationOutput{Results: toAggregatedOutputs(results)}, nil
}

func (s *Server) mcpReindexHandler(ctx context.Context, _ *mcp.CallToolRequest, input ReindexInput) (
	*mcp.CallToolResult,
	ReindexOutput,
	error,
) {
	if input.Path != "" {
		abs := input.Path
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(s.dispatcher.Resolver().Root(), abs)
		}
		if err := s.dispatcher.IndexFile(ctx, abs); err != nil {
			s.logger.Error("reindex failed", slog.String("path", input.Path), slog.String("error", err.Error()))
			return nil, ReindexOutput{FilesFailed: 1, Errors: []string{err.Error()}}, MapError(err)
		}
		return nil, ReindexOutput{FilesIndexed: 1}, nil
	}

	out := ReindexOutput{}
	root := s.dispatcher.Resolver().Root()
	err := walkIndexable(root, func(absPath string) {
		if ierr := s.dispatcher.IndexFile(ctx, absPath); ierr != nil {
			out.FilesFailed++
			out.Errors = append(out.Errors, absPath+": "+ierr.Error())
			s.logger.Warn("reindex skipped file", slog.String("path", absPath), slog.String("error", ierr.Error()))
			return
		}
		out.FilesIndexed++
	})
	if err != nil {
		s.logger.Error("reindex walk failed", slog.String("root", root), slog.String("error", err.Error()))
		return nil, out, MapError(err)
	}

	s.logger.Info("reindex completed",
		slog.Int("files_indexed", out.FilesIndexed),
		slog.Int("files_failed", out.FilesFailed))
	return nil, out, nil
}

func (s *Server) mcpStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	stats, err := s.dispatcher.Store().GetStats(ctx)
	if err != nil {
		s.logger.Error("status failed", slog.String("error", err.Error()))
		return nil, StatusOutput{}, MapError(err)
	}

	return nil, StatusOutput{
		RepositoryID: s.dispatcher.RepositoryID(),
		IndexedFiles: stats.FileCount,
		Symbols:      stats.SymbolCount,
		BM25Entries:  stats.BM25Count,
		Languages:    stats.Languages,
		Plugins:      s.pluginStatuses(),
	}, nil
}

func (s *Server) mcpPluginsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ PluginsInput) (
	*mcp.CallToolResult,
	PluginsOutput,
	error,
) {
	return nil, PluginsOutput{Plugins: s.pluginStatuses()}, nil
}

func (s *Server) pluginStatuses() []PluginStatusOutput {
	registry := s.dispatcher.Registry()
	router := s.dispatcher.Router()
	loaded := registry.Loaded()

	languages := registry.Languages()
	out := make([]PluginStatusOutput, 0, len(languages))
	for _, lang := range languages {
		_, isLoaded := loaded[lang]
		avg, usage := router.Stats(lang)
		out = append(out, PluginStatusOutput{
			Language:         lang,
			Loaded:           isLoaded,
			Unavailable:      registry.Unavailable(lang),
			AverageLatencyMs: avg.Milliseconds(),
			UsageCount:       usage,
		})
	}
	return out
}

func toAggregatedOutputs(results []aggregator.Aggregated) []AggregatedResultOutput {
	out := make([]AggregatedResultOutput, 0, len(results))
	for _, r := range results {
		out = append(out, AggregatedResultOutput{
			FilePath:   r.FilePath,
			Line:       r.Line,
			Snippet:    r.Primary.Snippet,
			Sources:    r.Sources,
			Confidence: r.Confidence,
			Rank:       r.Rank,
			Contexts:   r.Contexts,
		})
	}
	return out
}

// walkIndexable visits every regular file under root that isn't inside
// a VCS or cidx metadata directory, in lexical order.
func walkIndexable(root string, visit func(absPath string)) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			switch info.Name() {
			case ".git", ".hg", ".svn", ".cidx", "node_modules", "vendor":
				return filepath.SkipDir
			}
			return nil
		}
		visit(path)
		return nil
	})
}
