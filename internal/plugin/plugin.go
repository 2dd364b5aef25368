// Package plugin defines the contract every per-language handler
// implements, plus the registry/factory and router that select and
// instantiate handlers on the dispatcher's behalf.
package plugin

import (
	"context"
)

// MatchType classifies how a SearchResult was produced.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchFuzzy    MatchType = "fuzzy"
	MatchSemantic MatchType = "semantic"
	MatchSymbol   MatchType = "symbol"
)

// SearchResult is one hit returned by a plugin's Search.
type SearchResult struct {
	FilePath  string
	Line      int
	Column    int
	Snippet   string
	Score     float64 // in [0,1]
	MatchType MatchType
	Context   string
}

// SymbolDef is a plugin's view of a named symbol's definition.
type SymbolDef struct {
	Name          string
	Kind          string
	FilePath      string
	LineStart     int
	LineEnd       int
	Signature     string
	Documentation string
	Language      string
}

// Reference is a use-site of a symbol, as reported by find_references.
type Reference struct {
	FilePath string
	Line     int
	Column   int
	Kind     string
}

// Shard is a plugin's per-file output: extracted symbols plus
// language/metadata, handed back to the dispatcher for persistence.
type Shard struct {
	Symbols  []ShardSymbol
	Language string
	Metadata map[string]string
}

// ShardSymbol is one symbol within a Shard, in the shape the index
// store's StoreSymbol call expects.
type ShardSymbol struct {
	Name          string
	Kind          string
	LineStart     int
	LineEnd       int
	ColStart      int
	ColEnd        int
	Signature     string
	Documentation string
	Scope         string
	Visibility    string
}

// SearchOptions configures a plugin's Search call.
type SearchOptions struct {
	Semantic bool
	Limit    int
}

// Plugin is the contract every per-language handler satisfies. Plugins
// are pure with respect to the index store: they may write through the
// store handle given at construction but hold no cross-request mutable
// state of their own.
type Plugin interface {
	// Language is the canonical, lowercased language name (e.g. "go").
	Language() string

	// Supports reports whether this plugin can handle path.
	Supports(path string) bool

	// IndexFile parses content and returns the symbols/metadata found.
	IndexFile(ctx context.Context, path string, content []byte) (Shard, error)

	// GetDefinition returns the definition of a named symbol, or nil.
	GetDefinition(ctx context.Context, symbolName string) (*SymbolDef, error)

	// FindReferences returns all known use-sites of a named symbol.
	FindReferences(ctx context.Context, symbolName string) ([]Reference, error)

	// Search executes a language-specific query.
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}

// Capability describes a plugin's advertised metadata, used by the
// router for scoring and by the dispatcher's plugins() surface.
type Capability struct {
	Name           string
	Version        string
	Description    string
	Priority       int // 0..100
	FileExtensions []string
	Metadata       map[string]string
}

// Factory constructs a Plugin instance for a language on first use.
type Factory func(ctx context.Context) (Plugin, error)
