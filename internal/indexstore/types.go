// Package indexstore is the persistent schema for repositories, files,
// symbols, symbol references, and BM25 full-text content. It is the
// single source of truth the dispatcher and watcher read and write
// through; nothing else in the module touches the database directly.
package indexstore

import "time"

// SymbolKind enumerates the kinds of symbols a plugin may report.
type SymbolKind string

const (
	SymbolFunction    SymbolKind = "function"
	SymbolMethod      SymbolKind = "method"
	SymbolClass       SymbolKind = "class"
	SymbolInterface   SymbolKind = "interface"
	SymbolEnum        SymbolKind = "enum"
	SymbolStruct      SymbolKind = "struct"
	SymbolVariable    SymbolKind = "variable"
	SymbolConstant    SymbolKind = "constant"
	SymbolProperty    SymbolKind = "property"
	SymbolParameter   SymbolKind = "parameter"
	SymbolModule      SymbolKind = "module"
	SymbolNamespace   SymbolKind = "namespace"
	SymbolTrait       SymbolKind = "trait"
	SymbolType        SymbolKind = "type"
	SymbolField       SymbolKind = "field"
	SymbolConstructor SymbolKind = "constructor"
	SymbolDecorator   SymbolKind = "decorator"
	SymbolImport      SymbolKind = "import"
	SymbolExport      SymbolKind = "export"
)

// Repository is one watched working copy.
type Repository struct {
	ID        string
	RootPath  string
	Name      string
	CreatedAt time.Time
}

// File is a single tracked file within a Repository.
type File struct {
	ID           string
	RepositoryID string
	AbsolutePath string
	RelativePath string
	Language     string
	Size         int64
	ContentHash  string
	MtimeNs      int64
	IndexedAt    time.Time
	DeletedAt    *time.Time
	Metadata     map[string]string
}

// Symbol is a named code element extracted from a File.
type Symbol struct {
	ID            string
	FileID        string
	Name          string
	Kind          SymbolKind
	LineStart     int
	LineEnd       int
	ColStart      int
	ColEnd        int
	Signature     string
	Documentation string
	Scope         string
	Visibility    string
	Metadata      map[string]string
}

// SymbolReference is a use-site of a Symbol.
type SymbolReference struct {
	ID            string
	SymbolID      string
	FileID        string
	Line          int
	Column        int
	ReferenceKind string
}

// BM25Hit is one full-text search match.
type BM25Hit struct {
	FilePath string
	Snippet  string
	Rank     float64
}

// Stats summarizes the current state of an index.
type Stats struct {
	FileCount   int
	SymbolCount int
	BM25Count   int
	Languages   map[string]int
}

// StoreFileOutcome reports whether a store_file call changed anything,
// used by the dispatcher to skip re-parsing unchanged files.
type StoreFileOutcome struct {
	FileID    string
	Unchanged bool
}
