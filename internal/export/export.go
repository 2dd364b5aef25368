package export

import (
	"context"

	cidxerrors "github.com/cidx-dev/cidx/internal/errors"
	"github.com/cidx-dev/cidx/internal/indexstore"
)

// AuditLog records exactly what an Export call did, for the caller to
// persist or display alongside the exported artifact.
type AuditLog struct {
	TotalFiles    int
	Included      int
	Excluded      int
	PatternsUsed  []string
	ExcludedFiles []string
}

// ContentReader reads the current on-disk content of an indexed file, so
// its BM25 document can be rebuilt in the destination store (the source
// store keeps only the tokenized, stop-word-filtered form, which can't be
// reconstituted verbatim).
type ContentReader func(absolutePath string) ([]byte, error)

// Exporter copies a filtered subset of one store's repository into
// another store, carrying across file rows, symbols, and BM25 content
// for every file that survives the filter.
type Exporter struct {
	source *indexstore.Store
}

// New returns an Exporter reading from source.
func New(source *indexstore.Store) *Exporter {
	return &Exporter{source: source}
}

// Export copies every live file of repositoryID that filter does not
// judge sensitive into dest, under a newly created repository rooted at
// repoRoot, and returns an audit log of what was included and excluded.
// Excluded files never reach dest: neither their row, their symbols, nor
// their BM25 content.
func (e *Exporter) Export(ctx context.Context, repositoryID, repoName, repoRoot string, dest *indexstore.Store, filter *Filter, read ContentReader) (AuditLog, error) {
	files, err := e.source.AllLiveFiles(ctx, repositoryID)
	if err != nil {
		return AuditLog{}, cidxerrors.NewKind(cidxerrors.KindIO, "cannot list files for export", err)
	}

	audit := AuditLog{
		TotalFiles:   len(files),
		PatternsUsed: filter.Patterns(),
	}

	destRepoID, err := dest.CreateRepository(ctx, repoRoot, repoName)
	if err != nil {
		return AuditLog{}, cidxerrors.NewKind(cidxerrors.KindIO, "cannot create destination repository", err)
	}

	for _, f := range files {
		if filter.IsSensitive(f.RelativePath) {
			audit.Excluded++
			audit.ExcludedFiles = append(audit.ExcludedFiles, f.RelativePath)
			continue
		}

		content, err := read(f.AbsolutePath)
		if err != nil {
			audit.Excluded++
			audit.ExcludedFiles = append(audit.ExcludedFiles, f.RelativePath)
			continue
		}

		outcome, err := dest.StoreFile(ctx, destRepoID, f.AbsolutePath, f.RelativePath, f.Language, f.Size, f.ContentHash, f.MtimeNs)
		if err != nil {
			return AuditLog{}, cidxerrors.NewKind(cidxerrors.KindIO, "cannot store exported file", err)
		}

		symbols, err := e.source.SymbolsByFile(ctx, f.ID)
		if err != nil {
			return AuditLog{}, cidxerrors.NewKind(cidxerrors.KindIO, "cannot read symbols for export", err)
		}
		for _, sym := range symbols {
			sym.ID = ""
			sym.FileID = outcome.FileID
			if _, err := dest.StoreSymbol(ctx, sym); err != nil {
				return AuditLog{}, cidxerrors.NewKind(cidxerrors.KindIO, "cannot store exported symbol", err)
			}
		}

		if err := dest.IndexContent(ctx, outcome.FileID, f.RelativePath, f.Language, string(content)); err != nil {
			return AuditLog{}, cidxerrors.NewKind(cidxerrors.KindIO, "cannot index exported content", err)
		}

		audit.Included++
	}

	return audit, nil
}
