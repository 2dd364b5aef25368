// Package pathutil normalizes paths relative to a repository root and
// computes stable content hashes used to detect unchanged files.
package pathutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	cidxerrors "github.com/cidx-dev/cidx/internal/errors"
)

// Resolver normalizes paths under a single repository root.
type Resolver struct {
	root string
}

// NewResolver returns a Resolver rooted at root. root is cleaned and
// made absolute at construction time.
func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, cidxerrors.NewKind(cidxerrors.KindInvalidInput, "cannot resolve repository root", err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root returns the repository root this resolver was built for.
func (r *Resolver) Root() string {
	return r.root
}

// Normalize converts an absolute path to one relative to the repo root,
// using forward slashes regardless of host OS. Returns OutsidePath
// (KindInvalidInput) if absPath does not live under the root.
func (r *Resolver) Normalize(absPath string) (string, error) {
	abs, err := filepath.Abs(absPath)
	if err != nil {
		return "", cidxerrors.NewKind(cidxerrors.KindInvalidInput, "cannot resolve path", err)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", cidxerrors.NewKind(cidxerrors.KindInvalidInput, "path outside repository root", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", cidxerrors.NewKind(cidxerrors.KindInvalidInput,
			fmt.Sprintf("path %q is outside repository root %q", absPath, r.root), nil)
	}
	return filepath.ToSlash(rel), nil
}

// Resolve converts a repo-relative path (forward-slash form) back to an
// absolute path under the root. Idempotent with Normalize.
func (r *Resolver) Resolve(relPath string) string {
	return filepath.Join(r.root, filepath.FromSlash(relPath))
}

// ContentHash streams the file at absPath and returns the hex-encoded
// SHA-256 digest of its bytes.
func ContentHash(absPath string) (string, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", cidxerrors.NewKind(cidxerrors.KindIO, "cannot open file for hashing", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", cidxerrors.NewKind(cidxerrors.KindIO, "cannot read file for hashing", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentHashBytes hashes an in-memory byte slice, for callers that have
// already read the file (e.g. after a latin-1 fallback decode).
func ContentHashBytes(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}
