package indexstore

import (
	"github.com/gofrs/flock"

	cidxerrors "github.com/cidx-dev/cidx/internal/errors"
)

// repoLock is a cross-process advisory lock guarding single-writer
// access to one repository's index directory. Store's internal
// per-path mutexes already serialize concurrent writers within one
// process; repoLock guards the case spec.md's concurrency model also
// names — a second cidx process (a daemon plus a one-shot CLI
// invocation, or two daemons pointed at the same root) opening the
// same index at once.
type repoLock struct {
	fl *flock.Flock
}

// acquireRepoLock takes a non-blocking exclusive lock on a ".lock" file
// beside the index database at dbPath. Returns a KindIO error if
// another process already holds it. dbPath == "" (in-memory databases,
// used only in tests) skips locking entirely.
func acquireRepoLock(dbPath string) (*repoLock, error) {
	if dbPath == "" {
		return nil, nil
	}

	fl := flock.New(dbPath + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, cidxerrors.NewKind(cidxerrors.KindIO, "cannot acquire repository index lock", err)
	}
	if !locked {
		return nil, cidxerrors.NewKind(cidxerrors.KindIO, "index at "+dbPath+" is locked by another process", nil)
	}
	return &repoLock{fl: fl}, nil
}

// release drops the lock. Safe to call on a nil receiver (in-memory
// databases never acquired one).
func (l *repoLock) release() error {
	if l == nil {
		return nil
	}
	return l.fl.Unlock()
}
