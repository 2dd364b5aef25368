package dispatcher

import (
	"context"
	"log/slog"
	"os"

	cidxerrors "github.com/cidx-dev/cidx/internal/errors"
	"github.com/cidx-dev/cidx/internal/notify"
	"github.com/cidx-dev/cidx/internal/pathutil"
	"github.com/cidx-dev/cidx/internal/watcher"
)

// HandleFileEvents applies one debounced batch of watcher events in
// order, indexing, moving, or deleting as appropriate. A per-event
// failure is logged and skipped rather than aborting the batch, so one
// unreadable file never blocks the rest of a reconciliation pass.
func (d *Dispatcher) HandleFileEvents(ctx context.Context, events []watcher.FileEvent) {
	for _, ev := range events {
		if err := d.handleFileEvent(ctx, ev); err != nil {
			slog.Warn("dispatcher_watch_event_failed",
				slog.String("path", ev.Path),
				slog.String("operation", ev.Operation.String()),
				slog.String("error", err.Error()))
		}
	}
}

func (d *Dispatcher) handleFileEvent(ctx context.Context, ev watcher.FileEvent) error {
	if ev.IsDir {
		return nil
	}

	switch ev.Operation {
	case watcher.OpCreate, watcher.OpModify:
		return d.IndexFile(ctx, d.resolver.Resolve(ev.Path))

	case watcher.OpDelete:
		return d.deleteFile(ctx, ev.Path)

	case watcher.OpRename:
		if ev.OldPath == "" {
			// fsnotify reports a rename on the source path only; the
			// paired create on the destination arrives as its own event.
			return d.deleteFile(ctx, ev.Path)
		}
		return d.moveFile(ctx, ev.OldPath, ev.Path)

	case watcher.OpGitignoreChange, watcher.OpConfigChange:
		// Full reconciliation (re-walking the tree against the new
		// ignore/config rules) is not implemented; the next explicit
		// reindex picks up newly-included or newly-excluded files.
		slog.Info("dispatcher_watch_reconciliation_skipped",
			slog.String("path", ev.Path),
			slog.String("operation", ev.Operation.String()))
		return nil

	default:
		return nil
	}
}

func (d *Dispatcher) deleteFile(ctx context.Context, relPath string) error {
	if err := d.store.MarkFileDeleted(ctx, d.repositoryID, relPath); err != nil {
		return err
	}
	d.mu.Lock()
	delete(d.fileMeta, relPath)
	d.mu.Unlock()

	if d.cache != nil {
		d.cache.InvalidateFileQueries(relPath)
	}
	if d.notifier != nil {
		d.notifier.Notify(notify.EventFileDeleted, relPath, nil, "", "dispatcher")
	}
	return nil
}

func (d *Dispatcher) moveFile(ctx context.Context, oldRelPath, newRelPath string) error {
	newAbsolute := d.resolver.Resolve(newRelPath)
	raw, err := os.ReadFile(newAbsolute)
	if err != nil {
		return cidxerrors.NewKind(cidxerrors.KindIO, "cannot read moved file", err)
	}
	newHash := pathutil.ContentHashBytes([]byte(decodeContent(raw)))

	if err := d.store.MoveFile(ctx, d.repositoryID, oldRelPath, newRelPath, newAbsolute, newHash); err != nil {
		return err
	}

	d.mu.Lock()
	delete(d.fileMeta, oldRelPath)
	d.mu.Unlock()

	if d.cache != nil {
		d.cache.InvalidateFileQueries(oldRelPath)
		d.cache.InvalidateFileQueries(newRelPath)
	}
	if d.notifier != nil {
		d.notifier.Notify(notify.EventFileMoved, newRelPath, map[string]any{"old_path": oldRelPath}, "", "dispatcher")
	}
	return nil
}
