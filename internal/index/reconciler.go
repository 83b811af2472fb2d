package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ccmemory/ccmemory/internal/scanner"
	"github.com/ccmemory/ccmemory/internal/watcher"
)

// Reconciler drives an Indexer from a HybridWatcher's debounced event
// stream, coalescing incremental filesystem changes into index updates
// (§4.7 watcher reconciler).
type Reconciler struct {
	ix          *Indexer
	projectID   string
	projectRoot string
	runtimeDir  string
	w           *watcher.HybridWatcher
	lock        *WatcherLock
}

// NewReconciler wires a Reconciler for one project root. runtimeDir
// (empty to disable locking, e.g. in tests) roots the per-project
// watcher lock file §4.7 requires: "only one watcher process per project
// is allowed."
func NewReconciler(ix *Indexer, projectID, projectRoot, runtimeDir string, opts watcher.Options) (*Reconciler, error) {
	w, err := watcher.NewHybridWatcher(opts)
	if err != nil {
		return nil, err
	}
	return &Reconciler{ix: ix, projectID: projectID, projectRoot: projectRoot, runtimeDir: runtimeDir, w: w}, nil
}

// Run starts the watcher and applies every coalesced batch of events until
// ctx is cancelled. A full reconciliation scan runs first so that changes
// made while the project was unwatched are captured (§4.7 startup sweep).
func (r *Reconciler) Run(ctx context.Context) error {
	if r.runtimeDir != "" {
		lock, ok, err := AcquireWatcherLock(r.runtimeDir, r.projectID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("watcher already running for project %s", r.projectID)
		}
		r.lock = lock
	}

	if _, err := r.ix.Run(ctx, Options{ProjectID: r.projectID, ProjectRoot: r.projectRoot}); err != nil {
		_ = r.lock.Release()
		return err
	}
	if err := r.w.Start(ctx, r.projectRoot); err != nil {
		_ = r.lock.Release()
		return err
	}

	for {
		select {
		case <-ctx.Done():
			err := r.w.Stop()
			_ = r.lock.Release()
			return err
		case batch, ok := <-r.w.Events():
			if !ok {
				_ = r.lock.Release()
				return nil
			}
			r.applyBatch(ctx, batch)
		case err, ok := <-r.w.Errors():
			if !ok {
				continue
			}
			slog.Warn("watcher error", slog.String("project_id", r.projectID), slog.String("error", err.Error()))
		}
	}
}

// applyBatch processes one coalesced batch of file events: gitignore and
// config changes trigger a full re-scan (any .gitignore edit invalidates
// every file's incremental state, per hashGitignoreTree), everything else
// is applied file by file.
func (r *Reconciler) applyBatch(ctx context.Context, batch []watcher.FileEvent) {
	needsFullScan := false
	for _, ev := range batch {
		if ev.Operation == watcher.OpGitignoreChange || ev.Operation == watcher.OpConfigChange {
			needsFullScan = true
			break
		}
	}
	if needsFullScan {
		if _, err := r.ix.Run(ctx, Options{ProjectID: r.projectID, ProjectRoot: r.projectRoot, Force: false}); err != nil {
			slog.Warn("reconciliation re-scan failed", slog.String("project_id", r.projectID), slog.String("error", err.Error()))
		}
		return
	}

	for _, ev := range batch {
		if ev.IsDir {
			continue
		}
		switch ev.Operation {
		case watcher.OpDelete:
			if _, err := r.ix.DeleteFile(ctx, r.projectID, ev.Path); err != nil {
				slog.Warn("delete file failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
			}
		case watcher.OpCreate, watcher.OpModify:
			if err := r.indexSingle(ctx, ev.Path); err != nil {
				slog.Warn("index file failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
			}
		case watcher.OpRename:
			if ev.OldPath != "" {
				if _, err := r.ix.DeleteFile(ctx, r.projectID, ev.OldPath); err != nil {
					slog.Warn("delete renamed-from file failed", slog.String("path", ev.OldPath), slog.String("error", err.Error()))
				}
			}
			if err := r.indexSingle(ctx, ev.Path); err != nil {
				slog.Warn("index renamed-to file failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
			}
		}
	}
}

// indexSingle re-scans a single file's metadata and indexes it if its
// content type is one the indexer tracks.
func (r *Reconciler) indexSingle(ctx context.Context, relPath string) error {
	info, err := r.buildFileInfo(relPath)
	if err != nil || info == nil {
		return err
	}
	if info.ContentType != scanner.ContentTypeCode && info.ContentType != scanner.ContentTypeMarkdown {
		return nil
	}
	gitignoreHash, err := hashGitignoreTree(r.projectRoot)
	if err != nil {
		return err
	}
	_, _, err = r.ix.indexOneIfChanged(ctx, r.projectID, r.projectRoot, info, gitignoreHash, false)
	return err
}

// buildFileInfo stats a single file and reconstructs the scanner.FileInfo
// the indexer expects, without running a full tree scan.
func (r *Reconciler) buildFileInfo(relPath string) (*scanner.FileInfo, error) {
	absPath := filepath.Join(r.projectRoot, relPath)
	stat, err := os.Stat(absPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if stat.IsDir() {
		return nil, nil
	}
	lang := scanner.DetectLanguage(relPath)
	return &scanner.FileInfo{
		Path:        relPath,
		AbsPath:     absPath,
		Size:        stat.Size(),
		ModTime:     stat.ModTime(),
		ContentType: scanner.DetectContentType(lang),
		Language:    lang,
	}, nil
}

// Stop stops the underlying watcher.
func (r *Reconciler) Stop() error {
	err := r.w.Stop()
	_ = r.lock.Release()
	return err
}
