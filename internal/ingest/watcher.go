package ingest

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // import files already present before watching
	Debounce    time.Duration // coalesce create/write bursts of one file
	SkipHidden  bool
}

// Watch imports every supported image written under cfg.Roots into the
// session until ctx is done. A file is imported once per debounce window, so
// a camera that writes in several chunks yields one roll.
func (im *Importer) Watch(ctx context.Context, sessionID uuid.UUID, cfg WatchConfig, results chan<- FileResult) error {
	if len(cfg.Roots) == 0 {
		return errors.New("no roots provided")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, root := range cfg.Roots {
		if err := addTree(w, root, cfg.SkipHidden); err != nil {
			return err
		}
	}

	emit := func(r FileResult) {
		if results == nil {
			return
		}
		select {
		case results <- r:
		case <-ctx.Done():
		}
	}

	if cfg.InitialScan {
		for _, root := range cfg.Roots {
			rs, _, err := im.ImportDirectory(ctx, sessionID, root, cfg.SkipHidden)
			if err != nil {
				return err
			}
			for _, r := range rs {
				emit(r)
			}
		}
	}

	var (
		mu      sync.Mutex
		pending = map[string]*time.Timer{}
		wg      sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			if t.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	importLater := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok && t.Stop() {
			t.Reset(cfg.Debounce)
			return
		}
		wg.Add(1)
		var t *time.Timer
		t = time.AfterFunc(cfg.Debounce, func() {
			defer wg.Done()
			mu.Lock()
			if pending[path] == t {
				delete(pending, path)
			}
			mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			res, err := im.ImportFile(ctx, sessionID, path)
			if err != nil {
				res.Err = err.Error()
				im.logger.Warn("import failed", "path", path, "err", err)
			}
			emit(res)
		})
		pending[path] = t
	}

	im.logger.Info("watching for label photos", "roots", cfg.Roots, "session_id", sessionID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if e.Has(fsnotify.Create) {
				// a new sub-directory starts being watched; errors mean it was a file
				_ = addTree(w, e.Name, cfg.SkipHidden)
			}
			if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) {
				continue
			}
			if !Supported(e.Name) || (cfg.SkipHidden && isHidden(e.Name)) {
				continue
			}
			importLater(e.Name)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Error("watcher error", "err", err)
		}
	}
}

func addTree(w *fsnotify.Watcher, root string, skipHidden bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if skipHidden && path != root && isHidden(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
