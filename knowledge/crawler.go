package knowledge

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"rockerboo/lsp-broker/logger"
)

func (h *Handle) runCrawl(cwd string, ps *projectState) {
	defer func() {
		ps.mu.Lock()
		ps.running = false
		ps.mu.Unlock()
	}()

	count := 0
	err := filepath.WalkDir(cwd, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if shouldSkipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		logger.Warn("knowledge: crawl failed for " + cwd + ": " + err.Error())
		return
	}

	ps.mu.Lock()
	ps.snapshot = &Snapshot{Root: cwd, FileCount: count, ScannedAt: time.Now()}
	alreadyWatching := ps.watcher != nil
	ps.mu.Unlock()

	logger.Info("knowledge: crawled " + cwd)

	if !alreadyWatching {
		h.startWatch(cwd, ps)
	}
}

func shouldSkipDir(name string) bool {
	switch name {
	case ".git", "node_modules", "vendor", ".cache":
		return true
	}
	return false
}

// startWatch installs an fsnotify watcher over cwd's directory tree and
// re-triggers a throttled crawl whenever it reports a write or create.
func (h *Handle) startWatch(cwd string, ps *projectState) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("knowledge: watcher init failed for " + cwd + ": " + err.Error())
		return
	}

	_ = filepath.WalkDir(cwd, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if shouldSkipDir(d.Name()) {
			return fs.SkipDir
		}
		_ = watcher.Add(path)
		return nil
	})

	ps.mu.Lock()
	ps.watcher = watcher
	ps.mu.Unlock()

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 && !strings.HasPrefix(filepath.Base(ev.Name), ".") {
					h.SpawnProjectCrawl(cwd)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("knowledge: watch error for " + cwd + ": " + err.Error())
			}
		}
	}()
}
