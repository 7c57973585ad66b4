package knowledge

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// crawlThrottle bounds how often the same cwd can be re-crawled from a
// burst of attach/reattach calls.
const crawlThrottle = 10 * time.Second

// Snapshot is the lightweight result of one crawl: not an index, just
// enough to know the workspace was scanned and roughly how large it is.
type Snapshot struct {
	Root      string
	FileCount int
	ScannedAt time.Time
}

// Handle is the production broker.KnowledgeHandle. One Handle can track
// crawls for many projects simultaneously; each cwd gets its own throttle
// state and, once crawled, its own fsnotify watcher.
type Handle struct {
	mu       sync.Mutex
	projects map[string]*projectState
}

type projectState struct {
	mu          sync.Mutex
	lastAttempt time.Time
	running     bool
	snapshot    *Snapshot
	watcher     *fsnotify.Watcher
}

// New constructs an empty knowledge handle.
func New() *Handle {
	return &Handle{projects: make(map[string]*projectState)}
}

// SpawnProjectCrawl implements broker.KnowledgeHandle. It never blocks the
// caller: the crawl (and the watcher it starts) runs on a detached
// goroutine, throttled per cwd the same way the teacher's StartWarmup
// throttles repeated warm-up attempts.
func (h *Handle) SpawnProjectCrawl(cwd string) {
	if cwd == "" {
		return
	}

	h.mu.Lock()
	ps, ok := h.projects[cwd]
	if !ok {
		ps = &projectState{}
		h.projects[cwd] = ps
	}
	h.mu.Unlock()

	ps.mu.Lock()
	now := time.Now()
	if ps.running || (!ps.lastAttempt.IsZero() && now.Sub(ps.lastAttempt) < crawlThrottle) {
		ps.mu.Unlock()
		return
	}
	ps.lastAttempt = now
	ps.running = true
	ps.mu.Unlock()

	go h.runCrawl(cwd, ps)
}

// Snapshot returns the most recent crawl result for cwd, if any.
func (h *Handle) Snapshot(cwd string) (Snapshot, bool) {
	h.mu.Lock()
	ps, ok := h.projects[cwd]
	h.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.snapshot == nil {
		return Snapshot{}, false
	}
	return *ps.snapshot, true
}

// Close tears down every active watcher. Intended for process shutdown.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ps := range h.projects {
		ps.mu.Lock()
		if ps.watcher != nil {
			_ = ps.watcher.Close()
		}
		ps.mu.Unlock()
	}
}
