package app

import (
	"context"
	"log"
	"sync"
	"time"

	mcpserver "scenes/internal/mcp"
	"scenes/internal/service"
)

// sceneWatcher polls the scene index for changes written by another
// process (e.g. `scenes import` while the server runs) and for pending MCP
// approvals, so cached sessions never serve stale documents and operators
// see what is waiting on them.
type sceneWatcher struct {
	ctx     context.Context
	app     *App
	emitter service.EventEmitter
	every   time.Duration

	mu sync.Mutex
	// scene id → updated_at fingerprint
	seen map[string]string
	// Track emitted approval IDs to avoid re-emission
	emittedApprovals map[string]bool
	stopCh           chan struct{}
}

func newSceneWatcher(ctx context.Context, app *App) *sceneWatcher {
	return &sceneWatcher{
		ctx:              ctx,
		app:              app,
		emitter:          app.emitter,
		every:            2 * time.Second,
		emittedApprovals: map[string]bool{},
	}
}

// Start begins the polling loop.
func (w *sceneWatcher) Start() {
	w.stopCh = make(chan struct{})
	go w.pollLoop()
}

// Stop terminates the polling loop.
func (w *sceneWatcher) Stop() {
	if w.stopCh != nil {
		close(w.stopCh)
	}
}

func (w *sceneWatcher) pollLoop() {
	ticker := time.NewTicker(w.every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.check()
		case <-w.stopCh:
			return
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *sceneWatcher) check() {
	w.checkScenes()
	w.checkApprovals()
}

// checkScenes syncs every open scene whose index row changed or vanished
// since the last poll. The first poll only records fingerprints.
func (w *sceneWatcher) checkScenes() {
	records, err := w.app.Scenes.List()
	if err != nil {
		log.Printf("scene watcher: list: %v", err)
		return
	}
	current := make(map[string]string, len(records))
	for _, r := range records {
		current[r.ID] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}

	w.mu.Lock()
	prev := w.seen
	w.seen = current
	w.mu.Unlock()
	if prev == nil {
		return
	}

	changed := 0
	for _, id := range w.app.Scenes.OpenScenes() {
		if fp, ok := current[id]; ok && fp == prev[id] {
			continue
		}
		replaced, err := w.app.Scenes.Sync(w.ctx, id)
		if err != nil {
			log.Printf("scene watcher: sync %s: %v", id, err)
			continue
		}
		if replaced {
			changed++
		}
	}
	if changed > 0 || len(current) != len(prev) {
		w.emitter.Emit(w.ctx, "scenes:changed", map[string]int{"reloaded": changed, "scenes": len(current)})
	}
}

// ── Pending MCP approvals (cross-process IPC) ───────────────

func (w *sceneWatcher) checkApprovals() {
	pending, err := mcpserver.PendingApprovals(w.app.db.Conn())
	if err != nil {
		return
	}
	live := make(map[string]bool, len(pending))
	for _, p := range pending {
		live[p.ID] = true
		w.mu.Lock()
		alreadySent := w.emittedApprovals[p.ID]
		w.emittedApprovals[p.ID] = true
		w.mu.Unlock()
		if !alreadySent {
			log.Printf("scene watcher: approval required: %s (%s), run `scenes approve %s`", p.Description, p.Tool, p.ID)
			w.emitter.Emit(w.ctx, "mcp:approval-required", p)
		}
	}

	// Clean up tracking for resolved approvals
	w.mu.Lock()
	for id := range w.emittedApprovals {
		if !live[id] {
			delete(w.emittedApprovals, id)
		}
	}
	w.mu.Unlock()
}
