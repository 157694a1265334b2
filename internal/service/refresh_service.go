package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"scenes/internal/binding"
	"scenes/internal/domain"
	"scenes/internal/watch"
)

// ─────────────────────────────────────────────────────────────
// Refresh Service: scheduled, notified and file-driven passes
// ─────────────────────────────────────────────────────────────

var (
	ErrRefreshRunning = errors.New("a refresh of this scene is already running")
	ErrNotSubscribed  = errors.New("scene does not listen on this field")
)

// RefreshJob re-evaluates one scene against one entity on a cron schedule.
type RefreshJob struct {
	Scene    string          `json:"scene" toml:"scene"`
	Entity   domain.EntityID `json:"entity" toml:"entity"`
	Schedule string          `json:"schedule" toml:"schedule"`
}

// RefreshService triggers binding passes from outside the engine: cron
// schedules, data-change notifications and scene documents edited on disk.
type RefreshService struct {
	scenes      *SceneService
	emitter     EventEmitter
	runningJobs runningJobsGuard
	timeout     time.Duration

	mu        sync.Mutex
	cronSched *cron.Cron
	watcher   *watch.DocumentWatcher
}

// NewRefreshService creates a RefreshService ready for use.
func NewRefreshService(scenes *SceneService, emitter EventEmitter) *RefreshService {
	return &RefreshService{
		scenes:  scenes,
		emitter: emitter,
		timeout: time.Minute,
	}
}

// ── Run ────────────────────────────────────────────────────

// RunNow evaluates sceneID against entity unless a pass for the scene is
// already running.
func (s *RefreshService) RunNow(ctx context.Context, sceneID string, entity domain.EntityID) (*binding.Snapshot, error) {
	if !s.runningJobs.TryLock(sceneID) {
		return nil, fmt.Errorf("scene %s: %w", sceneID, ErrRefreshRunning)
	}
	defer s.runningJobs.Unlock(sceneID)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.scenes.Evaluate(runCtx, sceneID, entity)
}

// Notify tells sceneID that field changed on its current entity. Scenes
// that declare notification channels ignore fields outside them.
func (s *RefreshService) Notify(ctx context.Context, sceneID, field string) (*binding.Snapshot, error) {
	sess, err := s.scenes.Open(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if ch := sess.Editor.Header().NotificationChannels; len(ch) > 0 && !slices.Contains(ch, field) {
		return nil, fmt.Errorf("%s on scene %s: %w", field, sceneID, ErrNotSubscribed)
	}
	if !s.runningJobs.TryLock(sceneID) {
		return nil, fmt.Errorf("scene %s: %w", sceneID, ErrRefreshRunning)
	}
	defer s.runningJobs.Unlock(sceneID)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.scenes.Notify(runCtx, sceneID, []string{field})
}

// Broadcast notifies every open, evaluated scene that listens on field and
// returns the ids it refreshed.
func (s *RefreshService) Broadcast(ctx context.Context, field string) []string {
	var refreshed []string
	for _, id := range s.scenes.OpenScenes() {
		sess, err := s.scenes.Open(ctx, id)
		if err != nil {
			continue
		}
		if _, ok := sess.Target(); !ok {
			continue
		}
		if _, err := s.Notify(ctx, id, field); err != nil {
			if !errors.Is(err, ErrNotSubscribed) {
				log.Printf("refresh notify: scene %s: %v", id, err)
			}
			continue
		}
		refreshed = append(refreshed, id)
	}
	return refreshed
}

// ── Schedules ──────────────────────────────────────────────

// Schedule replaces the cron schedule with jobs. Jobs with an invalid
// expression are skipped and reported together; the rest still run.
func (s *RefreshService) Schedule(ctx context.Context, jobs []RefreshJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCron()

	if len(jobs) == 0 {
		return nil
	}
	c := cron.New()
	var errs []error
	for _, j := range jobs {
		job := j
		_, err := c.AddFunc(job.Schedule, func() {
			if _, err := s.RunNow(ctx, job.Scene, job.Entity); err != nil {
				log.Printf("refresh cron: scene %s failed: %v", job.Scene, err)
				return
			}
			s.emitter.Emit(ctx, "refresh:completed", job.Scene)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %q for scene %s: %w", job.Schedule, job.Scene, err))
		}
	}
	c.Start()
	s.cronSched = c
	log.Printf("refresh cron: scheduled %d job(s)", len(jobs)-len(errs))
	return errors.Join(errs...)
}

// Scheduled returns the number of active cron entries.
func (s *RefreshService) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cronSched == nil {
		return 0
	}
	return len(s.cronSched.Entries())
}

// ── Document watching ──────────────────────────────────────

// WatchDocuments imports every *.scene.json written to dir. An already
// evaluated scene is re-evaluated against the same entity after reload.
func (s *RefreshService) WatchDocuments(ctx context.Context, dir string) error {
	w, err := watch.New(func(path string, content []byte) {
		s.reload(ctx, path, content)
	}, 0)
	if err != nil {
		return err
	}
	if err := w.WatchDir(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	s.mu.Lock()
	if s.watcher != nil {
		s.watcher.Close()
	}
	s.watcher = w
	s.mu.Unlock()
	log.Printf("refresh watcher: watching %s", dir)
	return nil
}

func (s *RefreshService) reload(ctx context.Context, path string, content []byte) {
	b, err := DecodeBundle(content)
	if err != nil {
		log.Printf("refresh watcher: %s: %v", path, err)
		return
	}
	var target domain.EntityID
	var hadTarget bool
	if id := s.scenes.SceneForFile(path, b.Document.ID); id != "" {
		if prev, err := s.scenes.Open(ctx, id); err == nil {
			b.Document.ID = id
			if sameDocument(prev.Editor.ToDocument(), b.Document) {
				return
			}
			target, hadTarget = prev.Target()
		}
	}
	sess, err := s.scenes.ImportBundle(ctx, path, *b)
	if err != nil {
		log.Printf("refresh watcher: import %s: %v", path, err)
		return
	}
	if hadTarget {
		if _, err := s.RunNow(ctx, sess.ID, target); err != nil {
			log.Printf("refresh watcher: evaluate %s: %v", sess.ID, err)
		}
	}
	s.emitter.Emit(ctx, "scene:reloaded", map[string]string{"sceneId": sess.ID, "path": path})
}

// ── Lifecycle ──────────────────────────────────────────────

// WaitRunning blocks until all running passes finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *RefreshService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down the scheduler and the document watcher.
func (s *RefreshService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCron()
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
}

func (s *RefreshService) stopCron() {
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
