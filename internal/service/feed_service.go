package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"scenes/internal/entity"
	"scenes/internal/feed"
)

// ─────────────────────────────────────────────────────────────
// Feed Service: load external rows into entity fields
// ─────────────────────────────────────────────────────────────

var (
	ErrFeedRunning = errors.New("feed is already running")
	ErrUnknownFeed = errors.New("unknown feed")
)

// adhocFeed names runs of jobs that were not configured.
const adhocFeed = "adhoc"

// FeedRun is the outcome of a feed run plus the scenes it refreshed.
type FeedRun struct {
	*feed.Result
	Scenes []string `json:"scenes"`
}

// FeedService runs feed jobs and tells open scenes which fields changed.
type FeedService struct {
	engine      *feed.Engine
	refresh     *RefreshService
	emitter     EventEmitter
	runningJobs runningJobsGuard
	timeout     time.Duration

	mu        sync.Mutex
	jobs      map[string]feed.Job
	cronSched *cron.Cron
}

// NewFeedService writes through acc. refresh may be nil, in which case no
// scene is notified after a run.
func NewFeedService(acc *entity.Accessor, refresh *RefreshService, emitter EventEmitter) *FeedService {
	return &FeedService{
		engine:  &feed.Engine{Dest: &feed.EntityWriter{Accessor: acc}},
		refresh: refresh,
		emitter: emitter,
		timeout: 5 * time.Minute,
		jobs:    map[string]feed.Job{},
	}
}

// ── Jobs ───────────────────────────────────────────────────

// SetJobs replaces the named jobs. Every job is validated; invalid ones are
// reported together and left out.
func (s *FeedService) SetJobs(jobs []feed.Job) error {
	valid := make(map[string]feed.Job, len(jobs))
	var errs []error
	for _, j := range jobs {
		if j.Name == "" {
			errs = append(errs, errors.New("feed: name is required"))
			continue
		}
		if _, dup := valid[j.Name]; dup {
			errs = append(errs, fmt.Errorf("feed %s: duplicate name", j.Name))
			continue
		}
		if err := j.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", j.Name, err))
			continue
		}
		valid[j.Name] = j
	}
	s.mu.Lock()
	s.jobs = valid
	s.mu.Unlock()
	return errors.Join(errs...)
}

// Jobs returns the named jobs sorted by name.
func (s *FeedService) Jobs() []feed.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]feed.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Job returns the named job.
func (s *FeedService) Job(name string) (feed.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return feed.Job{}, fmt.Errorf("%w: %s", ErrUnknownFeed, name)
	}
	return j, nil
}

// ListSources returns the available source descriptors.
func (s *FeedService) ListSources() []feed.SourceSpec {
	return feed.ListSources()
}

// ── Run ────────────────────────────────────────────────────

// RunNamed runs a configured job.
func (s *FeedService) RunNamed(ctx context.Context, name string) (*FeedRun, error) {
	j, err := s.Job(name)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, j)
}

// Run executes job, then broadcasts every written field to open scenes.
// Two runs with the same name never overlap.
func (s *FeedService) Run(ctx context.Context, job feed.Job) (*FeedRun, error) {
	if job.Name == "" {
		job.Name = adhocFeed
	}
	if !s.runningJobs.TryLock(job.Name) {
		return nil, fmt.Errorf("feed %s: %w", job.Name, ErrFeedRunning)
	}
	defer s.runningJobs.Unlock(job.Name)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.engine.Run(runCtx, job)
	run := &FeedRun{Result: result, Scenes: []string{}}
	if err != nil {
		log.Printf("feed %s: %v", job.Name, err)
		return run, fmt.Errorf("feed %s: %w", job.Name, err)
	}

	if s.refresh != nil {
		seen := map[string]bool{}
		for _, field := range result.Fields {
			for _, id := range s.refresh.Broadcast(ctx, field) {
				if !seen[id] {
					seen[id] = true
					run.Scenes = append(run.Scenes, id)
				}
			}
		}
		sort.Strings(run.Scenes)
	}
	log.Printf("feed %s: %d read, %d written, %d scene(s) refreshed", job.Name, result.RowsRead, result.RowsWritten, len(run.Scenes))
	s.emitter.Emit(ctx, "feed:completed", map[string]any{
		"feed":   job.Name,
		"fields": result.Fields,
		"scenes": run.Scenes,
	})
	return run, nil
}

// Preview returns up to maxRows transformed records without writing.
func (s *FeedService) Preview(ctx context.Context, job feed.Job, maxRows int) ([]feed.Record, error) {
	previewCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s.engine.Preview(previewCtx, job, maxRows)
}

// ── Schedules ──────────────────────────────────────────────

// Schedule starts cron entries for every named job with a schedule.
// Invalid expressions are reported together; the rest still run.
func (s *FeedService) Schedule(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCron()

	c := cron.New()
	var errs []error
	n := 0
	for _, j := range s.jobs {
		if j.Schedule == "" {
			continue
		}
		name := j.Name
		_, err := c.AddFunc(j.Schedule, func() {
			if _, err := s.RunNamed(ctx, name); err != nil {
				log.Printf("feed cron: %s failed: %v", name, err)
			}
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %q for feed %s: %w", j.Schedule, name, err))
			continue
		}
		n++
	}
	if n == 0 {
		return errors.Join(errs...)
	}
	c.Start()
	s.cronSched = c
	log.Printf("feed cron: scheduled %d job(s)", n)
	return errors.Join(errs...)
}

// Scheduled returns the number of active cron entries.
func (s *FeedService) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cronSched == nil {
		return 0
	}
	return len(s.cronSched.Entries())
}

// WaitRunning blocks until in-flight runs finish or ctx is done.
func (s *FeedService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

func (s *FeedService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCron()
}

func (s *FeedService) stopCron() {
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
