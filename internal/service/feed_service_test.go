package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"scenes/internal/feed"
	_ "scenes/internal/feed/sources"
	"scenes/internal/service"
)

func TestFeedService_RunRefreshesScenes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.boilerScene(t)
	refresh := service.NewRefreshService(f.svc, f.emitter)
	feeds := service.NewFeedService(f.acc, refresh, f.emitter)

	if _, err := refresh.RunNow(ctx, id, f.tank); err != nil {
		t.Fatalf("run now: %v", err)
	}

	path := filepath.Join(t.TempDir(), "levels.csv")
	if err := os.WriteFile(path, []byte("entity,Level\n"+f.tank.String()+",7.25\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	run, err := feeds.Run(ctx, feed.Job{
		Source: "csv_file",
		Config: feed.SourceConfig{"filePath": path},
		Key:    "entity",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Job != "adhoc" || run.RowsWritten != 1 {
		t.Fatalf("unexpected result %+v", run.Result)
	}
	if len(run.Scenes) != 1 || run.Scenes[0] != id {
		t.Fatalf("expected scene %s refreshed, got %v", id, run.Scenes)
	}

	sess, err := f.svc.Open(ctx, id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got, _ := sess.Engine.BindingValue("Tank1", "width"); got != 7.25 {
		t.Fatalf("expected width 7.25 after feed, got %v", got)
	}
	if n := f.emitter.Count("feed:completed"); n != 1 {
		t.Fatalf("expected one feed:completed event, got %d", n)
	}
}

func TestFeedService_NamedJobsAndSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	feeds := service.NewFeedService(f.acc, nil, f.emitter)
	defer feeds.Stop()

	err := feeds.SetJobs([]feed.Job{
		{Name: "hourly", Source: "json_file", Config: feed.SourceConfig{"filePath": "a.json"}, Entity: int64(f.tank), Schedule: "@every 1h"},
		{Name: "broken", Source: "json_file", Config: feed.SourceConfig{"filePath": "b.json"}, Entity: int64(f.tank), Schedule: "whenever"},
		{Name: "hourly", Source: "json_file", Config: feed.SourceConfig{"filePath": "c.json"}, Entity: int64(f.tank)},
		{Name: "nosource", Source: "ftp", Entity: int64(f.tank)},
	})
	if err == nil {
		t.Fatal("expected errors for the duplicate and unknown-source jobs")
	}
	if got := len(feeds.Jobs()); got != 2 {
		t.Fatalf("expected 2 valid jobs, got %d", got)
	}

	if err := feeds.Schedule(ctx); err == nil {
		t.Fatal("expected an error for the invalid schedule")
	}
	if n := feeds.Scheduled(); n != 1 {
		t.Fatalf("expected 1 scheduled feed, got %d", n)
	}

	if _, err := feeds.RunNamed(ctx, "nosource"); !errors.Is(err, service.ErrUnknownFeed) {
		t.Fatalf("expected ErrUnknownFeed, got %v", err)
	}
	run, err := feeds.RunNamed(ctx, "hourly")
	if err == nil || run.Status != feed.StatusError {
		t.Fatalf("expected the missing file to fail the run, got %v", err)
	}
}
