package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"scenes/internal/scene"
	"scenes/internal/service"
)

func TestRefreshService_NotifyHonorsChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.boilerScene(t)
	refresh := service.NewRefreshService(f.svc, f.emitter)

	err := f.svc.Mutate(ctx, id, func(ed *scene.Editor) error {
		h := ed.Header()
		h.NotificationChannels = []string{"Level"}
		ed.SetHeader(h)
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	if _, err := refresh.Notify(ctx, id, "Level"); !errors.Is(err, service.ErrNoTarget) {
		t.Fatalf("expected ErrNoTarget before any evaluation, got %v", err)
	}
	if _, err := refresh.RunNow(ctx, id, f.tank); err != nil {
		t.Fatalf("run now: %v", err)
	}

	if err := f.acc.WriteValue(ctx, f.tank, "Level", 7.5); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := refresh.Notify(ctx, id, "Pressure"); !errors.Is(err, service.ErrNotSubscribed) {
		t.Fatalf("expected ErrNotSubscribed, got %v", err)
	}
	snap, err := refresh.Notify(ctx, id, "Level")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got := fmt.Sprint(snap.Values["Tank1:width"]); got != "7.5" {
		t.Fatalf("expected 7.5 after notify, got %s", got)
	}

	if got := refresh.Broadcast(ctx, "Level"); len(got) != 1 || got[0] != id {
		t.Fatalf("expected broadcast to refresh %s, got %v", id, got)
	}
	if got := refresh.Broadcast(ctx, "Pressure"); len(got) != 0 {
		t.Fatalf("expected no scene to listen on Pressure, got %v", got)
	}
}

func TestRefreshService_Schedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.boilerScene(t)
	refresh := service.NewRefreshService(f.svc, f.emitter)
	defer refresh.Stop()

	err := refresh.Schedule(ctx, []service.RefreshJob{
		{Scene: id, Entity: f.tank, Schedule: "@every 1h"},
		{Scene: id, Entity: f.tank, Schedule: "not a schedule"},
	})
	if err == nil {
		t.Fatal("expected an error for the invalid schedule")
	}
	if n := refresh.Scheduled(); n != 1 {
		t.Fatalf("expected 1 scheduled job, got %d", n)
	}

	if err := refresh.Schedule(ctx, nil); err != nil {
		t.Fatalf("clear schedule: %v", err)
	}
	if n := refresh.Scheduled(); n != 0 {
		t.Fatalf("expected schedule cleared, got %d", n)
	}
}

func TestRefreshService_WatchDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.boilerScene(t)
	refresh := service.NewRefreshService(f.svc, f.emitter)
	defer refresh.Stop()

	dir := t.TempDir()
	b, err := f.svc.Export(ctx, id)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := refresh.WatchDocuments(ctx, dir); err != nil {
		t.Fatalf("watch: %v", err)
	}

	b.Document.Name = "Boiler (edited)"
	if err := service.WriteBundle(service.BundleFileName(dir, "boiler"), b); err != nil {
		t.Fatalf("write bundle: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.emitter.Count("scene:reloaded") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("document change was not picked up")
		}
		time.Sleep(20 * time.Millisecond)
	}
	sess, err := f.svc.Open(ctx, id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := sess.Editor.Header().Name; got != "Boiler (edited)" {
		t.Fatalf("expected reloaded name, got %q", got)
	}
	if _, err := os.Stat(service.BundleFileName(dir, "boiler")); err != nil {
		t.Fatalf("bundle missing: %v", err)
	}
}
