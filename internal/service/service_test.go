package service_test

import (
	"context"
	"testing"
	"time"

	"scenes/internal/service"
)

// ─────────────────────────────────────────────────────────────
// RunningJobsGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunningGuard_TryLock(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("scene-1") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("scene-1") {
		t.Fatal("expected second TryLock for same scene to fail")
	}
	if !g.TryLock("scene-2") {
		t.Fatal("expected TryLock for different scene to succeed")
	}
	if !g.Running("scene-1") {
		t.Fatal("expected scene-1 to be running")
	}
	g.Unlock("scene-1")
	g.Unlock("scene-2")

	if g.Running("scene-1") {
		t.Fatal("expected scene-1 to be released")
	}
	if !g.TryLock("scene-1") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("scene-1")
}

func TestRunningGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("scene-a") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("scene-a")
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "scene:saved", "s1")
	m.Emit(ctx, "scene:saved", "s2")
	m.Emit(ctx, "scene:deleted", nil)

	if len(m.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(m.Events))
	}
	if m.Events[0].Event != "scene:saved" {
		t.Errorf("expected 'scene:saved', got %q", m.Events[0].Event)
	}
	if n := m.Count("scene:saved"); n != 2 {
		t.Errorf("expected 2 saves, got %d", n)
	}
}

// ─────────────────────────────────────────────────────────────
// Bundle tests
// ─────────────────────────────────────────────────────────────

func TestDecodeBundle_BareDocument(t *testing.T) {
	b, err := service.DecodeBundle([]byte(`{"id":"s1","name":"Boiler","layout":[],"bindings":[],"components":[],"metadata":{}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Document.Name != "Boiler" || len(b.Components) != 0 {
		t.Fatalf("unexpected bundle: %+v", b)
	}
}

func TestBundleFileName(t *testing.T) {
	got := service.BundleFileName("/tmp/x", "Boiler/Room 1")
	if got != "/tmp/x/Boiler_Room 1.scene.json" {
		t.Fatalf("got %q", got)
	}
}
