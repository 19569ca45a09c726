package history_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"nativebuild/internal/history"
)

func openStore(t *testing.T) (*history.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "history.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestRunLifecycle(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	run, err := store.Begin(ctx, "build", []string{"all", "tools"}, "")
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if run.ID == "" || run.Status != history.StatusRunning {
		t.Fatalf("unexpected run %#v", run)
	}
	if err := store.SetHostSpec(ctx, run.ID, "debug_linux64_clang_x64"); err != nil {
		t.Fatalf("SetHostSpec returned error: %v", err)
	}
	steps := []history.Step{
		{RunID: run.ID, Name: "specs", Status: history.StatusSucceeded, Duration: 15 * time.Millisecond},
		{RunID: run.ID, Name: "host-build", Status: history.StatusFailed, Duration: 2 * time.Second, Error: "exit status 2"},
	}
	for _, step := range steps {
		if err := store.RecordStep(ctx, step); err != nil {
			t.Fatalf("RecordStep returned error: %v", err)
		}
	}
	if err := store.Finish(ctx, run.ID, 1, errors.New("host build failed")); err != nil {
		t.Fatalf("Finish returned error: %v", err)
	}

	got, err := store.Get(ctx, run.ID)
	if err != nil || got == nil {
		t.Fatalf("Get returned %v, %v", got, err)
	}
	if got.Status != history.StatusFailed || got.ExitCode != 1 || got.Error != "host build failed" {
		t.Fatalf("unexpected finished run %#v", got)
	}
	if got.HostSpec != "debug_linux64_clang_x64" {
		t.Fatalf("host spec = %q", got.HostSpec)
	}
	if !slices.Equal(got.Areas, []string{"all", "tools"}) {
		t.Fatalf("areas = %v", got.Areas)
	}
	if got.FinishedAt.IsZero() || got.Duration() < 0 {
		t.Fatalf("expected finish time, got %#v", got)
	}

	recorded, err := store.Steps(ctx, run.ID)
	if err != nil {
		t.Fatalf("Steps returned error: %v", err)
	}
	if len(recorded) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(recorded))
	}
	if recorded[0].Name != "specs" || recorded[1].Error != "exit status 2" {
		t.Fatalf("unexpected steps %#v", recorded)
	}
	if recorded[1].Duration != 2*time.Second {
		t.Fatalf("duration = %s", recorded[1].Duration)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := store.Begin(ctx, "build", nil, "")
		if err != nil {
			t.Fatalf("Begin returned error: %v", err)
		}
		ids = append(ids, run.ID)
		if err := store.Finish(ctx, run.ID, 0, nil); err != nil {
			t.Fatalf("Finish returned error: %v", err)
		}
	}

	runs, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("unexpected order: %s, %s", runs[0].ID, runs[1].ID)
	}
	if runs[0].Status != history.StatusSucceeded || runs[0].Areas != nil {
		t.Fatalf("unexpected run %#v", runs[0])
	}
}

func TestGetUnknownRun(t *testing.T) {
	store, _ := openStore(t)
	run, err := store.Get(context.Background(), "missing")
	if err != nil || run != nil {
		t.Fatalf("expected nil run, got %v, %v", run, err)
	}
	if err := store.Finish(context.Background(), "missing", 0, nil); err == nil {
		t.Fatal("expected error finishing unknown run")
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	store, path := openStore(t)
	run, err := store.Begin(context.Background(), "deps build", nil, "")
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	_ = store.Close()

	reopened, err := history.Open(path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(context.Background(), run.ID)
	if err != nil || got == nil || got.Command != "deps build" {
		t.Fatalf("expected persisted run, got %v, %v", got, err)
	}
}

func TestOpenRejectsOtherSchemaVersion(t *testing.T) {
	store, path := openStore(t)
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("update version: %v", err)
	}
	_ = db.Close()

	if _, err := history.Open(path); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
