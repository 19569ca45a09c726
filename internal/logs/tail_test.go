package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"nativebuild/internal/logs"
)

const sampleLog = `{"ts":"2026-03-01T10:00:00Z","level":"info","msg":"build started","component":"build","run_id":"aaaa1111"}
{"ts":"2026-03-01T10:00:01Z","level":"debug","msg":"running external command","command":"mabu --print-target -q"}
not json
{"ts":"2026-03-01T10:00:02Z","level":"error","msg":"step failed","run_id":"aaaa1111","step":"host-build"}
{"ts":"2026-03-01T10:05:00Z","level":"info","msg":"build started","run_id":"bbbb2222"}
`

func writeLog(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nativebuild.log")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestParse(t *testing.T) {
	entry, ok := logs.Parse(`{"ts":"2026-03-01T10:00:02Z","level":"ERROR","msg":"step failed","run_id":"r1","step":"layout","spec":"debug"}`)
	if !ok {
		t.Fatal("expected record to parse")
	}
	if entry.Level != "error" || entry.Message != "step failed" || entry.RunID != "r1" || entry.Step != "layout" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Fields["spec"] != "debug" {
		t.Fatalf("expected remaining fields kept, got %v", entry.Fields)
	}
	if want := time.Date(2026, 3, 1, 10, 0, 2, 0, time.UTC); !entry.Time.Equal(want) {
		t.Fatalf("unexpected time %v", entry.Time)
	}
	if _, ok := logs.Parse("plain text"); ok {
		t.Fatal("expected non-JSON line to be rejected")
	}
}

func TestLastFilters(t *testing.T) {
	path := writeLog(t, sampleLog)

	entries, offset, err := logs.Last(path, 10, logs.Filter{RunID: "aaaa"})
	if err != nil {
		t.Fatalf("Last returned error: %v", err)
	}
	if len(entries) != 2 || entries[1].Step != "host-build" {
		t.Fatalf("unexpected run entries %+v", entries)
	}
	info, _ := os.Stat(path)
	if offset != info.Size() {
		t.Fatalf("expected offset at end of file, got %d of %d", offset, info.Size())
	}

	entries, _, err = logs.Last(path, 10, logs.Filter{Level: "warn"})
	if err != nil {
		t.Fatalf("Last returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "step failed" {
		t.Fatalf("unexpected level-filtered entries %+v", entries)
	}

	entries, _, err = logs.Last(path, 2, logs.Filter{})
	if err != nil {
		t.Fatalf("Last returned error: %v", err)
	}
	if len(entries) != 2 || entries[0].Message != "step failed" || entries[1].RunID != "bbbb2222" {
		t.Fatalf("expected newest two entries, got %+v", entries)
	}
}

func TestLastMissingFile(t *testing.T) {
	entries, offset, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 5, logs.Filter{})
	if err != nil || len(entries) != 0 || offset != 0 {
		t.Fatalf("expected empty result, got %v %d %v", entries, offset, err)
	}
}

func TestFollowDeliversAppendedEntries(t *testing.T) {
	path := writeLog(t, sampleLog)
	_, offset, err := logs.Last(path, 0, logs.Filter{})
	if err != nil {
		t.Fatalf("Last returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []logs.Entry
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, logs.Filter{RunID: "cccc"}, 10*time.Millisecond, func(entry logs.Entry) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, entry)
		})
	}()

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	_, _ = file.WriteString(`{"ts":"2026-03-01T11:00:00Z","level":"info","msg":"ignored","run_id":"dddd"}` + "\n")
	_, _ = file.WriteString(`{"ts":"2026-03-01T11:00:01Z","level":"info","msg":"layout done","run_id":"cccc3333"}` + "\n")
	_ = file.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Message != "layout done" {
		t.Fatalf("unexpected followed entries %+v", got)
	}
}
