package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"nativebuild/internal/logging"
)

// DefaultPoll is how often Follow checks the log for new records.
const DefaultPoll = 250 * time.Millisecond

// Entry is one decoded log record.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	RunID     string
	Step      string
	// Fields holds every remaining attribute.
	Fields map[string]any
}

// Filter selects entries. Zero values match everything.
type Filter struct {
	// RunID matches entries whose run ID starts with the value.
	RunID string
	// Level is the minimum level: debug, info, warn, or error.
	Level string
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "warning": 2, "error": 3}

// Match reports whether entry passes the filter.
func (f Filter) Match(entry Entry) bool {
	if f.RunID != "" && !strings.HasPrefix(entry.RunID, f.RunID) {
		return false
	}
	if minimum, ok := levelRank[strings.ToLower(f.Level)]; ok {
		if levelRank[entry.Level] < minimum {
			return false
		}
	}
	return true
}

// Parse decodes one JSON log line. Lines that are not JSON objects are
// rejected.
func Parse(line string) (Entry, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, false
	}
	entry := Entry{Fields: make(map[string]any)}
	for key, value := range raw {
		str, _ := value.(string)
		switch key {
		case "ts":
			entry.Time, _ = time.Parse(time.RFC3339, str)
		case "level":
			entry.Level = strings.ToLower(str)
		case "msg":
			entry.Message = str
		case logging.FieldComponent:
			entry.Component = str
		case logging.FieldRunID:
			entry.RunID = str
		case logging.FieldStep:
			entry.Step = str
		default:
			entry.Fields[key] = value
		}
	}
	return entry, true
}

// Last returns up to limit of the newest matching entries, oldest first, and
// the file offset to follow from. A missing log yields no entries.
func Last(path string, limit int, filter Filter) ([]Entry, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		offset, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, offset, nil
	}

	ring := make([]Entry, limit)
	count, idx := 0, 0
	offset, err := scanEntries(file, 0, filter, func(entry Entry) {
		ring[idx] = entry
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	entries := make([]Entry, count)
	if count == limit {
		for i := 0; i < count; i++ {
			entries[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(entries, ring[:count])
	}
	return entries, offset, nil
}

// Follow delivers matching entries appended after offset until ctx ends. A
// log that shrinks (rotated or truncated) is read again from the start.
func Follow(ctx context.Context, path string, offset int64, filter Filter, poll time.Duration, fn func(Entry)) error {
	if poll <= 0 {
		poll = DefaultPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, filter, fn)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, filter Filter, fn func(Entry)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = 0
	}
	return scanEntries(file, offset, filter, fn)
}

// scanEntries reads complete lines from offset and returns the offset just
// past the last complete line, so a partially written record is read again
// on the next pass.
func scanEntries(file *os.File, offset int64, filter Filter, fn func(Entry)) (int64, error) {
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		entry, ok := Parse(strings.TrimSpace(line))
		if ok && filter.Match(entry) {
			fn(entry)
		}
	}
}
