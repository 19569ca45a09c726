package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// maxInfoFields caps the bullet list printed under info and higher records.
const maxInfoFields = 6

// infoFieldPriority orders the fields shown at info level and above; fields
// not listed sort after these in record order.
var infoFieldPriority = []string{
	FieldErrorHint,
	"error",
	FieldImpact,
	"exit_code",
	"spec",
	"area",
	"areas",
	"projects",
	"path",
	"duration",
	FieldCommand,
}

// consoleHandler renders records for people reading a terminal:
//
//	2026-01-02 15:04:05 INFO [build] run 01234567 · host-build – building for host
//	    - spec: debug_linux64_gcc_x64
//
// Debug records list every field; other levels list the highest priority
// fields and count the rest.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     *slog.LevelVar
	addSource bool
	preset    []slog.Attr
	groups    []string
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: new(sync.Mutex), w: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = append(slices.Clip(h.preset), attrs...)
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(slices.Clip(h.groups), name)
	return &next
}

func (h *consoleHandler) Handle(ctx context.Context, record slog.Record) error {
	if !h.Enabled(ctx, record.Level) {
		return nil
	}

	fields := h.fields(record)
	header := headerOf(fields)

	var buf bytes.Buffer
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(&buf, "%s %s", formatTimestamp(ts), levelLabel(record.Level))
	if header.component != "" {
		fmt.Fprintf(&buf, " [%s]", header.component)
	}
	if subject := composeSubject(header.runID, header.step); subject != "" {
		buf.WriteString(" " + subject)
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	buf.WriteString(" – " + msg)
	if src := record.Source(); h.addSource && src != nil && src.File != "" {
		fmt.Fprintf(&buf, " [%s:%d]", filepath.Base(src.File), src.Line)
	}
	buf.WriteByte('\n')

	if record.Level < slog.LevelInfo {
		for _, f := range header.rest {
			fmt.Fprintf(&buf, "    %s: %s\n", f.key, quotedValue(f.value))
		}
	} else {
		shown, hidden := selectInfoFields(header.rest)
		for _, f := range shown {
			fmt.Fprintf(&buf, "    - %s: %s\n", f.key, plainValue(f.value))
		}
		switch {
		case hidden == 1:
			buf.WriteString("    + 1 more field hidden\n")
		case hidden > 1:
			fmt.Fprintf(&buf, "    + %d more fields hidden\n", hidden)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

type field struct {
	key   string
	value slog.Value
}

// fields flattens preset and record attributes into dotted keys. A repeated
// key keeps its first position and its last value.
func (h *consoleHandler) fields(record slog.Record) []field {
	var out []field
	index := make(map[string]int)
	add := func(f field) {
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			return
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	for _, attr := range h.preset {
		flatten(h.groups, attr, add)
	}
	record.Attrs(func(attr slog.Attr) bool {
		flatten(h.groups, attr, add)
		return true
	})
	return out
}

func flatten(prefix []string, attr slog.Attr, emit func(field)) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			prefix = append(slices.Clip(prefix), attr.Key)
		}
		for _, child := range value.Group() {
			flatten(prefix, child, emit)
		}
		return
	}
	if attr.Key == "" {
		return
	}
	key := attr.Key
	if len(prefix) > 0 {
		key = strings.Join(prefix, ".") + "." + key
	}
	emit(field{key: key, value: value})
}

type recordHeader struct {
	component string
	runID     string
	step      string
	rest      []field
}

// headerOf lifts the context fields that belong in the header line out of
// the field list.
func headerOf(fields []field) recordHeader {
	var h recordHeader
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			h.component = plainValue(f.value)
		case FieldRunID:
			h.runID = plainValue(f.value)
		case FieldStep:
			h.step = plainValue(f.value)
		default:
			h.rest = append(h.rest, f)
		}
	}
	return h
}

// composeSubject renders "run 1a2b3c4d · step" from the context fields.
func composeSubject(runID, step string) string {
	runID = strings.TrimSpace(runID)
	step = strings.TrimSpace(step)
	if len(runID) > 8 {
		runID = runID[:8]
	}
	var parts []string
	if runID != "" {
		parts = append(parts, "run "+runID)
	}
	if step != "" {
		parts = append(parts, step)
	}
	return strings.Join(parts, " · ")
}

func selectInfoFields(fields []field) ([]field, int) {
	ordered := slices.Clone(fields)
	slices.SortStableFunc(ordered, func(a, b field) int {
		return fieldRank(a.key) - fieldRank(b.key)
	})
	if len(ordered) <= maxInfoFields {
		return ordered, 0
	}
	return ordered[:maxInfoFields], len(ordered) - maxInfoFields
}

func fieldRank(key string) int {
	if i := slices.Index(infoFieldPriority, key); i >= 0 {
		return i
	}
	return len(infoFieldPriority)
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
