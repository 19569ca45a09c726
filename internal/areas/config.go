package areas

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	// AllAreas is the area requested when the caller names none.
	AllAreas = "all"
	// DefaultProjectSuffix is the file suffix collected from directory entries.
	DefaultProjectSuffix = ".package"

	commentPrefix  = "//"
	aliasSeparator = "|"
)

// Option configures loading and resolution.
type Option func(*options)

type options struct {
	suffix string
	logger *slog.Logger
}

// WithProjectSuffix overrides the project file suffix collected during directory walks.
func WithProjectSuffix(suffix string) Option {
	return func(o *options) {
		if suffix = strings.TrimSpace(suffix); suffix != "" {
			o.suffix = suffix
		}
	}
}

// WithLogger routes warnings (unknown requested areas, unreadable directories) to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{suffix: DefaultProjectSuffix, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// AreaConfig is an immutable, fully validated area configuration.
type AreaConfig struct {
	path     string
	baseDir  string
	order    []string
	entries  map[string][]string
	subAreas map[string][]string
	opts     options
}

// IsAreaReference reports whether entry names another area rather than a path.
// Anything containing "/" or "." is a path; existing configuration files rely
// on this rule.
func IsAreaReference(entry string) bool {
	return !strings.ContainsAny(entry, "/.")
}

// Load reads, validates, and closes over the area configuration at path.
func Load(path string, opts ...Option) (*AreaConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read area config: %w", err)
	}
	return parse(path, data, buildOptions(opts))
}

func parse(path string, data []byte, o options) (*AreaConfig, error) {
	raw, err := decodeAreas(stripComments(data))
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	cfg := &AreaConfig{
		path:    path,
		baseDir: filepath.Dir(path),
		entries: make(map[string][]string, len(raw)),
		opts:    o,
	}
	for _, area := range raw {
		// Aliases are trimmed and empty ones ("a|", "a||b") are dropped.
		for _, alias := range strings.Split(area.key, aliasSeparator) {
			alias = strings.TrimSpace(alias)
			if alias == "" {
				continue
			}
			if _, exists := cfg.entries[alias]; !exists {
				cfg.order = append(cfg.order, alias)
			}
			cfg.entries[alias] = slices.Clone(area.entries)
		}
	}

	subAreas, err := closeAreas(path, cfg.order, cfg.entries)
	if err != nil {
		return nil, err
	}
	cfg.subAreas = subAreas
	return cfg, nil
}

// stripComments drops lines whose trimmed form starts with "//".
func stripComments(data []byte) []byte {
	lines := strings.Split(string(data), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), commentPrefix) {
			continue
		}
		kept = append(kept, line)
	}
	return []byte(strings.Join(kept, "\n"))
}

type rawArea struct {
	key     string
	entries []string
}

// decodeAreas decodes the top-level object keeping source order, so a name
// defined twice takes its last definition.
func decodeAreas(data []byte) ([]rawArea, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("top-level value must be an object of area lists")
	}

	var out []rawArea
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var entries []string
		if err := dec.Decode(&entries); err != nil {
			return nil, fmt.Errorf("area %q: %w", key, err)
		}
		out = append(out, rawArea{key: key, entries: entries})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if tok, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("unexpected content after area object: %v", tok)
	}
	return out, nil
}

// closeAreas computes, for every area, the set of areas reachable through area
// entries. Passes repeat until one adds nothing; at that point any reference
// that still names no defined area fails the load.
func closeAreas(path string, order []string, entries map[string][]string) (map[string][]string, error) {
	reach := make(map[string]map[string]struct{}, len(order))
	for _, name := range order {
		set := make(map[string]struct{})
		for _, entry := range entries[name] {
			if IsAreaReference(entry) {
				set[entry] = struct{}{}
			}
		}
		reach[name] = set
	}

	for {
		progress := false
		for _, name := range order {
			set := reach[name]
			for _, ref := range sortedKeys(set) {
				for sub := range reach[ref] {
					if _, seen := set[sub]; seen {
						continue
					}
					set[sub] = struct{}{}
					progress = true
				}
			}
		}
		if !progress {
			break
		}
	}

	for _, name := range order {
		for _, entry := range entries[name] {
			if !IsAreaReference(entry) {
				continue
			}
			if _, ok := entries[entry]; !ok {
				return nil, &UnknownAreaError{Path: path, Area: entry, Referrer: name}
			}
		}
	}

	out := make(map[string][]string, len(reach))
	for name, set := range reach {
		delete(set, name)
		out[name] = sortedKeys(set)
	}
	return out, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Path returns the file the configuration was loaded from.
func (c *AreaConfig) Path() string { return c.path }

// Names returns every area name, sorted.
func (c *AreaConfig) Names() []string {
	names := slices.Clone(c.order)
	slices.Sort(names)
	return names
}

// Has reports whether name is a defined area.
func (c *AreaConfig) Has(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// Entries returns a copy of the raw entry list for name.
func (c *AreaConfig) Entries(name string) []string {
	return slices.Clone(c.entries[name])
}

// SubAreas returns the areas transitively referenced by name, excluding name itself.
func (c *AreaConfig) SubAreas(name string) []string {
	return slices.Clone(c.subAreas[name])
}
