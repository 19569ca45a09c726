package areas

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"nativebuild/internal/logging"
)

// Resolution is the outcome of resolving requested areas to project files.
type Resolution struct {
	// Projects holds every discovered project file, deduplicated and sorted.
	Projects []string `json:"projects" yaml:"projects"`
	// Areas holds the requested areas that exist plus everything they include, sorted.
	Areas []string `json:"areas" yaml:"areas"`
	// Missing holds requested names that are not defined in the configuration.
	Missing []string `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// ResolveProjects expands requested areas through their sub-areas and collects
// the project files their path entries point at. An empty request means
// AllAreas. Unknown requested names are reported in Missing and logged as
// warnings through the configured logger (slog.Default unless WithLogger was
// given).
func (c *AreaConfig) ResolveProjects(requested []string) Resolution {
	if len(requested) == 0 {
		requested = []string{AllAreas}
	}

	closure := make(map[string]struct{})
	var missing []string
	for _, name := range requested {
		if !c.Has(name) {
			if !slices.Contains(missing, name) {
				missing = append(missing, name)
				logging.WarnWithContext(c.opts.logger, "no such area", "area_not_found",
					logging.String("area", name),
					logging.String("area_config", c.path),
					logging.String(logging.FieldErrorHint, "run `nativebuild areas list` for valid names"),
					logging.String(logging.FieldImpact, "area contributes no projects"),
				)
			}
			continue
		}
		closure[name] = struct{}{}
		for _, sub := range c.subAreas[name] {
			closure[sub] = struct{}{}
		}
	}

	projects := make(map[string]struct{})
	areaNames := sortedKeys(closure)
	for _, name := range areaNames {
		for _, entry := range c.entries[name] {
			if IsAreaReference(entry) {
				continue
			}
			for _, project := range c.projectsFor(entry) {
				projects[project] = struct{}{}
			}
		}
	}

	return Resolution{
		Projects: sortedKeys(projects),
		Areas:    areaNames,
		Missing:  missing,
	}
}

// projectsFor returns the project files named by a path entry: the file itself,
// or every file under the directory carrying the project suffix. Relative
// entries resolve against the area file's directory.
func (c *AreaConfig) projectsFor(entry string) []string {
	full := filepath.Clean(entry)
	if !filepath.IsAbs(full) {
		full = filepath.Join(c.baseDir, entry)
	}
	info, err := os.Stat(full)
	if err != nil {
		c.opts.logger.Debug("area path unavailable",
			slog.String("path", full),
			logging.Error(err),
		)
		return nil
	}
	if !info.IsDir() {
		return []string{full}
	}

	var found []string
	_ = filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			c.opts.logger.Debug("skipping unreadable path", slog.String("path", path), logging.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), c.opts.suffix) {
			found = append(found, filepath.Clean(path))
		}
		return nil
	})
	return found
}
