package config

import (
	_ "embed"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// ProjectConfigName is the per-repository configuration file looked up in the
// working directory.
const ProjectConfigName = "nativebuild.toml"

// Paths locates the project being built and the tool's own state.
type Paths struct {
	BaseDir   string   `toml:"base_dir"`
	DistDir   string   `toml:"dist_dir"`
	AreasFile string   `toml:"areas_file"`
	Packages  []string `toml:"packages"`
	CleanDirs []string `toml:"clean_dirs"`
	StateDir  string   `toml:"state_dir"`
}

// Driver configures the external build driver.
type Driver struct {
	Binary     string `toml:"binary"`
	TargetEnv  string `toml:"target_env"`
	MinVersion string `toml:"min_version"`
	// Jobs is the compiler job count; 0 derives it from the CPU count.
	Jobs             int    `toml:"jobs"`
	CCache           string `toml:"ccache"`
	BinaryPrepScript string `toml:"binary_prep_script"`
}

// Device names the environment variables used for device builds.
type Device struct {
	CertEnv   string `toml:"cert_env"`
	SDKEnv    string `toml:"sdk_env"`
	SDKMarker string `toml:"sdk_marker"`
}

// CMake configures third-party dependency builds.
type CMake struct {
	Binary        string `toml:"binary"`
	SourceDir     string `toml:"source_dir"`
	BuildDir      string `toml:"build_dir"`
	InstallDir    string `toml:"install_dir"`
	ToolchainFile string `toml:"toolchain_file"`
	Parallel      bool   `toml:"parallel"`
}

// Archive is one downloadable third-party source archive.
type Archive struct {
	Name    string `toml:"name"`
	URL     string `toml:"url"`
	Archive string `toml:"archive"`
	Dest    string `toml:"dest"`
}

// External lists third-party archives and download settings.
type External struct {
	Archives        []Archive `toml:"archives"`
	DownloadTimeout int       `toml:"download_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for nativebuild.
//
// Configuration sections by subsystem:
//   - Paths: project layout and tool state directory
//   - Driver: build driver binary and job settings
//   - Device: certificate and SDK environment variables
//   - CMake: external dependency build tree
//   - External: downloadable source archives
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Driver   Driver   `toml:"driver"`
	Device   Device   `toml:"device"`
	CMake    CMake    `toml:"cmake"`
	External External `toml:"external"`
	Logging  Logging  `toml:"logging"`

	// dir is the directory relative paths were resolved against.
	dir string
}

// DefaultConfigPath returns the absolute path to the user-level configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/nativebuild/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has every path field resolved to an absolute path. It also reports
// the resolved file and whether it existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg.dir, err = os.Getwd()
	if err != nil {
		return nil, "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	if exists {
		cfg.dir = filepath.Dir(resolvedPath)
	}
	if err := loadEnvFiles(cfg.dir); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadEnvFiles reads .env next to the config and in the working directory.
// Variables already set in the environment win.
func loadEnvFiles(configDir string) error {
	candidates := []string{filepath.Join(configDir, ".env")}
	if wd, err := os.Getwd(); err == nil && wd != configDir {
		candidates = append(candidates, filepath.Join(wd, ".env"))
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("load env file %s: %w", candidate, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	projectPath, err := filepath.Abs(ProjectConfigName)
	if err != nil {
		return "", false, err
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return projectPath, false, nil
}

// EnsureDirectories creates the state directory used for history and locks.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.StateDir, err)
	}
	return nil
}

// HistoryPath returns the build history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the single-instance lock file guarding the base directory.
func (c *Config) LockPath() string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(c.Paths.BaseDir))
	name := fmt.Sprintf("build-%s-%08x.lock", filepath.Base(c.Paths.BaseDir), h.Sum32())
	return filepath.Join(c.Paths.StateDir, "locks", name)
}

// Dir returns the directory relative settings were resolved against.
func (c *Config) Dir() string {
	return c.dir
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// resolveAgainst expands ~ and anchors relative paths at base.
func resolveAgainst(base, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", nil
	}
	if strings.HasPrefix(pathValue, "~") || filepath.IsAbs(pathValue) {
		return expandPath(pathValue)
	}
	return expandPath(filepath.Join(base, pathValue))
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
