package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDriver()
	c.normalizeDevice()
	if err := c.normalizeCMake(); err != nil {
		return err
	}
	if err := c.normalizeExternal(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

// normalizePaths anchors base_dir and state_dir at the config directory and
// every project path at base_dir.
func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.BaseDir) == "" {
		c.Paths.BaseDir = defaultBaseDir
	}
	if c.Paths.BaseDir, err = resolveAgainst(c.dir, c.Paths.BaseDir); err != nil {
		return fmt.Errorf("paths.base_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = resolveAgainst(c.dir, c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.DistDir, err = resolveAgainst(c.Paths.BaseDir, c.Paths.DistDir); err != nil {
		return fmt.Errorf("paths.dist_dir: %w", err)
	}
	if c.Paths.AreasFile, err = resolveAgainst(c.Paths.BaseDir, c.Paths.AreasFile); err != nil {
		return fmt.Errorf("paths.areas_file: %w", err)
	}
	if c.Paths.Packages, err = c.resolveList(c.Paths.Packages); err != nil {
		return fmt.Errorf("paths.packages: %w", err)
	}
	if c.Paths.CleanDirs, err = c.resolveList(c.Paths.CleanDirs); err != nil {
		return fmt.Errorf("paths.clean_dirs: %w", err)
	}
	return nil
}

func (c *Config) resolveList(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, value := range values {
		resolved, err := resolveAgainst(c.Paths.BaseDir, value)
		if err != nil {
			return nil, err
		}
		if resolved != "" {
			out = append(out, resolved)
		}
	}
	return out, nil
}

func (c *Config) normalizeDriver() {
	c.Driver.Binary = strings.TrimSpace(c.Driver.Binary)
	if c.Driver.Binary == "" {
		c.Driver.Binary = DefaultDriverBinary()
	}
	c.Driver.TargetEnv = strings.TrimSpace(c.Driver.TargetEnv)
	c.Driver.MinVersion = strings.TrimSpace(c.Driver.MinVersion)
	if c.Driver.MinVersion != "" && !strings.HasPrefix(c.Driver.MinVersion, "v") {
		c.Driver.MinVersion = "v" + c.Driver.MinVersion
	}
	c.Driver.CCache = strings.TrimSpace(c.Driver.CCache)
	c.Driver.BinaryPrepScript = strings.TrimSpace(c.Driver.BinaryPrepScript)
	if c.Driver.BinaryPrepScript != "" {
		if resolved, err := resolveAgainst(c.Paths.BaseDir, c.Driver.BinaryPrepScript); err == nil {
			c.Driver.BinaryPrepScript = resolved
		}
	}
}

func (c *Config) normalizeDevice() {
	c.Device.CertEnv = strings.TrimSpace(c.Device.CertEnv)
	if c.Device.CertEnv == "" {
		c.Device.CertEnv = defaultCertEnv
	}
	c.Device.SDKEnv = strings.TrimSpace(c.Device.SDKEnv)
	if c.Device.SDKEnv == "" {
		c.Device.SDKEnv = defaultSDKEnv
	}
	c.Device.SDKMarker = strings.TrimSpace(c.Device.SDKMarker)
	if c.Device.SDKMarker == "" {
		c.Device.SDKMarker = defaultSDKMarker
	}
}

func (c *Config) normalizeCMake() error {
	var err error
	c.CMake.Binary = strings.TrimSpace(c.CMake.Binary)
	if c.CMake.Binary == "" {
		c.CMake.Binary = defaultCMakeBinary
	}
	fields := []struct {
		key   string
		value *string
		def   string
	}{
		{"cmake.source_dir", &c.CMake.SourceDir, defaultCMakeSourceDir},
		{"cmake.build_dir", &c.CMake.BuildDir, defaultCMakeBuildDir},
		{"cmake.install_dir", &c.CMake.InstallDir, defaultCMakeInstallDir},
		{"cmake.toolchain_file", &c.CMake.ToolchainFile, defaultToolchainFile},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.def
		}
		if *field.value, err = resolveAgainst(c.Paths.BaseDir, *field.value); err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
	}
	return nil
}

func (c *Config) normalizeExternal() error {
	var err error
	for i := range c.External.Archives {
		archive := &c.External.Archives[i]
		archive.Name = strings.TrimSpace(archive.Name)
		archive.URL = strings.TrimSpace(archive.URL)
		if archive.Archive, err = resolveAgainst(c.Paths.BaseDir, archive.Archive); err != nil {
			return fmt.Errorf("external.archives[%d].archive: %w", i, err)
		}
		if strings.TrimSpace(archive.Dest) == "" {
			archive.Dest = c.CMake.SourceDir
		} else if archive.Dest, err = resolveAgainst(c.Paths.BaseDir, archive.Dest); err != nil {
			return fmt.Errorf("external.archives[%d].dest: %w", i, err)
		}
	}
	if c.External.DownloadTimeout <= 0 {
		c.External.DownloadTimeout = defaultDownloadTimeout
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
