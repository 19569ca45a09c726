package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/mod/semver"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDriver(); err != nil {
		return err
	}
	if err := c.validateExternal(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.BaseDir == "" {
		return errors.New("paths.base_dir must be set")
	}
	if c.Paths.AreasFile == "" {
		return errors.New("paths.areas_file must be set")
	}
	if c.Paths.DistDir == "" {
		return errors.New("paths.dist_dir must be set")
	}
	for _, dir := range c.Paths.CleanDirs {
		if dir == c.Paths.BaseDir {
			return fmt.Errorf("paths.clean_dirs: refusing to remove base_dir %q", dir)
		}
	}
	return nil
}

func (c *Config) validateDriver() error {
	if c.Driver.Jobs < 0 {
		return errors.New("driver.jobs must be zero (auto) or positive")
	}
	if c.Driver.MinVersion != "" && !semver.IsValid(c.Driver.MinVersion) {
		return fmt.Errorf("driver.min_version: %q is not a semantic version", strings.TrimPrefix(c.Driver.MinVersion, "v"))
	}
	if strings.ContainsAny(c.Device.CertEnv, "= ") {
		return fmt.Errorf("device.cert_env: invalid variable name %q", c.Device.CertEnv)
	}
	if strings.ContainsAny(c.Device.SDKEnv, "= ") {
		return fmt.Errorf("device.sdk_env: invalid variable name %q", c.Device.SDKEnv)
	}
	return nil
}

func (c *Config) validateExternal() error {
	seen := make(map[string]struct{}, len(c.External.Archives))
	for i, archive := range c.External.Archives {
		if archive.Name == "" {
			return fmt.Errorf("external.archives[%d].name must be set", i)
		}
		if _, dup := seen[archive.Name]; dup {
			return fmt.Errorf("external.archives[%d].name: duplicate archive %q", i, archive.Name)
		}
		seen[archive.Name] = struct{}{}
		parsed, err := url.Parse(archive.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("external.archives[%d].url: %q must be an http(s) URL", i, archive.URL)
		}
		if archive.Archive == "" {
			return fmt.Errorf("external.archives[%d].archive must be set", i)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
