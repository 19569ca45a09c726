package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"nativebuild/internal/areas"
	"nativebuild/internal/config"
	"nativebuild/internal/deps"
	"nativebuild/internal/services"
	"nativebuild/internal/services/driver"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := checkAccess(path); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckAreaConfig loads the area file and reports how many areas it defines.
func CheckAreaConfig(path string) Result {
	const name = "Area configuration"
	cfg, err := areas.Load(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d areas)", path, len(cfg.Names()))}
}

// CheckDriverVersion runs the driver's version query and compares it against
// minimum.
func CheckDriverVersion(ctx context.Context, drv *driver.Client, minimum string) Result {
	const name = "Build driver version"
	version, err := drv.Version(ctx)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return Result{Name: name, Detail: fmt.Sprintf("%s not found on PATH", drv.Binary())}
		}
		return Result{Name: name, Detail: err.Error()}
	}
	if err := driver.CheckMinVersion(version, minimum); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (requires %s)", version, minimum)}
	}
	if minimum == "" {
		return Result{Name: name, Passed: true, Detail: version}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (>= %s)", version, minimum)}
}

// CheckSDK reports where the device SDK was found.
func CheckSDK(drv *driver.Client, device config.Device, args []string) Result {
	const name = "Device SDK"
	dir, ok := drv.FindSDK(device.SDKEnv, device.SDKMarker, args)
	if !ok {
		return Result{Name: name, Detail: fmt.Sprintf("not found (set %s or add the SDK to PATH)", device.SDKEnv)}
	}
	return Result{Name: name, Passed: true, Detail: dir}
}

// CheckCertificate verifies the signing certificate variable is set and
// points at a readable file.
func CheckCertificate(envName string, lookupEnv func(string) (string, bool)) Result {
	const name = "Signing certificate"
	if envName == "" {
		return Result{Name: name, Passed: true, Detail: "not required"}
	}
	value, ok := lookupEnv(envName)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return Result{Name: name, Detail: fmt.Sprintf("%s is not set", envName)}
	}
	info, err := os.Stat(value)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s=%s (error: %v)", envName, value, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s=%s (error: is a directory)", envName, value)}
	}
	return Result{Name: name, Passed: true, Detail: value}
}

// CheckSystemDeps evaluates the external tools needed by cfg. The build
// command and doctor share this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "Build driver",
			Command:     cfg.Driver.Binary,
			Description: "Required for project builds and package layout",
		},
		{
			Name:        "CMake",
			Command:     cfg.CMake.Binary,
			Description: "Required for third-party dependency builds",
			Optional:    true,
		},
	}
	if ccache := strings.TrimSpace(cfg.Driver.CCache); ccache != "" {
		requirements = append(requirements, deps.Requirement{
			Name:        "ccache",
			Command:     ccache,
			Description: "Compiler cache",
			Optional:    true,
		})
	}
	if runtime.GOOS == "darwin" {
		requirements = append(requirements, deps.Requirement{
			Name:        "Binary prep script",
			Command:     cfg.Driver.BinaryPrepScript,
			Description: "Rewrites library lookups of laid out binaries",
			Optional:    true,
		})
	}
	return deps.CheckBinaries(requirements)
}
