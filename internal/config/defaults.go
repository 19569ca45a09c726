package config

import "runtime"

const (
	defaultBaseDir          = "."
	defaultDistDir          = "dist"
	defaultAreasFile        = "project_areas.json"
	defaultStateDir         = "~/.local/share/nativebuild"
	defaultDriverBinary     = "mabu"
	defaultTargetEnv        = "TESTS_CONFIG"
	defaultBinaryPrepScript = "../scripts/BinaryPrep.sh"
	defaultCertEnv          = "MLCERT"
	defaultSDKEnv           = "MLSDK"
	defaultSDKMarker        = "include/ml_api.h"
	defaultCMakeBinary      = "cmake"
	defaultCMakeSourceDir   = "external"
	defaultCMakeBuildDir    = "external/build"
	defaultCMakeInstallDir  = "external/package"
	defaultToolchainFile    = "external/cmake/mlsdk.toolchain.cmake"
	defaultDownloadTimeout  = 300
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// DefaultDriverBinary returns the driver launcher name for the host OS.
func DefaultDriverBinary() string {
	if runtime.GOOS == "windows" {
		return defaultDriverBinary + ".cmd"
	}
	return defaultDriverBinary
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			BaseDir:   defaultBaseDir,
			DistDir:   defaultDistDir,
			AreasFile: defaultAreasFile,
			StateDir:  defaultStateDir,
		},
		Driver: Driver{
			Binary:           DefaultDriverBinary(),
			TargetEnv:        defaultTargetEnv,
			BinaryPrepScript: defaultBinaryPrepScript,
		},
		Device: Device{
			CertEnv:   defaultCertEnv,
			SDKEnv:    defaultSDKEnv,
			SDKMarker: defaultSDKMarker,
		},
		CMake: CMake{
			Binary:        defaultCMakeBinary,
			SourceDir:     defaultCMakeSourceDir,
			BuildDir:      defaultCMakeBuildDir,
			InstallDir:    defaultCMakeInstallDir,
			ToolchainFile: defaultToolchainFile,
		},
		External: External{
			DownloadTimeout: defaultDownloadTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
