package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"nativebuild/internal/testsupport"
)

const testAreas = `{
  // project areas
  "all": ["./src"],
  "release": ["all"],
  "samples|demos": ["./samples/hello.package"]
}`

type cliTestEnv struct {
	baseDir    string
	configPath string
	driverLog  string
	cmakeLog   string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub build tools are shell scripts")
	}

	base := t.TempDir()
	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "nativebuild.toml"),
		driverLog:  filepath.Join(base, "driver.log"),
		cmakeLog:   filepath.Join(base, "cmake.log"),
	}

	testsupport.WriteTree(t, base, map[string]string{
		"project_areas.json":      testAreas,
		"src/app/app.package":     "",
		"src/lib/lib.package":     "",
		"src/lib/notes.txt":       "",
		"samples/hello.package":   "",
		"dist/bin/app":            testsupport.ELFHeader,
		"dist/share/readme.txt":   "docs",
		"external/CMakeLists.txt": "",
		"certs/dev.cert":          "certificate",
	})
	testsupport.WriteScript(t, filepath.Join(base, "bin", "mabu"), fmt.Sprintf(`echo "$*" >> %q
case "$1" in
--version) echo "mabu 0.21.0" ;;
--print-target) echo "debug_linux64_gcc_x64" ;;
--print-spec) echo "debug_linux64_gcc_x64" ;;
esac
exit 0
`, env.driverLog))
	testsupport.WriteScript(t, filepath.Join(base, "bin", "cmake"), fmt.Sprintf("echo \"$*\" >> %q\nexit 0\n", env.cmakeLog))

	config := fmt.Sprintf(`[paths]
base_dir = %q
dist_dir = "dist"
areas_file = "project_areas.json"
packages = ["app.package"]
state_dir = %q

[driver]
binary = %q
jobs = 2
binary_prep_script = ""

[cmake]
binary = %q

[logging]
format = "console"
level = "info"
`, base, filepath.Join(base, ".state"), filepath.Join(base, "bin", "mabu"), filepath.Join(base, "bin", "cmake"))
	testsupport.WriteFile(t, env.configPath, config)

	t.Setenv("TESTS_CONFIG", "")
	t.Setenv("MLSDK", "")
	t.Setenv("MLCERT", filepath.Join(base, "certs", "dev.cert"))
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func readLog(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

// requireLogLine fails unless some line of the log starts with prefix.
func requireLogLine(t *testing.T, lines []string, prefix string) {
	t.Helper()
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			return
		}
	}
	t.Fatalf("no log line starts with %q; got:\n%s", prefix, strings.Join(lines, "\n"))
}

func writeAreas(t *testing.T, env *cliTestEnv, contents string) {
	t.Helper()
	testsupport.WriteFile(t, filepath.Join(env.baseDir, "project_areas.json"), contents)
}
