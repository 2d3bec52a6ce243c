package cli

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type env struct {
	dir    string
	config string
	cache  string
	work   string
}

// newEnv writes a config whose zynq platform goes straight to the Arm cache.
func newEnv(t *testing.T) env {
	t.Helper()
	t.Setenv("XILINX_VITIS", "")
	t.Setenv("XILINX_VIVADO", "")

	dir := t.TempDir()
	e := env{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		cache:  filepath.Join(dir, "toolchains"),
		work:   filepath.Join(dir, "work"),
	}
	cfg := `
build:
  work_dir: ` + e.work + `
  jobs: 1
toolchain:
  cache_dir: ` + e.cache + `
  mirrors: ["http://127.0.0.1:1/"]
platforms:
  zynq:
    arch: arm
    toolchain:
      preferred: arm
      fallback: []
`
	require.NoError(t, os.WriteFile(e.config, []byte(cfg), 0o644))
	return e
}

func (e env) installArm(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"arm-gnu-toolchain-12.2.rel1-x86_64-arm-none-linux-gnueabihf",
		"arm-gnu-toolchain-12.2.rel1-x86_64-aarch64-none-linux-gnu",
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(e.cache, name, "bin"), 0o755))
	}
	stamp := "4f2a  developer/Files/downloads/gnu/12.2.rel1/binrel/x.tar.xz\n# mirror: https://mirror.example.com/\n"
	require.NoError(t, os.WriteFile(
		filepath.Join(e.cache, "arm-gnu-toolchain-12.2.rel1-x86_64-arm-none-linux-gnueabihf.b3"),
		[]byte(stamp), 0o644))
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestToolchainCommandFindsCachedArm(t *testing.T) {
	e := newEnv(t)
	e.installArm(t)

	code, out, errOut := run(t, "--config", e.config, "toolchain", "--prefer", "arm", "--fallback=")
	require.Equal(t, 0, code, errOut)

	assert.Contains(t, out, "arm toolchain 12.2.rel1 (downloadable)")
	assert.Contains(t, out, "arm-none-linux-gnueabihf-")
	assert.Contains(t, out, "aarch64-none-linux-gnu-")
	assert.Contains(t, out, "blake3 4f2a from https://mirror.example.com/")
}

func TestToolchainCommandNotFound(t *testing.T) {
	if _, err := exec.LookPath("arm-none-eabi-gcc"); err == nil {
		t.Skip("host has a bare-metal toolchain")
	}
	e := newEnv(t)

	code, _, errOut := run(t, "--config", e.config, "toolchain", "--prefer", "bare_metal", "--fallback=")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no suitable toolchain found. Tried: bare_metal")
}

func TestToolchainPathsStrict(t *testing.T) {
	e := newEnv(t)

	code, out, errOut := run(t, "--config", e.config, "--tool-version", "2023.2", "toolchain", "paths", "--strict")
	require.Equal(t, 0, code, errOut)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "/opt/Xilinx/Vivado/2023.2", lines[0])
	for _, l := range lines {
		assert.Contains(t, l, "2023.2")
	}
}

func TestMakeCommandRecordsScript(t *testing.T) {
	e := newEnv(t)
	e.installArm(t)
	script := filepath.Join(e.dir, "build_zynq.sh")

	code, _, errOut := run(t, "--config", e.config, "--platform", "zynq", "--script", script,
		"make", "-j", "2", "uImage", "LOADADDR=0x8000")
	require.Equal(t, 0, code, errOut)

	b, err := os.ReadFile(script)
	require.NoError(t, err)
	content := string(b)
	assert.True(t, strings.HasPrefix(content, "#!/bin/bash\n"))
	assert.Contains(t, content, "cd '"+e.work+"'\n")
	assert.Contains(t, content, "export ARCH='arm'\nexport CROSS_COMPILE='arm-none-linux-gnueabihf-'\nmake -j2 LOADADDR=0x8000 uImage\n")

	// script mode never creates the work directory
	_, err = os.Stat(e.work)
	assert.True(t, os.IsNotExist(err))
}

func TestCheckToolsCommandRecordsScript(t *testing.T) {
	e := newEnv(t)
	script := filepath.Join(e.dir, "check.sh")

	code, out, errOut := run(t, "--config", e.config, "--script", script, "check-tools", "dtc", "bison")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Recorded checks for dtc, bison")

	b, err := os.ReadFile(script)
	require.NoError(t, err)
	assert.Contains(t, string(b), "which dtc\n")
	assert.Contains(t, string(b), "which bison\n")
}

func TestCheckToolsCommandReportsMissing(t *testing.T) {
	if _, err := exec.LookPath("which"); err != nil {
		t.Skip("which not available")
	}
	e := newEnv(t)

	code, _, errOut := run(t, "--config", e.config, "check-tools", "adibuild-missing-a", "adibuild-missing-b")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "required tools not found: adibuild-missing-a, adibuild-missing-b")
}

func TestExecCommandPropagatesExitCode(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	e := newEnv(t)

	code, out, errOut := run(t, "--config", e.config, "exec", "--", "echo from-shell; exit 3")
	assert.Equal(t, 3, code, errOut)
	assert.Contains(t, out, "from-shell")

	// the configured work directory is created in real mode
	info, err := os.Stat(e.work)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExecCommandWithPlatformEnv(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	e := newEnv(t)
	e.installArm(t)

	code, out, errOut := run(t, "--config", e.config, "--platform", "zynq",
		"exec", "-C", e.dir, "--", `echo "$ARCH:$CROSS_COMPILE:$PWD"`)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "arm:arm-none-linux-gnueabihf-:"+e.dir)
}

func TestLogCommandPrintsWhenNotATerminal(t *testing.T) {
	e := newEnv(t)
	logFile := filepath.Join(e.dir, "build.log")
	require.NoError(t, os.WriteFile(logFile, []byte("line one\nline two\n"), 0o644))

	code, out, errOut := run(t, "--config", e.config, "log", "--file", logFile)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "line one\nline two\n", out)
}

func TestLogCommandWithoutLogFile(t *testing.T) {
	e := newEnv(t)

	code, _, errOut := run(t, "--config", e.config, "log")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no build log configured")
}

func TestUnknownPlatform(t *testing.T) {
	e := newEnv(t)

	code, _, errOut := run(t, "--config", e.config, "--platform", "pdp11", "make")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, `unknown platform "pdp11"`)
}

func TestKinds(t *testing.T) {
	assert.Empty(t, kinds([]string{""}))
	assert.NotNil(t, kinds(nil))
	assert.Equal(t, 2, len(kinds([]string{"arm", " system "})))
}
