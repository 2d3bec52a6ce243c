package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"adibuild/internal/environ"
	"adibuild/internal/executor"
	"adibuild/internal/platform"
	"adibuild/internal/toolchain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticSelector struct {
	d     *toolchain.Descriptor
	err   error
	calls int
}

func (s *staticSelector) Select(context.Context, toolchain.Request) (*toolchain.Descriptor, error) {
	s.calls++
	return s.d, s.err
}

func armDescriptor() *toolchain.Descriptor {
	return toolchain.NewDescriptor(toolchain.KindArm, "12.2.rel1", "/opt/arm",
		environ.New("PATH", "/opt/arm/bin:/usr/bin"),
		map[toolchain.Arch]string{toolchain.ArchARM: "arm-none-linux-gnueabihf-"})
}

func scriptSession(t *testing.T, sel platform.Selector, arch string) (*Session, string) {
	t.Helper()
	script := filepath.Join(t.TempDir(), "build_zynq.sh")
	p := platform.New("zynq", platform.Config{Arch: arch}, sel, zap.NewNop())
	s, err := NewSession(p, Options{WorkDir: "/work/linux", Script: script, Jobs: 4}, zap.NewNop())
	require.NoError(t, err)
	return s, script
}

func readScript(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestSessionScriptMode(t *testing.T) {
	sel := &staticSelector{d: armDescriptor()}
	s, script := scriptSession(t, sel, "arm")
	ctx := context.Background()

	assert.Equal(t, executor.ModeScript, s.Mode())
	require.NotNil(t, s.Recorder())

	require.NoError(t, s.ValidateEnvironment(ctx))
	_, err := s.Make(ctx, "uImage", "LOADADDR=0x8000")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	content := readScript(t, script)
	assert.True(t, strings.HasPrefix(content, executor.ScriptHeader))
	for _, tool := range RequiredTools {
		assert.Contains(t, content, "which "+tool+"\n")
	}
	assert.Contains(t, content, "export PATH='/opt/arm/bin:/usr/bin'\nexport ARCH='arm'\nexport CROSS_COMPILE='arm-none-linux-gnueabihf-'\nmake -j4 LOADADDR=0x8000 uImage\n")
	assert.Equal(t, 1, sel.calls)
}

func TestSessionValidateRejectsUnsupportedArch(t *testing.T) {
	s, _ := scriptSession(t, &staticSelector{d: armDescriptor()}, "arm64")
	t.Cleanup(func() { _ = s.Close() })

	err := s.ValidateEnvironment(context.Background())
	assert.ErrorIs(t, err, platform.ErrPlatform)
}

func TestSessionSelectionFailure(t *testing.T) {
	boom := errors.New("no toolchain")
	s, _ := scriptSession(t, &staticSelector{err: boom}, "arm")
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.Make(context.Background(), "all")
	assert.ErrorIs(t, err, boom)
}

func TestSessionWithoutPlatform(t *testing.T) {
	script := filepath.Join(t.TempDir(), "tools.sh")
	s, err := NewSession(nil, Options{Script: script}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.ValidateEnvironment(ctx))

	env, err := s.Env(ctx, environ.New("V", "1"))
	require.NoError(t, err)
	assert.True(t, env.Equal(environ.New("V", "1")))

	_, err = s.Run(ctx, "echo done")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Contains(t, readScript(t, script), "\necho done\n")
}

func TestSessionRealMode(t *testing.T) {
	s, err := NewSession(nil, Options{WorkDir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, executor.ModeReal, s.Mode())
	assert.Nil(t, s.Recorder())
	assert.NoError(t, s.Close())
}
