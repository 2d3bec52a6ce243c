package executor

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adibuild/internal/environ"
	"adibuild/internal/fetch"
)

func newRecorder(t *testing.T) (*ScriptRecorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "build_linux_arm.sh")
	rec, err := NewScriptRecorder(path, "", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })
	return rec, path
}

func TestScriptRecorderBlockOrder(t *testing.T) {
	rec, path := newRecorder(t)
	rec.SetWorkDir("/work/linux")

	r, err := rec.Execute(context.Background(), "echo hi", WithEnv(environ.New("A", "b")))
	require.NoError(t, err)
	assert.True(t, r.Success())

	body := strings.TrimPrefix(readFile(t, path), ScriptHeader)
	assert.Equal(t, "\nmkdir -p '/work/linux'\ncd '/work/linux'\nexport A='b'\necho hi\n", body)
}

func TestScriptRecorderAlwaysSucceeds(t *testing.T) {
	rec, path := newRecorder(t)

	r, err := rec.Execute(context.Background(), "exit 42 && this-is-not-a-command ((")
	require.NoError(t, err)
	assert.Equal(t, 0, r.ExitCode)

	_, err = Make(context.Background(), rec, MakeOptions{Target: "does-not-exist", Jobs: 16})
	require.NoError(t, err)

	err = CheckTools(context.Background(), rec, []string{"surely-missing-tool"})
	require.NoError(t, err)

	content := readFile(t, path)
	assert.Contains(t, content, "make -j16 does-not-exist\n")
	assert.Contains(t, content, "which surely-missing-tool\n")
}

func TestScriptRecorderQuoting(t *testing.T) {
	rec, path := newRecorder(t)

	_, err := rec.ExecuteArgs(context.Background(), []string{"make", "KCFLAGS=-O2 -g", "uImage"},
		WithEnv(environ.New("CROSS_COMPILE", "arm-linux-gnueabihf-", "MSG", "it's")))
	require.NoError(t, err)

	content := readFile(t, path)
	assert.Contains(t, content, "export CROSS_COMPILE='arm-linux-gnueabihf-'\n")
	assert.Contains(t, content, `export MSG='it'\''s'`+"\n")
	assert.Contains(t, content, "make 'KCFLAGS=-O2 -g' uImage\n")
	assert.NotContains(t, content, "mkdir -p")
}

func TestScriptRecorderCMakeSwitchesDirectory(t *testing.T) {
	rec, path := newRecorder(t)
	rec.SetWorkDir("/src/libiio")

	_, err := CMake(context.Background(), rec, []string{"-DWITH_TESTS=OFF", ".."}, "/src/libiio/build")
	require.NoError(t, err)
	_, err = rec.Execute(context.Background(), "true")
	require.NoError(t, err)

	body := strings.TrimPrefix(readFile(t, path), ScriptHeader)
	assert.Equal(t, "\nmkdir -p '/src/libiio/build'\ncd '/src/libiio/build'\ncmake -DWITH_TESTS=OFF ..\n"+
		"\nmkdir -p '/src/libiio'\ncd '/src/libiio'\ntrue\n", body)
}

func TestScriptRecorderSetupFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, writeString(blocker, "x"))

	_, err := NewScriptRecorder(filepath.Join(blocker, "build.sh"), "", zap.NewNop())
	assert.Error(t, err)
}

func TestOperationsScriptMode(t *testing.T) {
	rec, path := newRecorder(t)
	ops := NewOperations(rec, ModeScript, fetch.Options{}, zap.NewNop())

	require.NoError(t, ops.MakeDirectory(context.Background(), "/out/boot dir"))
	require.NoError(t, ops.CopyFile(context.Background(), "/work/arch/arm/boot/uImage", "/out/boot dir/uImage"))
	require.NoError(t, ops.DownloadFile(context.Background(), "https://example.com/rootfs.cpio.gz", "/work/dl/rootfs.cpio.gz"))

	content := readFile(t, path)
	assert.Contains(t, content, "mkdir -p '/out/boot dir'\n")
	assert.Contains(t, content, "mkdir -p '/out/boot dir' && cp /work/arch/arm/boot/uImage '/out/boot dir/uImage'\n")
	assert.Contains(t, content, "mkdir -p /work/dl && { wget -O /work/dl/rootfs.cpio.gz https://example.com/rootfs.cpio.gz || "+
		"curl -L -o /work/dl/rootfs.cpio.gz https://example.com/rootfs.cpio.gz; }\n")
	assert.Equal(t, ModeScript, ops.Mode())
}

func TestRecordedCopyCreatesParentLikeRealMode(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	rec, path := newRecorder(t)
	ops := NewOperations(rec, ModeScript, fetch.Options{}, zap.NewNop())

	root := t.TempDir()
	src := filepath.Join(root, "uImage")
	require.NoError(t, writeString(src, "kernel"))
	dst := filepath.Join(root, "out", "boot", "uImage")

	require.NoError(t, ops.CopyFile(context.Background(), src, dst))
	require.NoError(t, rec.Close())

	out, err := exec.Command("bash", path).CombinedOutput()
	require.NoError(t, err, string(out))
	assert.Equal(t, "kernel", readFile(t, dst))
}
