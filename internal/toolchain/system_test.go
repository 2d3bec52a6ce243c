package toolchain

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCompiler writes an executable that prints a gcc style banner.
func fakeCompiler(t *testing.T, dir, name, banner string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	script := "#!/bin/sh\necho '" + banner + "'\necho 'Copyright (C) 2022 Free Software Foundation, Inc.'\n"
	require.NoError(t, os.WriteFile(p, []byte(script), 0o755))
	return p
}

func lookIn(found map[string]string) func(string) (string, error) {
	return func(name string) (string, error) {
		if p, ok := found[name]; ok {
			return p, nil
		}
		return "", exec.ErrNotFound
	}
}

func TestGCCVersion(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()

	gcc := fakeCompiler(t, dir, "aarch64-linux-gnu-gcc", "aarch64-linux-gnu-gcc (Ubuntu 11.4.0-1ubuntu1~22.04) 11.4.0")
	assert.Equal(t, "11.4.0", gccVersion(context.Background(), gcc))

	odd := fakeCompiler(t, dir, "odd-gcc", "odd-gcc custom build")
	assert.Equal(t, UnknownVersion, gccVersion(context.Background(), odd))

	assert.Equal(t, UnknownVersion, gccVersion(context.Background(), filepath.Join(dir, "missing-gcc")))
}

func TestSystemDetectOnPath(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	bin := t.TempDir()
	fakeCompiler(t, bin, "arm-linux-gnueabihf-gcc", "arm-linux-gnueabihf-gcc (Debian 12.2.0-14) 12.2.0")
	t.Setenv("PATH", bin)

	s := NewSystem(zap.NewNop())
	d, err := s.Detect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, KindSystem, d.Kind())
	assert.Equal(t, "12.2.0", d.Version())
	assert.Equal(t, "/usr", d.InstallPath())
	assert.Zero(t, d.Env().Len())

	_, ok := d.Prefix(ArchARM64)
	assert.False(t, ok, "absent compilers must not get a prefix")

	again, err := s.Detect(context.Background())
	require.NoError(t, err)
	assert.True(t, d.Equal(again))

	p, err := s.CrossCompile(context.Background(), ArchARM)
	require.NoError(t, err)
	assert.Equal(t, "arm-linux-gnueabihf-", p)

	_, err = s.CrossCompile(context.Background(), ArchARM64)
	assert.ErrorIs(t, err, ErrToolchain)
}

func TestSystemDetectBothCompilers(t *testing.T) {
	s := NewSystem(zap.NewNop())
	s.lookPath = lookIn(map[string]string{
		"arm-linux-gnueabihf-gcc": "/usr/bin/arm-linux-gnueabihf-gcc",
		"aarch64-linux-gnu-gcc":   "/usr/bin/aarch64-linux-gnu-gcc",
	})
	var asked []string
	s.version = func(_ context.Context, gcc string) string {
		asked = append(asked, gcc)
		return "13.2.0"
	}

	d, err := s.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[Arch]string{
		ArchARM:   "arm-linux-gnueabihf-",
		ArchARM64: "aarch64-linux-gnu-",
	}, d.Prefixes())
	assert.Equal(t, []string{"/usr/bin/arm-linux-gnueabihf-gcc"}, asked)
}

func TestSystemDetectAbsent(t *testing.T) {
	s := NewSystem(zap.NewNop())
	s.lookPath = lookIn(nil)

	d, err := s.Detect(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, d)
}

func TestBareMetalDetect(t *testing.T) {
	b := NewBareMetal(zap.NewNop())
	b.lookPath = lookIn(map[string]string{
		"arm-none-eabi-gcc": "/opt/gcc-arm-none-eabi/bin/arm-none-eabi-gcc",
	})
	b.version = func(context.Context, string) string { return "13.2.1" }

	d, err := b.Detect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, KindBareMetal, d.Kind())
	assert.Equal(t, "13.2.1", d.Version())
	assert.Equal(t, "/opt/gcc-arm-none-eabi", d.InstallPath())

	again, err := b.Detect(context.Background())
	require.NoError(t, err)
	assert.True(t, d.Equal(again))

	for _, arch := range []Arch{ArchARM, ArchBareMetal} {
		p, err := b.CrossCompile(context.Background(), arch)
		require.NoError(t, err)
		assert.Equal(t, "arm-none-eabi-", p)
	}

	_, err = b.CrossCompile(context.Background(), ArchARM64)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolchain)
	assert.Contains(t, err.Error(), "does not support arch")
}

func TestBareMetalAbsent(t *testing.T) {
	b := NewBareMetal(zap.NewNop())
	b.lookPath = lookIn(nil)

	d, err := b.Detect(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, d)

	_, err = b.CrossCompile(context.Background(), ArchBareMetal)
	var te *Error
	assert.True(t, errors.As(err, &te))
}
