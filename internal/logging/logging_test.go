package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "adibuild.log")
	l, err := New(Options{File: path})
	require.NoError(t, err)

	l.Debug("hello", zap.String("k", "v"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestSetDefaultRestores(t *testing.T) {
	before := zap.L()
	l := zap.NewExample()

	restore := SetDefault(l)
	assert.Same(t, l, zap.L())

	restore()
	assert.Same(t, before, zap.L())
}

func TestNamedFallsBackToDefault(t *testing.T) {
	assert.NotNil(t, Named(nil, "executor"))
}
