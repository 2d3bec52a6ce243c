package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"adibuild/internal/logging"
)

// ScriptHeader opens every recorded script.
const ScriptHeader = "#!/bin/bash\n# Generated by adibuild\nset -e\nset -x\n"

// ScriptRecorder appends commands to a bash script instead of running them.
// Every call reports success; failures surface when the script is run.
type ScriptRecorder struct {
	path    string
	f       *os.File
	workDir string
	logger  *zap.Logger
}

// NewScriptRecorder creates (or truncates) the script at path and writes the
// header.
func NewScriptRecorder(path, workDir string, logger *zap.Logger) (*ScriptRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create script directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create script %s: %w", path, err)
	}
	if _, err := f.WriteString(ScriptHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write script header: %w", err)
	}
	return &ScriptRecorder{
		path:    path,
		f:       f,
		workDir: workDir,
		logger:  logging.Named(logger, "executor.script"),
	}, nil
}

func (s *ScriptRecorder) Path() string { return s.path }

func (s *ScriptRecorder) WorkDir() string       { return s.workDir }
func (s *ScriptRecorder) SetWorkDir(dir string) { s.workDir = dir }

func (s *ScriptRecorder) Execute(_ context.Context, command string, opts ...Option) (*Result, error) {
	return s.record(command, newCallOptions(opts))
}

func (s *ScriptRecorder) ExecuteArgs(_ context.Context, argv []string, opts ...Option) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrBuild)
	}
	return s.record(shellquote.Join(argv...), newCallOptions(opts))
}

func (s *ScriptRecorder) record(command string, o callOptions) (*Result, error) {
	var b strings.Builder
	b.WriteString("\n")
	if s.workDir != "" {
		fmt.Fprintf(&b, "mkdir -p %s\n", singleQuote(s.workDir))
		fmt.Fprintf(&b, "cd %s\n", singleQuote(s.workDir))
	}
	for _, v := range o.env.Vars() {
		fmt.Fprintf(&b, "export %s=%s\n", v.Key, singleQuote(v.Value))
	}
	b.WriteString(command + "\n")

	if _, err := s.f.WriteString(b.String()); err != nil {
		return nil, fmt.Errorf("failed to append to script %s: %w", s.path, err)
	}
	s.logger.Debug("recorded", zap.String("command", command))
	return &Result{Command: command}, nil
}

// Close flushes and closes the script file.
func (s *ScriptRecorder) Close() error {
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// singleQuote always quotes, so exported values read the same whatever they
// contain.
func singleQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
