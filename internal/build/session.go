// Package build wires a platform to the executor chosen for a run.
package build

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"adibuild/internal/environ"
	"adibuild/internal/executor"
	"adibuild/internal/fetch"
	"adibuild/internal/logging"
	"adibuild/internal/platform"
)

// RequiredTools must be on PATH before any build step runs.
var RequiredTools = []string{"make", "gcc", "git"}

// Options configures a Session.
type Options struct {
	WorkDir string
	// Script switches the session to script mode, recording into this path.
	Script string
	// LogFile is only used in real mode.
	LogFile string
	Jobs    int
	Output  io.Writer
	Fetch   fetch.Options
}

// Session runs build steps for one platform against a single executor.
type Session struct {
	platform *platform.Platform
	exec     executor.Executor
	ops      *executor.Operations
	recorder *executor.ScriptRecorder
	jobs     int
	logger   *zap.Logger
	closed   bool
}

// NewSession picks a RealExecutor or, when opts.Script is set, a
// ScriptRecorder. p may be nil for sessions that never touch a toolchain.
func NewSession(p *platform.Platform, opts Options, logger *zap.Logger) (*Session, error) {
	logger = logging.Named(logger, "build")
	s := &Session{platform: p, jobs: opts.Jobs, logger: logger}

	mode := executor.ModeReal
	if opts.Script != "" {
		rec, err := executor.NewScriptRecorder(opts.Script, opts.WorkDir, logger)
		if err != nil {
			return nil, err
		}
		s.exec, s.recorder = rec, rec
		mode = executor.ModeScript
		logger.Info("script mode", zap.String("script", opts.Script))
	} else {
		rx, err := executor.NewRealExecutor(executor.RealConfig{
			WorkDir: opts.WorkDir,
			LogFile: opts.LogFile,
			Output:  opts.Output,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		s.exec = rx
	}
	s.ops = executor.NewOperations(s.exec, mode, opts.Fetch, logger)
	return s, nil
}

func (s *Session) Executor() executor.Executor        { return s.exec }
func (s *Session) Operations() *executor.Operations   { return s.ops }
func (s *Session) Mode() executor.Mode                { return s.ops.Mode() }
func (s *Session) Recorder() *executor.ScriptRecorder { return s.recorder }

// ValidateEnvironment checks the required host tools, then the platform
// toolchain. In script mode the tool checks land in the script.
func (s *Session) ValidateEnvironment(ctx context.Context) error {
	if err := executor.CheckTools(ctx, s.exec, RequiredTools); err != nil {
		return err
	}
	if s.platform == nil {
		return nil
	}
	return s.platform.ValidateToolchain(ctx)
}

// Env returns the platform make environment merged with extra.
func (s *Session) Env(ctx context.Context, extra environ.Env) (environ.Env, error) {
	if s.platform == nil {
		return extra.Clone(), nil
	}
	env, err := s.platform.MakeEnv(ctx)
	if err != nil {
		return environ.Env{}, err
	}
	return env.Merge(extra), nil
}

// Make runs make for target with the platform environment and the session
// job count.
func (s *Session) Make(ctx context.Context, target string, args ...string) (*executor.Result, error) {
	env, err := s.Env(ctx, environ.Env{})
	if err != nil {
		return nil, err
	}
	return executor.Make(ctx, s.exec, executor.MakeOptions{
		Target: target,
		Jobs:   s.jobs,
		Args:   args,
	}, executor.WithEnv(env))
}

// Run executes command through the shell with the platform environment.
func (s *Session) Run(ctx context.Context, command string) (*executor.Result, error) {
	env, err := s.Env(ctx, environ.Env{})
	if err != nil {
		return nil, err
	}
	return s.exec.Execute(ctx, command, executor.WithEnv(env))
}

// RunArgs executes argv directly with the platform environment.
func (s *Session) RunArgs(ctx context.Context, argv []string) (*executor.Result, error) {
	env, err := s.Env(ctx, environ.Env{})
	if err != nil {
		return nil, err
	}
	return s.exec.ExecuteArgs(ctx, argv, executor.WithEnv(env))
}

// Close finishes the recorded script, if any. Later calls do nothing.
func (s *Session) Close() error {
	if s.recorder == nil || s.closed {
		return nil
	}
	s.closed = true
	if err := s.recorder.Close(); err != nil {
		return fmt.Errorf("failed to close script %s: %w", s.recorder.Path(), err)
	}
	s.logger.Info("script written", zap.String("path", s.recorder.Path()))
	return nil
}
