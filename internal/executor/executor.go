// Package executor runs build commands, or records them into a shell script
// for later execution. Both behaviors sit behind the Executor interface so
// build steps are written once and never branch on the mode.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"adibuild/internal/environ"
)

// Executor runs or records commands. One Executor serves one sequential
// build session; it is not safe for concurrent use.
type Executor interface {
	// Execute runs command through bash -c.
	Execute(ctx context.Context, command string, opts ...Option) (*Result, error)
	// ExecuteArgs runs argv directly, without a shell.
	ExecuteArgs(ctx context.Context, argv []string, opts ...Option) (*Result, error)
	// WorkDir is read at call time; SetWorkDir redirects every later call.
	WorkDir() string
	SetWorkDir(dir string)
}

// Result describes one finished command. Stderr is always merged into Stdout.
type Result struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

func (r *Result) Success() bool { return r.ExitCode == 0 }
func (r *Result) Failed() bool  { return r.ExitCode != 0 }

func (r *Result) DurationSeconds() float64 { return r.Duration.Seconds() }

type callOptions struct {
	env     environ.Env
	stream  bool
	capture bool
}

func newCallOptions(opts []Option) callOptions {
	o := callOptions{stream: true, capture: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option tunes a single Execute call.
type Option func(*callOptions)

// WithEnv merges env over the process environment for this call. Repeated
// options merge in order.
func WithEnv(env environ.Env) Option {
	return func(o *callOptions) { o.env = o.env.Merge(env) }
}

// WithoutStream keeps output off the console.
func WithoutStream() Option {
	return func(o *callOptions) { o.stream = false }
}

// WithoutCapture leaves Result.Stdout empty.
func WithoutCapture() Option {
	return func(o *callOptions) { o.capture = false }
}

// ErrBuild matches BuildError and MissingToolsError via errors.Is.
var ErrBuild = errors.New("build error")

const maxReportedErrors = 5

// BuildError reports a command that exited non-zero.
type BuildError struct {
	Command  string
	ExitCode int
	// Errors holds up to five distinct error lines from the output.
	Errors []string
	// More counts the distinct error lines left out of Errors.
	More int
}

func newBuildError(r *Result) *BuildError {
	errs := extractErrors(r.Stdout)
	e := &BuildError{Command: r.Command, ExitCode: r.ExitCode}
	if len(errs) > maxReportedErrors {
		e.More = len(errs) - maxReportedErrors
		errs = errs[:maxReportedErrors]
	}
	e.Errors = errs
	return e
}

func (e *BuildError) Error() string {
	tool, _, _ := strings.Cut(e.Command, " ")
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed with return code %d", tool, e.ExitCode)
	if len(e.Errors) > 0 {
		b.WriteString("\n\nErrors found:")
		for _, line := range e.Errors {
			b.WriteString("\n  • " + line)
		}
		if e.More > 0 {
			fmt.Fprintf(&b, "\n  ... and %d more errors", e.More)
		}
	}
	return b.String()
}

func (e *BuildError) Is(target error) bool { return target == ErrBuild }

// MissingToolsError names every required tool that was not found.
type MissingToolsError struct {
	Tools []string
}

func (e *MissingToolsError) Error() string {
	return fmt.Sprintf("required tools not found: %s. Please install these tools before continuing",
		strings.Join(e.Tools, ", "))
}

func (e *MissingToolsError) Is(target error) bool { return target == ErrBuild }

// MakeOptions describes one make invocation.
type MakeOptions struct {
	// Target is omitted from argv when empty.
	Target string
	// Jobs adds -jN when greater than one.
	Jobs int
	// Args go after the jobs flag and before the target.
	Args []string
}

// MakeArgs builds the make argv: make [-jN] [args...] [target].
func MakeArgs(mo MakeOptions) []string {
	argv := []string{"make"}
	if mo.Jobs > 1 {
		argv = append(argv, "-j"+strconv.Itoa(mo.Jobs))
	}
	argv = append(argv, mo.Args...)
	if mo.Target != "" {
		argv = append(argv, mo.Target)
	}
	return argv
}

// Make runs make and turns a non-zero exit into a *BuildError.
func Make(ctx context.Context, e Executor, mo MakeOptions, opts ...Option) (*Result, error) {
	return checked(e.ExecuteArgs(ctx, MakeArgs(mo), opts...))
}

// CMake runs cmake with args from buildDir. The previous working directory is
// restored afterwards, also when cmake fails.
func CMake(ctx context.Context, e Executor, args []string, buildDir string, opts ...Option) (*Result, error) {
	prev := e.WorkDir()
	e.SetWorkDir(buildDir)
	defer e.SetWorkDir(prev)

	return checked(e.ExecuteArgs(ctx, append([]string{"cmake"}, args...), opts...))
}

func checked(r *Result, err error) (*Result, error) {
	if err != nil {
		return r, err
	}
	if r.Failed() {
		return r, newBuildError(r)
	}
	return r, nil
}

// CheckTool fails when tool is not on PATH.
func CheckTool(ctx context.Context, e Executor, tool string) error {
	r, err := e.ExecuteArgs(ctx, []string{"which", tool}, WithoutStream())
	if err != nil {
		return err
	}
	if r.Failed() {
		return &MissingToolsError{Tools: []string{tool}}
	}
	return nil
}

// CheckTools checks every tool and reports all missing ones in one error.
func CheckTools(ctx context.Context, e Executor, tools []string) error {
	var missing []string
	for _, tool := range tools {
		err := CheckTool(ctx, e, tool)
		var mt *MissingToolsError
		switch {
		case err == nil:
		case errors.As(err, &mt):
			missing = append(missing, tool)
		default:
			return err
		}
	}
	if len(missing) > 0 {
		return &MissingToolsError{Tools: missing}
	}
	return nil
}

var (
	_ Executor = (*RealExecutor)(nil)
	_ Executor = (*ScriptRecorder)(nil)
)
