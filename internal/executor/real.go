package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"adibuild/internal/logging"
)

var (
	colError = color.Style{color.FgRed, color.OpBold}
	colWarn  = color.Style{color.FgYellow}
)

// killGrace is how long a cancelled command gets between SIGTERM and SIGKILL.
const killGrace = 5 * time.Second

var logRule = strings.Repeat("=", 80)

// RealConfig configures a RealExecutor.
type RealConfig struct {
	WorkDir string
	// LogFile, when set, receives every command's output between a banner and
	// a footer. The file is only ever appended to.
	LogFile string
	// Output receives streamed lines. Defaults to os.Stdout.
	Output io.Writer
	Logger *zap.Logger
}

// RealExecutor spawns commands and streams their output.
type RealExecutor struct {
	workDir string
	logFile string
	out     io.Writer
	logger  *zap.Logger
}

func NewRealExecutor(cfg RealConfig) (*RealExecutor, error) {
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	return &RealExecutor{
		workDir: cfg.WorkDir,
		logFile: cfg.LogFile,
		out:     out,
		logger:  logging.Named(cfg.Logger, "executor"),
	}, nil
}

func (e *RealExecutor) WorkDir() string       { return e.workDir }
func (e *RealExecutor) SetWorkDir(dir string) { e.workDir = dir }

func (e *RealExecutor) Execute(ctx context.Context, command string, opts ...Option) (*Result, error) {
	return e.run(ctx, command, []string{"bash", "-c", command}, newCallOptions(opts))
}

func (e *RealExecutor) ExecuteArgs(ctx context.Context, argv []string, opts ...Option) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrBuild)
	}
	return e.run(ctx, shellquote.Join(argv...), argv, newCallOptions(opts))
}

func (e *RealExecutor) run(ctx context.Context, display string, argv []string, o callOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.logger.Info("executing", zap.String("command", display), zap.String("dir", e.workDir))

	var log io.Writer = io.Discard
	if e.logFile != "" {
		f, err := os.OpenFile(e.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", e.logFile, err)
		}
		defer f.Close()
		log = f
		fmt.Fprintf(log, "\n%s\nCommand: %s\nTime: %s\n%s\n\n",
			logRule, display, time.Now().Format("2006-01-02 15:04:05"), logRule)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	defer pr.Close()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = e.workDir
	cmd.Env = o.env.Environ()
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("%w: failed to execute %s: %w", ErrBuild, display, err)
	}
	// only the child holds the write end now
	pw.Close()

	done := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		killGroup(ctx, cmd.Process.Pid, done)
	}()

	lines, readErr := e.pump(pr, log, o)
	waitErr := cmd.Wait()
	close(done)
	<-watcherDone
	duration := time.Since(start)

	res := &Result{
		Command:  display,
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: duration,
	}
	if o.capture {
		res.Stdout = strings.Join(lines, "\n")
	}
	fmt.Fprintf(log, "\nReturn code: %d\nDuration: %.1fs\n", res.ExitCode, duration.Seconds())

	if ctx.Err() != nil {
		e.logger.Warn("command interrupted", zap.String("command", display))
		return res, fmt.Errorf("command aborted: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return res, fmt.Errorf("%w: %s: %w", ErrBuild, display, waitErr)
	}
	if readErr != nil {
		return res, fmt.Errorf("failed to read output of %s: %w", display, readErr)
	}

	if res.Success() {
		e.logger.Info(fmt.Sprintf("command completed successfully in %.1fs", duration.Seconds()))
	} else {
		e.logger.Error(fmt.Sprintf("command failed with return code %d after %.1fs", res.ExitCode, duration.Seconds()))
	}
	return res, nil
}

// pump reads merged output until the child closes its end of the pipe.
func (e *RealExecutor) pump(r io.Reader, log io.Writer, o callOptions) ([]string, error) {
	var lines []string
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			if o.capture {
				lines = append(lines, line)
			}
			if o.stream {
				fmt.Fprintln(e.out, styleLine(line))
			}
			fmt.Fprintln(log, line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, nil
			}
			return lines, err
		}
	}
}

func styleLine(line string) string {
	switch Classify(line) {
	case ClassError:
		return colError.Sprint(line)
	case ClassWarning:
		return colWarn.Sprint(line)
	}
	return line
}

// killGroup terminates the process group pgid when ctx is cancelled before
// done closes: SIGTERM first, SIGKILL after killGrace.
func killGroup(ctx context.Context, pgid int, done <-chan struct{}) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}
	_ = unix.Kill(-pgid, unix.SIGTERM)

	t := time.NewTimer(killGrace)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		_ = unix.Kill(-pgid, unix.SIGKILL)
	}
}
