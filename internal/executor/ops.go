package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"adibuild/internal/fetch"
	"adibuild/internal/logging"
)

// Mode selects between performing side effects and recording them.
type Mode int

const (
	ModeReal Mode = iota
	ModeScript
)

func (m Mode) String() string {
	if m == ModeScript {
		return "script"
	}
	return "real"
}

// Operations performs file side effects in the current mode: directly in
// ModeReal, as recorded commands in ModeScript.
type Operations struct {
	exec   Executor
	mode   Mode
	fetch  fetch.Options
	logger *zap.Logger
}

func NewOperations(e Executor, mode Mode, fo fetch.Options, logger *zap.Logger) *Operations {
	return &Operations{
		exec:   e,
		mode:   mode,
		fetch:  fo,
		logger: logging.Named(logger, "executor.ops"),
	}
}

func (o *Operations) Mode() Mode { return o.mode }

// CopyFile copies src to dst, keeping the file mode. dst's parent directory
// is created as needed, in both modes.
func (o *Operations) CopyFile(ctx context.Context, src, dst string) error {
	if o.mode == ModeScript {
		cmd := mkdirParent(dst) + " && " + shellquote.Join("cp", src, dst)
		_, err := o.exec.Execute(ctx, cmd)
		return err
	}

	o.logger.Debug("copying", zap.String("src", src), zap.String("dst", dst))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	return copyFile(src, dst)
}

// DownloadFile fetches url to dst, creating dst's parent directory. Recorded
// scripts try wget, then curl.
func (o *Operations) DownloadFile(ctx context.Context, url, dst string) error {
	if o.mode == ModeScript {
		cmd := mkdirParent(dst) + " && { " + shellquote.Join("wget", "-O", dst, url) +
			" || " + shellquote.Join("curl", "-L", "-o", dst, url) + "; }"
		_, err := o.exec.Execute(ctx, cmd)
		return err
	}

	o.logger.Info("downloading", zap.String("url", url), zap.String("dst", dst))
	return fetch.File(ctx, url, dst, o.fetch)
}

// MakeDirectory creates dir and its parents.
func (o *Operations) MakeDirectory(ctx context.Context, dir string) error {
	if o.mode == ModeScript {
		_, err := o.exec.ExecuteArgs(ctx, []string{"mkdir", "-p", dir})
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

func mkdirParent(path string) string {
	return shellquote.Join("mkdir", "-p", filepath.Dir(path))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode().Perm())
}
