// Package cli implements the adibuild command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adibuild/internal/build"
	"adibuild/internal/config"
	"adibuild/internal/executor"
	"adibuild/internal/fetch"
	"adibuild/internal/logging"
	"adibuild/internal/platform"
	"adibuild/internal/toolchain"
)

// app carries the global flags and whatever they resolve to.
type app struct {
	configPath   string
	debug        bool
	logJSON      string
	platformName string
	toolVersion  string
	script       string
	quiet        bool

	out    io.Writer
	errOut io.Writer

	cfg     *config.Config
	logger  *zap.Logger
	restore func()
}

// exitError carries a command's own exit code up to Main.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Main is the entrypoint for the adibuild binary.
func Main() {
	ctx, stop := signalContext(context.Background())
	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Run executes the command line args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{out: stdout, errOut: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	a.close()
	if err == nil {
		return 0
	}
	return a.report(ctx, err)
}

func (a *app) report(ctx context.Context, err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if ctx.Err() != nil {
		arrowf(a.errOut, colError, "Aborted: %v", err)
		return 130
	}
	arrowf(a.errOut, colError, "Error: %v", err)
	var be *executor.BuildError
	if errors.As(err, &be) && be.ExitCode > 0 {
		return be.ExitCode
	}
	return 1
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "adibuild",
		Short:         "Build Linux and HDL projects for ADI platforms",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "configuration file (default ~/.adibuild/config.yaml)")
	pf.BoolVarP(&a.debug, "debug", "d", false, "enable debug logging")
	pf.StringVar(&a.logJSON, "log-json", "", "also write JSON log records to this file")
	pf.StringVarP(&a.platformName, "platform", "p", "", "target platform")
	pf.StringVar(&a.toolVersion, "tool-version", "", "Vivado/Vitis release to build with")
	pf.StringVar(&a.script, "script", "", "record commands into this script instead of running them")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "hide download progress")

	root.AddCommand(
		a.toolchainCommand(),
		a.execCommand(),
		a.makeCommand(),
		a.checkToolsCommand(),
		a.logCommand(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Options{Debug: a.debug || cfg.Debug, File: a.logJSON})
	if err != nil {
		return err
	}
	a.logger = logger
	a.restore = logging.SetDefault(logger)
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.restore != nil {
		a.restore()
	}
}

func (a *app) fetchOptions() fetch.Options {
	return fetch.Options{Quiet: a.quiet}
}

// armMirrors returns the configured HTTP mirrors followed by the S3 mirror
// when one is configured.
func (a *app) armMirrors(ctx context.Context) ([]toolchain.Mirror, error) {
	bases := a.cfg.Toolchain.Mirrors
	if len(bases) == 0 {
		bases = toolchain.DefaultArmMirrorBases()
	}
	var s3m *toolchain.S3Mirror
	if a.cfg.Toolchain.S3.Enabled() {
		m, err := toolchain.NewS3Mirror(ctx, a.cfg.Toolchain.S3)
		if err != nil {
			return nil, err
		}
		s3m = m
	}
	return toolchain.MirrorsFor(bases, s3m, a.quiet), nil
}

func (a *app) selector(ctx context.Context) (*toolchain.Selector, error) {
	mirrors, err := a.armMirrors(ctx)
	if err != nil {
		return nil, err
	}
	settings := toolchain.Settings{
		CacheDir:   a.cfg.Toolchain.CacheDir,
		ArmVersion: a.cfg.Toolchain.ArmVersion,
		ArmMirrors: mirrors,
	}
	return toolchain.NewSelector(toolchain.NewFactory(settings, a.logger), a.logger), nil
}

// platform returns nil when no platform was named.
func (a *app) platform(ctx context.Context) (*platform.Platform, error) {
	if a.platformName == "" {
		return nil, nil
	}
	pc, err := a.cfg.Platform(a.platformName)
	if err != nil {
		return nil, err
	}
	if a.toolVersion != "" {
		pc.ToolVersion = a.toolVersion
	}
	sel, err := a.selector(ctx)
	if err != nil {
		return nil, err
	}
	return platform.New(a.platformName, pc, sel, a.logger), nil
}

// session builds the session for one command. dir overrides the configured
// work directory, which real mode creates when missing.
func (a *app) session(ctx context.Context, dir string, jobs int) (*build.Session, error) {
	p, err := a.platform(ctx)
	if err != nil {
		return nil, err
	}
	script := a.script
	if script == "" {
		script = a.cfg.Build.Script
	}
	if dir == "" {
		dir = a.cfg.Build.WorkDir
	}
	if script == "" && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create work directory %s: %w", dir, err)
		}
	}
	if jobs <= 0 {
		jobs = a.cfg.Build.Jobs
	}
	return build.NewSession(p, build.Options{
		WorkDir: dir,
		Script:  script,
		LogFile: a.cfg.Build.LogFile,
		Jobs:    jobs,
		Output:  a.out,
		Fetch:   a.fetchOptions(),
	}, a.logger)
}
