package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"adibuild/internal/build"
	"adibuild/internal/executor"
	"adibuild/internal/toolchain"
)

func (a *app) toolchainCommand() *cobra.Command {
	var (
		prefer    string
		fallbacks []string
		strict    bool
	)
	cmd := &cobra.Command{
		Use:   "toolchain",
		Short: "Select a toolchain and show what was found",
		Long: `Walks the toolchain chain (Vivado, Arm GNU, system, bare-metal) and
prints the first toolchain found. With --platform the chain comes from the
platform configuration; otherwise from --prefer and --fallback.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := a.platform(ctx)
			if err != nil {
				return err
			}

			var d *toolchain.Descriptor
			if p != nil {
				d, err = p.Toolchain(ctx, a.toolVersion)
			} else {
				sel, serr := a.selector(ctx)
				if serr != nil {
					return serr
				}
				req := toolchain.Request{
					Preferred:   toolchain.Kind(prefer),
					VersionHint: a.toolVersion,
					Strict:      strict,
				}
				if cmd.Flags().Changed("fallback") {
					req.Fallbacks = kinds(fallbacks)
				}
				d, err = sel.Select(ctx, req)
			}
			if err != nil {
				return err
			}
			a.printDescriptor(d)
			return nil
		},
	}
	cmd.Flags().StringVar(&prefer, "prefer", string(toolchain.KindVivado), "preferred toolchain type")
	cmd.Flags().StringSliceVar(&fallbacks, "fallback", nil, "fallback toolchain types in order (default arm,system)")
	cmd.Flags().BoolVar(&strict, "strict", false, "only accept the requested Vivado version")

	cmd.AddCommand(a.toolchainFetchCommand(), a.toolchainPathsCommand())
	return cmd
}

func kinds(names []string) []toolchain.Kind {
	out := make([]toolchain.Kind, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, toolchain.Kind(n))
		}
	}
	return out
}

func (a *app) printDescriptor(d *toolchain.Descriptor) {
	arrowf(a.out, colSuccess, "%s toolchain %s (%s)", d.Kind(), d.Version(), d.Kind().Variant())
	fmt.Fprintf(a.out, "  path: %s\n", d.InstallPath())

	prefixes := d.Prefixes()
	archs := make([]string, 0, len(prefixes))
	for arch := range prefixes {
		archs = append(archs, string(arch))
	}
	slices.Sort(archs)
	for _, arch := range archs {
		fmt.Fprintf(a.out, "  %-12s %s\n", arch, prefixes[toolchain.Arch(arch)])
	}

	for _, v := range d.Env().Vars() {
		fmt.Fprintf(a.out, "  %s=%s\n", v.Key, v.Value)
	}

	if d.Kind() == toolchain.KindArm {
		a.printStamps(toolchain.NewArm(d.InstallPath(), "", a.logger).Installed())
	}
}

func (a *app) printStamps(dirs []string) {
	for _, dir := range dirs {
		st, err := toolchain.ReadStamp(dir)
		if err != nil {
			continue
		}
		fmt.Fprintf(a.out, "  %s: blake3 %s from %s\n", filepath.Base(dir), st.Digest, st.Mirror)
	}
}

func (a *app) toolchainFetchCommand() *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the Arm GNU toolchain into the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			mirrors, err := a.armMirrors(ctx)
			if err != nil {
				return err
			}
			if version == "" {
				version = a.cfg.Toolchain.ArmVersion
			}
			arm := toolchain.NewArm(a.cfg.Toolchain.CacheDir, version, a.logger)
			arm.Mirrors = mirrors

			d, err := arm.Acquire(ctx, a.toolVersion)
			if err != nil {
				return err
			}
			a.printDescriptor(d)
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "Arm GNU release, e.g. 13.3.rel1")
	return cmd
}

func (a *app) toolchainPathsCommand() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "List the directories searched for Vivado/Vitis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := toolchain.NewVivado(a.toolVersion, strict, a.logger)
			for _, dir := range v.Candidates() {
				fmt.Fprintln(a.out, dir)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "only list the --tool-version release")
	return cmd
}

func (a *app) execCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "exec -- command [args...]",
		Short: "Run a command with the platform toolchain environment",
		Long: `A single argument runs through bash -c; several run directly.
The command's exit code becomes adibuild's exit code.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.session(ctx, dir, 0)
			if err != nil {
				return err
			}
			defer s.Close()

			var r *executor.Result
			if len(args) == 1 {
				r, err = s.Run(ctx, args[0])
			} else {
				r, err = s.RunArgs(ctx, args)
			}
			if err != nil {
				return err
			}
			if err := s.Close(); err != nil {
				return err
			}
			if r.Failed() {
				return &exitError{code: r.ExitCode}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "C", "", "working directory")
	return cmd
}

func (a *app) makeCommand() *cobra.Command {
	var (
		dir  string
		jobs int
	)
	cmd := &cobra.Command{
		Use:   "make [target] [VAR=value...]",
		Short: "Run make with ARCH and CROSS_COMPILE set for the platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.session(ctx, dir, jobs)
			if err != nil {
				return err
			}
			defer s.Close()

			var target string
			var vars []string
			for _, arg := range args {
				if strings.Contains(arg, "=") || target != "" {
					vars = append(vars, arg)
				} else {
					target = arg
				}
			}
			if _, err := s.Make(ctx, target, vars...); err != nil {
				return err
			}
			if err := s.Close(); err != nil {
				return err
			}
			arrowf(a.out, colSuccess, "make %s finished", target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "C", "", "working directory")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "parallel jobs (default from config)")
	return cmd
}

func (a *app) checkToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-tools [tool...]",
		Short: "Check that build tools are installed",
		Long: `Without arguments, checks the standard build tools and, with --platform,
that the platform toolchain supports its architecture.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.session(ctx, "", 0)
			if err != nil {
				return err
			}
			defer s.Close()

			if len(args) == 0 {
				err = s.ValidateEnvironment(ctx)
				args = build.RequiredTools
			} else {
				err = executor.CheckTools(ctx, s.Executor(), args)
			}
			if err != nil {
				return err
			}
			if err := s.Close(); err != nil {
				return err
			}
			if s.Mode() == executor.ModeScript {
				arrowf(a.out, colInfo, "Recorded checks for %s", strings.Join(args, ", "))
				return nil
			}
			arrowf(a.out, colSuccess, "All tools found: %s", strings.Join(args, ", "))
			return nil
		},
	}
}

func (a *app) logCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the build log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = a.cfg.Build.LogFile
			}
			if file == "" {
				return errors.New("no build log configured; set build.log_file or pass --file")
			}
			lines, err := readLines(file)
			if err != nil {
				return err
			}
			return runPager(a.out, filepath.Base(file), lines)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "log file to show")
	return cmd
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
