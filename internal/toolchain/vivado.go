package toolchain

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"adibuild/internal/environ"
	"adibuild/internal/logging"
)

// Vivado releases probed newest first.
var vivadoVersions = [...]string{
	"2025.2", "2025.1",
	"2024.2", "2024.1",
	"2023.2", "2023.1",
	"2022.2", "2022.1",
	"2021.2", "2021.1",
}

// Install layouts; %s is the release.
var vivadoInstallLayouts = [...]string{
	"/opt/Xilinx/Vivado/%s",
	"/opt/Xilinx/Vitis/%s",
	"/opt/Xilinx/%s/Vivado",
	"/opt/Xilinx/%s/Vitis",
	"/tools/Xilinx/%s/Vivado",
	"/tools/Xilinx/%s/Vitis",
}

// Environment variables naming an install directory, highest priority first.
var vivadoOverrideVars = [...]string{"XILINX_VITIS", "XILINX_VIVADO"}

const vivadoSettingsScript = "settings64.sh"

var vivadoVersionRe = regexp.MustCompile(`^(\d{4}\.\d)`)

// Vivado finds a Xilinx Vivado/Vitis install and imports its environment by
// sourcing settings64.sh.
type Vivado struct {
	// SearchPaths overrides the computed candidate list when non-nil.
	SearchPaths      []string
	PreferredVersion string
	// Strict restricts the search to PreferredVersion.
	Strict bool

	logger  *zap.Logger
	loadEnv func(ctx context.Context, script string) (environ.Env, error)
}

// NewVivado returns a Vivado provider using the default search layout.
func NewVivado(preferredVersion string, strict bool, logger *zap.Logger) *Vivado {
	return &Vivado{
		PreferredVersion: preferredVersion,
		Strict:           strict,
		logger:           logging.Named(logger, "toolchain.vivado"),
		loadEnv:          sourceSettings,
	}
}

func (v *Vivado) Kind() Kind { return KindVivado }

// Candidates returns the install directories probed by Detect, in order.
func (v *Vivado) Candidates() []string {
	if v.SearchPaths != nil {
		return slices.Clone(v.SearchPaths)
	}
	return vivadoSearchPaths(v.PreferredVersion, v.Strict, os.Getenv)
}

// vivadoSearchPaths builds a fresh candidate list: override variables, then
// every release (preferred first) in every install layout.
func vivadoSearchPaths(preferred string, strict bool, getenv func(string) string) []string {
	var versions []string
	switch {
	case strict && preferred != "":
		versions = []string{preferred}
	default:
		versions = slices.Clone(vivadoVersions[:])
		if i := slices.Index(versions, preferred); preferred != "" && i >= 0 {
			versions = slices.Delete(versions, i, i+1)
			versions = slices.Insert(versions, 0, preferred)
		}
	}

	var paths []string
	for _, name := range vivadoOverrideVars {
		if dir := getenv(name); dir != "" {
			paths = append(paths, dir)
		}
	}
	for _, version := range versions {
		for _, layout := range vivadoInstallLayouts {
			paths = append(paths, fmt.Sprintf(layout, version))
		}
	}
	return paths
}

// Detect returns the first candidate whose settings script yields a
// non-empty environment. Later candidates are not examined.
func (v *Vivado) Detect(ctx context.Context) (*Descriptor, error) {
	for _, dir := range v.Candidates() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		v.logger.Debug("searching for Vivado/Vitis", zap.String("path", dir))

		script := filepath.Join(dir, vivadoSettingsScript)
		if _, err := os.Stat(script); err != nil {
			continue
		}

		version := vivadoVersionFromPath(dir)
		v.logger.Info("found Vivado/Vitis", zap.String("version", version), zap.String("path", dir))

		env, err := v.loadEnv(ctx, script)
		if err != nil {
			v.logger.Warn("failed to extract environment", zap.String("script", script), zap.Error(err))
			continue
		}
		if env.Len() == 0 {
			continue
		}
		return NewDescriptor(KindVivado, version, dir, env, map[Arch]string{
			ArchARM:        "arm-linux-gnueabihf-",
			ArchARM64:      "aarch64-linux-gnu-",
			ArchMicroBlaze: "microblazeel-xilinx-linux-gnu-",
		}), nil
	}

	v.logger.Debug("Vivado/Vitis toolchain not found")
	return nil, nil
}

func (v *Vivado) CrossCompile(ctx context.Context, arch Arch) (string, error) {
	return detectCrossCompile(ctx, v, arch)
}

// vivadoVersionFromPath takes the release from the second-to-last or the last
// path component, whichever matches first.
func vivadoVersionFromPath(dir string) string {
	var parts []string
	for _, p := range strings.Split(filepath.Clean(dir), string(filepath.Separator)) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	for _, offset := range []int{2, 1} {
		if len(parts) < offset {
			continue
		}
		if m := vivadoVersionRe.FindStringSubmatch(parts[len(parts)-offset]); m != nil {
			return m[1]
		}
	}
	return UnknownVersion
}

func keepXilinxVar(key string) bool {
	return key == "PATH" || strings.HasPrefix(key, "XILINX")
}

// sourceSettings sources script in a bash subshell and keeps the XILINX*
// variables and PATH from the resulting environment.
func sourceSettings(ctx context.Context, script string) (environ.Env, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", `source "$1" > /dev/null 2>&1 && env`, "bash", script)
	out, err := cmd.Output()
	if err != nil {
		return environ.Env{}, fmt.Errorf("failed to source %s: %w", script, err)
	}
	return environ.Parse(string(out), keepXilinxVar), nil
}
