package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"adibuild/internal/environ"
	"adibuild/internal/logging"
)

// DefaultArmVersion is used when neither an explicit version nor a known
// tool release picks one.
const DefaultArmVersion = "12.2.rel1"

const armHostArch = "x86_64"

// Release naming changed twice upstream: releases listed here keep the old
// or transitional layout, everything else uses the new one.
var (
	oldArmVersions        = [...]string{"10.2-2020.11", "10.3-2021.07"}
	transitionArmVersions = [...]string{"11.2-2022.02"}
)

var armMirrorBases = [...]string{
	"https://armkeil.blob.core.windows.net/developer/Files/downloads/",
	"https://developer.arm.com/-/media/Files/downloads/",
}

// Linux-hosted targets fetched together.
var armTargets = [...]string{"arm-none-linux-gnueabihf", "aarch64-none-linux-gnu"}

// armVersionForTool maps a Vivado/Vitis release to the Arm GNU release
// shipping the same GCC.
func armVersionForTool(toolVersion string) (string, bool) {
	switch toolVersion {
	case "2025.1":
		return "13.3.rel1", true
	case "2023.2", "2023.1":
		return "12.2.rel1", true
	case "2022.2", "2022.1":
		return "11.2-2022.02", true
	case "2021.2", "2021.1":
		return "10.3-2021.07", true
	case "2020.2", "2020.1":
		return "10.2-2020.11", true
	}
	return "", false
}

func armPrefixes() map[Arch]string {
	return map[Arch]string{
		ArchARM:   "arm-none-linux-gnueabihf-",
		ArchARM64: "aarch64-none-linux-gnu-",
	}
}

// Epoch is one of the upstream URL/file naming conventions.
type Epoch int

const (
	EpochNew Epoch = iota
	EpochTransitional
	EpochOld
)

func (e Epoch) String() string {
	switch e {
	case EpochOld:
		return "old"
	case EpochTransitional:
		return "transitional"
	default:
		return "new"
	}
}

// layout returns the download path segment and the file/directory prefix.
func (e Epoch) layout() (basePath, filePrefix string) {
	switch e {
	case EpochOld:
		return "gnu-a", "gcc-arm"
	case EpochTransitional:
		return "gnu", "gcc-arm"
	default:
		return "gnu", "arm-gnu-toolchain"
	}
}

// ClassifyArmVersion returns the naming epoch of an Arm GNU release.
func ClassifyArmVersion(version string) Epoch {
	switch {
	case slices.Contains(oldArmVersions[:], version):
		return EpochOld
	case slices.Contains(transitionArmVersions[:], version):
		return EpochTransitional
	default:
		return EpochNew
	}
}

// DefaultArmMirrorBases returns a fresh copy of the upstream base URLs.
func DefaultArmMirrorBases() []string {
	return slices.Clone(armMirrorBases[:])
}

// ArmArchive locates one downloadable toolchain archive.
type ArmArchive struct {
	Version  string
	Target   string
	Epoch    Epoch
	Filename string
	// RelPath is relative to a mirror base: {basePath}/{version}/binrel/{file}.
	RelPath string
	// DirName is the top-level directory inside the archive.
	DirName string
}

// NewArmArchive computes the archive coordinates for version and target.
func NewArmArchive(version, target string) ArmArchive {
	epoch := ClassifyArmVersion(version)
	basePath, prefix := epoch.layout()
	dirName := fmt.Sprintf("%s-%s-%s-%s", prefix, version, armHostArch, target)
	filename := dirName + ".tar.xz"
	return ArmArchive{
		Version:  version,
		Target:   target,
		Epoch:    epoch,
		Filename: filename,
		RelPath:  path.Join(basePath, version, "binrel", filename),
		DirName:  dirName,
	}
}

// URLs returns the archive URL against every base, in order.
func (a ArmArchive) URLs(bases []string) []string {
	urls := make([]string, len(bases))
	for i, base := range bases {
		urls[i] = base + a.RelPath
	}
	return urls
}

// Arm manages Arm GNU toolchains in a local cache and downloads them on
// demand.
type Arm struct {
	CacheDir string
	// Version pins the release and wins over any version hint.
	Version string
	// Mirrors are tried strictly in order. Nil means the two upstream hosts.
	Mirrors []Mirror

	logger *zap.Logger
}

// NewArm returns an Arm provider caching under cacheDir.
func NewArm(cacheDir, version string, logger *zap.Logger) *Arm {
	return &Arm{
		CacheDir: cacheDir,
		Version:  version,
		logger:   logging.Named(logger, "toolchain.arm"),
	}
}

func (a *Arm) Kind() Kind { return KindArm }

func (a *Arm) mirrors() []Mirror {
	if a.Mirrors != nil {
		return a.Mirrors
	}
	bases := DefaultArmMirrorBases()
	out := make([]Mirror, len(bases))
	for i, base := range bases {
		out[i] = &HTTPMirror{Base: base}
	}
	return out
}

// ResolveVersion picks the release: explicit Version, then the tool release
// mapping, then DefaultArmVersion.
func (a *Arm) ResolveVersion(toolVersion string) string {
	if a.Version != "" {
		return a.Version
	}
	if v, ok := armVersionForTool(toolVersion); ok {
		return v
	}
	return DefaultArmVersion
}

// Detect looks for extracted toolchains in the cache. Both naming epochs are
// recognized; the lexically greatest directory name gives the version.
func (a *Arm) Detect(ctx context.Context) (*Descriptor, error) {
	if _, err := os.Stat(a.CacheDir); err != nil {
		return nil, nil
	}

	dirs := a.Installed()
	if len(dirs) == 0 {
		return nil, nil
	}

	latest := slices.MaxFunc(dirs, func(x, y string) int {
		return strings.Compare(filepath.Base(x), filepath.Base(y))
	})
	version := armVersionFromDir(filepath.Base(latest))
	a.logger.Info("found Arm GNU toolchain in cache", zap.String("version", version))

	bins := make([]string, len(dirs))
	for i, dir := range dirs {
		bins[i] = filepath.Join(dir, "bin")
	}
	return NewDescriptor(KindArm, version, a.CacheDir, armPathEnv(bins), armPrefixes()), nil
}

// Installed lists the extracted toolchain directories in the cache.
func (a *Arm) Installed() []string {
	var dirs []string
	for _, target := range armTargets {
		dirs = append(dirs, a.cachedDirs(target)...)
	}
	return dirs
}

func (a *Arm) cachedDirs(target string) []string {
	var dirs []string
	for _, prefix := range []string{"arm-gnu-toolchain", "gcc-arm"} {
		matches, _ := filepath.Glob(filepath.Join(a.CacheDir, prefix+"-*-"+armHostArch+"-"+target))
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				dirs = append(dirs, m)
			}
		}
	}
	return dirs
}

// Arm prefixes do not depend on what is installed.
func (a *Arm) CrossCompile(_ context.Context, arch Arch) (string, error) {
	if p, ok := armPrefixes()[arch]; ok {
		return p, nil
	}
	return "", errorf(nil, "unsupported architecture: %s", arch)
}

// Acquire downloads and extracts the toolchains for every target. Targets
// already present in the cache are not downloaded again.
func (a *Arm) Acquire(ctx context.Context, versionHint string) (*Descriptor, error) {
	version := a.ResolveVersion(versionHint)
	a.logger.Info("acquiring Arm GNU toolchain", zap.String("version", version))

	if err := os.MkdirAll(a.CacheDir, 0o755); err != nil {
		return nil, errorf(err, "failed to create toolchain cache %s", a.CacheDir)
	}
	unlock, err := lockDir(a.CacheDir)
	if err != nil {
		return nil, errorf(err, "failed to lock toolchain cache")
	}
	defer unlock()

	var bins []string
	for _, target := range armTargets {
		dir, err := a.fetchToolchain(ctx, NewArmArchive(version, target))
		if err != nil {
			return nil, err
		}
		bins = append(bins, filepath.Join(dir, "bin"))
	}
	return NewDescriptor(KindArm, version, a.CacheDir, armPathEnv(bins), armPrefixes()), nil
}

// fetchToolchain tries each mirror in turn. Transfer failures move on to the
// next mirror; an archive that fails to extract is fatal.
func (a *Arm) fetchToolchain(ctx context.Context, arc ArmArchive) (string, error) {
	extractDir := filepath.Join(a.CacheDir, arc.DirName)
	if _, err := os.Stat(extractDir); err == nil {
		a.logger.Info("toolchain already exists", zap.String("path", extractDir))
		return extractDir, nil
	}

	var lastErr error
	for _, m := range a.mirrors() {
		a.logger.Info("downloading toolchain", zap.String("mirror", m.Name()), zap.String("file", arc.Filename))

		archivePath, digest, err := downloadToTemp(ctx, m, arc, a.CacheDir)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			a.logger.Warn("download failed", zap.String("mirror", m.Name()), zap.Error(err))
			continue
		}

		a.logger.Info("extracting toolchain", zap.String("dest", a.CacheDir))
		err = a.install(archivePath, arc)
		os.Remove(archivePath)
		if err != nil {
			return "", err
		}

		if err := writeStamp(extractDir+stampSuffix, digest, m.Name(), arc.RelPath); err != nil {
			a.logger.Warn("failed to write provenance stamp", zap.Error(err))
		}
		a.logger.Info("installed toolchain", zap.String("path", extractDir), zap.String("blake3", digest))
		return extractDir, nil
	}

	return "", errorf(lastErr, "failed to download toolchain %s from any source", arc.Filename)
}

// install unpacks archivePath into a staging directory inside the cache and
// moves the archive's top-level directory into place only once extraction
// succeeded. A partial tree never appears under its final name.
func (a *Arm) install(archivePath string, arc ArmArchive) error {
	staging, err := os.MkdirTemp(a.CacheDir, "extract-*")
	if err != nil {
		return errorf(err, "failed to create staging directory")
	}
	defer os.RemoveAll(staging)

	if err := extractArchive(archivePath, staging); err != nil {
		return errorf(err, "failed to extract toolchain %s", arc.Filename)
	}
	info, err := os.Stat(filepath.Join(staging, arc.DirName))
	if err != nil || !info.IsDir() {
		return errorf(err, "archive %s does not contain %s", arc.Filename, arc.DirName)
	}
	if err := os.Rename(filepath.Join(staging, arc.DirName), filepath.Join(a.CacheDir, arc.DirName)); err != nil {
		return errorf(err, "failed to install toolchain %s", arc.DirName)
	}
	return nil
}

func downloadToTemp(ctx context.Context, m Mirror, arc ArmArchive, dir string) (string, string, error) {
	tmp, err := os.CreateTemp(dir, "download-*-"+arc.Filename)
	if err != nil {
		return "", "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	h := newHasher()
	fetchErr := m.Fetch(ctx, arc.RelPath, io.MultiWriter(tmp, h))
	closeErr := tmp.Close()
	if err := errors.Join(fetchErr, closeErr); err != nil {
		os.Remove(tmp.Name())
		return "", "", err
	}
	return tmp.Name(), hexDigest(h), nil
}

func armPathEnv(bins []string) environ.Env {
	return environ.New("PATH", strings.Join(bins, ":")+":"+os.Getenv("PATH"))
}

// armVersionFromDir extracts the release from a cache directory name:
//
//	arm-gnu-toolchain-12.2.rel1-x86_64-aarch64-none-linux-gnu -> 12.2.rel1
//	gcc-arm-11.2-2022.02-x86_64-arm-none-linux-gnueabihf     -> 11.2-2022.02
func armVersionFromDir(name string) string {
	parts := strings.Split(name, "-")
	switch {
	case strings.HasPrefix(name, "arm-gnu-toolchain-") && len(parts) >= 4:
		return parts[3]
	case strings.HasPrefix(name, "gcc-arm-") && len(parts) >= 3:
		if i := slices.Index(parts, armHostArch); i > 2 {
			return strings.Join(parts[2:i], "-")
		}
		return parts[2]
	}
	return UnknownVersion
}
