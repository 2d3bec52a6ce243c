// Package config loads ~/.adibuild/config.yaml and applies ADIBUILD_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"adibuild/internal/platform"
	"adibuild/internal/toolchain"
)

type Build struct {
	WorkDir string `yaml:"work_dir"`
	Jobs    int    `yaml:"jobs"`
	// Script, when set, records commands to this file instead of running them.
	Script  string `yaml:"script"`
	LogFile string `yaml:"log_file"`
}

type Toolchain struct {
	CacheDir   string `yaml:"cache_dir"`
	ArmVersion string `yaml:"arm_version"`
	// Mirrors replaces the upstream Arm download hosts.
	Mirrors []string           `yaml:"mirrors"`
	S3      toolchain.S3Config `yaml:"s3"`
}

type Config struct {
	Debug     bool                       `yaml:"debug"`
	Build     Build                      `yaml:"build"`
	Toolchain Toolchain                  `yaml:"toolchain"`
	Platforms map[string]platform.Config `yaml:"platforms"`
}

// Home returns ~/.adibuild.
func Home() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".adibuild")
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string { return filepath.Join(Home(), "config.yaml") }

func builtinPlatforms() map[string]platform.Config {
	return map[string]platform.Config{
		"zynq":       {Arch: "arm", CrossCompile: "arm-linux-gnueabihf-"},
		"zynqmp":     {Arch: "arm64", CrossCompile: "aarch64-linux-gnu-"},
		"versal":     {Arch: "arm64", CrossCompile: "aarch64-linux-gnu-"},
		"microblaze": {Arch: "microblaze", CrossCompile: "microblazeel-xilinx-linux-gnu-"},
		"bare_metal": {Arch: "bare_metal", Toolchain: platform.ToolchainPrefs{Preferred: "bare_metal", Fallback: []string{}}},
	}
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Build: Build{
			WorkDir: filepath.Join(Home(), "work"),
			Jobs:    runtime.NumCPU(),
		},
		Toolchain: Toolchain{
			CacheDir: filepath.Join(Home(), "toolchains"),
		},
		Platforms: builtinPlatforms(),
	}
}

// Load reads path (DefaultPath when empty) over the defaults. A missing file
// is not an error. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	for name, pc := range builtinPlatforms() {
		if _, ok := cfg.Platforms[name]; !ok {
			if cfg.Platforms == nil {
				cfg.Platforms = make(map[string]platform.Config)
			}
			cfg.Platforms[name] = pc
		}
	}

	if err := mergeEnvOverrides(cfg, os.Environ()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeEnvOverrides applies ADIBUILD_* variables from environ.
func mergeEnvOverrides(cfg *Config, environ []string) error {
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "ADIBUILD_") {
			continue
		}
		switch key {
		case "ADIBUILD_WORK_DIR":
			cfg.Build.WorkDir = val
		case "ADIBUILD_JOBS":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return fmt.Errorf("invalid ADIBUILD_JOBS %q", val)
			}
			cfg.Build.Jobs = n
		case "ADIBUILD_LOG_FILE":
			cfg.Build.LogFile = val
		case "ADIBUILD_TOOLCHAIN_CACHE":
			cfg.Toolchain.CacheDir = val
		case "ADIBUILD_ARM_VERSION":
			cfg.Toolchain.ArmVersion = val
		case "ADIBUILD_DEBUG":
			cfg.Debug = val == "1" || strings.EqualFold(val, "true")
		}
	}
	return nil
}

// Platform returns the named platform section.
func (c *Config) Platform(name string) (platform.Config, error) {
	pc, ok := c.Platforms[name]
	if !ok {
		return platform.Config{}, fmt.Errorf("unknown platform %q", name)
	}
	return pc, nil
}
