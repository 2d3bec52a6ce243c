// Package platform ties a target board family to its architecture and the
// toolchain that builds for it.
package platform

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"adibuild/internal/environ"
	"adibuild/internal/logging"
	"adibuild/internal/toolchain"
)

// ErrPlatform matches configuration and toolchain suitability failures.
var ErrPlatform = errors.New("platform error")

// ToolchainPrefs selects the provider chain for a platform.
type ToolchainPrefs struct {
	Preferred string   `yaml:"preferred"`
	Fallback  []string `yaml:"fallback"`
}

// Config is the per-platform section of the configuration file.
type Config struct {
	Arch string `yaml:"arch"`
	// CrossCompile is used when the toolchain has no prefix for Arch.
	CrossCompile  string         `yaml:"cross_compile"`
	ToolVersion   string         `yaml:"tool_version"`
	StrictVersion bool           `yaml:"strict_version"`
	Toolchain     ToolchainPrefs `yaml:"toolchain"`
}

// Selector resolves a toolchain; *toolchain.Selector satisfies it.
type Selector interface {
	Select(ctx context.Context, req toolchain.Request) (*toolchain.Descriptor, error)
}

// Platform resolves its toolchain once and hands out the same Descriptor for
// the rest of its life.
type Platform struct {
	name     string
	cfg      Config
	selector Selector
	logger   *zap.Logger

	tc *toolchain.Descriptor
}

func New(name string, cfg Config, selector Selector, logger *zap.Logger) *Platform {
	return &Platform{
		name:     name,
		cfg:      cfg,
		selector: selector,
		logger:   logging.Named(logger, "platform."+name),
	}
}

func (p *Platform) Name() string { return p.name }

func (p *Platform) Arch() (toolchain.Arch, error) {
	if p.cfg.Arch == "" {
		return "", fmt.Errorf("%w: architecture not specified in platform configuration", ErrPlatform)
	}
	return toolchain.Arch(p.cfg.Arch), nil
}

// Request builds the selection request. toolVersion overrides the configured
// tool version when set.
func (p *Platform) Request(toolVersion string) toolchain.Request {
	if toolVersion == "" {
		toolVersion = p.cfg.ToolVersion
	}
	req := toolchain.Request{
		Preferred:   toolchain.KindVivado,
		VersionHint: toolVersion,
		Strict:      p.cfg.StrictVersion,
	}
	if p.cfg.Toolchain.Preferred != "" {
		req.Preferred = toolchain.Kind(p.cfg.Toolchain.Preferred)
	}
	if p.cfg.Toolchain.Fallback != nil {
		req.Fallbacks = make([]toolchain.Kind, len(p.cfg.Toolchain.Fallback))
		for i, k := range p.cfg.Toolchain.Fallback {
			req.Fallbacks[i] = toolchain.Kind(k)
		}
	}
	return req
}

// Toolchain returns the platform's toolchain, selecting it on first use.
// Later calls return the cached Descriptor whatever toolVersion says.
func (p *Platform) Toolchain(ctx context.Context, toolVersion string) (*toolchain.Descriptor, error) {
	if p.tc != nil {
		return p.tc, nil
	}
	req := p.Request(toolVersion)
	p.logger.Info("selecting toolchain",
		zap.String("arch", p.cfg.Arch),
		zap.String("tool_version", req.VersionHint),
		zap.Bool("strict", req.Strict))

	d, err := p.selector.Select(ctx, req)
	if err != nil {
		return nil, err
	}
	p.tc = d
	return d, nil
}

// ValidateToolchain checks that the toolchain has a prefix for the platform
// architecture.
func (p *Platform) ValidateToolchain(ctx context.Context) error {
	arch, err := p.Arch()
	if err != nil {
		return err
	}
	tc, err := p.Toolchain(ctx, "")
	if err != nil {
		return err
	}
	if _, ok := tc.Prefix(arch); !ok {
		return fmt.Errorf("%w: toolchain %s does not support %s architecture", ErrPlatform, tc.Kind(), arch)
	}
	p.logger.Info("toolchain validation passed", zap.String("kind", string(tc.Kind())), zap.String("version", tc.Version()))
	return nil
}

// MakeEnv returns the toolchain environment with ARCH and CROSS_COMPILE
// set on top.
func (p *Platform) MakeEnv(ctx context.Context) (environ.Env, error) {
	arch, err := p.Arch()
	if err != nil {
		return environ.Env{}, err
	}
	tc, err := p.Toolchain(ctx, "")
	if err != nil {
		return environ.Env{}, err
	}

	prefix, ok := tc.Prefix(arch)
	if !ok {
		prefix = p.cfg.CrossCompile
	}
	if prefix == "" {
		return environ.Env{}, fmt.Errorf("%w: no cross-compile prefix for %s", ErrPlatform, arch)
	}

	env := tc.Env()
	env.Set("ARCH", string(arch))
	env.Set("CROSS_COMPILE", prefix)
	return env, nil
}
