package toolchain

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"adibuild/internal/logging"
)

// DefaultFallbacks returns the fallback chain used when a request names none.
func DefaultFallbacks() []Kind {
	return []Kind{KindArm, KindSystem}
}

// Request describes one toolchain selection.
type Request struct {
	Preferred Kind
	// Fallbacks are tried in order after Preferred. Nil means DefaultFallbacks.
	Fallbacks []Kind
	// VersionHint is the Vivado/Vitis release the build targets. It steers
	// both the Vivado search and the Arm release choice.
	VersionHint string
	// Strict limits the Vivado search to VersionHint.
	Strict bool
}

// Order returns the providers to try: Preferred first, then each fallback
// once, never repeating Preferred.
func (r Request) Order() []Kind {
	fallbacks := r.Fallbacks
	if fallbacks == nil {
		fallbacks = DefaultFallbacks()
	}
	var order []Kind
	if r.Preferred != "" {
		order = append(order, r.Preferred)
	}
	for _, k := range fallbacks {
		if !slices.Contains(order, k) {
			order = append(order, k)
		}
	}
	return order
}

// Factory builds the provider for kind. It is called once per kind per
// selection so that providers never share state between requests.
type Factory func(kind Kind, req Request) (Provider, error)

// Settings configures the providers built by NewFactory.
type Settings struct {
	CacheDir string
	// ArmVersion pins the Arm release regardless of the tool version.
	ArmVersion string
	// ArmMirrors overrides the Arm download mirrors.
	ArmMirrors []Mirror
	// VivadoSearchPaths overrides the computed Vivado candidate list.
	VivadoSearchPaths []string
}

// NewFactory returns a Factory building the four standard providers.
func NewFactory(s Settings, logger *zap.Logger) Factory {
	return func(kind Kind, req Request) (Provider, error) {
		switch kind {
		case KindVivado:
			v := NewVivado(req.VersionHint, req.Strict, logger)
			if s.VivadoSearchPaths != nil {
				v.SearchPaths = slices.Clone(s.VivadoSearchPaths)
			}
			return v, nil
		case KindArm:
			a := NewArm(s.CacheDir, s.ArmVersion, logger)
			if s.ArmMirrors != nil {
				a.Mirrors = slices.Clone(s.ArmMirrors)
			}
			return a, nil
		case KindSystem:
			return NewSystem(logger), nil
		case KindBareMetal:
			return NewBareMetal(logger), nil
		}
		return nil, fmt.Errorf("unknown toolchain type: %s", kind)
	}
}

// Selector resolves a Descriptor by walking an ordered provider chain.
type Selector struct {
	factory Factory
	logger  *zap.Logger
}

func NewSelector(factory Factory, logger *zap.Logger) *Selector {
	return &Selector{factory: factory, logger: logging.Named(logger, "toolchain.selector")}
}

// Select returns the first Descriptor found along req.Order(). A provider
// that can download its toolchain does so when detection comes up empty, but
// only the first such provider in the chain: later downloadable entries are
// detected only. Provider failures are logged and the next provider is
// tried. When every provider comes up empty the error is a *NotFoundError.
func (s *Selector) Select(ctx context.Context, req Request) (*Descriptor, error) {
	order := req.Order()
	mayAcquire := true
	for _, kind := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := s.factory(kind, req)
		if err != nil {
			s.logger.Warn("toolchain provider unavailable", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}
		a, downloadable := p.(Acquirer)
		d, err := s.try(ctx, p, a, mayAcquire && downloadable, req.VersionHint)
		if downloadable {
			mayAcquire = false
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("toolchain provider failed", zap.String("kind", string(kind)), zap.Error(err))
			continue
		}
		if d != nil {
			s.logger.Info("selected toolchain", zap.String("kind", string(d.Kind())), zap.String("version", d.Version()))
			return d, nil
		}
		s.logger.Debug("toolchain not found", zap.String("kind", string(kind)))
	}
	return nil, &NotFoundError{Tried: order}
}

func (s *Selector) try(ctx context.Context, p Provider, a Acquirer, acquire bool, versionHint string) (*Descriptor, error) {
	d, err := p.Detect(ctx)
	if err != nil || d != nil || !acquire {
		return d, err
	}
	s.logger.Info("toolchain not found locally, acquiring", zap.String("kind", string(p.Kind())))
	return a.Acquire(ctx, versionHint)
}
