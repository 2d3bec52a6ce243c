package toolchain

import (
	"context"
	"os/exec"

	"go.uber.org/zap"

	"adibuild/internal/environ"
	"adibuild/internal/logging"
)

// Distribution cross compilers and the architecture each serves.
var systemCompilers = [...]struct {
	arch   Arch
	prefix string
}{
	{ArchARM, "arm-linux-gnueabihf-"},
	{ArchARM64, "aarch64-linux-gnu-"},
}

// System uses cross compilers installed by the distribution package manager.
type System struct {
	logger   *zap.Logger
	lookPath func(string) (string, error)
	version  func(ctx context.Context, gcc string) string
}

func NewSystem(logger *zap.Logger) *System {
	return &System{
		logger:   logging.Named(logger, "toolchain.system"),
		lookPath: exec.LookPath,
		version:  gccVersion,
	}
}

func (s *System) Kind() Kind { return KindSystem }

// Detect reports the compilers found on PATH. Only present compilers get a
// prefix; the version comes from the first one found.
func (s *System) Detect(ctx context.Context) (*Descriptor, error) {
	prefixes := make(map[Arch]string)
	first := ""
	for _, c := range systemCompilers {
		gcc, err := s.lookPath(c.prefix + "gcc")
		if err != nil {
			continue
		}
		prefixes[c.arch] = c.prefix
		if first == "" {
			first = gcc
		}
	}
	if first == "" {
		s.logger.Debug("no system cross compiler on PATH")
		return nil, nil
	}

	version := s.version(ctx, first)
	s.logger.Info("found system toolchain", zap.String("version", version))
	return NewDescriptor(KindSystem, version, "/usr", environ.Env{}, prefixes), nil
}

func (s *System) CrossCompile(ctx context.Context, arch Arch) (string, error) {
	return detectCrossCompile(ctx, s, arch)
}
