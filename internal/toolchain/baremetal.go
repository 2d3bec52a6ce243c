package toolchain

import (
	"context"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"

	"adibuild/internal/environ"
	"adibuild/internal/logging"
)

const bareMetalPrefix = "arm-none-eabi-"

// BareMetal uses an arm-none-eabi toolchain found on PATH.
type BareMetal struct {
	logger   *zap.Logger
	lookPath func(string) (string, error)
	version  func(ctx context.Context, gcc string) string
}

func NewBareMetal(logger *zap.Logger) *BareMetal {
	return &BareMetal{
		logger:   logging.Named(logger, "toolchain.baremetal"),
		lookPath: exec.LookPath,
		version:  gccVersion,
	}
}

func (b *BareMetal) Kind() Kind { return KindBareMetal }

func (b *BareMetal) Detect(ctx context.Context) (*Descriptor, error) {
	gcc, err := b.lookPath(bareMetalPrefix + "gcc")
	if err != nil {
		b.logger.Debug("arm-none-eabi-gcc not found on PATH")
		return nil, nil
	}

	version := b.version(ctx, gcc)
	// <root>/bin/arm-none-eabi-gcc
	root := filepath.Dir(filepath.Dir(gcc))
	b.logger.Info("found bare-metal toolchain", zap.String("version", version), zap.String("path", root))
	return NewDescriptor(KindBareMetal, version, root, environ.Env{}, map[Arch]string{
		ArchBareMetal: bareMetalPrefix,
	}), nil
}

// CrossCompile accepts both arm and bare_metal; the same compiler serves
// Cortex-A bare-metal code and microcontroller firmware.
func (b *BareMetal) CrossCompile(ctx context.Context, arch Arch) (string, error) {
	if arch != ArchARM && arch != ArchBareMetal {
		return "", errorf(nil, "bare-metal toolchain does not support arch: %s", arch)
	}
	return detectCrossCompile(ctx, b, ArchBareMetal)
}
