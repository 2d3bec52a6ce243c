package toolchain

import (
	"fmt"
	"maps"

	"adibuild/internal/environ"
)

// Kind names a toolchain family.
type Kind string

const (
	KindVivado    Kind = "vivado"
	KindArm       Kind = "arm"
	KindSystem    Kind = "system"
	KindBareMetal Kind = "bare_metal"
)

// Variant is the provider shape behind a Kind.
type Variant string

const (
	VariantNativeEnv    Variant = "native-env"
	VariantDownloadable Variant = "downloadable"
	VariantSystem       Variant = "system"
	VariantBareMetal    Variant = "bare-metal"
)

// Variant returns the provider shape for k, or "" for an unknown kind.
func (k Kind) Variant() Variant {
	switch k {
	case KindVivado:
		return VariantNativeEnv
	case KindArm:
		return VariantDownloadable
	case KindSystem:
		return VariantSystem
	case KindBareMetal:
		return VariantBareMetal
	}
	return ""
}

// Arch is a target architecture a toolchain can emit code for.
type Arch string

const (
	ArchARM        Arch = "arm"
	ArchARM64      Arch = "arm64"
	ArchMicroBlaze Arch = "microblaze"
	ArchBareMetal  Arch = "bare_metal"
)

// Descriptor describes a resolved toolchain. It is immutable: accessors hand
// out copies, and a new resolution produces a new Descriptor.
type Descriptor struct {
	kind        Kind
	version     string
	installPath string
	env         environ.Env
	prefixes    map[Arch]string
}

// NewDescriptor copies env and prefixes into a new Descriptor. Empty prefixes
// are dropped so that an absent architecture is never reported as "".
func NewDescriptor(kind Kind, version, installPath string, env environ.Env, prefixes map[Arch]string) *Descriptor {
	p := make(map[Arch]string, len(prefixes))
	for arch, prefix := range prefixes {
		if prefix != "" {
			p[arch] = prefix
		}
	}
	return &Descriptor{
		kind:        kind,
		version:     version,
		installPath: installPath,
		env:         env.Clone(),
		prefixes:    p,
	}
}

func (d *Descriptor) Kind() Kind          { return d.kind }
func (d *Descriptor) Version() string     { return d.version }
func (d *Descriptor) InstallPath() string { return d.installPath }

// Env returns a copy of the variables to merge into every build command.
func (d *Descriptor) Env() environ.Env { return d.env.Clone() }

// Prefixes returns a copy of the cross-compile prefix table.
func (d *Descriptor) Prefixes() map[Arch]string { return maps.Clone(d.prefixes) }

// Prefix returns the cross-compile prefix for arch, if the toolchain has one.
func (d *Descriptor) Prefix(arch Arch) (string, bool) {
	p, ok := d.prefixes[arch]
	return p, ok
}

// CrossCompile is Prefix that fails with a toolchain error when arch is absent.
func (d *Descriptor) CrossCompile(arch Arch) (string, error) {
	if p, ok := d.prefixes[arch]; ok {
		return p, nil
	}
	return "", errorf(nil, "%s toolchain does not support architecture %s", d.kind, arch)
}

// Equal reports whether d and o describe the same toolchain.
func (d *Descriptor) Equal(o *Descriptor) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.kind == o.kind &&
		d.version == o.version &&
		d.installPath == o.installPath &&
		d.env.Equal(o.env) &&
		maps.Equal(d.prefixes, o.prefixes)
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s %s (%s)", d.kind, d.version, d.installPath)
}
