// Package toolchain discovers, selects and downloads cross-compilation
// toolchains.
//
// Each toolchain family is a Provider. Only the Arm provider can also
// download its toolchain, which it advertises by implementing Acquirer.
// Selector walks an ordered list of providers and returns the first
// Descriptor that turns up.
package toolchain

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// Provider detects one toolchain family.
type Provider interface {
	Kind() Kind
	// Detect returns (nil, nil) when the toolchain is not installed. An error
	// is reserved for unexpected failures.
	Detect(ctx context.Context) (*Descriptor, error)
	// CrossCompile returns the compiler prefix for arch.
	CrossCompile(ctx context.Context, arch Arch) (string, error)
}

// Acquirer is a Provider that can fetch its toolchain when it is missing.
type Acquirer interface {
	Provider
	Acquire(ctx context.Context, versionHint string) (*Descriptor, error)
}

// UnknownVersion is reported when a version string cannot be determined.
const UnknownVersion = "unknown"

var gccVersionRe = regexp.MustCompile(`(\d+\.\d+\.\d+)`)

// gccVersion runs `<gcc> --version` and extracts the first x.y.z token of the
// first output line.
func gccVersion(ctx context.Context, gcc string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, gcc, "--version").Output()
	if err != nil {
		return UnknownVersion
	}
	first, _, _ := strings.Cut(string(out), "\n")
	if m := gccVersionRe.FindString(first); m != "" {
		return m
	}
	return UnknownVersion
}

// detectCrossCompile resolves the prefix for arch through a fresh Detect.
func detectCrossCompile(ctx context.Context, p Provider, arch Arch) (string, error) {
	d, err := p.Detect(ctx)
	if err != nil {
		return "", errorf(err, "%s toolchain detection failed", p.Kind())
	}
	if d == nil {
		return "", errorf(nil, "%s toolchain not detected", p.Kind())
	}
	return d.CrossCompile(arch)
}
