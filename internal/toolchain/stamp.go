package toolchain

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"strings"

	"lukechampine.com/blake3"
)

// stampSuffix names the provenance file written next to an extracted
// toolchain directory.
const stampSuffix = ".b3"

func newHasher() hash.Hash { return blake3.New(32, nil) }

func hexDigest(h hash.Hash) string { return hex.EncodeToString(h.Sum(nil)) }

// Stamp records where an extracted toolchain came from.
type Stamp struct {
	// Digest is the BLAKE3-256 of the downloaded archive.
	Digest  string
	RelPath string
	Mirror  string
}

// The first line is b3sum compatible.
func writeStamp(path, digest, mirror, relPath string) error {
	content := fmt.Sprintf("%s  %s\n# mirror: %s\n", digest, relPath, mirror)
	return os.WriteFile(path, []byte(content), 0o644)
}

// ReadStamp parses the provenance file of an extracted toolchain directory.
func ReadStamp(toolchainDir string) (Stamp, error) {
	f, err := os.Open(toolchainDir + stampSuffix)
	if err != nil {
		return Stamp{}, err
	}
	defer f.Close()

	var st Stamp
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if rest, ok := strings.CutPrefix(line, "# mirror: "); ok {
			st.Mirror = rest
			continue
		}
		if digest, rel, ok := strings.Cut(line, "  "); ok && st.Digest == "" {
			st.Digest, st.RelPath = digest, rel
		}
	}
	if err := sc.Err(); err != nil {
		return Stamp{}, err
	}
	if st.Digest == "" {
		return Stamp{}, fmt.Errorf("malformed stamp for %s", toolchainDir)
	}
	return st, nil
}
