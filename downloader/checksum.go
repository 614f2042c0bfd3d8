package downloader

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"swiftget/internal"
)

// ChecksumMismatchError is the non-transient failure of §4.9: the
// coordinator does not auto-retry a checksum mismatch beyond the
// contentIntegrity error kind's configured attempt budget.
type ChecksumMismatchError struct {
	Algorithm internal.ChecksumAlgorithm
	Expected  string
	Actual    string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch (%s): expected %s, got %s", e.Algorithm, e.Expected, e.Actual)
}

func newHasher(alg internal.ChecksumAlgorithm) (hash.Hash, error) {
	switch alg {
	case internal.ChecksumMD5:
		return md5.New(), nil
	case internal.ChecksumSHA1:
		return sha1.New(), nil
	case internal.ChecksumSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", alg)
	}
}

// VerifyChecksum streams path through the requested algorithm's hasher in
// buffered chunks and compares the lowercase hex digest, case-insensitively,
// against spec.HexDigest (§4.9).
func VerifyChecksum(path string, spec *internal.ChecksumSpec) error {
	if spec == nil {
		return nil
	}
	h, err := newHasher(spec.Algorithm)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 256*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return fmt.Errorf("read file for checksum: %w", err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	expected := strings.ToLower(spec.HexDigest)
	if actual != expected {
		return &ChecksumMismatchError{Algorithm: spec.Algorithm, Expected: expected, Actual: actual}
	}
	return nil
}

// ParseChecksumSpec parses a --checksum ALG:HEX flag value (§6).
func ParseChecksumSpec(raw string) (*internal.ChecksumSpec, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, internal.NewInvalidChecksumSpecError(raw)
	}
	alg := internal.ChecksumAlgorithm(strings.ToLower(parts[0]))
	switch alg {
	case internal.ChecksumMD5, internal.ChecksumSHA1, internal.ChecksumSHA256:
	default:
		return nil, internal.NewInvalidChecksumSpecError(raw)
	}
	return &internal.ChecksumSpec{Algorithm: alg, HexDigest: parts[1]}, nil
}
