package shared

import (
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

// DigestSize is the length in bytes of a content digest
const DigestSize = 32

// Digest returns the hex-encoded BLAKE2b-256 digest of data
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestReader hashes everything read from r
func DigestReader(r io.Reader) (string, int64, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create hash: %w", err)
	}
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ShortDigest abbreviates a digest for display
func ShortDigest(digest string) string {
	if len(digest) <= 12 {
		return digest
	}
	return digest[:12]
}
