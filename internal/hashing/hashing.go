// Package hashing computes content fingerprints for deduplication.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Fingerprint is the hex form of a SHA-256 digest over raw file bytes.
// Two uploads with equal fingerprints are the same logical document.
type Fingerprint string

// Reader hashes r in chunks; arbitrarily large files never require full
// in-memory buffering.
func Reader(r io.Reader) (Fingerprint, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("hash: %w", err)
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), n, nil
}

// Bytes hashes an in-memory buffer.
func Bytes(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

func (f Fingerprint) String() string { return string(f) }
