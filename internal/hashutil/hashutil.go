// Package hashutil computes streaming SHA-256 digests for files that may be
// arbitrarily large, without holding the whole file in memory.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ChunkSize is the read buffer used while streaming a file through the
// hasher.
const ChunkSize = 8 * 1024

// SHA256Reader streams r through SHA-256 in ChunkSize reads and returns the
// lowercase hex digest, never buffering more than one chunk at a time.
func SHA256Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, ChunkSize)
	// Wrapping r hides any io.WriterTo, so CopyBuffer always reads through buf.
	if _, err := io.CopyBuffer(h, struct{ io.Reader }{r}, buf); err != nil {
		return "", fmt.Errorf("stream sha256: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SHA256File opens path and streams it through SHA-256, used by the download
// and extract workers to fingerprint DesignFile content.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s for hashing: %w", path, err)
	}
	defer f.Close()
	return SHA256Reader(f)
}
