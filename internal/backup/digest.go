package backup

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// fileDigest returns the BLAKE3 hex digest of a file's contents.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// digestWriter hashes everything written through it.
type digestWriter struct {
	h *blake3.Hasher
}

func newDigestWriter() *digestWriter {
	return &digestWriter{h: blake3.New()}
}

func (d *digestWriter) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

func (d *digestWriter) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
