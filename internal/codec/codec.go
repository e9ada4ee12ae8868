// Package codec provides the compression codecs backup artifacts are
// written with, plus magic-byte detection so restore can identify how an
// artifact was compressed without trusting its file name.
package codec

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Codec names a compression algorithm.
type Codec string

const (
	// None writes the artifact uncompressed.
	None Codec = "none"
	// Gzip is the default artifact format.
	Gzip Codec = "gzip"
	// Snappy favors speed over ratio.
	Snappy Codec = "snappy"
	// XZ favors ratio over speed.
	XZ Codec = "xz"
	// Zstd balances both.
	Zstd Codec = "zstd"
)

// Decompressor is a ReadCloser where Close releases decompressor state but
// does not close the underlying Reader.
type Decompressor io.ReadCloser

// Compressor is a WriteCloser where Close flushes final content to the
// underlying Writer but does not close it.
type Compressor io.WriteCloser

// Parse maps a configuration string onto a Codec.
func Parse(name string) (Codec, error) {
	switch Codec(name) {
	case None, Gzip, Snappy, XZ, Zstd:
		return Codec(name), nil
	case "":
		return None, nil
	default:
		return "", fmt.Errorf("unknown codec: %q", name)
	}
}

// Valid reports whether c is a defined codec.
func (c Codec) Valid() bool {
	switch c {
	case None, Gzip, Snappy, XZ, Zstd:
		return true
	}
	return false
}

// Extension returns the file suffix artifacts of this codec carry.
func (c Codec) Extension() string {
	switch c {
	case Gzip:
		return ".gz"
	case Snappy:
		return ".sz"
	case XZ:
		return ".xz"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

// FromExtension guesses the codec from a file name, None when the suffix
// is not a known compression extension.
func FromExtension(path string) Codec {
	switch filepath.Ext(path) {
	case ".gz":
		return Gzip
	case ".sz":
		return Snappy
	case ".xz":
		return XZ
	case ".zst":
		return Zstd
	default:
		return None
	}
}

// NewWriter wraps w in a Compressor for the codec.
func NewWriter(w io.Writer, c Codec) (Compressor, error) {
	switch c {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case XZ:
		return xz.NewWriter(w)
	case Zstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported codec: %q", c)
	}
}

// NewReader wraps r in a Decompressor for the codec.
func NewReader(r io.Reader, c Codec) (Decompressor, error) {
	switch c {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case XZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported codec: %q", c)
	}
}

var (
	magicGzip   = []byte{0x1f, 0x8b}
	magicXZ     = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZstd   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicSnappy = []byte{0xff, 0x06, 0x00, 0x00, 's', 'N', 'a', 'P', 'p', 'Y'}
)

// Detect sniffs the compression codec from the file's leading bytes. Files
// that match no known magic report None; callers decide whether plain
// content is acceptable.
func Detect(path string) (Codec, error) {
	f, err := os.Open(path)
	if err != nil {
		return None, err
	}
	defer f.Close()

	header := make([]byte, 10)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return None, err
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, magicGzip):
		return Gzip, nil
	case bytes.HasPrefix(header, magicXZ):
		return XZ, nil
	case bytes.HasPrefix(header, magicZstd):
		return Zstd, nil
	case bytes.HasPrefix(header, magicSnappy):
		return Snappy, nil
	default:
		return None, nil
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
