package tileutils

import (
	"bytes"
	"io"

	gziplib "github.com/klauspost/compress/gzip"
)

// Gzip compresses a tile for storage at the best compression level.
func Gzip(data []byte) ([]byte, error) {
	return GzipLevel(data, gziplib.BestCompression)
}

// GzipLevel compresses data at the given gzip level.
func GzipLevel(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	g, err := gziplib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := g.Write(data); err != nil {
		return nil, err
	}
	if err := g.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsGzipped reports whether data starts with the gzip magic bytes.
func IsGzipped(data []byte) bool {
	return len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b
}

// Gunzip decompresses a gzipped tile.
func Gunzip(data []byte) ([]byte, error) {
	r, err := gziplib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
