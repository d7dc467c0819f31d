package cache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// compress gzips payload.
func compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("cache: compress failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("cache: compress failed: %w", err)
	}
	return buf.Bytes(), nil
}

// decompress reverses compress.
func decompress(stored []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(stored))
	if err != nil {
		return nil, fmt.Errorf("cache: decompress failed: %w", err)
	}
	defer r.Close()

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cache: decompress failed: %w", err)
	}
	return payload, nil
}
