// Package rawio reads and writes flat little-endian numeric arrays, the
// exchange format for sinograms, images and detector tables. Files whose
// name ends in ".zst" are zstd compressed.
package rawio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Number is an element type supported by Read and Write.
type Number interface {
	~float64 | ~float32 | ~uint32 | ~uint16
}

// Compressed reports whether path names a zstd compressed file.
func Compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// Read reads a whole array file. If n is not negative the file must hold
// exactly n elements.
func Read[T Number](path string, n int) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if Compressed(path) {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return decode[T](data, n, path)
}

func decode[T Number](data []byte, n int, name string) ([]T, error) {
	var zero T
	size := binary.Size(zero)
	if len(data)%size != 0 {
		return nil, fmt.Errorf("%s: %d bytes is not a multiple of the %d byte element size", name, len(data), size)
	}
	count := len(data) / size
	if n >= 0 && count != n {
		return nil, fmt.Errorf("%s: expected %d elements, found %d", name, n, count)
	}

	out := make([]T, count)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Write writes data to path, creating parent directories as needed. The
// file is closed exactly once and a failed close is reported.
func Write[T Number](path string, data []T) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("error closing %s: %w", path, cerr)
		}
	}()

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var enc *zstd.Encoder
	if Compressed(path) {
		enc, err = zstd.NewWriter(bw)
		if err != nil {
			return fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		w = enc
	}

	if err := binary.Write(w, binary.LittleEndian, data); err != nil {
		if enc != nil {
			enc.Close()
		}
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("error compressing %s: %w", path, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}

// ReadOptional reads path when it is set and returns nil otherwise.
func ReadOptional[T Number](path string, n int) ([]T, error) {
	if path == "" {
		return nil, nil
	}
	return Read[T](path, n)
}
