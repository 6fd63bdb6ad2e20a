package engine

import (
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// ErrChecksumMismatch is returned when a copy reads back differently from
// what was written.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// HashingReader computes an xxhash64 of everything read through it.
type HashingReader struct {
	r      io.Reader
	digest *xxhash.Digest
	n      int64
}

// NewHashingReader wraps r.
func NewHashingReader(r io.Reader) *HashingReader {
	return &HashingReader{r: r, digest: xxhash.New()}
}

func (hr *HashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.n += int64(n)
		hr.digest.Write(p[:n])
	}
	return n, err
}

// Sum64 returns the hash of the bytes read so far.
func (hr *HashingReader) Sum64() uint64 {
	return hr.digest.Sum64()
}

// BytesRead returns the number of bytes read so far.
func (hr *HashingReader) BytesRead() int64 {
	return hr.n
}

// HashStream reads r to EOF using buf and returns its xxhash64 and length.
func HashStream(r io.Reader, buf []byte) (uint64, int64, error) {
	d := xxhash.New()
	n, err := io.CopyBuffer(d, r, buf)
	if err != nil {
		return 0, n, err
	}
	return d.Sum64(), n, nil
}

// VerifyChecksum returns an error wrapping ErrChecksumMismatch when the two
// sums differ.
func VerifyChecksum(path string, want, got uint64) error {
	if want != got {
		return fmt.Errorf("%s: %w (wrote %016x, read back %016x)", path, ErrChecksumMismatch, want, got)
	}
	return nil
}
