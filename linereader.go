package cpufeatures

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// MinChunkSize is the smallest read size used by a LineReader.
	MinChunkSize = 128
	// DefaultMaxLineSize bounds the line buffer of a LineReader.
	DefaultMaxLineSize = 1 << 20

	minLineCapacity = 128
	maxEmptyReads   = 100
)

// LineReader reads a stream one line at a time in fixed-size chunks.
//
// Lines end at '\n' or at a NUL byte. The current line lives in a reusable
// buffer with an explicit used length; it is valid until the next call to
// [LineReader.Next].
type LineReader struct {
	r       io.Reader
	closers []io.Closer

	chunk []byte
	pos   int
	end   int

	line    []byte
	used    int
	maxLine int

	rerr error
	err  error
}

// NewLineReader returns a LineReader over r. A chunkSize below
// [MinChunkSize] is raised to it.
func NewLineReader(r io.Reader, chunkSize int) *LineReader {
	if chunkSize < MinChunkSize {
		chunkSize = MinChunkSize
	}
	return &LineReader{
		r:       r,
		chunk:   make([]byte, chunkSize),
		maxLine: DefaultMaxLineSize,
	}
}

// OpenLineReader opens path for reading and returns a LineReader over it.
// Files ending in ".gz" are decompressed transparently.
// The caller must Close the reader.
func OpenLineReader(path string, chunkSize int) (*LineReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	lr := NewLineReader(f, chunkSize)
	lr.closers = append(lr.closers, f)

	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
		}
		lr.r = gr
		lr.closers = append([]io.Closer{gr}, lr.closers...)
	}
	return lr, nil
}

// SetMaxLineSize changes the largest line the reader accepts before
// failing with [ErrOutOfMemory]. Values below the initial capacity are ignored.
func (lr *LineReader) SetMaxLineSize(n int) {
	if n >= minLineCapacity {
		lr.maxLine = n
	}
}

// Next advances to the next line. It returns io.EOF once the stream is
// exhausted, or an error wrapping [ErrReadFailure] or [ErrOutOfMemory].
// Errors are sticky.
func (lr *LineReader) Next() error {
	if lr.err != nil {
		return lr.err
	}
	lr.used = 0

	empty := 0
	for {
		for lr.pos < lr.end {
			c := lr.chunk[lr.pos]
			lr.pos++
			if c == '\n' || c == 0 {
				return nil
			}
			if err := lr.grow(); err != nil {
				lr.err = err
				return err
			}
			lr.line[lr.used] = c
			lr.used++
		}

		if lr.rerr != nil {
			if errors.Is(lr.rerr, io.EOF) {
				if lr.used > 0 {
					// Final line without a terminator.
					return nil
				}
				lr.err = io.EOF
				return io.EOF
			}
			lr.err = fmt.Errorf("%w: %w", ErrReadFailure, lr.rerr)
			return lr.err
		}

		n, err := lr.r.Read(lr.chunk)
		lr.pos, lr.end = 0, n
		lr.rerr = err
		if n == 0 && err == nil {
			empty++
			if empty >= maxEmptyReads {
				lr.rerr = io.ErrNoProgress
			}
		}
	}
}

func (lr *LineReader) grow() error {
	if lr.used < len(lr.line) {
		return nil
	}
	capacity := 2 * len(lr.line)
	if capacity < minLineCapacity {
		capacity = minLineCapacity
	}
	if capacity > lr.maxLine {
		capacity = lr.maxLine
	}
	if capacity <= lr.used {
		return fmt.Errorf("%w: line longer than %d bytes", ErrOutOfMemory, lr.maxLine)
	}
	line := make([]byte, capacity)
	copy(line, lr.line[:lr.used])
	lr.line = line
	return nil
}

// Trim removes leading and trailing whitespace from the current line in place.
func (lr *LineReader) Trim() {
	end := lr.used
	for end > 0 && isSpace(lr.line[end-1]) {
		end--
	}
	start := 0
	for start < end && isSpace(lr.line[start]) {
		start++
	}
	if start > 0 {
		copy(lr.line, lr.line[start:end])
	}
	lr.used = end - start
}

// Bytes returns the current line. The slice is reused by the next call to Next.
func (lr *LineReader) Bytes() []byte {
	return lr.line[:lr.used]
}

// Text returns a copy of the current line.
func (lr *LineReader) Text() string {
	return string(lr.line[:lr.used])
}

// Len returns the length of the current line.
func (lr *LineReader) Len() int {
	return lr.used
}

// Close releases the underlying stream if the reader opened it.
func (lr *LineReader) Close() error {
	var errs []error
	for _, c := range lr.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	lr.closers = nil
	return errors.Join(errs...)
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
