// File: client/source.go
// License: Apache-2.0
//
// DataSource implementations streamed by WriteItem.

package client

import (
	"errors"
	"io"
)

// DataSource yields response bytes chunk by chunk. Fill copies up to len(p)
// bytes into p and returns the count; Remaining is the number of bytes still
// to come. Release frees whatever backs the source and may be called once.
type DataSource interface {
	Fill(p []byte) int
	Remaining() int64
	Release()
}

// sourceErr is implemented by sources that can stall on a read failure.
type sourceErr interface {
	Err() error
}

type bytesSource struct {
	data []byte
	off  int
}

// NewBytesSource serves b. The slice is not copied.
func NewBytesSource(b []byte) DataSource {
	return &bytesSource{data: b}
}

func (s *bytesSource) Fill(p []byte) int {
	n := copy(p, s.data[s.off:])
	s.off += n
	return n
}

func (s *bytesSource) Remaining() int64 { return int64(len(s.data) - s.off) }

func (s *bytesSource) Release() { s.data, s.off = nil, 0 }

type readerSource struct {
	r         io.Reader
	remaining int64
	err       error
}

// NewReaderSource serves exactly size bytes from r. A reader that ends early
// stalls the source with io.ErrUnexpectedEOF. r is closed on Release when it
// implements io.Closer.
func NewReaderSource(r io.Reader, size int64) DataSource {
	return &readerSource{r: r, remaining: size}
}

func (s *readerSource) Fill(p []byte) int {
	if s.err != nil || s.remaining <= 0 {
		return 0
	}
	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}
	n, err := io.ReadFull(s.r, p)
	s.remaining -= int64(n)
	if err != nil && s.remaining > 0 {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		s.err = err
	}
	return n
}

func (s *readerSource) Remaining() int64 { return s.remaining }

func (s *readerSource) Err() error { return s.err }

func (s *readerSource) Release() {
	if c, ok := s.r.(io.Closer); ok {
		_ = c.Close()
	}
	s.r = nil
}

type concatSource struct {
	parts []DataSource
}

// Concat serves parts back to back. Nil parts are skipped.
func Concat(parts ...DataSource) DataSource {
	s := &concatSource{parts: make([]DataSource, 0, len(parts))}
	for _, p := range parts {
		if p != nil {
			s.parts = append(s.parts, p)
		}
	}
	return s
}

func (s *concatSource) Fill(p []byte) int {
	total := 0
	for _, part := range s.parts {
		if total == len(p) {
			break
		}
		if part.Remaining() <= 0 {
			continue
		}
		n := part.Fill(p[total:])
		total += n
		if part.Remaining() > 0 {
			// part stalled or p is full
			break
		}
	}
	return total
}

func (s *concatSource) Remaining() int64 {
	var n int64
	for _, part := range s.parts {
		n += part.Remaining()
	}
	return n
}

func (s *concatSource) Err() error {
	for _, part := range s.parts {
		if e, ok := part.(sourceErr); ok && e.Err() != nil {
			return e.Err()
		}
	}
	return nil
}

func (s *concatSource) Release() {
	for _, part := range s.parts {
		part.Release()
	}
	s.parts = nil
}
