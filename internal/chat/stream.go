package chat

import (
	"io"

	"golang.org/x/text/encoding/unicode"
)

const chunkSize = 4096

// Stream yields decoded text from a chunked reply body. A multi-byte rune
// split across network chunks is held back until it is complete.
type Stream struct {
	body io.ReadCloser
	r    io.Reader
	buf  []byte
}

// NewStream wraps body. The caller must Close the stream.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{
		body: body,
		r:    unicode.UTF8.NewDecoder().Reader(body),
		buf:  make([]byte, chunkSize),
	}
}

// Next blocks for the next non-empty piece of text. It returns io.EOF once
// the body is exhausted.
func (s *Stream) Next() (string, error) {
	for {
		n, err := s.r.Read(s.buf)
		if n > 0 {
			// A trailing error is reported on the following call.
			return string(s.buf[:n]), nil
		}
		if err != nil {
			return "", err
		}
	}
}

// Drain discards the rest of the body and closes it.
func (s *Stream) Drain() error {
	_, _ = io.Copy(io.Discard, s.body)
	return s.Close()
}

// Close releases the body.
func (s *Stream) Close() error {
	return s.body.Close()
}
