// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	gerrors "github.com/tochemey/stateserver/errors"
)

const (
	// Version is the protocol version written in, and accepted from, every frame header.
	Version int32 = 0
	// EndOfStream is the header value announcing that no further frames follow.
	EndOfStream int32 = -1
	// DefaultMaxSize is the largest payload accepted unless overridden with WithMaxSize (16 MiB).
	DefaultMaxSize uint32 = 16 << 20

	bufferSize = 64 << 10
	// retainSize is the largest payload buffer kept for the next frame.
	retainSize = 1 << 20
)

// Transport reads and writes length-prefixed frames over a duplex byte stream.
//
// Frame layout (all integers are big-endian int32):
//
//	┌──────────┬──────────┬──────────────┐
//	│ version  │ length   │ payload      │
//	│ 4 bytes  │ 4 bytes  │ length bytes │
//	└──────────┴──────────┴──────────────┘
//
// A version of EndOfStream is sent alone and ends the stream.
//
// A Transport is not safe for concurrent use; the serving loop owns it.
type Transport struct {
	reader  *bufio.Reader
	writer  *bufio.Writer
	payload []byte
	maxSize uint32
}

// Option configures a Transport.
type Option func(*Transport)

// WithMaxSize sets the largest payload length the Transport accepts.
func WithMaxSize(size uint32) Option {
	return func(t *Transport) {
		if size > 0 {
			t.maxSize = size
		}
	}
}

// NewTransport wraps rw with buffered frame reading and writing.
func NewTransport(rw io.ReadWriter, opts ...Option) *Transport {
	t := &Transport{
		reader:  bufio.NewReaderSize(rw, bufferSize),
		writer:  bufio.NewWriterSize(rw, bufferSize),
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ReadFrame blocks until a complete frame has been read and returns its payload.
// Short reads from the underlying stream are retried until the declared length is
// buffered. The frames of a connection are handled one at a time, so the returned
// slice is the Transport's own payload buffer: it is overwritten by the next
// ReadFrame. Decode or copy it, then hand it back with Release.
//
// It returns ErrEndOfStream when the peer sent the end-of-stream marker,
// ErrTransportClosed when the stream ended or failed on a frame boundary,
// ErrUnsupportedProtocolVersion, ErrFrameTooLarge, or ErrMalformedMessage for a
// negative length or a stream that ends in the middle of a frame.
func (t *Transport) ReadFrame() ([]byte, error) {
	version, err := t.readInt32()
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated frame header: %w", gerrors.ErrMalformedMessage, err)
		}
		return nil, fmt.Errorf("%w: %w", gerrors.ErrTransportClosed, err)
	}

	if version == EndOfStream {
		return nil, gerrors.ErrEndOfStream
	}

	if version != Version {
		return nil, fmt.Errorf("%w: %d", gerrors.ErrUnsupportedProtocolVersion, version)
	}

	length, err := t.readInt32()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated frame length: %w", gerrors.ErrMalformedMessage, err)
	}

	if length < 0 {
		return nil, fmt.Errorf("%w: negative frame length %d", gerrors.ErrMalformedMessage, length)
	}

	if uint32(length) > t.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", gerrors.ErrFrameTooLarge, length, t.maxSize)
	}

	payload := t.buffer(int(length))
	if _, err := io.ReadFull(t.reader, payload); err != nil {
		return nil, fmt.Errorf("%w: truncated payload: %w", gerrors.ErrMalformedMessage, err)
	}
	return payload, nil
}

// Release hands back a payload obtained from ReadFrame. A buffer grown past
// retainSize is dropped so that one large frame does not pin its memory for
// the rest of the connection.
func (t *Transport) Release(payload []byte) {
	if cap(payload) > retainSize {
		t.payload = nil
	}
}

// buffer returns the payload buffer resized to n bytes. It only grows up to the
// largest frame seen, which maxSize bounds.
func (t *Transport) buffer(n int) []byte {
	if cap(t.payload) < n {
		t.payload = make([]byte, n)
	}
	return t.payload[:n]
}

// WriteFrame writes one frame carrying payload and flushes it so the peer sees it
// before the next read blocks.
func (t *Transport) WriteFrame(payload []byte) error {
	if uint64(len(payload)) > uint64(t.maxSize) {
		return fmt.Errorf("%w: %d > %d", gerrors.ErrFrameTooLarge, len(payload), t.maxSize)
	}

	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(Version))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(payload)))

	if _, err := t.writer.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: %w", gerrors.ErrTransportClosed, err)
	}
	if _, err := t.writer.Write(payload); err != nil {
		return fmt.Errorf("%w: %w", gerrors.ErrTransportClosed, err)
	}
	return t.flush()
}

// WriteEndOfStream writes the end-of-stream marker and flushes it.
func (t *Transport) WriteEndOfStream() error {
	var hdr [4]byte
	eos := EndOfStream
	binary.BigEndian.PutUint32(hdr[:], uint32(eos))
	if _, err := t.writer.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: %w", gerrors.ErrTransportClosed, err)
	}
	return t.flush()
}

// Discard drops any bytes buffered for writing but not flushed yet.
func (t *Transport) Discard() {
	t.writer.Reset(io.Discard)
}

func (t *Transport) flush() error {
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("%w: %w", gerrors.ErrTransportClosed, err)
	}
	return nil
}

func (t *Transport) readInt32() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(t.reader, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}
