// Package binary implements Carbon's length-delimited TCP wire format:
// every message is a 4-byte big-endian length prefix followed by that many
// payload bytes. Connections are handled one goroutine each, with
// TCP_NODELAY enabled.
package binary

import (
	"encoding/binary"
	"errors"
	"io"
)

// LengthPrefixSize is the width of the big-endian frame-length prefix
// preceding every message.
const LengthPrefixSize = 4

// MaxFrameSize is the largest payload the protocol allows (8 MiB).
const MaxFrameSize = 8 << 20

// hardCap bounds how large a declared frame length this server will ever
// drain from the wire before giving up and closing the connection. Guards
// against a hostile or corrupt length prefix.
const hardCap = 64 << 20

// ErrFrameTooLarge is returned when a frame's declared length exceeds
// MaxFrameSize but was still small enough to drain safely; the connection
// stays open and an ERROR response should be sent.
var ErrFrameTooLarge = errors.New("binary: frame exceeds max size")

// ErrFrameUnrecoverable is returned when a frame's declared length is too
// large to safely drain; callers should close the connection.
var ErrFrameUnrecoverable = errors.New("binary: frame too large to recover, closing connection")

// ReadFrame reads one length-prefixed frame from r. When the declared
// length exceeds MaxFrameSize, its payload bytes are discarded (keeping the
// stream framed for the next message) and ErrFrameTooLarge is returned,
// unless the length also exceeds hardCap, in which case
// ErrFrameUnrecoverable is returned without reading further.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])

	if n > hardCap {
		return nil, ErrFrameUnrecoverable
	}
	if n > MaxFrameSize {
		if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
			return nil, err
		}
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload to w preceded by its big-endian length.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
