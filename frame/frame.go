// Package frame implements the length-prefixed wire framing used between the
// server and its clients. Every frame is a 4-byte big-endian payload length
// followed by exactly that many payload bytes.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the number of bytes in a frame's length prefix.
const HeaderSize = 4

var (
	// ErrEmptyFrame is returned when a frame declares (or would carry) a zero-length payload.
	ErrEmptyFrame = errors.New("frame: empty payload")
	// ErrFrameTooLarge is returned when a frame's payload exceeds the configured ceiling.
	ErrFrameTooLarge = errors.New("frame: payload exceeds ceiling")
)

// MaxPayload returns the payload ceiling for the given read buffer size and
// multiple. Frames above the ceiling are a protocol violation.
//
// Parameters:
//   - bufferSize: The configured read buffer size in bytes
//   - multiple: How many buffers a single payload may span
//
// Returns:
//   - The maximum payload length in bytes
func MaxPayload(bufferSize, multiple int) int {
	return bufferSize * multiple
}

// Encode returns a new frame carrying payload.
//
// Parameters:
//   - payload: The serialized message bytes; must be non-empty
//
// Returns:
//   - The frame bytes (header followed by payload)
//   - ErrEmptyFrame if payload is empty
func Encode(payload []byte) ([]byte, error) {
	return AppendFrame(make([]byte, 0, HeaderSize+len(payload)), payload)
}

// AppendFrame appends the frame for payload to dst and returns the extended slice.
func AppendFrame(dst, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return dst, ErrEmptyFrame
	}

	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...), nil
}

// ReadFrame reads exactly one frame from r, blocking until it is complete.
// It is the blocking counterpart of Decoder for callers that own a goroutine
// per connection.
//
// Parameters:
//   - r: The stream to read from
//   - maxPayload: The payload ceiling; larger frames are rejected
//
// Returns:
//   - The payload bytes
//   - io.EOF if the stream ended cleanly before a header, io.ErrUnexpectedEOF
//     if it ended mid-frame, or a validation error
func ReadFrame(r io.Reader, maxPayload int) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length, err := checkLength(binary.BigEndian.Uint32(header[:]), maxPayload)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}

		return nil, err
	}

	return payload, nil
}

func checkLength(declared uint32, maxPayload int) (int, error) {
	if declared == 0 {
		return 0, ErrEmptyFrame
	}

	if uint64(declared) > uint64(maxPayload) {
		return 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, declared, maxPayload)
	}

	return int(declared), nil
}
