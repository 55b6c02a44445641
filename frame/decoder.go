package frame

import "encoding/binary"

// State is the decoder's position within the current frame.
type State int

const (
	AwaitingLength  State = iota // Collecting the 4-byte length prefix
	AwaitingPayload              // Collecting the payload announced by the prefix
)

// String returns a human-readable name for the decoder state.
func (s State) String() string {
	switch s {
	case AwaitingLength:
		return "AwaitingLength"
	case AwaitingPayload:
		return "AwaitingPayload"
	default:
		return "Unknown"
	}
}

// Decoder reassembles frames from a byte stream delivered in arbitrary
// chunks. It keeps its position across calls, so a transport that yields a
// partial header or payload can feed whatever it has and continue later.
//
// A Decoder is not safe for concurrent use; it belongs to the goroutine that
// reads the connection.
type Decoder struct {
	maxPayload int
	state      State
	header     [HeaderSize]byte
	headerLen  int
	payload    []byte
	filled     int
}

// NewDecoder creates a Decoder that rejects payloads larger than maxPayload.
//
// Parameters:
//   - maxPayload: The payload ceiling in bytes
//
// Returns:
//   - A Decoder in the AwaitingLength state
func NewDecoder(maxPayload int) *Decoder {
	return &Decoder{maxPayload: maxPayload}
}

// State returns the decoder's current state.
func (d *Decoder) State() State {
	return d.state
}

// Remaining returns how many bytes the decoder still needs to finish the
// header or payload it is currently collecting.
func (d *Decoder) Remaining() int {
	if d.state == AwaitingLength {
		return HeaderSize - d.headerLen
	}

	return len(d.payload) - d.filled
}

// Reset discards any partially decoded frame.
func (d *Decoder) Reset() {
	d.state = AwaitingLength
	d.headerLen = 0
	d.payload = nil
	d.filled = 0
}

// Feed consumes p and returns every payload completed by it, in stream
// order. An empty p is not an error. After an error the stream is corrupt
// and the connection must be dropped.
//
// Parameters:
//   - p: The bytes just read from the transport; may be empty
//
// Returns:
//   - The completed payloads (possibly none)
//   - ErrEmptyFrame or ErrFrameTooLarge if a header is invalid
func (d *Decoder) Feed(p []byte) ([][]byte, error) {
	var out [][]byte
	for len(p) > 0 {
		switch d.state {
		case AwaitingLength:
			n := copy(d.header[d.headerLen:], p)
			d.headerLen += n
			p = p[n:]
			if d.headerLen < HeaderSize {
				return out, nil
			}

			length, err := checkLength(binary.BigEndian.Uint32(d.header[:]), d.maxPayload)
			if err != nil {
				return out, err
			}

			d.payload = make([]byte, length)
			d.filled = 0
			d.state = AwaitingPayload

		case AwaitingPayload:
			n := copy(d.payload[d.filled:], p)
			d.filled += n
			p = p[n:]
			if d.filled < len(d.payload) {
				return out, nil
			}

			out = append(out, d.payload)
			d.Reset()
		}
	}

	return out, nil
}
