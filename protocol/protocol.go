// Package protocol defines the closed set of messages exchanged between the
// server and its clients and their CBOR serialization. A message is either a
// Command (client to server) or a Notification (server to client); the Kind
// discriminator travels in an envelope next to the encoded body.
package protocol

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrUnknownKind is returned when an envelope names a kind this build does not know.
	ErrUnknownKind = errors.New("protocol: unknown message kind")
	// ErrMalformed is returned when a payload is not a valid envelope or body.
	ErrMalformed = errors.New("protocol: malformed message")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
		MaxArrayElements: 65536,
		MaxMapPairs:      65536,
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// Message is implemented by every Command and Notification.
type Message interface {
	Kind() Kind
}

// Command is an action requested by a player.
type Command interface {
	Message
	command()
}

// Notification is an informational payload sent by the server.
type Notification interface {
	Message
	notification()
}

type envelope struct {
	Kind Kind            `cbor:"k"`
	Body cbor.RawMessage `cbor:"b"`
}

// Marshal serializes m into a payload suitable for framing.
//
// Parameters:
//   - m: The message to encode
//
// Returns:
//   - The encoded payload
//   - An error if encoding fails
func Marshal(m Message) ([]byte, error) {
	body, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", m.Kind(), err)
	}

	return encMode.Marshal(envelope{Kind: m.Kind(), Body: body})
}

// Unmarshal decodes a payload produced by Marshal.
//
// Parameters:
//   - data: The payload of one frame
//
// Returns:
//   - The decoded message; its dynamic type is a pointer to one of the
//     message structs in this package
//   - ErrUnknownKind or ErrMalformed on invalid input
func Unmarshal(data []byte) (Message, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	m := newMessage(env.Kind)
	if m == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, env.Kind)
	}

	if len(env.Body) == 0 {
		return nil, fmt.Errorf("%w: %s without body", ErrMalformed, env.Kind)
	}

	if err := decMode.Unmarshal(env.Body, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Kind, err)
	}

	return m, nil
}

// UnmarshalCommand decodes data and requires the result to be a Command.
func UnmarshalCommand(data []byte) (Command, error) {
	m, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}

	cmd, ok := m.(Command)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a command", ErrMalformed, m.Kind())
	}

	return cmd, nil
}

// UnmarshalNotification decodes data and requires the result to be a Notification.
func UnmarshalNotification(data []byte) (Notification, error) {
	m, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}

	n, ok := m.(Notification)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a notification", ErrMalformed, m.Kind())
	}

	return n, nil
}
