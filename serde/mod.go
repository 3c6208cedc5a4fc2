// Package serde defines the primitives to serialize and deserialize (serde)
// messages exchanged between the ledger node and its clients.
//
// A message implementation looks up the format engine registered for the
// format of the context, which keeps the data model independent of the
// encoding.
package serde

import "io"

// Format is the identifier of an encoding format.
type Format string

// FormatJSON is the identifier of the JSON format.
const FormatJSON Format = "JSON"

// Message is the interface a data model should implement to be serialized.
type Message interface {
	// Serialize returns the bytes of the message according to the format of
	// the context.
	Serialize(ctx Context) ([]byte, error)
}

// Fingerprinter is the interface implemented by messages that can write a
// deterministic binary representation of themselves.
type Fingerprinter interface {
	Fingerprint(writer io.Writer) error
}

// Factory is the interface to implement to instantiate a message from its
// serialized form.
type Factory interface {
	Deserialize(ctx Context, data []byte) (Message, error)
}

// FormatEngine is the interface implemented by the encoders of a given
// message for a given format.
type FormatEngine interface {
	// Encode returns the bytes of the message.
	Encode(ctx Context, message Message) ([]byte, error)

	// Decode returns the message populated from the data.
	Decode(ctx Context, data []byte) (Message, error)
}
