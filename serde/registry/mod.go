// Package registry keeps the format engines of a message type. A message looks
// up the engine of the format of its context, and the engines register
// themselves from the init of their package.
package registry

import (
	"github.com/bitpond/appkit/serde"
)

// Registry maps the formats to the engines of one message type.
type Registry interface {
	// Register sets the engine of the format.
	Register(serde.Format, serde.FormatEngine)

	// Get returns the engine of the format. It never returns nil.
	Get(serde.Format) serde.FormatEngine
}
