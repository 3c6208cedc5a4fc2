package registry

import (
	"sync"

	"github.com/bitpond/appkit/serde"
	"golang.org/x/xerrors"
)

// ErrUnknownFormat is returned by the engine of a format nothing registered.
var ErrUnknownFormat = xerrors.New("unknown format")

// SimpleRegistry is a registry safe for concurrent use. An engine registered
// twice for a format replaces the first one.
//
// - implements registry.Registry
type SimpleRegistry struct {
	sync.RWMutex
	engines map[serde.Format]serde.FormatEngine
}

// NewSimpleRegistry returns an empty registry.
func NewSimpleRegistry() *SimpleRegistry {
	return &SimpleRegistry{
		engines: map[serde.Format]serde.FormatEngine{},
	}
}

// Register implements registry.Registry.
func (r *SimpleRegistry) Register(format serde.Format, engine serde.FormatEngine) {
	r.Lock()
	defer r.Unlock()

	r.engines[format] = engine
}

// Get implements registry.Registry. The engine of an unknown format fails with
// ErrUnknownFormat, so a message does not check the format before using it.
func (r *SimpleRegistry) Get(format serde.Format) serde.FormatEngine {
	r.RLock()
	defer r.RUnlock()

	engine, found := r.engines[format]
	if !found {
		return missingEngine(format)
	}

	return engine
}

// missingEngine is the engine of an unknown format.
//
// - implements serde.FormatEngine
type missingEngine serde.Format

// Encode implements serde.FormatEngine.
func (e missingEngine) Encode(serde.Context, serde.Message) ([]byte, error) {
	return nil, xerrors.Errorf("format '%s': %w", string(e), ErrUnknownFormat)
}

// Decode implements serde.FormatEngine.
func (e missingEngine) Decode(serde.Context, []byte) (serde.Message, error) {
	return nil, xerrors.Errorf("format '%s': %w", string(e), ErrUnknownFormat)
}
