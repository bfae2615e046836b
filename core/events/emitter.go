// Package events provides a simple event emitter.
package events

import (
	"github.com/chuckpreslar/emission"
)

// Emitter is a simple event emitter.
// This is a thin wrapper of emission.Emitter whose On method returns a function that cancels the registration.
// Emit returns after every listener has returned.
type Emitter struct {
	*emission.Emitter
}

// NewEmitter creates a simple event emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		Emitter: emission.NewEmitter(),
	}
}

// On registers a callback when an event occurs.
// Returns a function that cancels the callback registration.
func (emitter *Emitter) On(event, listener any) (cancel func()) {
	emitter.Emitter.On(event, listener)
	return func() { emitter.Emitter.Off(event, listener) }
}
