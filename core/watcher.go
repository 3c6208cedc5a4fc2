// Package core implements commonly used tools.
package core

import "sync"

// Observer is the interface to implement to watch events.
type Observer[E any] interface {
	NotifyCallback(event E)
}

// Watcher keeps a set of observers and notifies them of new events. An
// observer is notified synchronously, so it must not block.
type Watcher[E any] struct {
	sync.RWMutex

	observers map[Observer[E]]struct{}
}

// NewWatcher creates a new empty watcher.
func NewWatcher[E any]() *Watcher[E] {
	return &Watcher[E]{
		observers: make(map[Observer[E]]struct{}),
	}
}

// Add adds the observer to the list of observers that will be notified of new
// events.
func (w *Watcher[E]) Add(observer Observer[E]) {
	w.Lock()
	w.observers[observer] = struct{}{}
	w.Unlock()
}

// Remove removes the observer from the list thus stopping it from receiving
// new events.
func (w *Watcher[E]) Remove(observer Observer[E]) {
	w.Lock()
	delete(w.observers, observer)
	w.Unlock()
}

// Len returns the number of observers.
func (w *Watcher[E]) Len() int {
	w.RLock()
	defer w.RUnlock()

	return len(w.observers)
}

// Notify notifies every observer of the event.
func (w *Watcher[E]) Notify(event E) {
	w.RLock()
	defer w.RUnlock()

	for obs := range w.observers {
		obs.NotifyCallback(event)
	}
}
