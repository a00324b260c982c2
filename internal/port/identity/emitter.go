package identity

import "sync"

// Emitter fans session change events out to subscribed listeners. Provider
// adapters embed it to implement Subscribe.
type Emitter struct {
	mu        sync.Mutex
	next      int
	listeners map[int]Listener
}

// Subscribe registers l and returns an idempotent unsubscribe function.
func (e *Emitter) Subscribe(l Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[int]Listener)
	}
	id := e.next
	e.next++
	e.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

// Emit delivers ev to every listener. Listeners run outside the lock so they
// may call back into the provider.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	ls := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	e.mu.Unlock()

	for _, l := range ls {
		l(ev)
	}
}

// Len returns the number of subscribed listeners.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}
