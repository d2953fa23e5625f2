package provider

import (
	"encoding/json"
	"sync"
)

// Emitter fans provider notifications out to subscribed handlers.
// Handlers run on the emitting goroutine, outside the emitter's lock.
type Emitter struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[Event]map[uint64]func(json.RawMessage)
}

// NewEmitter creates an emitter
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[Event]map[uint64]func(json.RawMessage))}
}

// Subscribe registers handler for event
func (e *Emitter) Subscribe(event Event, handler func(json.RawMessage)) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	if e.handlers[event] == nil {
		e.handlers[event] = make(map[uint64]func(json.RawMessage))
	}
	e.handlers[event][id] = handler

	return &subscription{emitter: e, event: event, id: id}
}

// Emit delivers payload to every handler of event
func (e *Emitter) Emit(event Event, payload json.RawMessage) {
	e.mu.Lock()
	handlers := make([]func(json.RawMessage), 0, len(e.handlers[event]))
	for _, h := range e.handlers[event] {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}

// Count returns the number of live handlers for event
func (e *Emitter) Count(event Event) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[event])
}

func (e *Emitter) remove(event Event, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers[event], id)
}

type subscription struct {
	emitter *Emitter
	event   Event
	id      uint64
	once    sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.emitter.remove(s.event, s.id)
	})
}
