package event

import "sync"

// Event is a named payload delivered to subscribers of its Type.
type Event struct {
	Type    string
	Payload any
}

// Handler receives events of the type it subscribed to.
type Handler func(Event)

type subscriber struct {
	id uint64
	fn Handler
}

// Bus is a synchronous pub/sub keyed by event type. Emit calls every current
// subscriber in subscription order before returning. Queue defers an event
// until the next Flush, which the World calls at tick start.
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	handlers map[string][]subscriber
	nextID   uint64

	front []Event
	back  []Event
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]subscriber),
		front:    make([]Event, 0, 64),
		back:     make([]Event, 0, 64),
	}
}

// Subscription is the capability to remove one handler.
type Subscription struct {
	bus  *Bus
	typ  string
	id   uint64
	once sync.Once
}

// Unsubscribe removes the handler. Returns true only on the first call.
func (s *Subscription) Unsubscribe() bool {
	removed := false
	s.once.Do(func() {
		removed = s.bus.remove(s.typ, s.id)
	})
	return removed
}

// Subscribe registers fn for events of type typ.
func (b *Bus) Subscribe(typ string, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[typ] = append(b.handlers[typ], subscriber{id: id, fn: fn})
	return &Subscription{bus: b, typ: typ, id: id}
}

func (b *Bus) remove(typ string, id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[typ]
	for i, s := range subs {
		if s.id == id {
			// copy so an Emit iterating the old slice is unaffected
			next := make([]subscriber, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.handlers, typ)
			} else {
				b.handlers[typ] = next
			}
			return true
		}
	}
	return false
}

// Emit delivers an event immediately. Handlers added or removed during
// delivery take effect from the next Emit.
func (b *Bus) Emit(typ string, payload any) {
	b.mu.Lock()
	subs := b.handlers[typ]
	b.mu.Unlock()
	ev := Event{Type: typ, Payload: payload}
	for _, s := range subs {
		s.fn(ev)
	}
}

// Queue buffers an event for the next Flush.
func (b *Bus) Queue(typ string, payload any) {
	b.back = append(b.back, Event{Type: typ, Payload: payload})
}

// Pending returns the number of queued events.
func (b *Bus) Pending() int {
	return len(b.back)
}

// Flush swaps the queue buffers and dispatches everything queued before the
// call. Events queued by handlers during Flush wait for the following Flush.
func (b *Bus) Flush() int {
	b.front, b.back = b.back, b.front[:0]
	n := len(b.front)
	for _, ev := range b.front {
		b.Emit(ev.Type, ev.Payload)
	}
	clear(b.front)
	b.front = b.front[:0]
	return n
}

// SubscriberCount returns the number of handlers registered for typ.
func (b *Bus) SubscriberCount(typ string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[typ])
}

// Reset drops every handler and queued event.
func (b *Bus) Reset() {
	b.mu.Lock()
	clear(b.handlers)
	b.mu.Unlock()
	b.front = b.front[:0]
	b.back = b.back[:0]
}
