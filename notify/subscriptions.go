package notify

import (
	"context"
	"sync"
)

// Handler is a function supplied by event subscribers.
type Handler func(ctx context.Context, e Event) error

// subscriptions associates handlers to event types.
type subscriptions struct {
	s map[EventType][]Handler
	sync.RWMutex
}

// Subscribe a handler to a specific event type.
func (s *subscriptions) Subscribe(t EventType, h Handler) {
	s.Lock()
	defer s.Unlock()
	s.s[t] = append(s.s[t], h)
}

// handleEvent runs every handler registered for the event type and returns
// the errors they reported.
func (s *subscriptions) handleEvent(ctx context.Context, e Event) []error {
	s.RLock()
	handlers := append([]Handler(nil), s.s[e.Type]...)
	s.RUnlock()
	var errs []error
	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
