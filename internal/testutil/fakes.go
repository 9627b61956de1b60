// Package testutil holds fakes shared by the service and API tests.
package testutil

import (
	"context"
	"sync"

	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/notify"

	"github.com/pkg/errors"
)

// Programs maps agencies to the legislative programs they administer.
type Programs map[model.EntityID][]string

func (p Programs) Programs(_ context.Context, id model.EntityID) ([]string, error) {
	v, ok := p[id]
	if !ok {
		return nil, errors.Wrapf(model.ErrNotFound, "agency %s", id)
	}
	return v, nil
}

// Recorder is a notifier that keeps every event it is given.
type Recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

var _ notify.Notifier = (*Recorder)(nil)

func (r *Recorder) Notify(_ context.Context, e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]notify.Event, len(r.events))
	copy(events, r.events)
	return events
}

// Types returns the types of the recorded events in order.
func (r *Recorder) Types() []notify.EventType {
	events := r.Events()
	types := make([]notify.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}
