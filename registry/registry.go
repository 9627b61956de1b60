// Package registry keeps an in-memory view of the agencies observing
// relationships and the legislative programs each one administers.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/store"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var reloadFrequency = 10 * time.Second

type Registry struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   logrus.FieldLogger
	source   store.AgencyStore
	reloadCh chan struct{}
	stopCh   chan chan struct{}
	r        map[model.EntityID]model.Agency
	sync.RWMutex
}

// New returns a usable registry. The first load must succeed.
func New(logger logrus.FieldLogger, source store.AgencyStore, frequency time.Duration) (*Registry, error) {
	r := &Registry{
		logger:   logger,
		source:   source,
		reloadCh: make(chan struct{}),
		stopCh:   make(chan chan struct{}),
		r:        make(map[model.EntityID]model.Agency),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	if err := r.load(); err != nil {
		r.cancel()
		return nil, errors.Wrap(err, "registry failed to load from source")
	}
	if frequency <= 0 {
		frequency = reloadFrequency
	}
	go r.loop(frequency)
	return r, nil
}

// load replaces the local map with the agencies found in the source.
func (r *Registry) load() error {
	agencies, err := r.source.ListAgencies(r.ctx)
	if err != nil {
		return err
	}
	if len(agencies) < 1 {
		r.logger.Warn("Registry has been loaded but it is empty")
	}
	newMap := make(map[model.EntityID]model.Agency, len(agencies))
	for _, a := range agencies {
		if a.ID == "" {
			return errors.New("agency without id")
		}
		newMap[a.ID] = a
	}
	r.Lock()
	r.r = newMap
	r.Unlock()
	return nil
}

func (r *Registry) loop(frequency time.Duration) {
	ticker := time.NewTicker(frequency)
	defer ticker.Stop()
	for {
		select {
		case ch := <-r.stopCh:
			r.cancel()
			close(ch)
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		case <-r.reloadCh:
		}
		if err := r.load(); err != nil {
			r.logger.WithError(err).Error("Registry reload failed, keeping previous entries")
		}
	}
}

// Get returns the agency registered under id.
func (r *Registry) Get(id model.EntityID) (model.Agency, bool) {
	r.RLock()
	defer r.RUnlock()
	a, ok := r.r[id]
	return a, ok
}

// Programs returns the names of the legislative programs administered by the
// agency. Unknown agencies are reported as model.ErrNotFound.
func (r *Registry) Programs(_ context.Context, id model.EntityID) ([]string, error) {
	a, ok := r.Get(id)
	if !ok {
		return nil, errors.Wrapf(model.ErrNotFound, "agency %s", id)
	}
	return a.ProgramNames(), nil
}

func (r *Registry) Log() {
	r.RLock()
	defer r.RUnlock()
	for id, a := range r.r {
		r.logger.WithFields(logrus.Fields{
			"agency":   id,
			"name":     a.Name,
			"programs": a.ProgramNames(),
		}).Warn("Registry entry found")
	}
}

// Reload is a non-blocking request to reload the registry. The operation is
// omitted if it is already happening.
func (r *Registry) Reload() {
	select {
	case r.reloadCh <- struct{}{}:
		r.logger.Warn("Reloading registry")
		return
	default:
		r.logger.Warn("The registry is currently reloading the entries")
	}
}

func (r *Registry) Stop() {
	ch := make(chan struct{})
	r.stopCh <- ch
	<-ch
}
