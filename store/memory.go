package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/JiscSD/ram-relationships/code"
	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/query"

	"github.com/pkg/errors"
)

// checkVersion compares the version a caller loaded with the stored one.
func checkVersion(kind string, id model.EntityID, expected int64, current model.Entity) error {
	switch {
	case expected == 0 && current != nil:
		return errors.Wrapf(model.ErrConflict, "%s %s already exists", kind, id)
	case expected != 0 && current == nil:
		return errors.Wrapf(model.ErrConflict, "%s %s no longer exists", kind, id)
	case current != nil && current.Base().ResourceVersion != expected:
		return errors.Wrapf(model.ErrConflict, "%s %s is at version %d, not %d",
			kind, id, current.Base().ResourceVersion, expected)
	}
	return nil
}

type memoryPartyStore struct {
	mu         sync.RWMutex
	parties    map[model.EntityID]*model.Party
	identities map[string]model.EntityID
}

var _ PartyStore = (*memoryPartyStore)(nil)

// NewMemoryPartyStore returns a PartyStore that keeps parties in memory.
func NewMemoryPartyStore() *memoryPartyStore {
	return &memoryPartyStore{
		parties:    make(map[model.EntityID]*model.Party),
		identities: make(map[string]model.EntityID),
	}
}

func (s *memoryPartyStore) FindByID(_ context.Context, id model.EntityID) (*model.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parties[id]
	if !ok {
		return nil, errors.Wrapf(model.ErrNotFound, "party %s", id)
	}
	return p.Clone(), nil
}

func (s *memoryPartyStore) FindByIdentity(ctx context.Context, t code.IdentityType, value string) (*model.Party, error) {
	s.mu.RLock()
	id, ok := s.identities[model.IdentityKey(t, value)]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(model.ErrNotFound, "identity %s", model.IdentityKey(t, value))
	}
	return s.FindByID(ctx, id)
}

func (s *memoryPartyStore) Find(_ context.Context, f query.Filters, page query.Page) (query.SearchResult[*model.Party], error) {
	c, err := parsePartyFilters(f)
	if err != nil {
		return query.SearchResult[*model.Party]{}, err
	}
	s.mu.RLock()
	var items []*model.Party
	for _, p := range s.parties {
		if c.match(p) {
			items = append(items, p.Clone())
		}
	}
	s.mu.RUnlock()
	sortEntities(items)
	return query.Paginate(items, page), nil
}

func (s *memoryPartyStore) Save(_ context.Context, p *model.Party) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current model.Entity
	if c, ok := s.parties[p.ID]; ok {
		current = c
	}
	if err := checkVersion("party", p.ID, p.ResourceVersion, current); err != nil {
		return err
	}
	var messages []string
	for _, i := range p.Identities {
		if owner, ok := s.identities[i.Key()]; ok && owner != p.ID {
			messages = append(messages, fmt.Sprintf("identity %s is already in use", i.Key()))
		}
	}
	if len(messages) > 0 {
		return model.NewValidationError(messages...)
	}

	next := p.Clone()
	next.ResourceVersion++
	for _, i := range next.Identities {
		s.identities[i.Key()] = next.ID
	}
	s.parties[next.ID] = next
	p.ResourceVersion = next.ResourceVersion
	return nil
}

func (s *memoryPartyStore) Purge(_ context.Context, id model.EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[id]
	if !ok {
		return errors.Wrapf(model.ErrNotFound, "party %s", id)
	}
	for _, i := range p.Identities {
		delete(s.identities, i.Key())
	}
	delete(s.parties, id)
	return nil
}

type memoryRelationshipStore struct {
	mu            sync.RWMutex
	relationships map[model.EntityID]*model.Relationship
}

var _ RelationshipStore = (*memoryRelationshipStore)(nil)

// NewMemoryRelationshipStore returns a RelationshipStore that keeps
// relationships in memory.
func NewMemoryRelationshipStore() *memoryRelationshipStore {
	return &memoryRelationshipStore{
		relationships: make(map[model.EntityID]*model.Relationship),
	}
}

func (s *memoryRelationshipStore) FindByID(_ context.Context, id model.EntityID) (*model.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.relationships[id]
	if !ok {
		return nil, errors.Wrapf(model.ErrNotFound, "relationship %s", id)
	}
	return r.Clone(), nil
}

func (s *memoryRelationshipStore) Find(_ context.Context, f query.Filters, page query.Page) (query.SearchResult[*model.Relationship], error) {
	c, err := parseRelationshipFilters(f)
	if err != nil {
		return query.SearchResult[*model.Relationship]{}, err
	}
	s.mu.RLock()
	var items []*model.Relationship
	for _, r := range s.relationships {
		if c.match(r) {
			items = append(items, r.Clone())
		}
	}
	s.mu.RUnlock()
	sortEntities(items)
	return query.Paginate(items, page), nil
}

func (s *memoryRelationshipStore) Save(_ context.Context, r *model.Relationship) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current model.Entity
	if c, ok := s.relationships[r.ID]; ok {
		current = c
	}
	if err := checkVersion("relationship", r.ID, r.ResourceVersion, current); err != nil {
		return err
	}

	next := r.Clone()
	next.ResourceVersion++
	s.relationships[next.ID] = next
	r.ResourceVersion = next.ResourceVersion
	return nil
}

type memoryAgencyStore struct {
	agencies []model.Agency
}

var _ AgencyStore = (*memoryAgencyStore)(nil)

// NewMemoryAgencyStore returns an AgencyStore serving a fixed list.
func NewMemoryAgencyStore(agencies ...model.Agency) *memoryAgencyStore {
	return &memoryAgencyStore{agencies: agencies}
}

func (s *memoryAgencyStore) ListAgencies(context.Context) ([]model.Agency, error) {
	return append([]model.Agency(nil), s.agencies...), nil
}
