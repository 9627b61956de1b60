// Package party manages parties together with the identities and roles they
// own.
package party

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/JiscSD/ram-relationships/archive"
	"github.com/JiscSD/ram-relationships/code"
	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/notify"
	"github.com/JiscSD/ram-relationships/query"
	"github.com/JiscSD/ram-relationships/store"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type IdentityInput struct {
	IdentityType       code.IdentityType `json:"identityType"`
	Value              string            `json:"value"`
	IdentityProviderID model.EntityID    `json:"identityProviderId,omitempty"`
}

type RoleInput struct {
	EntityWithAttributeDefID model.EntityID         `json:"entityWithAttributeDefId"`
	Attributes               []model.AttributeValue `json:"attributes,omitempty"`
}

// CreateInput is the document accepted by Create.
type CreateInput struct {
	PartyType  code.PartyType  `json:"partyType"`
	Name       model.Name      `json:"name"`
	Identities []IdentityInput `json:"identities,omitempty"`
	Roles      []RoleInput     `json:"roles,omitempty"`
}

type SearchParams struct {
	PartyType      string `schema:"partyType"`
	IncludeDeleted bool   `schema:"includeDeleted"`
}

type Service struct {
	logger        logrus.FieldLogger
	parties       store.PartyStore
	relationships store.RelationshipStore
	archive       archive.ObjectStorage
	notifier      notify.Notifier
	clock         func() time.Time
}

func New(
	logger logrus.FieldLogger,
	parties store.PartyStore,
	relationships store.RelationshipStore,
	storage archive.ObjectStorage,
	notifier notify.Notifier) *Service {

	return &Service{
		logger:        logger.WithField("component", "party"),
		parties:       parties,
		relationships: relationships,
		archive:       storage,
		notifier:      notifier,
		clock:         time.Now,
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func identity(in IdentityInput, by model.EntityID, now time.Time) (model.IdentityValue, error) {
	if in.IdentityType == code.IdentityTypeInvitationCode {
		return model.IdentityValue{}, model.NewValidationError("invitation codes are only issued with a relationship")
	}
	return model.IdentityValue{
		VersionedEntity:    model.NewVersionedEntity(by, now),
		IdentityType:       in.IdentityType,
		Value:              in.Value,
		IdentityProviderID: in.IdentityProviderID,
		CreatorPartyID:     by,
	}, nil
}

func role(in RoleInput, by model.EntityID, now time.Time) model.Role {
	return model.Role{
		VersionedEntity: model.NewVersionedEntity(by, now),
		RoleStatus:      code.RoleStatusActive,
		EntityWithAttributes: model.EntityWithAttributes{
			EntityWithAttributeDefID: in.EntityWithAttributeDefID,
			Attributes:               in.Attributes,
		},
	}
}

// Create stores a new party. Identity values must not be held by any other
// party.
func (s *Service) Create(ctx context.Context, in CreateInput, by model.EntityID) (*model.Party, error) {
	now := s.now()
	p := model.NewParty(in.PartyType, in.Name, by, now)
	for _, i := range in.Identities {
		id, err := identity(i, by, now)
		if err != nil {
			return nil, err
		}
		p.Identities = append(p.Identities, id)
	}
	for _, r := range in.Roles {
		p.Roles = append(p.Roles, role(r, by, now))
	}
	if err := s.parties.Save(ctx, p); err != nil {
		return nil, err
	}
	s.logger.WithField("party", p.ID).Debug("Party created")
	return p, nil
}

func (s *Service) Get(ctx context.Context, id model.EntityID) (*model.Party, error) {
	return s.parties.FindByID(ctx, id)
}

func (s *Service) FindByIdentity(ctx context.Context, t code.IdentityType, value string) (*model.Party, error) {
	return s.parties.FindByIdentity(ctx, t, value)
}

// modify loads a live party, applies fn and saves the result.
func (s *Service) modify(ctx context.Context, id, by model.EntityID, fn func(p *model.Party, now time.Time) error) (*model.Party, error) {
	p, err := s.parties.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.DeleteIndicator {
		return nil, errors.Wrapf(model.ErrConflict, "party %s is deleted", id)
	}
	now := s.now()
	if err := fn(p, now); err != nil {
		return nil, err
	}
	p.Touch(by, now)
	if err := s.parties.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) AddIdentity(ctx context.Context, id model.EntityID, in IdentityInput, by model.EntityID) (*model.Party, error) {
	return s.modify(ctx, id, by, func(p *model.Party, now time.Time) error {
		i, err := identity(in, by, now)
		if err != nil {
			return err
		}
		p.Identities = append(p.Identities, i)
		return nil
	})
}

func (s *Service) AddRole(ctx context.Context, id model.EntityID, in RoleInput, by model.EntityID) (*model.Party, error) {
	return s.modify(ctx, id, by, func(p *model.Party, now time.Time) error {
		p.Roles = append(p.Roles, role(in, by, now))
		return nil
	})
}

// Delete soft-deletes the party. Deleting a deleted party succeeds without
// writing.
func (s *Service) Delete(ctx context.Context, id, by model.EntityID) (*model.Party, error) {
	p, err := s.parties.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.MarkDeleted(by, s.now()) {
		return p, nil
	}
	if err := s.parties.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Search(ctx context.Context, params SearchParams, page query.Page) (query.SearchResult[*model.Party], error) {
	filters, err := query.New().
		WhenNotEmpty(params.PartyType, store.FilterPartyType, func(context.Context) (interface{}, error) {
			t, err := code.PartyTypes.Parse(params.PartyType)
			if err != nil {
				return nil, model.NewValidationError(err.Error())
			}
			return string(t), nil
		}).
		When(params.IncludeDeleted, store.FilterIncludeDeleted, query.Value(true)).
		Build(ctx)
	if err != nil {
		return query.SearchResult[*model.Party]{}, err
	}
	return s.parties.Find(ctx, filters, page.Normalize())
}

// archived is the document kept in object storage once a party is purged.
type archived struct {
	Party         *model.Party          `json:"party"`
	Relationships []*model.Relationship `json:"relationships"`
	PurgedAt      time.Time             `json:"purgedAt"`
}

// ArchiveKey is where the archived document of a party is uploaded.
func ArchiveKey(id model.EntityID) string {
	return "parties/" + string(id) + ".json"
}

// Purge removes the party for good, together with its identities and roles.
// The party and the relationships it took part in are archived first; the
// party is kept when archiving fails. It returns the archive URI.
func (s *Service) Purge(ctx context.Context, id model.EntityID) (string, error) {
	p, err := s.parties.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	now := s.now()
	doc := archived{Party: p, PurgedAt: now, Relationships: []*model.Relationship{}}
	for _, rid := range p.RelationshipIDs {
		r, err := s.relationships.FindByID(ctx, rid)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		doc.Relationships = append(doc.Relationships, r)
	}
	blob, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, "error encoding the archive document")
	}
	uri, err := s.archive.Upload(ctx, ArchiveKey(id), bytes.NewReader(blob))
	if err != nil {
		return "", errors.Wrap(err, "party could not be archived")
	}
	if err := s.parties.Purge(ctx, id); err != nil {
		return "", err
	}
	s.logger.WithFields(logrus.Fields{"party": id, "archive": uri}).Info("Party purged")
	s.notifier.Notify(ctx, notify.PartyEvent(notify.EventPartyPurged, id, now))
	return uri, nil
}
