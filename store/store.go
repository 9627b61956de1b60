// Package store is the persistence boundary. Every Save is checked against the
// resource version the caller loaded; a stale version is rejected with
// model.ErrConflict and never overwrites newer data.
package store

import (
	"context"

	"github.com/JiscSD/ram-relationships/code"
	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/query"
)

// Filter names understood by the stores.
const (
	FilterStatus           = "status"
	FilterSubjectPartyID   = "subjectPartyId"
	FilterDelegatePartyID  = "delegatePartyId"
	FilterPartyID          = "partyId"
	FilterRelationshipType = "relationshipType"
	FilterActiveAt         = "activeAt"
	FilterIncludeDeleted   = "includeDeleted"
	FilterVisibleTo        = "visibleTo"
	FilterPartyType        = "partyType"
)

type PartyStore interface {
	FindByID(ctx context.Context, id model.EntityID) (*model.Party, error)
	FindByIdentity(ctx context.Context, t code.IdentityType, value string) (*model.Party, error)
	Find(ctx context.Context, filters query.Filters, page query.Page) (query.SearchResult[*model.Party], error)
	Save(ctx context.Context, p *model.Party) error
	Purge(ctx context.Context, id model.EntityID) error
}

type RelationshipStore interface {
	FindByID(ctx context.Context, id model.EntityID) (*model.Relationship, error)
	Find(ctx context.Context, filters query.Filters, page query.Page) (query.SearchResult[*model.Relationship], error)
	Save(ctx context.Context, r *model.Relationship) error
}

type AgencyStore interface {
	ListAgencies(ctx context.Context) ([]model.Agency, error)
}

// Visibility describes an agency observing relationships, along with the
// legislative programs it administers.
type Visibility struct {
	AgencyID model.EntityID
	Programs []string
}

// Allows reports whether the agency may observe r: it is named in the type
// information sharing list or a consent covers one of its programs.
func (v Visibility) Allows(r *model.Relationship) bool {
	if r.RelationshipTypeInformation.SharedWith(v.AgencyID) {
		return true
	}
	for _, shared := range r.SharingPrograms() {
		for _, p := range v.Programs {
			if shared == p {
				return true
			}
		}
	}
	return false
}
