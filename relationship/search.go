package relationship

import (
	"context"

	"github.com/JiscSD/ram-relationships/code"
	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/query"
	"github.com/JiscSD/ram-relationships/store"
)

// SearchParams are the optional criteria of a relationship search. They are
// decoded from query strings.
type SearchParams struct {
	Status           string `schema:"status"`
	SubjectPartyID   string `schema:"subject"`
	DelegatePartyID  string `schema:"delegate"`
	RelationshipType string `schema:"type"`
	ActiveOnly       bool   `schema:"activeOnly"`
	ActiveAt         string `schema:"activeAt"`
	IncludeDeleted   bool   `schema:"includeDeleted"`
}

// Search returns the relationships matching params that the observer may
// see. Filters are resolved concurrently; the agency's programs are looked up
// while the others are validated.
func (s *Service) Search(ctx context.Context, params SearchParams, obs Observer, page query.Page) (query.SearchResult[*model.Relationship], error) {
	var empty query.SearchResult[*model.Relationship]
	if err := obs.validate(); err != nil {
		return empty, err
	}
	filters, err := s.filters(params, obs).Build(ctx)
	if err != nil {
		return empty, err
	}
	return s.relationships.Find(ctx, filters, page.Normalize())
}

func (s *Service) filters(params SearchParams, obs Observer) *query.Builder {
	return query.New().
		WhenNotEmpty(params.Status, store.FilterStatus, func(context.Context) (interface{}, error) {
			status, err := code.RelationshipStatuses.Parse(params.Status)
			if err != nil {
				return nil, model.NewValidationError(err.Error())
			}
			return string(status), nil
		}).
		WhenNotEmpty(params.SubjectPartyID, store.FilterSubjectPartyID, query.Value(params.SubjectPartyID)).
		WhenNotEmpty(params.DelegatePartyID, store.FilterDelegatePartyID, query.Value(params.DelegatePartyID)).
		WhenNotEmpty(params.RelationshipType, store.FilterRelationshipType, func(context.Context) (interface{}, error) {
			if _, ok := s.types.Get(model.EntityID(params.RelationshipType)); !ok {
				return nil, model.NewValidationError("relationship type " + params.RelationshipType + " is not known")
			}
			return params.RelationshipType, nil
		}).
		When(params.ActiveOnly, store.FilterActiveAt, query.Value(s.now())).
		WhenNotEmpty(params.ActiveAt, store.FilterActiveAt, query.Value(params.ActiveAt)).
		When(params.IncludeDeleted, store.FilterIncludeDeleted, query.Value(true)).
		WhenNotEmpty(string(obs.PartyID), store.FilterPartyID, query.Value(string(obs.PartyID))).
		WhenNotEmpty(string(obs.AgencyID), store.FilterVisibleTo, func(ctx context.Context) (interface{}, error) {
			programs, err := s.agencies.Programs(ctx, obs.AgencyID)
			if err != nil {
				return nil, err
			}
			return store.Visibility{AgencyID: obs.AgencyID, Programs: programs}, nil
		})
}
