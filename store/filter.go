package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/query"
)

var (
	relationshipFilters = map[string]bool{
		FilterStatus:           true,
		FilterSubjectPartyID:   true,
		FilterDelegatePartyID:  true,
		FilterPartyID:          true,
		FilterRelationshipType: true,
		FilterActiveAt:         true,
		FilterIncludeDeleted:   true,
		FilterVisibleTo:        true,
	}
	partyFilters = map[string]bool{
		FilterPartyType:      true,
		FilterIncludeDeleted: true,
	}
)

// relationshipCriteria is the typed form of the relationship filters.
type relationshipCriteria struct {
	status          string
	subjectPartyID  string
	delegatePartyID string
	partyID         string
	relType         string
	activeAt        *time.Time
	includeDeleted  bool
	visibility      *Visibility
}

func parseRelationshipFilters(f query.Filters) (*relationshipCriteria, error) {
	var messages []string
	for name := range f {
		if !relationshipFilters[name] {
			messages = append(messages, fmt.Sprintf("unknown relationship filter %q", name))
		}
	}
	c := &relationshipCriteria{includeDeleted: f.Bool(FilterIncludeDeleted)}
	str := func(name string, dst *string) {
		if !f.Has(name) {
			return
		}
		s, ok := f.String(name)
		if !ok {
			messages = append(messages, fmt.Sprintf("filter %s must be a string", name))
			return
		}
		*dst = s
	}
	str(FilterStatus, &c.status)
	str(FilterSubjectPartyID, &c.subjectPartyID)
	str(FilterDelegatePartyID, &c.delegatePartyID)
	str(FilterPartyID, &c.partyID)
	str(FilterRelationshipType, &c.relType)
	if f.Has(FilterActiveAt) {
		t, ok := f.Time(FilterActiveAt)
		if !ok {
			messages = append(messages, fmt.Sprintf("filter %s must be a time", FilterActiveAt))
		}
		c.activeAt = &t
	}
	if v, ok := f[FilterVisibleTo]; ok {
		switch v := v.(type) {
		case Visibility:
			c.visibility = &v
		case *Visibility:
			c.visibility = v
		default:
			messages = append(messages, fmt.Sprintf("filter %s has unexpected type %T", FilterVisibleTo, v))
		}
	}
	if len(messages) > 0 {
		sort.Strings(messages)
		return nil, model.NewValidationError(messages...)
	}
	return c, nil
}

func (c *relationshipCriteria) match(r *model.Relationship) bool {
	switch {
	case r.DeleteIndicator && !c.includeDeleted:
		return false
	case c.status != "" && string(r.Status) != c.status:
		return false
	case c.subjectPartyID != "" && string(r.SubjectPartyID) != c.subjectPartyID:
		return false
	case c.delegatePartyID != "" && string(r.DelegatePartyID) != c.delegatePartyID:
		return false
	case c.partyID != "" && !r.Participant(model.EntityID(c.partyID)):
		return false
	case c.relType != "" && string(r.RelationshipTypeInformation.EntityWithAttributeDefID) != c.relType:
		return false
	case c.activeAt != nil && !r.IsActive(*c.activeAt):
		return false
	case c.visibility != nil && !c.visibility.Allows(r):
		return false
	}
	return true
}

type partyCriteria struct {
	partyType      string
	includeDeleted bool
}

func parsePartyFilters(f query.Filters) (*partyCriteria, error) {
	var messages []string
	for name := range f {
		if !partyFilters[name] {
			messages = append(messages, fmt.Sprintf("unknown party filter %q", name))
		}
	}
	c := &partyCriteria{includeDeleted: f.Bool(FilterIncludeDeleted)}
	if f.Has(FilterPartyType) {
		s, ok := f.String(FilterPartyType)
		if !ok {
			messages = append(messages, fmt.Sprintf("filter %s must be a string", FilterPartyType))
		}
		c.partyType = s
	}
	if len(messages) > 0 {
		sort.Strings(messages)
		return nil, model.NewValidationError(messages...)
	}
	return c, nil
}

func (c *partyCriteria) match(p *model.Party) bool {
	if p.DeleteIndicator && !c.includeDeleted {
		return false
	}
	return c.partyType == "" || string(p.PartyType) == c.partyType
}

// sortEntities orders results by creation time, then id, so pages are stable.
func sortEntities[T model.Entity](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Base(), items[j].Base()
		if !a.CreatedTimestamp.Equal(b.CreatedTimestamp) {
			return a.CreatedTimestamp.Before(b.CreatedTimestamp)
		}
		return a.ID < b.ID
	})
}
