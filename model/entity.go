// Package model holds the relationship-management entities: parties and their
// identities and roles, relationships between parties, and the shared
// versioned base every persisted entity embeds.
package model

import (
	"time"

	"github.com/google/uuid"
)

// EntityID is an opaque identifier assigned at construction time.
type EntityID string

func NewEntityID() EntityID {
	return EntityID(uuid.New().String())
}

func (id EntityID) String() string {
	return string(id)
}

// VersionedEntity carries the audit, soft-delete and concurrency fields shared
// by every persisted entity.
//
// ResourceVersion is zero until the entity is first saved. Stores increment it
// on every successful save and reject saves that carry a stale value.
type VersionedEntity struct {
	ID                   EntityID  `json:"id" dynamodbav:"id"`
	CreatedTimestamp     time.Time `json:"createdAt" dynamodbav:"createdAt"`
	LastUpdatedTimestamp time.Time `json:"updatedAt" dynamodbav:"updatedAt"`
	LastUpdatedByPartyID EntityID  `json:"lastUpdatedByPartyId,omitempty" dynamodbav:"lastUpdatedByPartyId,omitempty"`
	DeleteIndicator      bool      `json:"deleteInd" dynamodbav:"deleteInd"`
	ResourceVersion      int64     `json:"resourceVersion" dynamodbav:"resourceVersion"`
}

// Entity is implemented by every type embedding VersionedEntity.
type Entity interface {
	Base() *VersionedEntity
}

func NewVersionedEntity(by EntityID, now time.Time) VersionedEntity {
	return VersionedEntity{
		ID:                   NewEntityID(),
		CreatedTimestamp:     now,
		LastUpdatedTimestamp: now,
		LastUpdatedByPartyID: by,
	}
}

func (e *VersionedEntity) Base() *VersionedEntity {
	return e
}

// Touch records a modification.
func (e *VersionedEntity) Touch(by EntityID, now time.Time) {
	e.LastUpdatedTimestamp = now
	if by != "" {
		e.LastUpdatedByPartyID = by
	}
}

// MarkDeleted flags the entity as soft-deleted. It reports false when the
// entity was already deleted, in which case nothing is modified. The flag is
// never reset.
func (e *VersionedEntity) MarkDeleted(by EntityID, now time.Time) bool {
	if e.DeleteIndicator {
		return false
	}
	e.DeleteIndicator = true
	e.Touch(by, now)
	return true
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func cloneIDs(ids []EntityID) []EntityID {
	if ids == nil {
		return nil
	}
	return append([]EntityID(nil), ids...)
}
