package model

import (
	"time"

	"github.com/JiscSD/ram-relationships/code"

	"github.com/pkg/errors"
)

// RelationshipType is the definition a relationship's type information
// refers to.
type RelationshipType struct {
	EntityWithAttributeDef
	Category code.RelationshipTypeCategory `json:"category" dynamodbav:"category"`
}

// Relationship is a delegation of authority from a subject party to a
// delegate party.
//
// Lifecycle: PENDING until the delegate claims the invitation, then ACTIVE.
// ACTIVE relationships end as DELETED or CANCELLED, or lapse once
// EndTimestamp is reached. DELETED and CANCELLED are terminal.
type Relationship struct {
	VersionedEntity
	Status                      code.RelationshipStatus      `json:"status" dynamodbav:"status"`
	AccessLevel                 code.AccessLevel             `json:"accessLevel,omitempty" dynamodbav:"accessLevel,omitempty"`
	InitiatedBy                 code.RelationshipInitiatedBy `json:"initiatedBy,omitempty" dynamodbav:"initiatedBy,omitempty"`
	RelationshipTypeInformation SharableEntityWithAttributes `json:"relationshipTypeInformation" dynamodbav:"relationshipTypeInformation"`
	SubjectPartyID              EntityID                     `json:"subjectPartyId" dynamodbav:"subjectPartyId"`
	SubjectRoleID               EntityID                     `json:"subjectRoleId,omitempty" dynamodbav:"subjectRoleId,omitempty"`
	DelegatePartyID             EntityID                     `json:"delegatePartyId" dynamodbav:"delegatePartyId"`
	DelegateRoleID              EntityID                     `json:"delegateRoleId,omitempty" dynamodbav:"delegateRoleId,omitempty"`
	StartTimestamp              time.Time                    `json:"startTimestamp" dynamodbav:"startTimestamp"`
	EndTimestamp                *time.Time                   `json:"endTimestamp,omitempty" dynamodbav:"endTimestamp,omitempty"`
	EndEventTimestamp           *time.Time                   `json:"endEventTimestamp,omitempty" dynamodbav:"endEventTimestamp,omitempty"`
	Sharing                     []Consent                    `json:"sharing,omitempty" dynamodbav:"sharing,omitempty"`
	SubjectsNickName            *string                      `json:"subjectNickName,omitempty" dynamodbav:"subjectNickName,omitempty"`
	DelegatesNickName           *string                      `json:"delegateNickName,omitempty" dynamodbav:"delegateNickName,omitempty"`
}

// IsActive reports whether the relationship is ACTIVE, not deleted and now
// falls within [StartTimestamp, EndTimestamp).
func (r *Relationship) IsActive(now time.Time) bool {
	if r.Status != code.RelationshipStatusActive || r.DeleteIndicator {
		return false
	}
	if now.Before(r.StartTimestamp) {
		return false
	}
	return !r.IsExpired(now)
}

// IsExpired reports whether the end of the window has been reached.
func (r *Relationship) IsExpired(now time.Time) bool {
	return r.EndTimestamp != nil && !now.Before(*r.EndTimestamp)
}

// Participant reports whether party is the subject or the delegate.
func (r *Relationship) Participant(party EntityID) bool {
	return party != "" && (r.SubjectPartyID == party || r.DelegatePartyID == party)
}

// Claim activates a pending relationship on behalf of delegate.
func (r *Relationship) Claim(delegate EntityID, now time.Time) error {
	if r.Status != code.RelationshipStatusPending || r.DeleteIndicator {
		return errors.Wrapf(ErrConflict, "relationship is %s", r.Status)
	}
	r.DelegatePartyID = delegate
	r.Status = code.RelationshipStatusActive
	r.Touch(delegate, now)
	return nil
}

// Cancel withdraws a pending or active relationship before it lapses.
func (r *Relationship) Cancel(by EntityID, now time.Time) error {
	switch {
	case r.DeleteIndicator:
		return errors.Wrap(ErrConflict, "relationship is deleted")
	case r.Status != code.RelationshipStatusPending && r.Status != code.RelationshipStatusActive:
		return errors.Wrapf(ErrConflict, "relationship is %s", r.Status)
	case r.IsExpired(now):
		return errors.Wrap(ErrConflict, "relationship has expired")
	}
	r.Status = code.RelationshipStatusCancelled
	r.EndEventTimestamp = &now
	r.Touch(by, now)
	return nil
}

// MarkDeleted soft-deletes the relationship. It reports false when it was
// already deleted.
func (r *Relationship) MarkDeleted(by EntityID, now time.Time) bool {
	if !r.VersionedEntity.MarkDeleted(by, now) {
		return false
	}
	r.Status = code.RelationshipStatusDeleted
	if r.EndEventTimestamp == nil {
		r.EndEventTimestamp = &now
	}
	return true
}

// Editable reports whether the relationship accepts detail changes.
func (r *Relationship) Editable() error {
	if r.DeleteIndicator {
		return errors.Wrap(ErrConflict, "relationship is deleted")
	}
	if r.Status != code.RelationshipStatusPending && r.Status != code.RelationshipStatusActive {
		return errors.Wrapf(ErrConflict, "relationship is %s", r.Status)
	}
	return nil
}

// SharingPrograms lists the legislative programs named by the consents.
func (r *Relationship) SharingPrograms() []string {
	var names []string
	for _, c := range r.Sharing {
		if c.DeleteIndicator || c.LegislativeProgram.Name == "" {
			continue
		}
		names = append(names, c.LegislativeProgram.Name)
	}
	return names
}

func (r *Relationship) Validate() error {
	var c checker
	c.check(r.ID != "", "relationship id is required")
	c.check(code.RelationshipStatuses.Contains(r.Status), "relationship status %q is not valid", r.Status)
	c.check(r.Status != code.RelationshipStatusInvalid, "relationship status must not be %s", code.RelationshipStatusInvalid)
	if r.AccessLevel != "" {
		c.check(code.AccessLevels.Contains(r.AccessLevel), "access level %q is not valid", r.AccessLevel)
	}
	if r.InitiatedBy != "" {
		c.check(code.RelationshipInitiators.Contains(r.InitiatedBy), "initiator %q is not valid", r.InitiatedBy)
	}
	c.check(r.SubjectPartyID != "", "subject party is required")
	c.check(r.DelegatePartyID != "", "delegate party is required")
	c.check(r.SubjectPartyID != r.DelegatePartyID, "subject and delegate must be different parties")
	c.check(r.RelationshipTypeInformation.EntityWithAttributeDefID != "", "relationship type is required")
	c.check(!r.StartTimestamp.IsZero(), "start timestamp is required")
	if r.EndTimestamp != nil {
		c.check(!r.EndTimestamp.Before(r.StartTimestamp), "end timestamp must not precede start timestamp")
	}
	c.merge(r.RelationshipTypeInformation.validate())
	return c.err()
}

// Clone returns a deep copy.
func (r *Relationship) Clone() *Relationship {
	c := *r
	c.RelationshipTypeInformation = r.RelationshipTypeInformation.clone()
	c.EndTimestamp = cloneTime(r.EndTimestamp)
	c.EndEventTimestamp = cloneTime(r.EndEventTimestamp)
	c.Sharing = append([]Consent(nil), r.Sharing...)
	c.SubjectsNickName = cloneString(r.SubjectsNickName)
	c.DelegatesNickName = cloneString(r.DelegatesNickName)
	return &c
}

// CheckAttributes validates the type information against its definition.
func (t RelationshipType) CheckAttributes(info SharableEntityWithAttributes) error {
	if info.EntityWithAttributeDefID != t.ID {
		return NewValidationError("relationship type " + string(info.EntityWithAttributeDefID) + " does not match " + string(t.ID))
	}
	return t.Check(info.plain())
}
