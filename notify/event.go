// Package notify announces relationship lifecycle events to in-process
// subscribers and to an SNS topic.
package notify

import (
	"time"

	"github.com/JiscSD/ram-relationships/model"

	"github.com/google/uuid"
)

type EventType string

const (
	EventDelegateNotified      EventType = "DELEGATE_NOTIFIED"
	EventAcceptedRelationship  EventType = "ACCEPTED_RELATIONSHIP"
	EventDeclinedRelationship  EventType = "DECLINED_RELATIONSHIP"
	EventCancelledRelationship EventType = "CANCEL_ACCEPT_RELATIONSHIP"
	EventSavedRelationship     EventType = "SAVED_NOTIFICATION"
	EventDeletedRelationship   EventType = "DELETED_RELATIONSHIP"
	EventPartyPurged           EventType = "PARTY_PURGED"
)

type Event struct {
	ID              string         `json:"id"`
	Type            EventType      `json:"type"`
	RelationshipID  model.EntityID `json:"relationshipId,omitempty"`
	SubjectPartyID  model.EntityID `json:"subjectPartyId,omitempty"`
	DelegatePartyID model.EntityID `json:"delegatePartyId,omitempty"`
	PartyID         model.EntityID `json:"partyId,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// RelationshipEvent describes something that happened to r.
func RelationshipEvent(t EventType, r *model.Relationship, at time.Time) Event {
	return Event{
		ID:              uuid.New().String(),
		Type:            t,
		RelationshipID:  r.ID,
		SubjectPartyID:  r.SubjectPartyID,
		DelegatePartyID: r.DelegatePartyID,
		Timestamp:       at,
	}
}

// PartyEvent describes something that happened to a party.
func PartyEvent(t EventType, party model.EntityID, at time.Time) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		PartyID:   party,
		Timestamp: at,
	}
}
