package model

import (
	"strings"
	"time"

	"github.com/JiscSD/ram-relationships/code"
)

type Name struct {
	GivenName        string `json:"givenName,omitempty" dynamodbav:"givenName,omitempty"`
	FamilyName       string `json:"familyName,omitempty" dynamodbav:"familyName,omitempty"`
	UnstructuredName string `json:"unstructuredName,omitempty" dynamodbav:"unstructuredName,omitempty"`
}

// DisplayName prefers the unstructured form, e.g. an organisation name.
func (n Name) DisplayName() string {
	if n.UnstructuredName != "" {
		return n.UnstructuredName
	}
	return strings.TrimSpace(n.GivenName + " " + n.FamilyName)
}

type SecretAnswer struct {
	Code  code.SharedSecretCode `json:"code" dynamodbav:"code"`
	Value string                `json:"value" dynamodbav:"value"`
}

// IdentityProvider issues identities, e.g. invitation codes.
type IdentityProvider struct {
	VersionedEntity
	Namable
	PartySpecificInfoDefID    EntityID                `json:"partySpecificInfoDefId,omitempty" dynamodbav:"partySpecificInfoDefId,omitempty"`
	ListOfPossibleSecrets     []code.SharedSecretCode `json:"listOfPossibleSecrets,omitempty" dynamodbav:"listOfPossibleSecrets,omitempty"`
	DefaultExpiryPeriodInDays int                     `json:"defaultExpiryPeriodInDays" dynamodbav:"defaultExpiryPeriodInDays"`
}

// IdentityValue is a credential a party can be found by. Invitation codes are
// identities that expire and can only be claimed once.
type IdentityValue struct {
	VersionedEntity
	IdentityType       code.IdentityType            `json:"identityType" dynamodbav:"identityType"`
	Value              string                       `json:"value" dynamodbav:"value"`
	IdentityProviderID EntityID                     `json:"identityProviderId,omitempty" dynamodbav:"identityProviderId,omitempty"`
	PartySpecificInfo  SharableEntityWithAttributes `json:"partySpecificInfo" dynamodbav:"partySpecificInfo"`
	AnswersToSecrets   []SecretAnswer               `json:"answersToSecrets,omitempty" dynamodbav:"answersToSecrets,omitempty"`
	ClaimedTimestamp   *time.Time                   `json:"claimedTimestamp,omitempty" dynamodbav:"claimedTimestamp,omitempty"`
	ExpiryTimestamp    *time.Time                   `json:"expiryTimestamp,omitempty" dynamodbav:"expiryTimestamp,omitempty"`
	CreatorPartyID     EntityID                     `json:"creatorPartyId,omitempty" dynamodbav:"creatorPartyId,omitempty"`
	CreatorRoleDefID   EntityID                     `json:"creatorRoleDefId,omitempty" dynamodbav:"creatorRoleDefId,omitempty"`
}

// NewInvitationIdentity returns an unclaimed invitation code identity.
func NewInvitationIdentity(value string, provider *IdentityProvider, creator EntityID, now, expiry time.Time) IdentityValue {
	id := IdentityValue{
		VersionedEntity: NewVersionedEntity(creator, now),
		IdentityType:    code.IdentityTypeInvitationCode,
		Value:           value,
		ExpiryTimestamp: &expiry,
		CreatorPartyID:  creator,
	}
	if provider != nil {
		id.IdentityProviderID = provider.ID
	}
	return id
}

// Key is the value the identity is indexed by, unique across parties.
func (i IdentityValue) Key() string {
	return IdentityKey(i.IdentityType, i.Value)
}

func IdentityKey(t code.IdentityType, value string) string {
	return string(t) + ":" + value
}

func (i IdentityValue) IsClaimed() bool {
	return i.ClaimedTimestamp != nil
}

// IsExpired reports whether now is at or past the expiry timestamp.
func (i IdentityValue) IsExpired(now time.Time) bool {
	return i.ExpiryTimestamp != nil && !now.Before(*i.ExpiryTimestamp)
}

// Claim marks the identity as claimed. An identity is claimed at most once.
func (i *IdentityValue) Claim(by EntityID, now time.Time) error {
	if i.IsClaimed() {
		return ErrAlreadyClaimed
	}
	if i.IsExpired(now) {
		return ErrInvitationExpired
	}
	i.ClaimedTimestamp = &now
	i.Touch(by, now)
	return nil
}

func (i IdentityValue) validate() []string {
	var c checker
	c.check(code.IdentityTypes.Contains(i.IdentityType), "identity type %q is not valid", i.IdentityType)
	c.check(i.Value != "", "identity value is required")
	if i.ClaimedTimestamp != nil && i.ExpiryTimestamp != nil {
		c.check(!i.ClaimedTimestamp.After(*i.ExpiryTimestamp), "identity %s was claimed after its expiry", i.Value)
	}
	c.merge(i.PartySpecificInfo.validate())
	return c.messages
}

func (i IdentityValue) clone() IdentityValue {
	i.PartySpecificInfo = i.PartySpecificInfo.clone()
	i.AnswersToSecrets = append([]SecretAnswer(nil), i.AnswersToSecrets...)
	i.ClaimedTimestamp = cloneTime(i.ClaimedTimestamp)
	i.ExpiryTimestamp = cloneTime(i.ExpiryTimestamp)
	return i
}

type Role struct {
	VersionedEntity
	RoleStatus code.RoleStatus `json:"roleStatus" dynamodbav:"roleStatus"`
	EntityWithAttributes
}

func (r Role) clone() Role {
	r.EntityWithAttributes = r.EntityWithAttributes.clone()
	return r
}

// Party is an individual or an organisation. It exclusively owns its
// identities and roles; they are only removed together with the party.
type Party struct {
	VersionedEntity
	PartyType            code.PartyType                `json:"partyType" dynamodbav:"partyType"`
	Name                 Name                          `json:"name" dynamodbav:"name"`
	PartyTypeInformation *SharableEntityWithAttributes `json:"partyTypeInformation,omitempty" dynamodbav:"partyTypeInformation,omitempty"`
	RelationshipIDs      []EntityID                    `json:"relationships,omitempty" dynamodbav:"relationships,omitempty"`
	Identities           []IdentityValue               `json:"identities,omitempty" dynamodbav:"identities,omitempty"`
	Roles                []Role                        `json:"roles,omitempty" dynamodbav:"roles,omitempty"`
}

func NewParty(partyType code.PartyType, name Name, by EntityID, now time.Time) *Party {
	return &Party{
		VersionedEntity: NewVersionedEntity(by, now),
		PartyType:       partyType,
		Name:            name,
	}
}

// Identity returns the identity matching the given type and value.
func (p *Party) Identity(t code.IdentityType, value string) (*IdentityValue, bool) {
	for i := range p.Identities {
		if p.Identities[i].IdentityType == t && p.Identities[i].Value == value {
			return &p.Identities[i], true
		}
	}
	return nil, false
}

// AddRelationship links a relationship to the party. It is a no-op when the
// relationship is already linked.
func (p *Party) AddRelationship(id EntityID) bool {
	for _, existing := range p.RelationshipIDs {
		if existing == id {
			return false
		}
	}
	p.RelationshipIDs = append(p.RelationshipIDs, id)
	return true
}

func (p *Party) Validate() error {
	var c checker
	c.check(p.ID != "", "party id is required")
	c.check(code.PartyTypes.Contains(p.PartyType), "party type %q is not valid", p.PartyType)
	seen := make(map[string]bool, len(p.Identities))
	for _, i := range p.Identities {
		c.merge(i.validate())
		c.check(!seen[i.Key()], "identity %s is duplicated", i.Key())
		seen[i.Key()] = true
	}
	for _, r := range p.Roles {
		c.check(code.RoleStatuses.Contains(r.RoleStatus), "role status %q is not valid", r.RoleStatus)
		c.merge(r.validate())
	}
	if p.PartyTypeInformation != nil {
		c.merge(p.PartyTypeInformation.validate())
	}
	return c.err()
}

// Clone returns a deep copy.
func (p *Party) Clone() *Party {
	c := *p
	c.RelationshipIDs = cloneIDs(p.RelationshipIDs)
	if p.PartyTypeInformation != nil {
		info := p.PartyTypeInformation.clone()
		c.PartyTypeInformation = &info
	}
	if p.Identities != nil {
		c.Identities = make([]IdentityValue, len(p.Identities))
		for i, id := range p.Identities {
			c.Identities[i] = id.clone()
		}
	}
	if p.Roles != nil {
		c.Roles = make([]Role, len(p.Roles))
		for i, r := range p.Roles {
			c.Roles[i] = r.clone()
		}
	}
	return &c
}
