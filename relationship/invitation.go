package relationship

import (
	"context"
	"strings"
	"time"

	"github.com/JiscSD/ram-relationships/code"
	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/notify"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DelegateInput describes the party invited to become the delegate. It is
// stored as a placeholder party until the invitation is claimed.
type DelegateInput struct {
	PartyType code.PartyType `json:"partyType"`
	Name      model.Name     `json:"name"`
}

// CreateInput is the document accepted by CreatePending.
type CreateInput struct {
	SubjectPartyID   model.EntityID                 `json:"subjectPartyId"`
	SubjectRoleID    model.EntityID                 `json:"subjectRoleId,omitempty"`
	RelationshipType model.EntityID                 `json:"relationshipType"`
	AccessLevel      code.AccessLevel               `json:"accessLevel,omitempty"`
	InitiatedBy      code.RelationshipInitiatedBy   `json:"initiatedBy,omitempty"`
	StartTimestamp   *time.Time                     `json:"startTimestamp,omitempty"`
	EndTimestamp     *time.Time                     `json:"endTimestamp,omitempty"`
	Attributes       []model.SharableAttributeValue `json:"attributes,omitempty"`
	Sharing          []model.EntityID               `json:"sharing,omitempty"`
	Consents         []string                       `json:"consents,omitempty"`
	SubjectNickName  *string                        `json:"subjectNickName,omitempty"`
	DelegateNickName *string                        `json:"delegateNickName,omitempty"`
	Delegate         DelegateInput                  `json:"delegate"`
}

// Invitation is handed to the subject so it can be passed on to the
// delegate.
type Invitation struct {
	Code            string         `json:"invitationCode"`
	RelationshipID  model.EntityID `json:"relationshipId"`
	ExpiryTimestamp time.Time      `json:"expiryTimestamp"`
}

func invitationProvider(days int) *model.IdentityProvider {
	return &model.IdentityProvider{
		VersionedEntity:           model.VersionedEntity{ID: model.EntityID(code.IdentityTypeInvitationCode)},
		Namable:                   model.Namable{MachineName: string(code.IdentityTypeInvitationCode), HumanName: "Invitation Code"},
		DefaultExpiryPeriodInDays: days,
	}
}

// newCode returns an upper-case code derived from a random UUID.
func (s *Service) newCode() string {
	c := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return c[:s.config.InvitationCodeLength]
}

// CreatePending creates a relationship waiting for its delegate to claim the
// returned invitation code.
func (s *Service) CreatePending(ctx context.Context, in CreateInput) (*model.Relationship, *Invitation, error) {
	now := s.now()

	subject, err := s.parties.FindByID(ctx, in.SubjectPartyID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return nil, nil, model.NewValidationError("subject party " + string(in.SubjectPartyID) + " does not exist")
	case err != nil:
		return nil, nil, err
	case subject.DeleteIndicator:
		return nil, nil, model.NewValidationError("subject party " + string(in.SubjectPartyID) + " is deleted")
	}

	expiry := now.AddDate(0, 0, s.provider.DefaultExpiryPeriodInDays)
	delegate := model.NewParty(in.Delegate.PartyType, in.Delegate.Name, subject.ID, now)
	delegate.Identities = append(delegate.Identities,
		model.NewInvitationIdentity(s.newCode(), s.provider, subject.ID, now, expiry))

	start := now
	if in.StartTimestamp != nil {
		start = in.StartTimestamp.UTC()
	}
	r := &model.Relationship{
		VersionedEntity: model.NewVersionedEntity(subject.ID, now),
		Status:          code.RelationshipStatusPending,
		AccessLevel:     in.AccessLevel,
		InitiatedBy:     in.InitiatedBy,
		RelationshipTypeInformation: model.SharableEntityWithAttributes{
			EntityWithAttributeDefID: in.RelationshipType,
			Attributes:               in.Attributes,
			Sharing:                  in.Sharing,
		},
		SubjectPartyID:    subject.ID,
		SubjectRoleID:     in.SubjectRoleID,
		DelegatePartyID:   delegate.ID,
		StartTimestamp:    start,
		SubjectsNickName:  in.SubjectNickName,
		DelegatesNickName: in.DelegateNickName,
	}
	if r.AccessLevel == "" {
		r.AccessLevel = code.AccessLevelUniversal
	}
	if r.InitiatedBy == "" {
		r.InitiatedBy = code.RelationshipInitiatedBySubject
	}
	if in.EndTimestamp != nil {
		end := in.EndTimestamp.UTC()
		r.EndTimestamp = &end
	}
	for _, program := range in.Consents {
		r.Sharing = append(r.Sharing, model.Consent{
			VersionedEntity:    model.NewVersionedEntity(subject.ID, now),
			LegislativeProgram: model.LegislativeProgram{Name: program},
		})
	}
	delegate.AddRelationship(r.ID)

	if err := mergeValidation(s.check(r), delegate.Validate()); err != nil {
		return nil, nil, err
	}
	if err := s.parties.Save(ctx, delegate); err != nil {
		return nil, nil, errors.Wrap(err, "saving the invited party")
	}
	if err := s.relationships.Save(ctx, r); err != nil {
		if perr := s.parties.Purge(ctx, delegate.ID); perr != nil {
			s.logger.WithError(perr).WithField("party", delegate.ID).Error("Invited party could not be removed")
		}
		return nil, nil, err
	}
	if err := s.link(ctx, subject.ID, r.ID, subject.ID); err != nil {
		s.logger.WithError(err).WithField("relationship", r.ID).Error("Relationship could not be linked to its subject")
	}

	identity := delegate.Identities[0]
	s.logger.WithField("relationship", r.ID).Debug("Pending relationship created")
	s.notifier.Notify(ctx, notify.RelationshipEvent(notify.EventDelegateNotified, r, now))
	return r, &Invitation{Code: identity.Value, RelationshipID: r.ID, ExpiryTimestamp: *identity.ExpiryTimestamp}, nil
}

// invitation is a pending relationship reached through its code.
type invitation struct {
	placeholder  *model.Party
	identity     *model.IdentityValue
	relationship *model.Relationship
}

// lookup resolves an invitation code. Claimed codes are a conflict; unknown
// and expired codes, or codes whose relationship is no longer pending, are
// not found.
func (s *Service) lookup(ctx context.Context, invitationCode string, now time.Time) (*invitation, error) {
	placeholder, err := s.parties.FindByIdentity(ctx, code.IdentityTypeInvitationCode, invitationCode)
	if err != nil {
		return nil, errors.Wrap(err, "invitation code")
	}
	identity, ok := placeholder.Identity(code.IdentityTypeInvitationCode, invitationCode)
	if !ok {
		return nil, errors.Wrap(model.ErrNotFound, "invitation code")
	}
	if identity.IsClaimed() {
		return nil, model.ErrAlreadyClaimed
	}
	if identity.IsExpired(now) {
		return nil, model.ErrInvitationExpired
	}
	for _, id := range placeholder.RelationshipIDs {
		r, err := s.relationships.FindByID(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		switch {
		case r.Status == code.RelationshipStatusPending && !r.DeleteIndicator && r.DelegatePartyID == placeholder.ID:
			return &invitation{placeholder: placeholder, identity: identity, relationship: r}, nil
		case r.Status == code.RelationshipStatusActive && r.DelegatePartyID != placeholder.ID:
			return nil, model.ErrAlreadyClaimed
		}
	}
	return nil, errors.Wrap(model.ErrNotFound, "no pending relationship for invitation code")
}

// ViewByInvitationCode returns the pending relationship an unclaimed,
// unexpired code leads to.
func (s *Service) ViewByInvitationCode(ctx context.Context, invitationCode string) (*model.Relationship, error) {
	inv, err := s.lookup(ctx, invitationCode, s.now())
	if err != nil {
		return nil, err
	}
	return inv.relationship, nil
}

// Claim activates the pending relationship behind the code and makes the
// claimant its delegate. Only the first claim succeeds.
func (s *Service) Claim(ctx context.Context, invitationCode string, claimant model.EntityID) (*model.Relationship, error) {
	now := s.now()
	inv, err := s.lookup(ctx, invitationCode, now)
	if err != nil {
		return nil, err
	}
	r := inv.relationship
	switch claimant {
	case r.SubjectPartyID:
		return nil, model.NewValidationError("the subject cannot claim its own invitation")
	case inv.placeholder.ID:
		return nil, model.NewValidationError("an invited party cannot claim an invitation")
	}
	party, err := s.parties.FindByID(ctx, claimant)
	if err != nil {
		return nil, err
	}
	if party.DeleteIndicator {
		return nil, model.NewValidationError("claiming party " + string(claimant) + " is deleted")
	}
	for _, id := range party.Identities {
		if id.IdentityType == code.IdentityTypeInvitationCode {
			return nil, model.NewValidationError("an invited party cannot claim an invitation")
		}
	}
	if err := inv.identity.Claim(claimant, now); err != nil {
		return nil, err
	}
	if err := r.Claim(claimant, now); err != nil {
		return nil, err
	}

	// The relationship save decides between concurrent claims.
	if err := s.relationships.Save(ctx, r); err != nil {
		return nil, err
	}
	inv.placeholder.MarkDeleted(claimant, now)
	if err := s.parties.Save(ctx, inv.placeholder); err != nil {
		s.logger.WithError(err).WithField("party", inv.placeholder.ID).Error("Invited party could not be retired")
	}
	if err := s.link(ctx, claimant, r.ID, claimant); err != nil {
		s.logger.WithError(err).WithField("relationship", r.ID).Error("Relationship could not be linked to its delegate")
	}
	s.notifier.Notify(ctx, notify.RelationshipEvent(notify.EventAcceptedRelationship, r, now))
	return r, nil
}

// Decline cancels the pending relationship behind the code on behalf of the
// invited party.
func (s *Service) Decline(ctx context.Context, invitationCode string) (*model.Relationship, error) {
	now := s.now()
	inv, err := s.lookup(ctx, invitationCode, now)
	if err != nil {
		return nil, err
	}
	r := inv.relationship
	if err := r.Cancel(inv.placeholder.ID, now); err != nil {
		return nil, err
	}
	if err := s.relationships.Save(ctx, r); err != nil {
		return nil, err
	}
	inv.placeholder.MarkDeleted(inv.placeholder.ID, now)
	if err := s.parties.Save(ctx, inv.placeholder); err != nil {
		s.logger.WithError(err).WithField("party", inv.placeholder.ID).Error("Invited party could not be retired")
	}
	s.notifier.Notify(ctx, notify.RelationshipEvent(notify.EventDeclinedRelationship, r, now))
	return r, nil
}
