// Package relationship implements the relationship lifecycle: invitations,
// claims, cancellation, soft deletion, detail edits and searches scoped to
// the observing party or agency.
package relationship

import (
	"context"
	"time"

	"github.com/JiscSD/ram-relationships/code"
	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/notify"
	"github.com/JiscSD/ram-relationships/store"

	"github.com/cenkalti/backoff/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultExpiryDays = 7
	defaultCodeLength = 10
	maxCodeLength     = 32
)

type Config struct {
	// InvitationExpiryDays is used when the identity provider does not set
	// its own default.
	InvitationExpiryDays int
	InvitationCodeLength int
}

// ProgramSource tells which legislative programs an agency administers.
type ProgramSource interface {
	Programs(ctx context.Context, agencyID model.EntityID) ([]string, error)
}

// Observer is the party or agency a relationship is read on behalf of.
type Observer struct {
	PartyID  model.EntityID
	AgencyID model.EntityID
}

func (o Observer) validate() error {
	if o.PartyID == "" && o.AgencyID == "" {
		return model.NewValidationError("a party or agency observer is required")
	}
	return nil
}

type Service struct {
	logger        logrus.FieldLogger
	parties       store.PartyStore
	relationships store.RelationshipStore
	agencies      ProgramSource
	notifier      notify.Notifier
	types         Catalog
	provider      *model.IdentityProvider
	config        Config
	clock         func() time.Time
	retry         func(ctx context.Context) backoff.BackOff
}

func New(
	logger logrus.FieldLogger,
	parties store.PartyStore,
	relationships store.RelationshipStore,
	agencies ProgramSource,
	notifier notify.Notifier,
	types Catalog,
	config Config) *Service {

	if config.InvitationExpiryDays < 1 {
		config.InvitationExpiryDays = defaultExpiryDays
	}
	if config.InvitationCodeLength < 1 || config.InvitationCodeLength > maxCodeLength {
		config.InvitationCodeLength = defaultCodeLength
	}
	if types == nil {
		types = DefaultCatalog()
	}
	return &Service{
		logger:        logger.WithField("component", "relationship"),
		parties:       parties,
		relationships: relationships,
		agencies:      agencies,
		notifier:      notifier,
		types:         types,
		provider:      invitationProvider(config.InvitationExpiryDays),
		config:        config,
		clock:         time.Now,
		retry:         defaultRetry,
	}
}

// defaultRetry paces the reload-and-save attempts made after a version
// conflict on a party link.
func defaultRetry(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     20 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         200 * time.Millisecond,
		MaxElapsedTime:      2 * time.Second,
		Clock:               backoff.SystemClock,
	}, 3), ctx)
}

// Types returns the relationship type catalog.
func (s *Service) Types() Catalog {
	return s.types
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// Get returns the relationship if the observer may see it. Relationships the
// observer may not see are reported as not found.
func (s *Service) Get(ctx context.Context, id model.EntityID, obs Observer) (*model.Relationship, error) {
	if err := obs.validate(); err != nil {
		return nil, err
	}
	r, err := s.relationships.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.visible(ctx, r, obs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(model.ErrNotFound, "relationship %s", id)
	}
	return r, nil
}

func (s *Service) visible(ctx context.Context, r *model.Relationship, obs Observer) (bool, error) {
	if obs.AgencyID != "" {
		programs, err := s.agencies.Programs(ctx, obs.AgencyID)
		if err != nil {
			return false, err
		}
		return store.Visibility{AgencyID: obs.AgencyID, Programs: programs}.Allows(r), nil
	}
	return r.Participant(obs.PartyID), nil
}

// participantRelationship loads a relationship that by takes part in.
func (s *Service) participantRelationship(ctx context.Context, id, by model.EntityID) (*model.Relationship, error) {
	r, err := s.relationships.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.Participant(by) {
		return nil, errors.Wrapf(model.ErrNotFound, "relationship %s", id)
	}
	return r, nil
}

// Cancel ends a pending or active relationship on behalf of one of its
// participants.
func (s *Service) Cancel(ctx context.Context, id, by model.EntityID) (*model.Relationship, error) {
	r, err := s.participantRelationship(ctx, id, by)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := r.Cancel(by, now); err != nil {
		return nil, err
	}
	if err := s.relationships.Save(ctx, r); err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, notify.RelationshipEvent(notify.EventCancelledRelationship, r, now))
	return r, nil
}

// Delete soft-deletes the relationship. Deleting a relationship that is
// already deleted succeeds without writing.
func (s *Service) Delete(ctx context.Context, id, by model.EntityID) (*model.Relationship, error) {
	r, err := s.participantRelationship(ctx, id, by)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !r.MarkDeleted(by, now) {
		return r, nil
	}
	if err := s.relationships.Save(ctx, r); err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, notify.RelationshipEvent(notify.EventDeletedRelationship, r, now))
	return r, nil
}

// UpdateInput carries detail changes. Nil fields are left untouched.
type UpdateInput struct {
	ResourceVersion  int64                          `json:"resourceVersion"`
	AccessLevel      *code.AccessLevel              `json:"accessLevel,omitempty"`
	EndTimestamp     *time.Time                     `json:"endTimestamp,omitempty"`
	SubjectNickName  *string                        `json:"subjectNickName,omitempty"`
	DelegateNickName *string                        `json:"delegateNickName,omitempty"`
	Attributes       []model.SharableAttributeValue `json:"attributes,omitempty"`
	Sharing          []model.EntityID               `json:"sharing,omitempty"`
}

// UpdateDetails edits a pending or active relationship. The version the
// caller read must still be current.
func (s *Service) UpdateDetails(ctx context.Context, id, by model.EntityID, in UpdateInput) (*model.Relationship, error) {
	r, err := s.participantRelationship(ctx, id, by)
	if err != nil {
		return nil, err
	}
	if err := r.Editable(); err != nil {
		return nil, err
	}
	if in.ResourceVersion != r.ResourceVersion {
		return nil, errors.Wrapf(model.ErrConflict, "relationship %s is at version %d, not %d", id, r.ResourceVersion, in.ResourceVersion)
	}

	var messages []string
	if in.SubjectNickName != nil {
		if by == r.SubjectPartyID {
			r.SubjectsNickName = in.SubjectNickName
		} else {
			messages = append(messages, "only the subject can set the subject nickname")
		}
	}
	if in.DelegateNickName != nil {
		if by == r.DelegatePartyID {
			r.DelegatesNickName = in.DelegateNickName
		} else {
			messages = append(messages, "only the delegate can set the delegate nickname")
		}
	}
	if len(messages) > 0 {
		return nil, model.NewValidationError(messages...)
	}
	if in.AccessLevel != nil {
		r.AccessLevel = *in.AccessLevel
	}
	if in.EndTimestamp != nil {
		end := in.EndTimestamp.UTC()
		r.EndTimestamp = &end
	}
	if in.Attributes != nil {
		r.RelationshipTypeInformation.Attributes = in.Attributes
	}
	if in.Sharing != nil {
		r.RelationshipTypeInformation.Sharing = in.Sharing
	}
	if err := s.check(r); err != nil {
		return nil, err
	}

	now := s.now()
	r.Touch(by, now)
	if err := s.relationships.Save(ctx, r); err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, notify.RelationshipEvent(notify.EventSavedRelationship, r, now))
	return r, nil
}

// check validates r along with its type information.
func (s *Service) check(r *model.Relationship) error {
	var errs []error
	t, ok := s.types.Get(r.RelationshipTypeInformation.EntityWithAttributeDefID)
	if !ok {
		errs = append(errs, model.NewValidationError("relationship type "+string(r.RelationshipTypeInformation.EntityWithAttributeDefID)+" is not known"))
	} else {
		errs = append(errs, t.CheckAttributes(r.RelationshipTypeInformation))
	}
	errs = append(errs, r.Validate())
	return mergeValidation(errs...)
}

// mergeValidation folds validation errors into one. Any other error is
// returned as is.
func mergeValidation(errs ...error) error {
	var messages []string
	for _, err := range errs {
		if err == nil {
			continue
		}
		verr, ok := model.AsValidationError(err)
		if !ok {
			return err
		}
		messages = append(messages, verr.Messages...)
	}
	if len(messages) == 0 {
		return nil
	}
	return model.NewValidationError(messages...)
}

// link records relID in the party, reloading the party when a concurrent
// save wins.
func (s *Service) link(ctx context.Context, partyID, relID, by model.EntityID) error {
	op := func() error {
		p, err := s.parties.FindByID(ctx, partyID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !p.AddRelationship(relID) {
			return nil
		}
		p.Touch(by, s.now())
		err = s.parties.Save(ctx, p)
		if err != nil && !errors.Is(err, model.ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, s.retry(ctx))
}
