package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/JiscSD/ram-relationships/code"
	"github.com/JiscSD/ram-relationships/model"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/cenkalti/backoff/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type snsMock struct {
	mock.Mock
	snsiface.SNSAPI
}

func (m *snsMock) PublishWithContext(ctx aws.Context, input *sns.PublishInput, opts ...request.Option) (*sns.PublishOutput, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

func newPublisher(logger logrus.FieldLogger, client snsiface.SNSAPI, topic string) *Publisher {
	p := New(logger, client, topic)
	p.backoff = func(ctx context.Context) backoff.BackOff {
		return backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3), ctx)
	}
	return p
}

func event() Event {
	r := &model.Relationship{
		VersionedEntity: model.VersionedEntity{ID: "R1"},
		Status:          code.RelationshipStatusActive,
		SubjectPartyID:  "P1",
		DelegatePartyID: "P2",
	}
	return RelationshipEvent(EventAcceptedRelationship, r, time.Date(2017, 3, 1, 0, 0, 0, 0, time.UTC))
}

func TestPublisher_Notify(t *testing.T) {
	m := &snsMock{}
	var input *sns.PublishInput
	m.On("PublishWithContext", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { input = args.Get(1).(*sns.PublishInput) }).
		Return(&sns.PublishOutput{}, nil)

	p := newPublisher(logrus.StandardLogger(), m, "arn:aws:sns:us-east-1:123456789012:ram")
	e := event()
	p.Notify(context.Background(), e)

	m.AssertNumberOfCalls(t, "PublishWithContext", 1)
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:ram", aws.StringValue(input.TopicArn))
	assert.Equal(t, "ACCEPTED_RELATIONSHIP", aws.StringValue(input.MessageAttributes["eventType"].StringValue))

	have := Event{}
	require.NoError(t, json.Unmarshal([]byte(aws.StringValue(input.Message)), &have))
	assert.Equal(t, e.ID, have.ID)
	assert.Equal(t, model.EntityID("R1"), have.RelationshipID)
	assert.Equal(t, model.EntityID("P2"), have.DelegatePartyID)
}

func TestPublisher_NotifyRetries(t *testing.T) {
	m := &snsMock{}
	m.On("PublishWithContext", mock.Anything, mock.Anything).
		Return(&sns.PublishOutput{}, awserr.New(sns.ErrCodeInternalErrorException, "try again", nil)).Twice()
	m.On("PublishWithContext", mock.Anything, mock.Anything).
		Return(&sns.PublishOutput{}, nil)

	p := newPublisher(logrus.StandardLogger(), m, "arn")
	p.Notify(context.Background(), event())

	m.AssertNumberOfCalls(t, "PublishWithContext", 3)
}

func TestPublisher_NotifyPermanentFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	m := &snsMock{}
	m.On("PublishWithContext", mock.Anything, mock.Anything).
		Return(&sns.PublishOutput{}, awserr.New(sns.ErrCodeNotFoundException, "no topic", nil))

	p := newPublisher(logger, m, "arn")
	p.Notify(context.Background(), event())

	m.AssertNumberOfCalls(t, "PublishWithContext", 1)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestPublisher_NotifyDisabled(t *testing.T) {
	m := &snsMock{}
	p := newPublisher(logrus.StandardLogger(), m, "")

	var got []EventType
	p.Subscribe(EventAcceptedRelationship, func(_ context.Context, e Event) error {
		got = append(got, e.Type)
		return nil
	})
	p.Notify(context.Background(), event())

	m.AssertNotCalled(t, "PublishWithContext", mock.Anything, mock.Anything)
	assert.Equal(t, []EventType{EventAcceptedRelationship}, got)
}

func TestSubscriptions(t *testing.T) {
	s := subscriptions{s: map[EventType][]Handler{}}

	var count int
	s.Subscribe(EventDelegateNotified, func(context.Context, Event) error {
		count++
		return nil
	})
	s.Subscribe(EventDelegateNotified, func(context.Context, Event) error {
		return errors.New("subscriber failed")
	})

	errs := s.handleEvent(context.Background(), Event{Type: EventDelegateNotified})
	assert.Len(t, errs, 1)
	assert.Equal(t, 1, count)

	errs = s.handleEvent(context.Background(), Event{Type: EventDeletedRelationship})
	assert.Empty(t, errs)
	assert.Equal(t, 1, count)
}

func TestPartyEvent(t *testing.T) {
	at := time.Now()
	e := PartyEvent(EventPartyPurged, "P1", at)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, model.EntityID("P1"), e.PartyID)
	assert.Equal(t, at, e.Timestamp)
}
