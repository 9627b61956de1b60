package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/cenkalti/backoff/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Notifier is what the services depend on. Notifications never fail the
// state change that produced them.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Publisher delivers events to local subscribers first and then to the SNS
// topic. An empty topic disables SNS delivery.
type Publisher struct {
	logger    logrus.FieldLogger
	snsClient snsiface.SNSAPI
	topicARN  string
	backoff   func(ctx context.Context) backoff.BackOff
	subscriptions
}

var _ Notifier = (*Publisher)(nil)

// New returns a usable Publisher.
func New(logger logrus.FieldLogger, snsClient snsiface.SNSAPI, topicARN string) *Publisher {
	return &Publisher{
		logger:        logger,
		snsClient:     snsClient,
		topicARN:      topicARN,
		backoff:       defaultBackOff,
		subscriptions: subscriptions{s: make(map[EventType][]Handler)},
	}
}

func defaultBackOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     100 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          1.5,
		MaxInterval:         2 * time.Second,
		MaxElapsedTime:      10 * time.Second,
		Clock:               backoff.SystemClock,
	}, ctx)
}

// Notify implements Notifier.
func (p *Publisher) Notify(ctx context.Context, e Event) {
	logger := p.logger.WithFields(logrus.Fields{
		"event":        e.ID,
		"type":         e.Type,
		"relationship": e.RelationshipID,
	})
	for _, err := range p.handleEvent(ctx, e) {
		logger.WithError(err).Warn("Event subscriber failed")
	}
	if p.topicARN == "" {
		logger.WithField("topic", "[disabled]").Debug("Event not published")
		return
	}
	if err := p.publish(ctx, e); err != nil {
		logger.WithError(err).Error("Event could not be published")
		return
	}
	logger.Debug("Event published")
}

// publish puts the event into the SNS topic, retrying transient failures.
func (p *Publisher) publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "error encoding the event")
	}
	input := &sns.PublishInput{
		Message:  aws.String(string(payload)),
		TopicArn: aws.String(p.topicARN),
		MessageAttributes: map[string]*sns.MessageAttributeValue{
			"eventType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(e.Type)),
			},
		},
	}
	return backoff.Retry(func() error {
		_, err := p.snsClient.PublishWithContext(ctx, input)
		if err != nil && permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backoff(ctx))
}

// permanent reports errors that retrying cannot fix.
func permanent(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case sns.ErrCodeInvalidParameterException,
		sns.ErrCodeInvalidParameterValueException,
		sns.ErrCodeNotFoundException,
		sns.ErrCodeAuthorizationErrorException:
		return true
	}
	return false
}
