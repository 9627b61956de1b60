package integration

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/JiscSD/ram-relationships/notify"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sqs"
)

// subscriptions is a test util that knows how to verify that events have
// been published to the SNS topic by asserting the contents of an SQS queue
// subscribed to it. Use the public Assert* methods to verify.
type subscriptions struct {
	t   *testing.T
	sns *sns.SNS
	sqs *sqs.SQS

	echoQueueURL string
}

// Name of the queue where published events are going to be echoed.
const echoQueueName = "sns-echo-events"

func subscriber(t *testing.T) *subscriptions {
	s := &subscriptions{
		t:   t,
		sns: snsClient(),
		sqs: sqsClient(),
	}

	s.echoQueueURL = s.createQueue(echoQueueName)
	s.purge()
	s.subscribeQueueToTopic(awsTopic(), echoQueueName)

	return s
}

func (s *subscriptions) createQueue(name string) string {
	s.t.Helper()
	res, err := s.sqs.CreateQueue(&sqs.CreateQueueInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		s.t.Fatalf("Cannot create queue %s: %s", name, err)
	}
	return *res.QueueUrl
}

// subscribeQueueToTopic subscribes a SQS queue to a SNS topic.
func (s *subscriptions) subscribeQueueToTopic(topicARN, queueName string) {
	s.t.Helper()
	endpoint := fmt.Sprintf("arn:aws:sqs:%s:%s:%s", awsRegion, awsAccountID, queueName)
	_, err := s.sns.Subscribe(&sns.SubscribeInput{
		TopicArn: aws.String(topicARN),
		Protocol: aws.String("sqs"),
		Endpoint: aws.String(endpoint),
		Attributes: map[string]*string{
			"RawMessageDelivery": aws.String("true"),
		},
	})
	if err != nil {
		s.t.Fatal(err)
	}
}

func (s *subscriptions) purge() {
	s.t.Helper()
	_, err := s.sqs.PurgeQueue(&sqs.PurgeQueueInput{
		QueueUrl: aws.String(s.echoQueueURL),
	})
	if err != nil {
		s.t.Fatal("Cannot purge the queue: ", err)
	}
}

func (s *subscriptions) receiveMessage(wait int64) *sqs.Message {
	s.t.Helper()
	res, err := s.sqs.ReceiveMessage(&sqs.ReceiveMessageInput{
		MaxNumberOfMessages: aws.Int64(1),
		QueueUrl:            aws.String(s.echoQueueURL),
		WaitTimeSeconds:     aws.Int64(wait),
	})
	if err != nil {
		s.t.Fatal(err)
	}
	if len(res.Messages) < 1 {
		return nil
	}
	m := res.Messages[0]
	_, err = s.sqs.DeleteMessage(&sqs.DeleteMessageInput{
		ReceiptHandle: m.ReceiptHandle,
		QueueUrl:      aws.String(s.echoQueueURL),
	})
	if err != nil {
		s.t.Fatal("Cannot delete the message:", err)
	}
	return m
}

// AssertEventReceived expects the next echoed message to be an event of the
// given type and returns it.
func (s *subscriptions) AssertEventReceived(t notify.EventType) notify.Event {
	s.t.Helper()
	var e notify.Event
	m := s.receiveMessage(5)
	if m == nil {
		s.t.Errorf("Event %s not received", t)
		return e
	}
	if err := json.Unmarshal([]byte(aws.StringValue(m.Body)), &e); err != nil {
		s.t.Errorf("Cannot decode event: %v", err)
		return e
	}
	if e.Type != t {
		s.t.Errorf("Unexpected event received; have %s, want %s", e.Type, t)
	}
	return e
}

func (s *subscriptions) AssertNoMoreEvents() {
	s.t.Helper()
	if m := s.receiveMessage(1); m != nil {
		s.t.Errorf("Unexpected event received: %s", aws.StringValue(m.Body))
	}
}
