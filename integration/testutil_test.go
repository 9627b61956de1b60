package integration

import (
	"bytes"
	"encoding/json"
	"flag"
	"net/http"
	"testing"

	"github.com/JiscSD/ram-relationships/api"
	"github.com/JiscSD/ram-relationships/model"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sqs"
)

const (
	awsAccountID       = "000000000000"
	awsAccessKeyID     = "123"
	awsSecretAccessKey = "xyz"
	awsTokenKey        = ""
	awsRegion          = "us-east-1"

	awsBucket            = "ram-archive"
	awsPartyTable        = "ram_party"
	awsRelationshipTable = "ram_relationship"
	awsIdentityTable     = "ram_identity"
	awsAgencyTable       = "ram_agency"
	awsTopicName         = "ram-events"
)

var (
	flagDynamoDB = flag.Bool("dynamodb", false, "")
	flagEndpoint = flag.String("endpoint", "http://localhost:4566", "")
	flagDebug    = flag.Bool("debug", false, "")
)

func awsTopic() string {
	return "arn:aws:sns:" + awsRegion + ":" + awsAccountID + ":" + awsTopicName
}

// requireServices skips the test unless the local services were requested.
func requireServices(t *testing.T) {
	t.Helper()
	if !*flagDynamoDB {
		t.Skip("skipping integration test, use -dynamodb to enable")
	}
}

func awsSession() *session.Session {
	config := aws.NewConfig()
	config = config.WithEndpoint(*flagEndpoint)
	config = config.WithRegion(awsRegion)
	if *flagDebug {
		config = config.WithLogLevel(aws.LogDebugWithHTTPBody)
	}
	config = config.WithCredentials(credentials.NewStaticCredentials(
		awsAccessKeyID, awsSecretAccessKey, awsTokenKey))
	config = config.WithS3ForcePathStyle(true)
	config.DisableSSL = aws.Bool(true)
	return session.Must(session.NewSession(config))
}

func s3Client() *s3.S3 {
	return s3.New(awsSession())
}

func dynamodbClient() *dynamodb.DynamoDB {
	return dynamodb.New(awsSession())
}

func sqsClient() *sqs.SQS {
	return sqs.New(awsSession())
}

func snsClient() *sns.SNS {
	return sns.New(awsSession())
}

// createTables (re)creates the tables used by the stores.
func createTables(t *testing.T) {
	t.Helper()
	client := dynamodbClient()
	for table, key := range map[string]string{
		awsPartyTable:        "id",
		awsRelationshipTable: "id",
		awsIdentityTable:     "idValue",
		awsAgencyTable:       "id",
	} {
		_, err := client.DeleteTable(&dynamodb.DeleteTableInput{TableName: aws.String(table)})
		if aerr, ok := err.(awserr.Error); err != nil && (!ok || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException) {
			t.Fatalf("Cannot delete table %s: %v", table, err)
		}
		_, err = client.CreateTable(&dynamodb.CreateTableInput{
			TableName: aws.String(table),
			AttributeDefinitions: []*dynamodb.AttributeDefinition{
				{AttributeName: aws.String(key), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
			},
			KeySchema: []*dynamodb.KeySchemaElement{
				{AttributeName: aws.String(key), KeyType: aws.String(dynamodb.KeyTypeHash)},
			},
			BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
		})
		if err != nil {
			t.Fatalf("Cannot create table %s: %v", table, err)
		}
	}
}

func putAgency(t *testing.T, agency model.Agency) {
	t.Helper()
	item, err := dynamodbattribute.MarshalMap(agency)
	if err != nil {
		t.Fatal(err)
	}
	_, err = dynamodbClient().PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(awsAgencyTable),
		Item:      item,
	})
	if err != nil {
		t.Fatal("Cannot create agency item: ", err)
	}
}

func createBucket(t *testing.T) {
	t.Helper()
	_, err := s3Client().CreateBucket(&s3.CreateBucketInput{Bucket: aws.String(awsBucket)})
	if aerr, ok := err.(awserr.Error); err != nil && (!ok || aerr.Code() != s3.ErrCodeBucketAlreadyOwnedByYou) {
		t.Fatal("Cannot create bucket: ", err)
	}
}

func createTopic(t *testing.T) {
	t.Helper()
	_, err := snsClient().CreateTopic(&sns.CreateTopicInput{Name: aws.String(awsTopicName)})
	if err != nil {
		t.Fatal("Cannot create topic: ", err)
	}
}

// envelope mirrors the API response documents.
type envelope struct {
	Data          json.RawMessage `json:"data"`
	IsError       bool            `json:"isError"`
	ErrorCode     int             `json:"errorCode"`
	ErrorMessages []string        `json:"errorMessages"`
}

// call sends a JSON request as the given party and decodes the envelope data
// into out when it is not nil.
func call(t *testing.T, method, url string, party model.EntityID, body interface{}, out interface{}) int {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &payload)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if party != "" {
		req.Header.Set(api.HeaderPartyID, string(party))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("Cannot decode %s %s response: %v", method, url, err)
	}
	if env.IsError {
		t.Logf("%s %s: %d %v", method, url, env.ErrorCode, env.ErrorMessages)
		return resp.StatusCode
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}
