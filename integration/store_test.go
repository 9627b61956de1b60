package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/JiscSD/ram-relationships/archive"
	"github.com/JiscSD/ram-relationships/code"
	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/notify"
	"github.com/JiscSD/ram-relationships/party"
	"github.com/JiscSD/ram-relationships/query"
	"github.com/JiscSD/ram-relationships/registry"
	"github.com/JiscSD/ram-relationships/relationship"
	"github.com/JiscSD/ram-relationships/store"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2017, 3, 1, 9, 0, 0, 0, time.UTC)

func TestDynamoDBPartyStore(t *testing.T) {
	requireServices(t)
	createTables(t)
	ctx := context.Background()
	s := store.NewPartyStoreDynamoDB(dynamodbClient(), awsPartyTable, awsIdentityTable)

	p1 := model.NewParty(code.PartyTypeIndividual, model.Name{GivenName: "Jane"}, "", t0)
	p1.Identities = []model.IdentityValue{model.NewInvitationIdentity("ABC123", nil, "", t0, t0.Add(time.Hour))}
	require.NoError(t, s.Save(ctx, p1))
	assert.EqualValues(t, 1, p1.ResourceVersion)

	stale, err := s.FindByID(ctx, p1.ID)
	require.NoError(t, err)
	p1.Name.FamilyName = "Doe"
	require.NoError(t, s.Save(ctx, p1))
	stale.Name.FamilyName = "Roe"
	assert.True(t, errors.Is(s.Save(ctx, stale), model.ErrConflict))

	p2 := model.NewParty(code.PartyTypeIndividual, model.Name{GivenName: "John"}, "", t0)
	p2.Identities = []model.IdentityValue{model.NewInvitationIdentity("ABC123", nil, "", t0, t0.Add(time.Hour))}
	verr, ok := model.AsValidationError(s.Save(ctx, p2))
	require.True(t, ok)
	assert.Equal(t, []string{"identity INVITATION_CODE:ABC123 is already in use"}, verr.Messages)

	found, err := s.FindByIdentity(ctx, code.IdentityTypeInvitationCode, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, p1.ID, found.ID)
	assert.Equal(t, "Doe", found.Name.FamilyName)

	res, err := s.Find(ctx, query.Filters{store.FilterPartyType: "INDIVIDUAL"}, query.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount)

	require.NoError(t, s.Purge(ctx, p1.ID))
	_, err = s.FindByIdentity(ctx, code.IdentityTypeInvitationCode, "ABC123")
	assert.True(t, errors.Is(err, model.ErrNotFound))
	require.NoError(t, s.Save(ctx, p2))
}

// TestServicesDynamoDB runs the relationship lifecycle with every AWS backed
// component wired in.
func TestServicesDynamoDB(t *testing.T) {
	requireServices(t)
	createTables(t)
	createBucket(t)
	createTopic(t)
	putAgency(t, model.Agency{
		ID:                  "ATO",
		Name:                "Australian Taxation Office",
		LegislativePrograms: []model.LegislativeProgram{{Name: "TAX"}},
	})
	sub := subscriber(t)

	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	client := dynamodbClient()
	parties := store.NewPartyStoreDynamoDB(client, awsPartyTable, awsIdentityTable)
	relationships := store.NewRelationshipStoreDynamoDB(client, awsRelationshipTable)

	agencies, err := registry.New(logger, store.NewAgencyStoreDynamoDB(client, awsAgencyTable), time.Minute)
	require.NoError(t, err)
	defer agencies.Stop()

	notifier := notify.New(logger, snsClient(), awsTopic())
	relationshipService := relationship.New(logger, parties, relationships, agencies, notifier, nil, relationship.Config{})
	partyService := party.New(logger, parties, relationships, archive.NewWithClient(s3Client(), awsBucket), notifier)

	subject, err := partyService.Create(ctx, party.CreateInput{
		PartyType:  code.PartyTypeOrganisation,
		Name:       model.Name{UnstructuredName: "ACME"},
		Identities: []party.IdentityInput{{IdentityType: code.IdentityTypeABN, Value: "51824753556"}},
	}, "")
	require.NoError(t, err)
	delegate, err := partyService.Create(ctx, party.CreateInput{
		PartyType: code.PartyTypeIndividual,
		Name:      model.Name{GivenName: "Jane", FamilyName: "Citizen"},
	}, "")
	require.NoError(t, err)

	r, inv, err := relationshipService.CreatePending(ctx, relationship.CreateInput{
		SubjectPartyID:   subject.ID,
		RelationshipType: relationship.TypeUniversalRepresentative,
		Consents:         []string{"TAX"},
		Delegate: relationship.DelegateInput{
			PartyType: code.PartyTypeIndividual,
			Name:      model.Name{GivenName: "Invited"},
		},
	})
	require.NoError(t, err)
	sub.AssertEventReceived(notify.EventDelegateNotified)

	claimed, err := relationshipService.Claim(ctx, inv.Code, delegate.ID)
	require.NoError(t, err)
	assert.Equal(t, code.RelationshipStatusActive, claimed.Status)
	e := sub.AssertEventReceived(notify.EventAcceptedRelationship)
	assert.Equal(t, r.ID, e.RelationshipID)

	_, err = relationshipService.Claim(ctx, inv.Code, delegate.ID)
	assert.True(t, errors.Is(err, model.ErrConflict), "unexpected error: %v", err)

	res, err := relationshipService.Search(ctx, relationship.SearchParams{Status: "ACTIVE"}, relationship.Observer{AgencyID: "ATO"}, query.Page{})
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalCount)
	assert.Equal(t, r.ID, res.List[0].ID)

	uri, err := partyService.Purge(ctx, delegate.ID)
	require.NoError(t, err)
	assert.Equal(t, "s3://"+awsBucket+"/"+party.ArchiveKey(delegate.ID), uri)
	sub.AssertEventReceived(notify.EventPartyPurged)

	obj, err := s3Client().GetObject(&s3.GetObjectInput{
		Bucket: aws.String(awsBucket),
		Key:    aws.String(party.ArchiveKey(delegate.ID)),
	})
	require.NoError(t, err)
	defer obj.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(obj.Body)
	require.NoError(t, err)
	var doc struct {
		Party         model.Party          `json:"party"`
		Relationships []model.Relationship `json:"relationships"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, delegate.ID, doc.Party.ID)
	require.Len(t, doc.Relationships, 1)

	sub.AssertNoMoreEvents()
}
