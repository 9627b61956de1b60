package store

import (
	"context"
	"testing"
	"time"

	"github.com/JiscSD/ram-relationships/code"
	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/query"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type dynamock struct {
	mock.Mock
	dynamodbiface.DynamoDBAPI
}

func (m *dynamock) GetItemWithContext(ctx aws.Context, input *dynamodb.GetItemInput, opts ...request.Option) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(*dynamodb.GetItemOutput), args.Error(1)
}

func (m *dynamock) PutItemWithContext(ctx aws.Context, input *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(*dynamodb.PutItemOutput), args.Error(1)
}

func (m *dynamock) TransactWriteItemsWithContext(ctx aws.Context, input *dynamodb.TransactWriteItemsInput, opts ...request.Option) (*dynamodb.TransactWriteItemsOutput, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(*dynamodb.TransactWriteItemsOutput), args.Error(1)
}

func (m *dynamock) ScanPagesWithContext(ctx aws.Context, input *dynamodb.ScanInput, fn func(*dynamodb.ScanOutput, bool) bool, opts ...request.Option) error {
	args := m.Called(ctx, input)
	pages := args.Get(0).([]*dynamodb.ScanOutput)
	for i, page := range pages {
		if !fn(page, i == len(pages)-1) {
			break
		}
	}
	return args.Error(1)
}

func mustMarshal(t *testing.T, v interface{}) map[string]*dynamodb.AttributeValue {
	t.Helper()
	item, err := dynamodbattribute.MarshalMap(v)
	require.NoError(t, err)
	return item
}

func TestRelationshipStoreDynamoDB_SaveNew(t *testing.T) {
	m := &dynamock{}
	s := NewRelationshipStoreDynamoDB(m, "relationships")
	r := relationship("P1", "P2", code.RelationshipStatusActive, t0)
	r.Sharing = []model.Consent{{LegislativeProgram: model.LegislativeProgram{Name: "Tax"}}}

	var input *dynamodb.PutItemInput
	m.On("PutItemWithContext", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { input = args.Get(1).(*dynamodb.PutItemInput) }).
		Return(&dynamodb.PutItemOutput{}, nil)

	require.NoError(t, s.Save(context.Background(), r))
	assert.Equal(t, int64(1), r.ResourceVersion)

	require.NotNil(t, input)
	assert.Equal(t, "relationships", aws.StringValue(input.TableName))
	assert.Equal(t, "attribute_not_exists (#0)", aws.StringValue(input.ConditionExpression))
	assert.Equal(t, "id", aws.StringValue(input.ExpressionAttributeNames["#0"]))
	assert.Equal(t, "1", aws.StringValue(input.Item["resourceVersion"].N))
	assert.Equal(t, "ACTIVE", aws.StringValue(input.Item["status"].S))
	require.Len(t, input.Item["sharingPrograms"].L, 1)
	assert.Equal(t, "Tax", aws.StringValue(input.Item["sharingPrograms"].L[0].S))
}

func TestRelationshipStoreDynamoDB_SaveStale(t *testing.T) {
	m := &dynamock{}
	s := NewRelationshipStoreDynamoDB(m, "relationships")
	r := relationship("P1", "P2", code.RelationshipStatusActive, t0)
	r.ResourceVersion = 3

	var input *dynamodb.PutItemInput
	m.On("PutItemWithContext", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { input = args.Get(1).(*dynamodb.PutItemInput) }).
		Return(&dynamodb.PutItemOutput{}, awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "failed", nil))

	err := s.Save(context.Background(), r)
	assert.True(t, errors.Is(err, model.ErrConflict))
	assert.Equal(t, int64(3), r.ResourceVersion)
	assert.Equal(t, "#0 = :0", aws.StringValue(input.ConditionExpression))
	assert.Equal(t, "resourceVersion", aws.StringValue(input.ExpressionAttributeNames["#0"]))
	assert.Equal(t, "3", aws.StringValue(input.ExpressionAttributeValues[":0"].N))
	assert.Equal(t, "4", aws.StringValue(input.Item["resourceVersion"].N))
}

func TestRelationshipStoreDynamoDB_SaveFailure(t *testing.T) {
	m := &dynamock{}
	s := NewRelationshipStoreDynamoDB(m, "relationships")
	m.On("PutItemWithContext", mock.Anything, mock.Anything).
		Return(&dynamodb.PutItemOutput{}, errors.New("network down"))

	err := s.Save(context.Background(), relationship("P1", "P2", code.RelationshipStatusActive, t0))
	require.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrConflict))
	assert.Contains(t, err.Error(), "network down")
}

func TestRelationshipStoreDynamoDB_FindByID(t *testing.T) {
	m := &dynamock{}
	s := NewRelationshipStoreDynamoDB(m, "relationships")
	r := relationship("P1", "P2", code.RelationshipStatusActive, t0)
	r.ResourceVersion = 2

	m.On("GetItemWithContext", mock.Anything, &dynamodb.GetItemInput{
		TableName:      aws.String("relationships"),
		ConsistentRead: aws.Bool(true),
		Key:            map[string]*dynamodb.AttributeValue{"id": {S: aws.String(string(r.ID))}},
	}).Return(&dynamodb.GetItemOutput{Item: mustMarshal(t, r)}, nil)
	m.On("GetItemWithContext", mock.Anything, mock.Anything).
		Return(&dynamodb.GetItemOutput{}, nil)

	got, err := s.FindByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, code.RelationshipStatusActive, got.Status)
	assert.Equal(t, int64(2), got.ResourceVersion)
	assert.True(t, got.StartTimestamp.Equal(t0))

	_, err = s.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestRelationshipStoreDynamoDB_Find(t *testing.T) {
	m := &dynamock{}
	s := NewRelationshipStoreDynamoDB(m, "relationships")

	r1 := relationship("P1", "P2", code.RelationshipStatusActive, t0.Add(time.Minute))
	r2 := relationship("P1", "P3", code.RelationshipStatusActive, t0)
	end := t0.Add(time.Hour)
	r3 := relationship("P1", "P4", code.RelationshipStatusActive, t0)
	r3.EndTimestamp = &end
	for _, r := range []*model.Relationship{r1, r2, r3} {
		r.RelationshipTypeInformation.Sharing = []model.EntityID{"AGENCY-X"}
	}

	var input *dynamodb.ScanInput
	m.On("ScanPagesWithContext", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { input = args.Get(1).(*dynamodb.ScanInput) }).
		Return([]*dynamodb.ScanOutput{
			{Items: []map[string]*dynamodb.AttributeValue{mustMarshal(t, r1)}},
			{Items: []map[string]*dynamodb.AttributeValue{mustMarshal(t, r2), mustMarshal(t, r3)}},
		}, nil)

	res, err := s.Find(context.Background(), query.Filters{
		FilterSubjectPartyID: "P1",
		FilterActiveAt:       t0.Add(2 * time.Hour),
		FilterVisibleTo:      Visibility{AgencyID: "AGENCY-X", Programs: []string{"Tax"}},
	}, query.Page{})
	require.NoError(t, err)

	// r3 has lapsed; the scan filter cannot express the window.
	require.Equal(t, 2, res.TotalCount)
	assert.Equal(t, r2.ID, res.List[0].ID)
	assert.Equal(t, r1.ID, res.List[1].ID)

	require.NotNil(t, input)
	assert.True(t, aws.BoolValue(input.ConsistentRead))
	assert.NotEmpty(t, aws.StringValue(input.FilterExpression))
	assert.Contains(t, aws.StringValue(input.FilterExpression), "contains")
	names := []string{}
	for _, n := range input.ExpressionAttributeNames {
		names = append(names, aws.StringValue(n))
	}
	assert.Subset(t, names, []string{"deleteInd", "subjectPartyId", "sharingPrograms", "relationshipTypeInformation", "sharing"})
}

func TestRelationshipStoreDynamoDB_FindUnfiltered(t *testing.T) {
	m := &dynamock{}
	s := NewRelationshipStoreDynamoDB(m, "relationships")

	var input *dynamodb.ScanInput
	m.On("ScanPagesWithContext", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { input = args.Get(1).(*dynamodb.ScanInput) }).
		Return([]*dynamodb.ScanOutput{}, nil)

	res, err := s.Find(context.Background(), query.Filters{FilterIncludeDeleted: true}, query.Page{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalCount)
	assert.Nil(t, input.FilterExpression)
}

func TestPartyStoreDynamoDB_Save(t *testing.T) {
	m := &dynamock{}
	s := NewPartyStoreDynamoDB(m, "parties", "identities")

	p := model.NewParty(code.PartyTypeIndividual, model.Name{GivenName: "Jane"}, "", t0)
	p.Identities = []model.IdentityValue{model.NewInvitationIdentity("ABC123", nil, "", t0, t0.Add(time.Hour))}
	p.Identities[0].CreatorRoleDefID = "OSP"
	p.Identities[0].PartySpecificInfo = model.SharableEntityWithAttributes{
		EntityWithAttributeDefID: "INVITATION_CODE_INFO",
		Sharing:                  []model.EntityID{"ATO"},
	}
	p.PartyTypeInformation = &model.SharableEntityWithAttributes{
		EntityWithAttributeDefID: "INDIVIDUAL_INFO",
		Sharing:                  []model.EntityID{"DHS"},
	}

	var input *dynamodb.TransactWriteItemsInput
	m.On("TransactWriteItemsWithContext", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { input = args.Get(1).(*dynamodb.TransactWriteItemsInput) }).
		Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	require.NoError(t, s.Save(context.Background(), p))
	assert.Equal(t, int64(1), p.ResourceVersion)

	require.Len(t, input.TransactItems, 2)
	assert.Equal(t, "parties", aws.StringValue(input.TransactItems[0].Put.TableName))
	idx := input.TransactItems[1].Put
	assert.Equal(t, "identities", aws.StringValue(idx.TableName))
	assert.Equal(t, "INVITATION_CODE:ABC123", aws.StringValue(idx.Item["idValue"].S))
	assert.Equal(t, string(p.ID), aws.StringValue(idx.Item["partyId"].S))
	assert.Equal(t, "(attribute_not_exists (#0)) OR (#1 = :0)", aws.StringValue(idx.ConditionExpression))

	var stored model.Party
	require.NoError(t, dynamodbattribute.UnmarshalMap(input.TransactItems[0].Put.Item, &stored))
	require.Len(t, stored.Identities, 1)
	assert.Equal(t, model.EntityID("OSP"), stored.Identities[0].CreatorRoleDefID)
	assert.Equal(t, []model.EntityID{"ATO"}, stored.Identities[0].PartySpecificInfo.Sharing)
	require.NotNil(t, stored.PartyTypeInformation)
	assert.Equal(t, []model.EntityID{"DHS"}, stored.PartyTypeInformation.Sharing)
}

func TestPartyStoreDynamoDB_SaveCancelled(t *testing.T) {
	newParty := func() *model.Party {
		p := model.NewParty(code.PartyTypeIndividual, model.Name{GivenName: "Jane"}, "", t0)
		p.ResourceVersion = 1
		p.Identities = []model.IdentityValue{
			model.NewInvitationIdentity("ABC123", nil, "", t0, t0.Add(time.Hour)),
			model.NewInvitationIdentity("XYZ789", nil, "", t0, t0.Add(time.Hour)),
		}
		return p
	}
	reason := func(c string) *dynamodb.CancellationReason {
		return &dynamodb.CancellationReason{Code: aws.String(c)}
	}

	tests := map[string]struct {
		reasons      []*dynamodb.CancellationReason
		wantConflict bool
		wantMessages []string
	}{
		"stale version": {
			reasons:      []*dynamodb.CancellationReason{reason("ConditionalCheckFailed"), reason("None"), reason("None")},
			wantConflict: true,
		},
		"identity taken": {
			reasons:      []*dynamodb.CancellationReason{reason("None"), reason("None"), reason("ConditionalCheckFailed")},
			wantMessages: []string{"identity INVITATION_CODE:XYZ789 is already in use"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			m := &dynamock{}
			s := NewPartyStoreDynamoDB(m, "parties", "identities")
			m.On("TransactWriteItemsWithContext", mock.Anything, mock.Anything).
				Return(&dynamodb.TransactWriteItemsOutput{}, &dynamodb.TransactionCanceledException{
					Message_:            aws.String("cancelled"),
					CancellationReasons: tc.reasons,
				})

			p := newParty()
			err := s.Save(context.Background(), p)
			assert.Equal(t, int64(1), p.ResourceVersion)
			if tc.wantConflict {
				assert.True(t, errors.Is(err, model.ErrConflict))
				return
			}
			verr, ok := model.AsValidationError(err)
			require.True(t, ok)
			assert.Equal(t, tc.wantMessages, verr.Messages)
		})
	}
}

func TestPartyStoreDynamoDB_FindByIdentity(t *testing.T) {
	m := &dynamock{}
	s := NewPartyStoreDynamoDB(m, "parties", "identities")
	p := model.NewParty(code.PartyTypeIndividual, model.Name{GivenName: "Jane"}, "", t0)

	m.On("GetItemWithContext", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		return aws.StringValue(in.TableName) == "identities" && aws.StringValue(in.Key["idValue"].S) == "ABN:123"
	})).Return(&dynamodb.GetItemOutput{Item: mustMarshal(t, identityIndexItem{Key: "ABN:123", PartyID: p.ID})}, nil)
	m.On("GetItemWithContext", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		return aws.StringValue(in.TableName) == "parties"
	})).Return(&dynamodb.GetItemOutput{Item: mustMarshal(t, p)}, nil)
	m.On("GetItemWithContext", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	got, err := s.FindByIdentity(context.Background(), code.IdentityTypeABN, "123")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = s.FindByIdentity(context.Background(), code.IdentityTypeABN, "999")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestPartyStoreDynamoDB_Purge(t *testing.T) {
	m := &dynamock{}
	s := NewPartyStoreDynamoDB(m, "parties", "identities")
	p := model.NewParty(code.PartyTypeIndividual, model.Name{GivenName: "Jane"}, "", t0)
	p.ResourceVersion = 2
	p.Identities = []model.IdentityValue{model.NewInvitationIdentity("ABC123", nil, "", t0, t0.Add(time.Hour))}

	m.On("GetItemWithContext", mock.Anything, mock.Anything).
		Return(&dynamodb.GetItemOutput{Item: mustMarshal(t, p)}, nil)
	var input *dynamodb.TransactWriteItemsInput
	m.On("TransactWriteItemsWithContext", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { input = args.Get(1).(*dynamodb.TransactWriteItemsInput) }).
		Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	require.NoError(t, s.Purge(context.Background(), p.ID))
	require.Len(t, input.TransactItems, 2)
	assert.Equal(t, string(p.ID), aws.StringValue(input.TransactItems[0].Delete.Key["id"].S))
	assert.Equal(t, "2", aws.StringValue(input.TransactItems[0].Delete.ExpressionAttributeValues[":0"].N))
	assert.Equal(t, "INVITATION_CODE:ABC123", aws.StringValue(input.TransactItems[1].Delete.Key["idValue"].S))
}

func TestAgencyStoreDynamoDB_ListAgencies(t *testing.T) {
	m := &dynamock{}
	s := NewAgencyStoreDynamoDB(m, "agencies")

	m.On("ScanPagesWithContext", mock.Anything, &dynamodb.ScanInput{
		TableName:      aws.String("agencies"),
		ConsistentRead: aws.Bool(true),
	}).Return([]*dynamodb.ScanOutput{
		{Items: []map[string]*dynamodb.AttributeValue{
			mustMarshal(t, model.Agency{ID: "ATO", Name: "Tax Office", LegislativePrograms: []model.LegislativeProgram{{Name: "Tax"}}}),
		}},
		{Items: []map[string]*dynamodb.AttributeValue{
			mustMarshal(t, model.Agency{ID: "DHS", Name: "Human Services"}),
		}},
	}, nil)

	agencies, err := s.ListAgencies(context.Background())
	require.NoError(t, err)
	require.Len(t, agencies, 2)
	assert.Equal(t, []string{"Tax"}, agencies[0].ProgramNames())
	assert.Equal(t, model.EntityID("DHS"), agencies[1].ID)
}
