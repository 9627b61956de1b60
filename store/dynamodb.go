package store

import (
	"context"
	"fmt"

	"github.com/JiscSD/ram-relationships/code"
	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/query"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/dynamodb/expression"
	"github.com/pkg/errors"
)

const (
	attrID              = "id"
	attrResourceVersion = "resourceVersion"
	attrDeleteInd       = "deleteInd"
	attrIdentityKey     = "idValue"
	attrIdentityParty   = "partyId"

	// sharingPrograms is a denormalised list of the legislative programs
	// named by a relationship's consents so visibility can be evaluated by
	// the scan filter.
	attrSharingPrograms = "sharingPrograms"

	reasonConditionalCheckFailed = "ConditionalCheckFailed"
)

// versionCondition guards a put against lost updates.
func versionCondition(expected int64) expression.ConditionBuilder {
	if expected == 0 {
		return expression.AttributeNotExists(expression.Name(attrID))
	}
	return expression.Name(attrResourceVersion).Equal(expression.Value(expected))
}

func conditionFailed(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}

func and(conds []expression.ConditionBuilder) (expression.ConditionBuilder, bool) {
	switch len(conds) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return conds[0], true
	}
	return expression.And(conds[0], conds[1], conds[2:]...), true
}

func or(conds []expression.ConditionBuilder) expression.ConditionBuilder {
	if len(conds) == 1 {
		return conds[0]
	}
	return expression.Or(conds[0], conds[1], conds[2:]...)
}

func getItem(ctx context.Context, client dynamodbiface.DynamoDBAPI, table, key, value string, out interface{}) (bool, error) {
	output, err := client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]*dynamodb.AttributeValue{
			key: {S: aws.String(value)},
		},
	})
	if err != nil {
		return false, err
	}
	if output.Item == nil {
		return false, nil
	}
	if err := dynamodbattribute.UnmarshalMap(output.Item, out); err != nil {
		return false, err
	}
	return true, nil
}

type relationshipStoreDynamoDBImpl struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

var _ RelationshipStore = (*relationshipStoreDynamoDBImpl)(nil)

func NewRelationshipStoreDynamoDB(client dynamodbiface.DynamoDBAPI, table string) *relationshipStoreDynamoDBImpl {
	return &relationshipStoreDynamoDBImpl{
		client: client,
		table:  table,
	}
}

func (s *relationshipStoreDynamoDBImpl) FindByID(ctx context.Context, id model.EntityID) (*model.Relationship, error) {
	r := &model.Relationship{}
	found, err := getItem(ctx, s.client, s.table, attrID, string(id), r)
	if err != nil {
		return nil, errors.Wrapf(err, "reading relationship %s", id)
	}
	if !found {
		return nil, errors.Wrapf(model.ErrNotFound, "relationship %s", id)
	}
	return r, nil
}

func (s *relationshipStoreDynamoDBImpl) Find(ctx context.Context, f query.Filters, page query.Page) (query.SearchResult[*model.Relationship], error) {
	var res query.SearchResult[*model.Relationship]
	c, err := parseRelationshipFilters(f)
	if err != nil {
		return res, err
	}

	input := &dynamodb.ScanInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
	}
	if cond, ok := c.condition(); ok {
		expr, err := expression.NewBuilder().WithFilter(cond).Build()
		if err != nil {
			return res, errors.Wrap(err, "building relationship filter")
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	var (
		items []*model.Relationship
		uerr  error
	)
	err = s.client.ScanPagesWithContext(ctx, input, func(out *dynamodb.ScanOutput, _ bool) bool {
		for _, item := range out.Items {
			r := &model.Relationship{}
			if uerr = dynamodbattribute.UnmarshalMap(item, r); uerr != nil {
				return false
			}
			// The activeAt window is evaluated here, not in the filter.
			if c.match(r) {
				items = append(items, r)
			}
		}
		return true
	})
	if err != nil {
		return res, errors.Wrap(err, "scanning relationships")
	}
	if uerr != nil {
		return res, errors.Wrap(uerr, "unmarshaling relationship")
	}
	sortEntities(items)
	return query.Paginate(items, page), nil
}

func (s *relationshipStoreDynamoDBImpl) Save(ctx context.Context, r *model.Relationship) error {
	if err := r.Validate(); err != nil {
		return err
	}

	next := r.Clone()
	next.ResourceVersion++
	item, err := marshalRelationship(next)
	if err != nil {
		return errors.Wrap(err, "marshaling relationship")
	}
	expr, err := expression.NewBuilder().WithCondition(versionCondition(r.ResourceVersion)).Build()
	if err != nil {
		return errors.Wrap(err, "building version condition")
	}
	_, err = s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.table),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if conditionFailed(err) {
		return errors.Wrapf(model.ErrConflict, "relationship %s was modified after version %d", r.ID, r.ResourceVersion)
	}
	if err != nil {
		return errors.Wrapf(err, "saving relationship %s", r.ID)
	}
	r.ResourceVersion = next.ResourceVersion
	return nil
}

func marshalRelationship(r *model.Relationship) (map[string]*dynamodb.AttributeValue, error) {
	item, err := dynamodbattribute.MarshalMap(r)
	if err != nil {
		return nil, err
	}
	if programs := r.SharingPrograms(); len(programs) > 0 {
		av, err := dynamodbattribute.Marshal(programs)
		if err != nil {
			return nil, err
		}
		item[attrSharingPrograms] = av
	}
	return item, nil
}

// condition translates the criteria that DynamoDB can evaluate server-side.
func (c *relationshipCriteria) condition() (expression.ConditionBuilder, bool) {
	var conds []expression.ConditionBuilder
	eq := func(name, value string) {
		if value != "" {
			conds = append(conds, expression.Name(name).Equal(expression.Value(value)))
		}
	}
	if !c.includeDeleted {
		conds = append(conds, expression.Name(attrDeleteInd).Equal(expression.Value(false)))
	}
	eq("status", c.status)
	eq("subjectPartyId", c.subjectPartyID)
	eq("delegatePartyId", c.delegatePartyID)
	eq("relationshipTypeInformation.entityWithAttributeDefId", c.relType)
	if c.partyID != "" {
		conds = append(conds, expression.Or(
			expression.Name("subjectPartyId").Equal(expression.Value(c.partyID)),
			expression.Name("delegatePartyId").Equal(expression.Value(c.partyID)),
		))
	}
	if c.visibility != nil {
		vis := []expression.ConditionBuilder{
			expression.Contains(expression.Name("relationshipTypeInformation.sharing"), string(c.visibility.AgencyID)),
		}
		for _, p := range c.visibility.Programs {
			vis = append(vis, expression.Contains(expression.Name(attrSharingPrograms), p))
		}
		conds = append(conds, or(vis))
	}
	return and(conds)
}

type identityIndexItem struct {
	Key     string         `dynamodbav:"idValue"`
	PartyID model.EntityID `dynamodbav:"partyId"`
}

// partyStoreDynamoDBImpl keeps parties in one table and an identity index in
// another. The index enforces that an identity value belongs to one party.
type partyStoreDynamoDBImpl struct {
	client        dynamodbiface.DynamoDBAPI
	table         string
	identityTable string
}

var _ PartyStore = (*partyStoreDynamoDBImpl)(nil)

func NewPartyStoreDynamoDB(client dynamodbiface.DynamoDBAPI, table, identityTable string) *partyStoreDynamoDBImpl {
	return &partyStoreDynamoDBImpl{
		client:        client,
		table:         table,
		identityTable: identityTable,
	}
}

func (s *partyStoreDynamoDBImpl) FindByID(ctx context.Context, id model.EntityID) (*model.Party, error) {
	p := &model.Party{}
	found, err := getItem(ctx, s.client, s.table, attrID, string(id), p)
	if err != nil {
		return nil, errors.Wrapf(err, "reading party %s", id)
	}
	if !found {
		return nil, errors.Wrapf(model.ErrNotFound, "party %s", id)
	}
	return p, nil
}

func (s *partyStoreDynamoDBImpl) FindByIdentity(ctx context.Context, t code.IdentityType, value string) (*model.Party, error) {
	key := model.IdentityKey(t, value)
	idx := &identityIndexItem{}
	found, err := getItem(ctx, s.client, s.identityTable, attrIdentityKey, key, idx)
	if err != nil {
		return nil, errors.Wrapf(err, "reading identity %s", key)
	}
	if !found {
		return nil, errors.Wrapf(model.ErrNotFound, "identity %s", key)
	}
	return s.FindByID(ctx, idx.PartyID)
}

func (s *partyStoreDynamoDBImpl) Find(ctx context.Context, f query.Filters, page query.Page) (query.SearchResult[*model.Party], error) {
	var res query.SearchResult[*model.Party]
	c, err := parsePartyFilters(f)
	if err != nil {
		return res, err
	}

	input := &dynamodb.ScanInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
	}
	var conds []expression.ConditionBuilder
	if !c.includeDeleted {
		conds = append(conds, expression.Name(attrDeleteInd).Equal(expression.Value(false)))
	}
	if c.partyType != "" {
		conds = append(conds, expression.Name("partyType").Equal(expression.Value(c.partyType)))
	}
	if cond, ok := and(conds); ok {
		expr, err := expression.NewBuilder().WithFilter(cond).Build()
		if err != nil {
			return res, errors.Wrap(err, "building party filter")
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	var (
		items []*model.Party
		uerr  error
	)
	err = s.client.ScanPagesWithContext(ctx, input, func(out *dynamodb.ScanOutput, _ bool) bool {
		for _, item := range out.Items {
			p := &model.Party{}
			if uerr = dynamodbattribute.UnmarshalMap(item, p); uerr != nil {
				return false
			}
			if c.match(p) {
				items = append(items, p)
			}
		}
		return true
	})
	if err != nil {
		return res, errors.Wrap(err, "scanning parties")
	}
	if uerr != nil {
		return res, errors.Wrap(uerr, "unmarshaling party")
	}
	sortEntities(items)
	return query.Paginate(items, page), nil
}

// Save writes the party and its identity index entries in one transaction.
func (s *partyStoreDynamoDBImpl) Save(ctx context.Context, p *model.Party) error {
	if err := p.Validate(); err != nil {
		return err
	}

	next := p.Clone()
	next.ResourceVersion++
	item, err := dynamodbattribute.MarshalMap(next)
	if err != nil {
		return errors.Wrap(err, "marshaling party")
	}
	expr, err := expression.NewBuilder().WithCondition(versionCondition(p.ResourceVersion)).Build()
	if err != nil {
		return errors.Wrap(err, "building version condition")
	}
	items := []*dynamodb.TransactWriteItem{{
		Put: &dynamodb.Put{
			TableName:                 aws.String(s.table),
			Item:                      item,
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}}

	owned := expression.Or(
		expression.AttributeNotExists(expression.Name(attrIdentityKey)),
		expression.Name(attrIdentityParty).Equal(expression.Value(string(next.ID))),
	)
	ownedExpr, err := expression.NewBuilder().WithCondition(owned).Build()
	if err != nil {
		return errors.Wrap(err, "building identity condition")
	}
	for _, i := range next.Identities {
		idx, err := dynamodbattribute.MarshalMap(identityIndexItem{Key: i.Key(), PartyID: next.ID})
		if err != nil {
			return errors.Wrap(err, "marshaling identity index")
		}
		items = append(items, &dynamodb.TransactWriteItem{
			Put: &dynamodb.Put{
				TableName:                 aws.String(s.identityTable),
				Item:                      idx,
				ConditionExpression:       ownedExpr.Condition(),
				ExpressionAttributeNames:  ownedExpr.Names(),
				ExpressionAttributeValues: ownedExpr.Values(),
			},
		})
	}

	_, err = s.client.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return s.saveError(err, p, next)
	}
	p.ResourceVersion = next.ResourceVersion
	return nil
}

// saveError maps transaction cancellation reasons: the first item is the
// party itself, the rest are identity index entries in order.
func (s *partyStoreDynamoDBImpl) saveError(err error, p, next *model.Party) error {
	var tce *dynamodb.TransactionCanceledException
	if !errors.As(err, &tce) {
		return errors.Wrapf(err, "saving party %s", p.ID)
	}
	var messages []string
	for i, reason := range tce.CancellationReasons {
		if reason == nil || aws.StringValue(reason.Code) != reasonConditionalCheckFailed {
			continue
		}
		if i == 0 {
			return errors.Wrapf(model.ErrConflict, "party %s was modified after version %d", p.ID, p.ResourceVersion)
		}
		if i-1 < len(next.Identities) {
			messages = append(messages, fmt.Sprintf("identity %s is already in use", next.Identities[i-1].Key()))
		}
	}
	if len(messages) > 0 {
		return model.NewValidationError(messages...)
	}
	return errors.Wrapf(err, "saving party %s", p.ID)
}

// Purge removes the party and its identity index entries.
func (s *partyStoreDynamoDBImpl) Purge(ctx context.Context, id model.EntityID) error {
	p, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.Name(attrResourceVersion).Equal(expression.Value(p.ResourceVersion))).
		Build()
	if err != nil {
		return errors.Wrap(err, "building version condition")
	}
	items := []*dynamodb.TransactWriteItem{{
		Delete: &dynamodb.Delete{
			TableName: aws.String(s.table),
			Key: map[string]*dynamodb.AttributeValue{
				attrID: {S: aws.String(string(id))},
			},
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	}}
	for _, i := range p.Identities {
		items = append(items, &dynamodb.TransactWriteItem{
			Delete: &dynamodb.Delete{
				TableName: aws.String(s.identityTable),
				Key: map[string]*dynamodb.AttributeValue{
					attrIdentityKey: {S: aws.String(i.Key())},
				},
			},
		})
	}
	_, err = s.client.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	var tce *dynamodb.TransactionCanceledException
	if errors.As(err, &tce) {
		return errors.Wrapf(model.ErrConflict, "party %s changed while purging", id)
	}
	if err != nil {
		return errors.Wrapf(err, "purging party %s", id)
	}
	return nil
}

type agencyStoreDynamoDBImpl struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

var _ AgencyStore = (*agencyStoreDynamoDBImpl)(nil)

func NewAgencyStoreDynamoDB(client dynamodbiface.DynamoDBAPI, table string) *agencyStoreDynamoDBImpl {
	return &agencyStoreDynamoDBImpl{
		client: client,
		table:  table,
	}
}

func (s *agencyStoreDynamoDBImpl) ListAgencies(ctx context.Context) ([]model.Agency, error) {
	var (
		agencies []model.Agency
		uerr     error
	)
	err := s.client.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
	}, func(out *dynamodb.ScanOutput, _ bool) bool {
		page := []model.Agency{}
		if uerr = dynamodbattribute.UnmarshalListOfMaps(out.Items, &page); uerr != nil {
			return false
		}
		agencies = append(agencies, page...)
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan agencies")
	}
	if uerr != nil {
		return nil, errors.Wrap(uerr, "failed to unmarshal agencies")
	}
	return agencies, nil
}
