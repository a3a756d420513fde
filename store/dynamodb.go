package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/bkmark/slack-integration"
)

// DynamoDBStore implements ItemStore on a single DynamoDB table.
type DynamoDBStore struct {
	client    DynamoDBClient
	tableName string
	now       func() time.Time
}

// NewDynamoDBStore creates a DynamoDB-backed item store.
func NewDynamoDBStore(client DynamoDBClient, tableName string) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

func (s *DynamoDBStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func (s *DynamoDBStore) Put(ctx context.Context, item Item, uniqueByKey bool) error {
	ts := s.timestamp()
	created := item.Created
	if created == "" {
		created = ts
	}

	av := map[string]types.AttributeValue{
		AttrPartitionKey: &types.AttributeValueMemberS{Value: item.PartitionKey},
		AttrSortKey:      &types.AttributeValueMemberS{Value: item.SortKey},
		AttrType:         &types.AttributeValueMemberS{Value: item.Type},
		AttrData:         &types.AttributeValueMemberM{Value: item.Data},
		AttrCreated:      &types.AttributeValueMemberS{Value: created},
		AttrUpdated:      &types.AttributeValueMemberS{Value: ts},
	}

	if item.GSI1 != nil {
		av[AttrGSI1PartitionKey] = &types.AttributeValueMemberS{Value: item.GSI1.PartitionKey}
		av[AttrGSI1SortKey] = &types.AttributeValueMemberS{Value: item.GSI1.SortKey}
	}
	if item.GSI2 != nil {
		av[AttrGSI2PartitionKey] = &types.AttributeValueMemberS{Value: item.GSI2.PartitionKey}
		av[AttrGSI2SortKey] = &types.AttributeValueMemberS{Value: item.GSI2.SortKey}
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}
	if uniqueByKey {
		input.ConditionExpression = aws.String("attribute_not_exists(partitionKey)")
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return bkmark.AlreadyExistsError(fmt.Sprintf("item %s/%s already exists", item.PartitionKey, item.SortKey))
		}
		return fmt.Errorf("failed to put item %s/%s: %w", item.PartitionKey, item.SortKey, err)
	}

	return nil
}

func (s *DynamoDBStore) Get(ctx context.Context, partitionKey, sortKey string) (*Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       primaryKey(partitionKey, sortKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s/%s: %w", partitionKey, sortKey, err)
	}

	if result.Item == nil {
		return nil, bkmark.NotFoundError(fmt.Sprintf("item %s/%s not found", partitionKey, sortKey))
	}

	item := itemFromAttributes(result.Item)
	return &item, nil
}

func (s *DynamoDBStore) QueryIndex(ctx context.Context, index, partitionKey, sortKey string, limit int32, scanForward bool) ([]Item, error) {
	keyCond := expression.Key(indexPartitionAttr(index)).Equal(expression.Value(partitionKey)).
		And(expression.Key(indexSortAttr(index)).Equal(expression.Value(sortKey)))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition for index %s: %w", index, err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(scanForward),
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query index %s: %w", index, err)
	}

	items := make([]Item, 0, len(result.Items))
	for _, av := range result.Items {
		items = append(items, itemFromAttributes(av))
	}

	return items, nil
}

func (s *DynamoDBStore) Update(ctx context.Context, partitionKey, sortKey string, update Update) (*Item, error) {
	ts := s.timestamp()

	names := map[string]string{"#data": AttrData}
	values := map[string]types.AttributeValue{
		":updated": &types.AttributeValueMemberS{Value: ts},
	}
	sets := []string{"#data.updated = :updated", "updated = :updated"}

	for i, field := range sortedKeys(update.Set) {
		nk := fmt.Sprintf("#s%d", i)
		vk := fmt.Sprintf(":s%d", i)
		names[nk] = field
		values[vk] = update.Set[field]
		sets = append(sets, fmt.Sprintf("#data.%s = %s", nk, vk))
	}

	for i, field := range sortedKeys(update.ListAppend) {
		nk := fmt.Sprintf("#a%d", i)
		vk := fmt.Sprintf(":a%d", i)
		names[nk] = field
		values[vk] = update.ListAppend[field]
		values[":empty"] = &types.AttributeValueMemberL{Value: []types.AttributeValue{}}
		sets = append(sets, fmt.Sprintf("#data.%s = list_append(if_not_exists(#data.%s, :empty), %s)", nk, nk, vk))
	}

	if update.GSI1 != nil {
		values[":g1pk"] = &types.AttributeValueMemberS{Value: update.GSI1.PartitionKey}
		values[":g1sk"] = &types.AttributeValueMemberS{Value: update.GSI1.SortKey}
		sets = append(sets, "gsi1PartitionKey = :g1pk", "gsi1SortKey = :g1sk")
	}
	if update.GSI2 != nil {
		values[":g2pk"] = &types.AttributeValueMemberS{Value: update.GSI2.PartitionKey}
		values[":g2sk"] = &types.AttributeValueMemberS{Value: update.GSI2.SortKey}
		sets = append(sets, "gsi2PartitionKey = :g2pk", "gsi2SortKey = :g2sk")
	}

	updateExpr := "SET " + strings.Join(sets, ", ")

	var condition *string
	if update.Remove != nil {
		names["#r"] = update.Remove.Field
		element := fmt.Sprintf("#data.#r[%d]", update.Remove.Index)
		updateExpr += " REMOVE " + element
		if update.Remove.Expected != nil {
			values[":expected"] = update.Remove.Expected
			condition = aws.String(element + " = :expected")
		}
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       primaryKey(partitionKey, sortKey),
		UpdateExpression:          aws.String(updateExpr),
		ConditionExpression:       condition,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}

	result, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, bkmark.ConflictError(fmt.Sprintf("guarded update of %s/%s lost its race", partitionKey, sortKey))
		}
		return nil, fmt.Errorf("failed to update item %s/%s: %w", partitionKey, sortKey, err)
	}

	item := itemFromAttributes(result.Attributes)
	return &item, nil
}

func (s *DynamoDBStore) Delete(ctx context.Context, partitionKey, sortKey string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       primaryKey(partitionKey, sortKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete item %s/%s: %w", partitionKey, sortKey, err)
	}

	return nil
}

func primaryKey(partitionKey, sortKey string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPartitionKey: &types.AttributeValueMemberS{Value: partitionKey},
		AttrSortKey:      &types.AttributeValueMemberS{Value: sortKey},
	}
}

func itemFromAttributes(av map[string]types.AttributeValue) Item {
	item := Item{
		PartitionKey: stringAttr(av, AttrPartitionKey),
		SortKey:      stringAttr(av, AttrSortKey),
		Type:         stringAttr(av, AttrType),
		Created:      stringAttr(av, AttrCreated),
		Updated:      stringAttr(av, AttrUpdated),
	}

	if data, ok := av[AttrData].(*types.AttributeValueMemberM); ok {
		item.Data = data.Value
	}
	if pk := stringAttr(av, AttrGSI1PartitionKey); pk != "" {
		item.GSI1 = &IndexKey{PartitionKey: pk, SortKey: stringAttr(av, AttrGSI1SortKey)}
	}
	if pk := stringAttr(av, AttrGSI2PartitionKey); pk != "" {
		item.GSI2 = &IndexKey{PartitionKey: pk, SortKey: stringAttr(av, AttrGSI2SortKey)}
	}

	return item
}

func stringAttr(av map[string]types.AttributeValue, name string) string {
	if s, ok := av[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

// sortedKeys keeps expression placeholders deterministic.
func sortedKeys(m map[string]types.AttributeValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
