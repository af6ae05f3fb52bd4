// Package dynamo stores thread checkpoints in a DynamoDB table keyed by
// PK=THREAD#<id> and SK=V#<zero-padded version>.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/gosuda/skillmatrix/internal/domain"
)

const skPrefixVersion = "V#"

// dynamodbAPI is the subset of *dynamodb.Client the checkpointer uses.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ domain.Checkpointer = (*Checkpointer)(nil) //nolint:gochecknoglobals // compile-time check

type Checkpointer struct {
	api       dynamodbAPI
	tableName string
}

func New(api dynamodbAPI, tableName string) (*Checkpointer, error) {
	if api == nil {
		return nil, errors.New("dynamo.New: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamo.New: table name must not be empty")
	}
	return &Checkpointer{api: api, tableName: tableName}, nil
}

func threadPK(id uuid.UUID) string {
	return "THREAD#" + id.String()
}

func versionSK(v int) string {
	return fmt.Sprintf("%s%010d", skPrefixVersion, v)
}

func (c *Checkpointer) Get(ctx context.Context, threadID uuid.UUID) (*domain.Thread, error) {
	out, err := c.api.Query(ctx, c.query(threadID, false, aws.Int32(1), nil))
	if err != nil {
		return nil, fmt.Errorf("dynamo.Checkpointer.Get: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("dynamo.Checkpointer.Get: %w", domain.ErrNotFound)
	}

	cp, err := itemToCheckpoint(out.Items[0])
	if err != nil {
		return nil, fmt.Errorf("dynamo.Checkpointer.Get: %w", err)
	}
	t, err := domain.DecodeThread(cp.State, cp.Version)
	if err != nil {
		return nil, fmt.Errorf("dynamo.Checkpointer.Get: %w", err)
	}
	return t, nil
}

// Put writes version t.Version+1. The new item must not exist and, past the
// first version, the version it builds on must.
func (c *Checkpointer) Put(ctx context.Context, t *domain.Thread) error {
	state, err := domain.EncodeThread(t)
	if err != nil {
		return fmt.Errorf("dynamo.Checkpointer.Put: %w", err)
	}

	next := t.Version + 1
	item := checkpointItem(&domain.Checkpoint{
		ThreadID:  t.ID,
		Version:   next,
		State:     state,
		CreatedAt: time.Now().UTC(),
	})

	if t.Version == 0 {
		_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(c.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
		})
	} else {
		_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{
				{
					ConditionCheck: &types.ConditionCheck{
						TableName: aws.String(c.tableName),
						Key: map[string]types.AttributeValue{
							"PK": &types.AttributeValueMemberS{Value: threadPK(t.ID)},
							"SK": &types.AttributeValueMemberS{Value: versionSK(t.Version)},
						},
						ConditionExpression: aws.String("attribute_exists(PK)"),
					},
				},
				{
					Put: &types.Put{
						TableName:           aws.String(c.tableName),
						Item:                item,
						ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
					},
				},
			},
		})
	}
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("dynamo.Checkpointer.Put: version %d: %w", t.Version, domain.ErrConflict)
		}
		return fmt.Errorf("dynamo.Checkpointer.Put: %w", err)
	}

	t.Version = next
	return nil
}

func (c *Checkpointer) List(ctx context.Context, threadID uuid.UUID) ([]*domain.Checkpoint, error) {
	var (
		out   []*domain.Checkpoint
		start map[string]types.AttributeValue
	)
	for {
		page, err := c.api.Query(ctx, c.query(threadID, true, nil, start))
		if err != nil {
			return nil, fmt.Errorf("dynamo.Checkpointer.List: %w", err)
		}
		for _, item := range page.Items {
			cp, err := itemToCheckpoint(item)
			if err != nil {
				return nil, fmt.Errorf("dynamo.Checkpointer.List: %w", err)
			}
			out = append(out, cp)
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = page.LastEvaluatedKey
	}
}

func (c *Checkpointer) query(threadID uuid.UUID, forward bool, limit *int32, start map[string]types.AttributeValue) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: threadPK(threadID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixVersion},
		},
		ScanIndexForward:  aws.Bool(forward),
		ConsistentRead:    aws.Bool(true),
		Limit:             limit,
		ExclusiveStartKey: start,
	}
}

func isConditionFailure(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return true
	}
	var txErr *types.TransactionCanceledException
	return errors.As(err, &txErr)
}

func checkpointItem(cp *domain.Checkpoint) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: threadPK(cp.ThreadID)},
		"SK":        &types.AttributeValueMemberS{Value: versionSK(cp.Version)},
		"threadId":  &types.AttributeValueMemberS{Value: cp.ThreadID.String()},
		"version":   &types.AttributeValueMemberN{Value: strconv.Itoa(cp.Version)},
		"state":     &types.AttributeValueMemberB{Value: cp.State},
		"createdAt": &types.AttributeValueMemberS{Value: cp.CreatedAt.Format(time.RFC3339Nano)},
	}
}

func itemToCheckpoint(item map[string]types.AttributeValue) (*domain.Checkpoint, error) {
	rawID, err := strAttr(item, "threadId")
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse threadId: %w", err)
	}

	v, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return nil, errors.New(`attribute "version" is not a number`)
	}
	version, err := strconv.Atoi(v.Value)
	if err != nil {
		return nil, fmt.Errorf("parse version: %w", err)
	}

	state, ok := item["state"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, errors.New(`attribute "state" is not binary`)
	}

	rawCreated, err := strAttr(item, "createdAt")
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawCreated)
	if err != nil {
		return nil, fmt.Errorf("parse createdAt: %w", err)
	}

	return &domain.Checkpoint{ThreadID: id, Version: version, State: state.Value, CreatedAt: createdAt}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}
