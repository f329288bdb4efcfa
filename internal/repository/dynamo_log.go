package repository

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

	"line-relay/internal/domain"
)

const (
	attrUserID      = "userId"
	attrTimestamp   = "timestamp"
	attrUserMessage = "userMessage"
	attrAIMessage   = "aiMessage"
	attrTTL         = "ttl"

	defaultHistoryLimit = 5
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoLog.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoLog is the durable per-user exchange log. The table is keyed by
// userId (partition) and timestamp (numeric sort key).
type DynamoLog struct {
	api       dynamodbAPI
	tableName string
	limit     int
	retention time.Duration
	now       func() time.Time
}

type DynamoOption func(*DynamoLog)

// WithRetention stamps every record with a DynamoDB TTL attribute.
func WithRetention(d time.Duration) DynamoOption {
	return func(l *DynamoLog) {
		l.retention = d
	}
}

// NewDynamoLog creates a DynamoLog returning at most limit exchanges per lookup.
func NewDynamoLog(api dynamodbAPI, tableName string, limit int, opts ...DynamoOption) (*DynamoLog, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	l := &DynamoLog{api: api, tableName: tableName, limit: limit, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *DynamoLog) Policy() domain.HistoryPolicy {
	return domain.PolicyDurableLog
}

// History returns the most recent exchanges, newest first, exactly as the
// range query delivers them. Records past their TTL are left out: DynamoDB
// deletes them lazily, so they can still be read for a while after expiry.
func (l *DynamoLog) History(ctx context.Context, userID string) (domain.History, error) {
	now := l.now().Unix()
	in := &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		KeyConditionExpression: aws.String("#uid = :uid"),
		ExpressionAttributeNames: map[string]string{
			"#uid": attrUserID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(l.limit)),
	}
	if l.retention > 0 {
		in.FilterExpression = aws.String("attribute_not_exists(#ttl) OR #ttl > :now")
		in.ExpressionAttributeNames["#ttl"] = attrTTL
		in.ExpressionAttributeValues[":now"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now, 10)}
	}

	out, err := l.api.Query(ctx, in)
	if err != nil {
		return domain.History{}, fmt.Errorf("repository: History query: %w", err)
	}

	exchanges := make([]domain.Exchange, 0, len(out.Items))
	for _, item := range out.Items {
		if expired(item, now) {
			continue
		}
		ex, err := itemToExchange(item)
		if err != nil {
			return domain.History{}, fmt.Errorf("repository: History unmarshal: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	return domain.History{Policy: domain.PolicyDurableLog, Exchanges: exchanges}, nil
}

// expired reports whether the item carries a TTL at or before now. Items
// without one never expire.
func expired(item map[string]types.AttributeValue, now int64) bool {
	if _, ok := item[attrTTL]; !ok {
		return false
	}
	ttl, err := int64Attr(item, attrTTL)
	return err == nil && ttl <= now
}

// Persist appends one exchange. prior is unused: each exchange is its own record.
func (l *DynamoLog) Persist(ctx context.Context, userID string, _ domain.History, ex domain.Exchange) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("repository: Persist: userId is required")
	}
	ex.UserID = userID
	_, err := l.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.tableName),
		Item:      l.exchangeItem(ex),
	})
	if err != nil {
		return fmt.Errorf("repository: Persist: %w", err)
	}
	return nil
}

// Clear deletes every record for the user, page by page.
func (l *DynamoLog) Clear(ctx context.Context, userID string) error {
	var startKey map[string]types.AttributeValue
	for {
		out, err := l.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(l.tableName),
			KeyConditionExpression: aws.String("#uid = :uid"),
			ProjectionExpression:   aws.String("#uid, #ts"),
			ExpressionAttributeNames: map[string]string{
				"#uid": attrUserID,
				"#ts":  attrTimestamp,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return fmt.Errorf("repository: Clear query: %w", err)
		}
		for _, item := range out.Items {
			_, err := l.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(l.tableName),
				Key: map[string]types.AttributeValue{
					attrUserID:    item[attrUserID],
					attrTimestamp: item[attrTimestamp],
				},
			})
			if err != nil {
				return fmt.Errorf("repository: Clear delete: %w", err)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (l *DynamoLog) exchangeItem(ex domain.Exchange) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		attrUserID:      &types.AttributeValueMemberS{Value: ex.UserID},
		attrTimestamp:   &types.AttributeValueMemberN{Value: strconv.FormatInt(ex.Timestamp, 10)},
		attrUserMessage: &types.AttributeValueMemberS{Value: ex.UserMessage},
		attrAIMessage:   &types.AttributeValueMemberS{Value: ex.AIMessage},
	}
	if l.retention > 0 {
		expires := l.now().Add(l.retention).Unix()
		item[attrTTL] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)}
	}
	return item
}

// itemToExchange converts a DynamoDB attribute map to an Exchange. Missing
// message halves decode as empty so context assembly can skip them.
func itemToExchange(item map[string]types.AttributeValue) (domain.Exchange, error) {
	userID, err := strAttr(item, attrUserID)
	if err != nil {
		return domain.Exchange{}, err
	}
	ts, err := int64Attr(item, attrTimestamp)
	if err != nil {
		return domain.Exchange{}, err
	}
	userMessage, _ := strAttr(item, attrUserMessage) // allow empty
	aiMessage, _ := strAttr(item, attrAIMessage)     // allow empty

	return domain.Exchange{
		UserID:      userID,
		Timestamp:   ts,
		UserMessage: userMessage,
		AIMessage:   aiMessage,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
