package store

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
)

const dedupeTTL = 7 * 24 * time.Hour

// DedupeStore claims webhook ids so at-least-once delivery never processes
// the same event twice.
type DedupeStore struct {
	client DynamoAPI
	table  string
}

func NewDedupeStore(client DynamoAPI, table string) *DedupeStore {
	return &DedupeStore{client: client, table: table}
}

// Claim returns (true, nil) when the webhook id was already processed.
// An empty table name or webhook id disables dedupe rather than blocking
// delivery.
func (d *DedupeStore) Claim(ctx context.Context, webhookID, shop, topic string) (bool, error) {
	if strings.TrimSpace(d.table) == "" {
		return false, nil
	}
	webhookID = strings.TrimSpace(webhookID)
	if webhookID == "" {
		return false, nil
	}

	now := time.Now().UTC()
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: "WH#" + webhookID},
			"Shop":      &types.AttributeValueMemberS{Value: shop},
			"Topic":     &types.AttributeValueMemberS{Value: topic},
			"CreatedAt": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			"ExpiresAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(dedupeTTL).Unix(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return true, nil
		}
		return false, fmt.Errorf("dynamodb claim webhook %s: %w", webhookID, err)
	}
	return false, nil
}
