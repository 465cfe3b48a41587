package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrStateUnknown covers missing, expired and already-consumed OAuth states.
var ErrStateUnknown = errors.New("unknown or expired oauth state")

const stateTTL = 10 * time.Minute

// StateStore holds one-time CSRF states for the install flow. Items carry a
// DynamoDB TTL; Consume additionally checks the expiry so a state outlives
// neither its window nor its first use.
type StateStore struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

func NewStateStore(client DynamoAPI, table string) *StateStore {
	return &StateStore{client: client, table: table, now: time.Now}
}

// NewState generates a random state token and persists it against the shop
// domain it was issued for.
func (s *StateStore) NewState(ctx context.Context, shop string) (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	exp := s.now().UTC().Add(stateTTL).Unix()
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"State":          &types.AttributeValueMemberS{Value: state},
			"Shop":           &types.AttributeValueMemberS{Value: shop},
			"ExpiresAtEpoch": &types.AttributeValueMemberN{Value: strconv.FormatInt(exp, 10)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("dynamodb put oauth state: %w", err)
	}
	return state, nil
}

// Consume validates a state and deletes it, returning the shop domain it was
// issued for. A second consume of the same state fails.
func (s *StateStore) Consume(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", ErrStateUnknown
	}

	key := map[string]types.AttributeValue{
		"State": &types.AttributeValueMemberS{Value: state},
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       key,
	})
	if err != nil {
		return "", fmt.Errorf("dynamodb get oauth state: %w", err)
	}
	if out.Item == nil {
		return "", ErrStateUnknown
	}

	if v, ok := out.Item["ExpiresAtEpoch"].(*types.AttributeValueMemberN); ok {
		exp, perr := strconv.ParseInt(v.Value, 10, 64)
		if perr != nil || s.now().UTC().Unix() > exp {
			return "", ErrStateUnknown
		}
	}

	shop := ""
	if v, ok := out.Item["Shop"].(*types.AttributeValueMemberS); ok {
		shop = v.Value
	}
	if shop == "" {
		return "", ErrStateUnknown
	}

	// One-time use.
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       key,
	}); err != nil {
		return "", fmt.Errorf("dynamodb delete oauth state: %w", err)
	}
	return shop, nil
}
