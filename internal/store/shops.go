package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrShopNotFound is returned when no record exists for a domain.
var ErrShopNotFound = errors.New("shop not found")

// DynamoAPI is the slice of the DynamoDB client the stores use. Tests provide
// fakes; production passes *dynamodb.Client.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// ShopRecord is the one document kept per installed shop. Domain is the
// partition key, so at most one record can ever exist per domain and a
// whole-record put is an atomic upsert.
type ShopRecord struct {
	Domain          string `dynamodbav:"Domain"`
	AccessTokenEnc  string `dynamodbav:"AccessTokenEnc"`
	Plan            string `dynamodbav:"Plan"`
	ChargeID        string `dynamodbav:"ChargeId"`
	SubscriptionGID string `dynamodbav:"SubscriptionGid"`
	ShopifyStoreID  int64  `dynamodbav:"ShopifyStoreId,omitempty"`
	ShopName        string `dynamodbav:"ShopName,omitempty"`
	CreatedAt       string `dynamodbav:"CreatedAt,omitempty"`
	UpdatedAt       string `dynamodbav:"UpdatedAt,omitempty"`
}

// ShopStore persists ShopRecords in the shops table.
type ShopStore struct {
	client DynamoAPI
	table  string
}

func NewShopStore(client DynamoAPI, table string) *ShopStore {
	return &ShopStore{client: client, table: table}
}

func domainKey(domain string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"Domain": &types.AttributeValueMemberS{Value: domain},
	}
}

func (s *ShopStore) GetByDomain(ctx context.Context, domain string) (*ShopRecord, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, fmt.Errorf("empty shop domain")
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       domainKey(domain),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get shop %s: %w", domain, err)
	}
	if out.Item == nil {
		return nil, ErrShopNotFound
	}

	var rec ShopRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal shop %s: %w", domain, err)
	}
	return &rec, nil
}

// Put writes the whole record keyed on Domain. Racing installs for the same
// domain cannot create duplicates; the last write wins, which matches the
// re-install policy (token and plan are reset either way).
func (s *ShopStore) Put(ctx context.Context, rec *ShopRecord) error {
	rec.Domain = strings.ToLower(strings.TrimSpace(rec.Domain))
	if rec.Domain == "" {
		return fmt.Errorf("empty shop domain")
	}
	rec.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if rec.CreatedAt == "" {
		rec.CreatedAt = rec.UpdatedAt
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal shop %s: %w", rec.Domain, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb put shop %s: %w", rec.Domain, err)
	}
	return nil
}

// UpdatePlan sets the plan, charge id and subscription gid on an existing
// record. The condition keeps a billing confirm from resurrecting a shop that
// was uninstalled between callback and write.
func (s *ShopStore) UpdatePlan(ctx context.Context, domain, plan, chargeID, subscriptionGID string) error {
	domain = strings.ToLower(strings.TrimSpace(domain))

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 domainKey(domain),
		ConditionExpression: aws.String("attribute_exists(#d)"),
		UpdateExpression:    aws.String("SET #p = :p, ChargeId = :c, SubscriptionGid = :g, UpdatedAt = :u"),
		ExpressionAttributeNames: map[string]string{
			"#d": "Domain",
			"#p": "Plan",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: plan},
			":c": &types.AttributeValueMemberS{Value: chargeID},
			":g": &types.AttributeValueMemberS{Value: subscriptionGID},
			":u": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return ErrShopNotFound
		}
		return fmt.Errorf("dynamodb update plan %s: %w", domain, err)
	}
	return nil
}

func (s *ShopStore) Delete(ctx context.Context, domain string) error {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       domainKey(domain),
	}); err != nil {
		return fmt.Errorf("dynamodb delete shop %s: %w", domain, err)
	}
	return nil
}

// ListDomains scans the shops table and returns every installed domain.
// Used by the scheduled snapshot job; the table stays small (one item per
// installed shop).
func (s *ShopStore) ListDomains(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	domains := make([]string, 0, 64)

	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                aws.String(s.table),
			ExclusiveStartKey:        startKey,
			ProjectionExpression:     aws.String("#d"),
			ExpressionAttributeNames: map[string]string{"#d": "Domain"},
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan %s: %w", s.table, err)
		}

		for _, it := range out.Items {
			if v, ok := it["Domain"].(*types.AttributeValueMemberS); ok {
				d := strings.ToLower(strings.TrimSpace(v.Value))
				if d != "" && !seen[d] {
					seen[d] = true
					domains = append(domains, d)
				}
			}
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return domains, nil
}
