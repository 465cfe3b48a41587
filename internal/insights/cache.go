package insights

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type CacheClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

const defaultCacheTTL = 10 * time.Minute

// Cache holds flow outputs in a DynamoDB table with a TTL attribute so
// repeated identical requests skip the model call. An empty table name
// disables caching.
type Cache struct {
	Client CacheClient
	Table  string
	TTL    time.Duration

	now func() time.Time
}

func NewCache(client CacheClient, table string) *Cache {
	return &Cache{Client: client, Table: table, TTL: defaultCacheTTL, now: time.Now}
}

// CacheKey derives the item key from the flow name, the shop, and a hash
// of the canonical JSON input, so any input change misses the cache.
func CacheKey(flow, shop string, input any) string {
	b, _ := json.Marshal(input)
	material := strings.Join([]string{
		"flow=" + flow,
		"shop=" + strings.ToLower(strings.TrimSpace(shop)),
		"in=" + string(b),
	}, "|")
	sum := sha256.Sum256([]byte(material))
	return "INSIGHT#" + hex.EncodeToString(sum[:])
}

func (c *Cache) enabled() bool {
	return c != nil && c.Client != nil && strings.TrimSpace(c.Table) != ""
}

// Get decodes a cached payload into out. A decode failure is treated as
// a miss so a schema change never wedges the cache.
func (c *Cache) Get(ctx context.Context, key string, out any) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	res, err := c.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.Table),
		Key: map[string]ddbtypes.AttributeValue{
			"CacheKey": &ddbtypes.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return false, fmt.Errorf("cache GetItem: %w", err)
	}
	if len(res.Item) == 0 {
		return false, nil
	}
	// TTL deletion lags; expired items are still misses.
	if exp, ok := res.Item["ExpiresAt"].(*ddbtypes.AttributeValueMemberN); ok {
		epoch, err := strconv.ParseInt(exp.Value, 10, 64)
		if err != nil || c.nowFn().Unix() >= epoch {
			return false, nil
		}
	}
	payload, ok := res.Item["Payload"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(payload.Value), out); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *Cache) Put(ctx context.Context, key string, value any) error {
	if !c.enabled() {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	now := c.nowFn().UTC()
	_, err = c.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.Table),
		Item: map[string]ddbtypes.AttributeValue{
			"CacheKey":  &ddbtypes.AttributeValueMemberS{Value: key},
			"Payload":   &ddbtypes.AttributeValueMemberS{Value: string(b)},
			"ExpiresAt": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(ttl).Unix())},
			"CreatedAt": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
		},
	})
	if err != nil {
		return fmt.Errorf("cache PutItem: %w", err)
	}
	return nil
}

func (c *Cache) nowFn() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
