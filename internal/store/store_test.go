package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo is a single-table in-memory stand-in keyed by one attribute.
type fakeDynamo struct {
	keyAttr string
	items   map[string]map[string]types.AttributeValue

	puts    int
	deletes int
}

func newFakeDynamo(keyAttr string) *fakeDynamo {
	return &fakeDynamo{keyAttr: keyAttr, items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeDynamo) keyOf(av map[string]types.AttributeValue) string {
	if v, ok := av[f.keyAttr].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	item, ok := f.items[f.keyOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts++
	key := f.keyOf(in.Item)
	if in.ConditionExpression != nil && strings.Contains(*in.ConditionExpression, "attribute_not_exists") {
		if _, exists := f.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	key := f.keyOf(in.Key)
	item, exists := f.items[key]
	if !exists {
		if in.ConditionExpression != nil && strings.Contains(*in.ConditionExpression, "attribute_exists") {
			return nil, &types.ConditionalCheckFailedException{}
		}
		item = map[string]types.AttributeValue{f.keyAttr: in.Key[f.keyAttr]}
		f.items[key] = item
	}
	// Supports the plan-update expression used by ShopStore.
	set := map[string]string{":p": "Plan", ":c": "ChargeId", ":g": "SubscriptionGid", ":u": "UpdatedAt"}
	for placeholder, attr := range set {
		if v, ok := in.ExpressionAttributeValues[placeholder]; ok {
			item[attr] = v
		}
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletes++
	delete(f.items, f.keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	out := &dynamodb.ScanOutput{}
	for _, item := range f.items {
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func TestShopStorePutIsIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDynamo("Domain")
	shops := NewShopStore(ddb, "shops")

	require.NoError(t, shops.Put(ctx, &ShopRecord{Domain: "Foo.MyShopify.com", AccessTokenEnc: "enc1", Plan: "basic"}))
	require.NoError(t, shops.Put(ctx, &ShopRecord{Domain: "foo.myshopify.com", AccessTokenEnc: "enc2", Plan: "basic", ShopifyStoreID: 42}))

	assert.Len(t, ddb.items, 1, "one record per domain")

	rec, err := shops.GetByDomain(ctx, "foo.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, "enc2", rec.AccessTokenEnc)
	assert.Equal(t, "basic", rec.Plan)
	assert.Empty(t, rec.ChargeID)
	assert.Equal(t, int64(42), rec.ShopifyStoreID)
}

func TestShopStoreGetMissing(t *testing.T) {
	shops := NewShopStore(newFakeDynamo("Domain"), "shops")
	_, err := shops.GetByDomain(context.Background(), "gone.myshopify.com")
	assert.ErrorIs(t, err, ErrShopNotFound)
}

func TestShopStoreUpdatePlan(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDynamo("Domain")
	shops := NewShopStore(ddb, "shops")

	require.NoError(t, shops.Put(ctx, &ShopRecord{Domain: "foo.myshopify.com", AccessTokenEnc: "enc", Plan: "basic"}))
	require.NoError(t, shops.UpdatePlan(ctx, "foo.myshopify.com", "growth", "555", "gid://shopify/AppSubscription/555"))

	rec, err := shops.GetByDomain(ctx, "foo.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, "growth", rec.Plan)
	assert.Equal(t, "555", rec.ChargeID)
	assert.Equal(t, "gid://shopify/AppSubscription/555", rec.SubscriptionGID)
}

func TestShopStoreUpdatePlanMissingShop(t *testing.T) {
	shops := NewShopStore(newFakeDynamo("Domain"), "shops")
	err := shops.UpdatePlan(context.Background(), "gone.myshopify.com", "pro", "1", "gid://shopify/AppSubscription/1")
	assert.ErrorIs(t, err, ErrShopNotFound)
}

func TestShopStoreListDomains(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDynamo("Domain")
	shops := NewShopStore(ddb, "shops")

	require.NoError(t, shops.Put(ctx, &ShopRecord{Domain: "a.myshopify.com"}))
	require.NoError(t, shops.Put(ctx, &ShopRecord{Domain: "b.myshopify.com"}))

	domains, err := shops.ListDomains(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.myshopify.com", "b.myshopify.com"}, domains)
}

func TestStateStoreConsumeOnce(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDynamo("State")
	states := NewStateStore(ddb, "oauth-state")

	state, err := states.NewState(ctx, "foo.myshopify.com")
	require.NoError(t, err)
	require.NotEmpty(t, state)

	shop, err := states.Consume(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "foo.myshopify.com", shop)

	_, err = states.Consume(ctx, state)
	assert.ErrorIs(t, err, ErrStateUnknown)
}

func TestStateStoreExpiry(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDynamo("State")
	states := NewStateStore(ddb, "oauth-state")

	state, err := states.NewState(ctx, "foo.myshopify.com")
	require.NoError(t, err)

	states.now = func() time.Time { return time.Now().Add(stateTTL + time.Minute) }
	_, err = states.Consume(ctx, state)
	assert.ErrorIs(t, err, ErrStateUnknown)
}

func TestDedupeClaim(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDynamo("PK")
	dedupe := NewDedupeStore(ddb, "dedupe")

	dup, err := dedupe.Claim(ctx, "wh-1", "foo.myshopify.com", "app/uninstalled")
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = dedupe.Claim(ctx, "wh-1", "foo.myshopify.com", "app/uninstalled")
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestDedupeDisabledWithoutTableOrID(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDynamo("PK")

	dup, err := NewDedupeStore(ddb, "").Claim(ctx, "wh-1", "s", "t")
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = NewDedupeStore(ddb, "dedupe").Claim(ctx, "", "s", "t")
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Zero(t, ddb.puts)
}
