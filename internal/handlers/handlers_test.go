package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"sort"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"

	"korawallet/internal/config"
	"korawallet/internal/shopify"
	"korawallet/internal/store"
)

// In-memory fakes for the store interfaces.

type memShops struct {
	records map[string]*store.ShopRecord
	puts    int
}

func newMemShops() *memShops {
	return &memShops{records: map[string]*store.ShopRecord{}}
}

func (m *memShops) GetByDomain(_ context.Context, domain string) (*store.ShopRecord, error) {
	rec, ok := m.records[strings.ToLower(domain)]
	if !ok {
		return nil, store.ErrShopNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memShops) Put(_ context.Context, rec *store.ShopRecord) error {
	cp := *rec
	cp.Domain = strings.ToLower(cp.Domain)
	m.records[cp.Domain] = &cp
	m.puts++
	return nil
}

func (m *memShops) UpdatePlan(_ context.Context, domain, plan, chargeID, subscriptionGID string) error {
	rec, ok := m.records[strings.ToLower(domain)]
	if !ok {
		return store.ErrShopNotFound
	}
	rec.Plan = plan
	rec.ChargeID = chargeID
	rec.SubscriptionGID = subscriptionGID
	return nil
}

func (m *memShops) Delete(_ context.Context, domain string) error {
	delete(m.records, strings.ToLower(domain))
	return nil
}

type memStates struct {
	states  map[string]string
	counter int
}

func newMemStates() *memStates {
	return &memStates{states: map[string]string{}}
}

func (m *memStates) NewState(_ context.Context, shop string) (string, error) {
	m.counter++
	s := fmt.Sprintf("state-%d", m.counter)
	m.states[s] = shop
	return s, nil
}

func (m *memStates) Consume(_ context.Context, state string) (string, error) {
	shop, ok := m.states[state]
	if !ok {
		return "", store.ErrStateUnknown
	}
	delete(m.states, state)
	return shop, nil
}

type memDedupe struct {
	claimed map[string]bool
}

func newMemDedupe() *memDedupe {
	return &memDedupe{claimed: map[string]bool{}}
}

func (m *memDedupe) Claim(_ context.Context, webhookID, _, _ string) (bool, error) {
	if webhookID == "" {
		return false, nil
	}
	if m.claimed[webhookID] {
		return true, nil
	}
	m.claimed[webhookID] = true
	return false, nil
}

// plainCipher marks tokens instead of encrypting them, so tests can
// assert what was stored.
type plainCipher struct{}

func (plainCipher) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (plainCipher) Decrypt(ciphertext string) (string, error) {
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:               "test",
		ShopifyAPIKey:        "key",
		ShopifyAPISecret:     "secret",
		ShopifyWebhookSecret: "whsecret",
		ShopifyScopes:        "read_orders,read_products,write_discounts",
		ShopifyAPIVersion:    "2024-04",
		PublicHost:           "https://app.example.com",
		BillingTestMode:      true,
	}
}

func testShopifyClient(srv *httptest.Server) *shopify.Client {
	return &shopify.Client{
		HTTPClient: srv.Client(),
		APIVersion: "2024-04",
		AdminBase:  func(string) string { return srv.URL },
	}
}

func newValidate() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// signOAuthParams reproduces the digest Shopify appends to OAuth
// redirects: sorted key=value pairs joined by &, hex HMAC-SHA256.
func signOAuthParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func getReq(path string, query map[string]string) events.APIGatewayV2HTTPRequest {
	req := events.APIGatewayV2HTTPRequest{
		RawPath:               path,
		QueryStringParameters: query,
	}
	req.RequestContext.HTTP.Method = "GET"
	return req
}

func postReq(path, body string, query map[string]string) events.APIGatewayV2HTTPRequest {
	req := events.APIGatewayV2HTTPRequest{
		RawPath:               path,
		QueryStringParameters: query,
		Body:                  body,
	}
	req.RequestContext.HTTP.Method = "POST"
	return req
}
