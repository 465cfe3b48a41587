package handlers

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"korawallet/internal/security"
	"korawallet/internal/store"
	"korawallet/internal/support"
)

func newWebhookHandler(shops *memShops, dedupe *memDedupe) *WebhookHandler {
	return &WebhookHandler{
		Cfg:      testConfig(),
		Shops:    shops,
		Dedupe:   dedupe,
		Notifier: support.NewNotifier(nil, ""),
		Log:      zerolog.Nop(),
	}
}

func webhookReq(body []byte, shop, webhookID string, sign bool) events.APIGatewayV2HTTPRequest {
	req := events.APIGatewayV2HTTPRequest{
		RawPath: "/webhooks/app_uninstalled",
		Headers: map[string]string{
			"X-Shopify-Topic": "app/uninstalled",
		},
		Body: string(body),
	}
	req.RequestContext.HTTP.Method = "POST"
	if shop != "" {
		req.Headers["X-Shopify-Shop-Domain"] = shop
	}
	if webhookID != "" {
		req.Headers["X-Shopify-Webhook-Id"] = webhookID
	}
	if sign {
		req.Headers["X-Shopify-Hmac-Sha256"] = security.WebhookDigest("whsecret", body)
	}
	return req
}

func TestUninstallDeletesShop(t *testing.T) {
	shops := newMemShops()
	shops.records["foo.myshopify.com"] = &store.ShopRecord{
		Domain: "foo.myshopify.com", AccessTokenEnc: "enc:tok123", Plan: "growth",
	}
	h := newWebhookHandler(shops, newMemDedupe())

	resp, err := h.Handle(context.Background(), webhookReq([]byte(`{"domain":"foo.myshopify.com"}`), "foo.myshopify.com", "wh-1", true))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"success":true}`, resp.Body)
	assert.Empty(t, shops.records)
}

func TestUninstallIdempotentForUnknownShop(t *testing.T) {
	shops := newMemShops()
	h := newWebhookHandler(shops, newMemDedupe())

	for i := 0; i < 2; i++ {
		resp, err := h.Handle(context.Background(), webhookReq([]byte(`{}`), "gone.myshopify.com", "", true))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.JSONEq(t, `{"success":true}`, resp.Body)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	shops := newMemShops()
	shops.records["foo.myshopify.com"] = &store.ShopRecord{Domain: "foo.myshopify.com"}
	h := newWebhookHandler(shops, newMemDedupe())

	req := webhookReq([]byte(`{}`), "foo.myshopify.com", "wh-1", true)
	req.Body = `{"tampered":true}`

	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
	assert.Len(t, shops.records, 1, "no mutation on rejected webhook")
}

func TestWebhookRejectsMissingHeaders(t *testing.T) {
	h := newWebhookHandler(newMemShops(), newMemDedupe())

	resp, err := h.Handle(context.Background(), webhookReq([]byte(`{}`), "", "", true))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = h.Handle(context.Background(), webhookReq([]byte(`{}`), "foo.myshopify.com", "", false))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestWebhookDuplicateDeliverySkipsTeardown(t *testing.T) {
	shops := newMemShops()
	shops.records["foo.myshopify.com"] = &store.ShopRecord{Domain: "foo.myshopify.com", Plan: "pro"}
	dedupe := newMemDedupe()
	h := newWebhookHandler(shops, dedupe)

	resp, err := h.Handle(context.Background(), webhookReq([]byte(`{}`), "foo.myshopify.com", "wh-1", true))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Empty(t, shops.records)

	// Re-delivery of the same webhook id after a reinstall must not purge
	// the fresh record.
	shops.records["foo.myshopify.com"] = &store.ShopRecord{Domain: "foo.myshopify.com", Plan: "basic"}
	resp, err = h.Handle(context.Background(), webhookReq([]byte(`{}`), "foo.myshopify.com", "wh-1", true))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Len(t, shops.records, 1)
}

func TestWebhookBase64Body(t *testing.T) {
	shops := newMemShops()
	shops.records["foo.myshopify.com"] = &store.ShopRecord{Domain: "foo.myshopify.com"}
	h := newWebhookHandler(shops, newMemDedupe())

	body := []byte(`{"domain":"foo.myshopify.com"}`)
	req := webhookReq(body, "foo.myshopify.com", "wh-9", true)
	req.Body = base64.StdEncoding.EncodeToString(body)
	req.IsBase64Encoded = true

	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, shops.records)
}
