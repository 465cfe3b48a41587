package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type webhookCreateReq struct {
	Webhook struct {
		Address string `json:"address"`
		Topic   string `json:"topic"`
		Format  string `json:"format"`
	} `json:"webhook"`
}

// RegisterWebhook subscribes a shop to one topic, delivered as JSON to the
// given HTTPS address.
func (c *Client) RegisterWebhook(ctx context.Context, shopDomain, accessToken, topic, address string) error {
	endpoint := fmt.Sprintf("%s/admin/api/%s/webhooks.json", c.base(shopDomain), c.apiVersion())

	var payload webhookCreateReq
	payload.Webhook.Address = address
	payload.Webhook.Topic = topic
	payload.Webhook.Format = "json"

	b, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", accessToken)

	res, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("register webhook %s failed: http %d: %s", topic, res.StatusCode, string(raw))
	}
	return nil
}

// SubscribeLifecycleTopics registers every webhook this app consumes.
// Failures are collected, not fatal: the platform re-attempts nothing here,
// and a missing subscription only degrades cleanup.
func (c *Client) SubscribeLifecycleTopics(ctx context.Context, shopDomain, accessToken, callbackBase string) (created []string, failed []string) {
	topics := map[string]string{
		"app/uninstalled": callbackBase + "/webhooks/app_uninstalled",
	}
	for topic, address := range topics {
		if err := c.RegisterWebhook(ctx, shopDomain, accessToken, topic, address); err != nil {
			failed = append(failed, topic)
			continue
		}
		created = append(created, topic)
	}
	return created, failed
}
