package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"korawallet/internal/config"
	"korawallet/internal/security"
	"korawallet/internal/store"
	"korawallet/internal/support"
)

type WebhookHandler struct {
	Cfg      *config.Config
	Shops    ShopStore
	Dedupe   DedupeStore
	Notifier *support.Notifier
	Log      zerolog.Logger
}

// Handle processes lifecycle webhooks. Delivery is at-least-once, so
// every outcome after verification must be safe to repeat.
func (h *WebhookHandler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	headers := lowerHeaders(req.Headers)

	shop := strings.ToLower(strings.TrimSpace(headers["x-shopify-shop-domain"]))
	signature := strings.TrimSpace(headers["x-shopify-hmac-sha256"])
	topic := strings.TrimSpace(headers["x-shopify-topic"])
	webhookID := strings.TrimSpace(headers["x-shopify-webhook-id"])

	if shop == "" || signature == "" {
		return errResp(400, "missing webhook headers")
	}

	body, err := rawBody(req)
	if err != nil {
		return errResp(400, "invalid body encoding")
	}

	// Verification runs over the exact wire bytes, before the body is
	// parsed or trusted in any way.
	if err := security.VerifyWebhookSignature(h.Cfg.ShopifyWebhookSecret, body, signature); err != nil {
		h.Log.Warn().Err(err).Str("shop", shop).Str("topic", topic).Msg("webhook signature rejected")
		return errResp(401, "webhook signature verification failed")
	}

	duplicate, err := h.Dedupe.Claim(ctx, webhookID, shop, topic)
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Str("webhook_id", webhookID).Msg("dedupe claim failed")
		return errResp(500, "internal error")
	}
	if duplicate {
		h.Log.Info().Str("shop", shop).Str("webhook_id", webhookID).Msg("duplicate webhook skipped")
		return jsonResp(200, map[string]any{"success": true})
	}

	switch {
	case strings.HasSuffix(req.RawPath, "/app_uninstalled") || topic == "app/uninstalled":
		return h.uninstalled(ctx, shop)
	default:
		h.Log.Info().Str("shop", shop).Str("topic", topic).Msg("unhandled webhook topic acknowledged")
		return jsonResp(200, map[string]any{"success": true})
	}
}

func (h *WebhookHandler) uninstalled(ctx context.Context, shop string) (events.APIGatewayV2HTTPResponse, error) {
	rec, err := h.Shops.GetByDomain(ctx, shop)
	if errors.Is(err, store.ErrShopNotFound) {
		// Already cleaned up, or never installed. Retries must succeed.
		h.Log.Info().Str("shop", shop).Msg("uninstall webhook for unknown shop")
		return jsonResp(200, map[string]any{"success": true})
	}
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("shop lookup failed")
		return errResp(500, "internal error")
	}

	if err := h.Shops.Delete(ctx, shop); err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("shop teardown failed")
		return errResp(500, "internal error")
	}

	if err := h.Notifier.PublishUninstall(ctx, shop, rec.Plan); err != nil {
		h.Log.Warn().Err(err).Str("shop", shop).Msg("uninstall alert publish failed")
	}

	h.Log.Info().Str("shop", shop).Str("plan", rec.Plan).Msg("shop uninstalled and purged")
	return jsonResp(200, map[string]any{"success": true})
}

func lowerHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}
