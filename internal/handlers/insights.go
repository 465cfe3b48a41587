package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"korawallet/internal/config"
	"korawallet/internal/insights"
	"korawallet/internal/plans"
	"korawallet/internal/shopify"
	"korawallet/internal/store"
)

// InsightsHandler fronts the AI flows. Prediction and pricing need the
// growth plan; AOV optimization needs pro.
type InsightsHandler struct {
	Cfg      *config.Config
	Shops    ShopStore
	Engine   *insights.Engine
	Cache    *insights.Cache
	Metrics  *insights.MetricsFetcher
	Validate *validator.Validate
	Log      zerolog.Logger
}

func (h *InsightsHandler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if req.RequestContext.HTTP.Method != "POST" {
		return errResp(405, "method not allowed")
	}
	switch req.RawPath {
	case "/insights/predict-sales":
		return h.predictSales(ctx, req)
	case "/insights/pricing-suggestions":
		return h.pricingSuggestions(ctx, req)
	case "/insights/aov-optimization":
		return h.optimizeAOV(ctx, req)
	default:
		return errResp(404, "not found")
	}
}

// gate resolves the calling shop and checks its plan tier.
func (h *InsightsHandler) gate(ctx context.Context, req events.APIGatewayV2HTTPRequest, required plans.Tier) (string, *events.APIGatewayV2HTTPResponse) {
	shop := strings.ToLower(strings.TrimSpace(req.QueryStringParameters["shop"]))
	if !shopify.IsValidShopDomain(shop) {
		r, _ := errResp(400, "invalid shop")
		return "", &r
	}

	rec, err := h.Shops.GetByDomain(ctx, shop)
	if errors.Is(err, store.ErrShopNotFound) {
		r, _ := errResp(404, "shop not found")
		return "", &r
	}
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("shop lookup failed")
		r, _ := errResp(500, "shop lookup failed")
		return "", &r
	}

	tier, err := plans.Parse(rec.Plan)
	if err != nil {
		tier = plans.Basic
	}
	if !tier.AtLeast(required) {
		r, _ := jsonResp(403, map[string]any{
			"error":        "plan upgrade required",
			"requiredPlan": required.String(),
			"currentPlan":  tier.String(),
		})
		return "", &r
	}
	return shop, nil
}

// recentMetrics is best effort prompt context; a lake outage never fails
// the flow.
func (h *InsightsHandler) recentMetrics(ctx context.Context, shop string) string {
	if h.Metrics == nil {
		return ""
	}
	out, err := h.Metrics.RecentMetrics(ctx, shop)
	if err != nil {
		h.Log.Warn().Err(err).Str("shop", shop).Msg("recent metrics lookup failed")
		return ""
	}
	return out
}

func decodeInput(req events.APIGatewayV2HTTPRequest, v *validator.Validate, in any) error {
	body, err := rawBody(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, in); err != nil {
		return err
	}
	return v.Struct(in)
}

func (h *InsightsHandler) predictSales(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	shop, deny := h.gate(ctx, req, plans.Growth)
	if deny != nil {
		return *deny, nil
	}

	var in insights.PredictSalesInput
	if err := decodeInput(req, h.Validate, &in); err != nil {
		return errResp(400, "missing or invalid fields")
	}

	key := insights.CacheKey("predict-sales", shop, in)
	var cached insights.PredictSalesOutput
	if hit, err := h.Cache.Get(ctx, key, &cached); err == nil && hit {
		return jsonResp(200, cached)
	}

	out, err := h.Engine.PredictSales(ctx, in, h.recentMetrics(ctx, shop))
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("sales prediction failed")
		return errResp(502, "prediction failed")
	}
	if err := h.Cache.Put(ctx, key, out); err != nil {
		h.Log.Warn().Err(err).Str("shop", shop).Msg("cache write failed")
	}
	return jsonResp(200, out)
}

func (h *InsightsHandler) pricingSuggestions(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	shop, deny := h.gate(ctx, req, plans.Growth)
	if deny != nil {
		return *deny, nil
	}

	var in insights.PricingSuggestionInput
	if err := decodeInput(req, h.Validate, &in); err != nil {
		return errResp(400, "missing or invalid fields")
	}

	key := insights.CacheKey("pricing-suggestions", shop, in)
	var cached insights.PricingSuggestionOutput
	if hit, err := h.Cache.Get(ctx, key, &cached); err == nil && hit {
		return jsonResp(200, cached)
	}

	out, err := h.Engine.SuggestPricing(ctx, in, h.recentMetrics(ctx, shop))
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("pricing suggestion failed")
		return errResp(502, "suggestion failed")
	}
	if err := h.Cache.Put(ctx, key, out); err != nil {
		h.Log.Warn().Err(err).Str("shop", shop).Msg("cache write failed")
	}
	return jsonResp(200, out)
}

func (h *InsightsHandler) optimizeAOV(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	shop, deny := h.gate(ctx, req, plans.Pro)
	if deny != nil {
		return *deny, nil
	}

	var in insights.OptimizeAOVInput
	if err := decodeInput(req, h.Validate, &in); err != nil {
		return errResp(400, "missing or invalid fields")
	}

	key := insights.CacheKey("aov-optimization", shop, in)
	var cached insights.OptimizeAOVOutput
	if hit, err := h.Cache.Get(ctx, key, &cached); err == nil && hit {
		return jsonResp(200, cached)
	}

	out, err := h.Engine.OptimizeAOV(ctx, in, h.recentMetrics(ctx, shop))
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("aov optimization failed")
		return errResp(502, "optimization failed")
	}
	if err := h.Cache.Put(ctx, key, out); err != nil {
		h.Log.Warn().Err(err).Str("shop", shop).Msg("cache write failed")
	}
	return jsonResp(200, out)
}
