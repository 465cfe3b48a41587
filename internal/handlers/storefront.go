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
	"korawallet/internal/plans"
	"korawallet/internal/shopify"
	"korawallet/internal/store"
	"korawallet/internal/support"
)

// StorefrontHandler serves the merchant-facing data endpoints: dashboard
// metrics, products, discounts, and support requests.
type StorefrontHandler struct {
	Cfg      *config.Config
	Shopify  *shopify.Client
	Shops    ShopStore
	Tokens   TokenCipher
	Notifier *support.Notifier
	Validate *validator.Validate
	Log      zerolog.Logger
}

func (h *StorefrontHandler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := req.RequestContext.HTTP.Method
	switch {
	case req.RawPath == "/dashboard/metrics" && method == "GET":
		return h.dashboard(ctx, req)
	case req.RawPath == "/products" && method == "GET":
		return h.products(ctx, req)
	case req.RawPath == "/discounts" && method == "GET":
		return h.listDiscounts(ctx, req)
	case req.RawPath == "/discounts" && method == "POST":
		return h.createDiscount(ctx, req)
	case req.RawPath == "/support" && method == "POST":
		return h.supportRequest(ctx, req)
	default:
		return errResp(404, "not found")
	}
}

// shopSession resolves the calling shop from the query string or the
// install cookie and gates on the required plan tier.
func (h *StorefrontHandler) shopSession(ctx context.Context, req events.APIGatewayV2HTTPRequest, required plans.Tier) (*store.ShopRecord, string, *events.APIGatewayV2HTTPResponse) {
	shop := strings.ToLower(strings.TrimSpace(req.QueryStringParameters["shop"]))
	if shop == "" {
		shop = shopFromCookies(req.Cookies)
	}
	if !shopify.IsValidShopDomain(shop) {
		r, _ := errResp(400, "invalid shop")
		return nil, "", &r
	}

	rec, err := h.Shops.GetByDomain(ctx, shop)
	if errors.Is(err, store.ErrShopNotFound) {
		r, _ := errResp(404, "shop not found")
		return nil, "", &r
	}
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("shop lookup failed")
		r, _ := errResp(500, "shop lookup failed")
		return nil, "", &r
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
		return nil, "", &r
	}

	token, err := h.Tokens.Decrypt(rec.AccessTokenEnc)
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("token decrypt failed")
		r, _ := errResp(500, "credential error")
		return nil, "", &r
	}
	return rec, token, nil
}

func (h *StorefrontHandler) dashboard(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	rec, token, deny := h.shopSession(ctx, req, plans.Basic)
	if deny != nil {
		return *deny, nil
	}

	metrics, err := h.Shopify.GetDashboardMetrics(ctx, rec.Domain, token)
	if err != nil {
		h.Log.Error().Err(err).Str("shop", rec.Domain).Msg("dashboard query failed")
		return errResp(502, "shopify request failed")
	}
	return jsonResp(200, metrics)
}

func (h *StorefrontHandler) products(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	rec, token, deny := h.shopSession(ctx, req, plans.Basic)
	if deny != nil {
		return *deny, nil
	}

	products, err := h.Shopify.GetProducts(ctx, rec.Domain, token, 50)
	if err != nil {
		h.Log.Error().Err(err).Str("shop", rec.Domain).Msg("products query failed")
		return errResp(502, "shopify request failed")
	}
	return jsonResp(200, map[string]any{"items": products})
}

func (h *StorefrontHandler) listDiscounts(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	rec, token, deny := h.shopSession(ctx, req, plans.Basic)
	if deny != nil {
		return *deny, nil
	}

	discounts, err := h.Shopify.GetDiscountCodes(ctx, rec.Domain, token, 50)
	if err != nil {
		h.Log.Error().Err(err).Str("shop", rec.Domain).Msg("discounts query failed")
		return errResp(502, "shopify request failed")
	}
	return jsonResp(200, map[string]any{"items": discounts})
}

type createDiscountRequest struct {
	Code  string  `json:"code" validate:"required,max=64"`
	Type  string  `json:"type" validate:"required,oneof=PERCENTAGE FIXED_AMOUNT"`
	Value float64 `json:"value" validate:"gt=0"`
}

func (h *StorefrontHandler) createDiscount(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	rec, token, deny := h.shopSession(ctx, req, plans.Basic)
	if deny != nil {
		return *deny, nil
	}

	body, err := rawBody(req)
	if err != nil {
		return errResp(400, "invalid request body")
	}
	var in createDiscountRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return errResp(400, "invalid request body")
	}
	if err := h.Validate.Struct(in); err != nil {
		return errResp(400, "missing or invalid fields: "+err.Error())
	}

	id, err := h.Shopify.CreateDiscountCode(ctx, rec.Domain, token, shopify.DiscountInput{
		Code:  in.Code,
		Type:  in.Type,
		Value: in.Value,
	})
	if err != nil {
		h.Log.Error().Err(err).Str("shop", rec.Domain).Str("code", in.Code).Msg("discount create failed")
		return errResp(502, err.Error())
	}

	h.Log.Info().Str("shop", rec.Domain).Str("code", in.Code).Msg("discount created")
	return jsonResp(200, map[string]any{"id": id, "code": in.Code})
}

func (h *StorefrontHandler) supportRequest(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	rec, _, deny := h.shopSession(ctx, req, plans.Basic)
	if deny != nil {
		return *deny, nil
	}

	body, err := rawBody(req)
	if err != nil {
		return errResp(400, "invalid request body")
	}
	var in support.SupportRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return errResp(400, "invalid request body")
	}
	in.Shop = rec.Domain
	if err := h.Validate.Struct(in); err != nil {
		return errResp(400, "missing or invalid fields: "+err.Error())
	}

	if err := h.Notifier.PublishSupportRequest(ctx, in); err != nil {
		h.Log.Error().Err(err).Str("shop", rec.Domain).Msg("support publish failed")
		return errResp(502, "failed to submit support request")
	}
	return jsonResp(200, map[string]any{"success": true})
}

func shopFromCookies(cookies []string) string {
	for _, c := range cookies {
		name, value, found := strings.Cut(c, "=")
		if found && strings.TrimSpace(name) == "shop" {
			return strings.ToLower(strings.TrimSpace(value))
		}
	}
	return ""
}
