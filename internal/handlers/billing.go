package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"korawallet/internal/config"
	"korawallet/internal/plans"
	"korawallet/internal/security"
	"korawallet/internal/shopify"
	"korawallet/internal/store"
)

// billingTokenTTL bounds how long a confirmation callback stays valid
// after the merchant was sent to the consent page.
const billingTokenTTL = time.Hour

type BillingHandler struct {
	Cfg      *config.Config
	Shopify  *shopify.Client
	Shops    ShopStore
	Tokens   TokenCipher
	Validate *validator.Validate
	Log      zerolog.Logger

	now func() time.Time
}

func (h *BillingHandler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	switch req.RawPath {
	case "/billing/subscribe":
		if req.RequestContext.HTTP.Method != "POST" {
			return errResp(405, "method not allowed")
		}
		return h.subscribe(ctx, req)
	case "/billing/callback":
		return h.callback(ctx, req)
	default:
		return errResp(404, "not found")
	}
}

type subscribeRequest struct {
	PlanTier   string `json:"planTier" validate:"required"`
	ShopDomain string `json:"shopDomain" validate:"required,hostname"`
	Interval   string `json:"interval"`
}

func (h *BillingHandler) subscribe(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	body, err := rawBody(req)
	if err != nil {
		return errResp(400, "invalid request body")
	}

	var in subscribeRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return errResp(400, "invalid request body")
	}
	if err := h.Validate.Struct(in); err != nil {
		return errResp(400, "missing or invalid fields: "+err.Error())
	}

	tier, err := plans.Parse(in.PlanTier)
	if err != nil {
		return errResp(400, err.Error())
	}
	interval, err := plans.ParseInterval(in.Interval)
	if err != nil {
		return errResp(400, err.Error())
	}

	shop := strings.ToLower(strings.TrimSpace(in.ShopDomain))
	rec, err := h.Shops.GetByDomain(ctx, shop)
	if errors.Is(err, store.ErrShopNotFound) {
		return errResp(404, "shop not found")
	}
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("shop lookup failed")
		return errResp(500, "shop lookup failed")
	}
	if rec.AccessTokenEnc == "" {
		return errResp(409, "shop has no access token; reinstall required")
	}

	accessToken, err := h.Tokens.Decrypt(rec.AccessTokenEnc)
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("token decrypt failed")
		return errResp(500, "credential error")
	}

	// The callback carries shop and plan back; the signed token binds them
	// so a forged or replayed callback cannot pick a different tier.
	corr := security.SignBillingToken(h.Cfg.ShopifyAPISecret, shop, tier.String(), string(interval), h.nowFn().Add(billingTokenTTL))
	returnURL := h.Cfg.PublicHost + "/billing/callback" +
		"?shop=" + queryEscape(shop) +
		"&plan=" + queryEscape(tier.String()) +
		"&interval=" + queryEscape(string(interval)) +
		"&token=" + queryEscape(corr)

	res, err := h.Shopify.CreateAppSubscription(ctx, shop, accessToken, shopify.SubscriptionRequest{
		Name:      plans.ChargeName(tier, interval),
		Price:     plans.Price(tier, interval),
		Currency:  "USD",
		Interval:  string(interval),
		TrialDays: 7,
		ReturnURL: returnURL,
		Test:      h.Cfg.BillingTestMode,
	})
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("subscription create failed")
		return errResp(502, "billing request failed")
	}
	if res.Failed() {
		h.Log.Warn().Str("shop", shop).Str("plan", tier.String()).Str("user_error", res.FirstUserError()).Msg("subscription rejected")
		return errResp(422, res.FirstUserError())
	}

	h.Log.Info().Str("shop", shop).Str("plan", tier.String()).Str("interval", string(interval)).Msg("subscription created")
	return jsonResp(200, map[string]any{
		"confirmationUrl": res.ConfirmationURL,
	})
}

func (h *BillingHandler) callback(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	params := req.QueryStringParameters

	chargeID := strings.TrimSpace(params["charge_id"])
	shop := strings.ToLower(strings.TrimSpace(params["shop"]))
	plan := strings.TrimSpace(params["plan"])
	interval := strings.TrimSpace(params["interval"])
	token := strings.TrimSpace(params["token"])

	if chargeID == "" || shop == "" || plan == "" {
		return h.toPricing(shop, "Invalid callback parameters")
	}

	tier, err := plans.Parse(plan)
	if err != nil {
		return h.toPricing(shop, "Invalid callback parameters")
	}

	if err := security.VerifyBillingToken(h.Cfg.ShopifyAPISecret, shop, tier.String(), interval, token, h.nowFn()); err != nil {
		h.Log.Warn().Err(err).Str("shop", shop).Str("charge_id", chargeID).Msg("billing token rejected")
		return h.toPricing(shop, "Invalid or expired billing confirmation")
	}

	rec, err := h.Shops.GetByDomain(ctx, shop)
	if err != nil {
		return h.toPricing(shop, "Shop not found")
	}
	accessToken, err := h.Tokens.Decrypt(rec.AccessTokenEnc)
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("token decrypt failed")
		return h.toPricing(shop, "Credential error")
	}

	// The plan is granted on the platform's word, not the callback's:
	// the subscription must report ACTIVE before any local mutation.
	gid := shopify.SubscriptionGID(chargeID)
	status, err := h.Shopify.GetSubscriptionStatus(ctx, shop, accessToken, gid)
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Str("charge_id", chargeID).Msg("subscription status query failed")
		return h.toPricing(shop, "Could not verify subscription")
	}
	if status != "ACTIVE" {
		h.Log.Warn().Str("shop", shop).Str("charge_id", chargeID).Str("status", status).Msg("subscription not active")
		return h.toPricing(shop, "Subscription not active: "+status)
	}

	if err := h.Shops.UpdatePlan(ctx, shop, tier.String(), chargeID, gid); err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Str("charge_id", chargeID).Msg("plan update failed")
		return h.toPricing(shop, "Failed to activate plan")
	}

	h.Log.Info().Str("shop", shop).Str("plan", tier.String()).Str("charge_id", chargeID).Msg("plan activated")
	return redirect(h.Cfg.PublicHost + "/dashboard?shop=" + queryEscape(shop) + "&billing_success=true")
}

func (h *BillingHandler) toPricing(shop, msg string) (events.APIGatewayV2HTTPResponse, error) {
	loc := h.Cfg.PublicHost + "/pricing?error=" + queryEscape(msg)
	if shop != "" {
		loc += "&shop=" + queryEscape(shop)
	}
	return redirect(loc)
}

func (h *BillingHandler) nowFn() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}
