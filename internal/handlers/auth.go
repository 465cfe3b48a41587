package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"korawallet/internal/config"
	"korawallet/internal/security"
	"korawallet/internal/shopify"
	"korawallet/internal/store"
)

// AuthHandler runs the OAuth install flow: install begin issues the
// authorize redirect, the callback exchanges the code and upserts the
// shop record.
type AuthHandler struct {
	Cfg     *config.Config
	Shopify *shopify.Client
	Shops   ShopStore
	States  StateStore
	Tokens  TokenCipher
	Log     zerolog.Logger
}

func (h *AuthHandler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	switch req.RawPath {
	case "/auth/install":
		return h.install(ctx, req)
	case "/auth/callback":
		return h.callback(ctx, req)
	default:
		return errResp(404, "not found")
	}
}

func (h *AuthHandler) install(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	shop := strings.ToLower(strings.TrimSpace(req.QueryStringParameters["shop"]))
	if !shopify.IsValidShopDomain(shop) {
		return errResp(400, "invalid shop (expected like your-store.myshopify.com)")
	}

	state, err := h.States.NewState(ctx, shop)
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("failed to store oauth state")
		return errResp(500, "failed to start install")
	}

	redirectURI := h.Cfg.PublicHost + "/auth/callback"
	return redirect(h.Shopify.AuthorizeURL(shop, h.Cfg.ShopifyAPIKey, h.Cfg.ShopifyScopes, redirectURI, state))
}

func (h *AuthHandler) callback(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	params := req.QueryStringParameters

	shop := strings.ToLower(strings.TrimSpace(params["shop"]))
	code := strings.TrimSpace(params["code"])
	state := strings.TrimSpace(params["state"])
	hmacParam := strings.TrimSpace(params["hmac"])

	if !shopify.IsValidShopDomain(shop) || code == "" {
		return errResp(400, "missing required oauth params")
	}
	if !security.VerifyOAuthParams(params, h.Cfg.ShopifyAPISecret, hmacParam) {
		return errResp(400, "invalid hmac")
	}

	shopFromState, err := h.States.Consume(ctx, state)
	if err != nil || shopFromState != shop {
		return errResp(400, "invalid or expired state")
	}

	token, err := h.Shopify.ExchangeCodeForToken(ctx, shop, h.Cfg.ShopifyAPIKey, h.Cfg.ShopifyAPISecret, code)
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("token exchange failed")
		return errResp(502, "token exchange failed")
	}

	encTok, err := h.Tokens.Encrypt(token)
	if err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("failed to encrypt token")
		return errResp(500, "failed to store credentials")
	}

	rec := &store.ShopRecord{
		Domain:         shop,
		AccessTokenEnc: encTok,
		Plan:           "basic",
	}

	// Shop metadata is cosmetic; the install must not fail on it.
	if info, err := h.Shopify.FetchShopInfo(ctx, shop, token); err == nil {
		rec.ShopifyStoreID = info.ID
		rec.ShopName = info.Name
	} else {
		h.Log.Warn().Err(err).Str("shop", shop).Msg("shop metadata fetch failed")
	}

	// Re-install overwrites the whole record: token rotated, plan back to
	// basic, charge cleared, so the merchant re-selects a plan.
	if err := h.Shops.Put(ctx, rec); err != nil {
		h.Log.Error().Err(err).Str("shop", shop).Msg("failed to upsert shop record")
		return errResp(500, "failed to store shop")
	}

	created, failed := h.Shopify.SubscribeLifecycleTopics(ctx, shop, token, h.Cfg.PublicHost)
	if len(failed) > 0 {
		h.Log.Warn().Str("shop", shop).Strs("failed", failed).Msg("webhook registration incomplete")
	}
	h.Log.Info().Str("shop", shop).Strs("webhooks", created).Msg("shop installed")

	cookie := fmt.Sprintf("shop=%s; Path=/; HttpOnly; SameSite=Lax", shop)
	if h.Cfg.Production() {
		cookie += "; Secure"
	}
	return redirectWithCookie(h.Cfg.PublicHost+"/pricing?shop="+queryEscape(shop), cookie)
}
