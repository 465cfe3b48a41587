package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// IsValidShopDomain accepts only *.myshopify.com hostnames.
func IsValidShopDomain(shop string) bool {
	if !strings.HasSuffix(shop, ".myshopify.com") {
		return false
	}
	if strings.ContainsAny(shop, "/ ") {
		return false
	}
	return len(shop) >= len("a.myshopify.com")
}

// AuthorizeURL builds the merchant-facing OAuth consent URL.
func (c *Client) AuthorizeURL(shop, clientID, scopes, redirectURI, state string) string {
	u, _ := url.Parse(c.base(shop) + "/admin/oauth/authorize")
	q := u.Query()
	q.Set("client_id", clientID)
	q.Set("scope", scopes)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String()
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

// ExchangeCodeForToken trades an authorization code for a shop access token,
// authenticated with the app's own client id/secret.
func (c *Client) ExchangeCodeForToken(ctx context.Context, shopDomain, clientID, clientSecret, code string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"client_id":     clientID,
		"client_secret": clientSecret,
		"code":          code,
	})

	endpoint := c.base(shopDomain) + "/admin/oauth/access_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("content-type", "application/json")

	res, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("token exchange failed: status %d", res.StatusCode)
	}

	var tok accessTokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("token exchange decode: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token exchange returned empty access_token")
	}
	return tok.AccessToken, nil
}

// ShopInfo is the subset of shop.json the install flow records.
type ShopInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FetchShopInfo loads shop metadata with a freshly issued token.
func (c *Client) FetchShopInfo(ctx context.Context, shopDomain, accessToken string) (*ShopInfo, error) {
	endpoint := fmt.Sprintf("%s/admin/api/%s/shop.json", c.base(shopDomain), c.apiVersion())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Shopify-Access-Token", accessToken)

	res, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch shop info: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch shop info: status %d", res.StatusCode)
	}

	var out struct {
		Shop ShopInfo `json:"shop"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("fetch shop info decode: %w", err)
	}
	return &out.Shop, nil
}
