package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client issues authenticated Admin API calls for one platform host scheme.
// The zero value talks to the live platform with http.DefaultClient; tests
// point AdminBase at an httptest server.
type Client struct {
	HTTPClient *http.Client
	APIVersion string

	// AdminBase returns the scheme+host for a shop's admin API.
	// Defaults to https://<shop>.
	AdminBase func(shop string) string
}

func (c *Client) base(shop string) string {
	if c.AdminBase != nil {
		return c.AdminBase(shop)
	}
	return "https://" + shop
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) apiVersion() string {
	if strings.TrimSpace(c.APIVersion) != "" {
		return c.APIVersion
	}
	return "2024-04"
}

type GraphQLError struct {
	Message    string `json:"message"`
	Path       []any  `json:"path,omitempty"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions,omitempty"`
}

type GraphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// FirstErrorMessage surfaces one human-readable message; callers log the
// full list.
func (r *GraphQLResponse[T]) FirstErrorMessage() string {
	if len(r.Errors) == 0 {
		return ""
	}
	e := r.Errors[0]
	if e.Extensions.Code != "" {
		return e.Message + " (" + e.Extensions.Code + ")"
	}
	return e.Message
}

// PostGraphQL runs one GraphQL document against a shop's admin endpoint.
func PostGraphQL[T any](ctx context.Context, c *Client, shopDomain, accessToken, query string, variables any) (*GraphQLResponse[T], int, error) {
	endpoint := fmt.Sprintf("%s/admin/api/%s/graphql.json", c.base(shopDomain), c.apiVersion())

	body, _ := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", accessToken)

	res, err := c.httpClient().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)

	var out GraphQLResponse[T]
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, res.StatusCode, fmt.Errorf("graphql response unmarshal: %w", err)
	}
	return &out, res.StatusCode, nil
}
