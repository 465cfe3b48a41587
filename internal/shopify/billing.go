package shopify

import (
	"context"
	"fmt"
	"strings"
)

// UserError is the platform's structured mutation failure.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// SubscriptionGID builds the global identifier the billing API uses for a
// numeric charge id from the confirm callback.
func SubscriptionGID(chargeID string) string {
	return "gid://shopify/AppSubscription/" + chargeID
}

const appSubscriptionCreateMutation = `
mutation AppSubscriptionCreate($name: String!, $lineItems: [AppSubscriptionLineItemInput!]!, $returnUrl: URL!, $test: Boolean, $trialDays: Int) {
  appSubscriptionCreate(name: $name, returnUrl: $returnUrl, lineItems: $lineItems, test: $test, trialDays: $trialDays) {
    userErrors {
      field
      message
    }
    appSubscription {
      id
    }
    confirmationUrl
  }
}`

type appSubscriptionCreateData struct {
	AppSubscriptionCreate struct {
		UserErrors      []UserError `json:"userErrors"`
		AppSubscription struct {
			ID string `json:"id"`
		} `json:"appSubscription"`
		ConfirmationURL string `json:"confirmationUrl"`
	} `json:"appSubscriptionCreate"`
}

// SubscriptionRequest describes one recurring charge to create.
type SubscriptionRequest struct {
	Name      string
	Price     float64
	Currency  string
	Interval  string // EVERY_30_DAYS or ANNUAL
	TrialDays int
	ReturnURL string
	Test      bool
}

// SubscriptionCreateResult is the tagged outcome of the create mutation:
// either a confirmation URL or a user-error list, never both.
type SubscriptionCreateResult struct {
	ConfirmationURL string
	SubscriptionGID string
	UserErrors      []UserError
}

// Failed reports whether the platform rejected the request with user errors.
func (r *SubscriptionCreateResult) Failed() bool { return len(r.UserErrors) > 0 }

// FirstUserError returns the message surfaced to the merchant.
func (r *SubscriptionCreateResult) FirstUserError() string {
	if len(r.UserErrors) == 0 {
		return ""
	}
	return r.UserErrors[0].Message
}

// CreateAppSubscription issues the recurring-charge mutation. The merchant
// approves the charge on the returned confirmation URL; the platform then
// redirects to ReturnURL.
func (c *Client) CreateAppSubscription(ctx context.Context, shopDomain, accessToken string, sub SubscriptionRequest) (*SubscriptionCreateResult, error) {
	currency := sub.Currency
	if currency == "" {
		currency = "USD"
	}

	variables := map[string]any{
		"name":      sub.Name,
		"returnUrl": sub.ReturnURL,
		"test":      sub.Test,
		"trialDays": sub.TrialDays,
		"lineItems": []map[string]any{
			{
				"plan": map[string]any{
					"appRecurringPricingDetails": map[string]any{
						"price":    map[string]any{"amount": sub.Price, "currencyCode": currency},
						"interval": sub.Interval,
					},
				},
			},
		},
	}

	resp, status, err := PostGraphQL[appSubscriptionCreateData](ctx, c, shopDomain, accessToken, appSubscriptionCreateMutation, variables)
	if err != nil {
		return nil, fmt.Errorf("appSubscriptionCreate: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("appSubscriptionCreate: status %d", status)
	}
	if msg := resp.FirstErrorMessage(); msg != "" {
		return nil, fmt.Errorf("appSubscriptionCreate: %s", msg)
	}

	create := resp.Data.AppSubscriptionCreate
	return &SubscriptionCreateResult{
		ConfirmationURL: create.ConfirmationURL,
		SubscriptionGID: create.AppSubscription.ID,
		UserErrors:      create.UserErrors,
	}, nil
}

const appSubscriptionStatusQuery = `
query appSubscription($id: ID!) {
  node(id: $id) {
    ... on AppSubscription {
      id
      status
      name
    }
  }
}`

type appSubscriptionStatusData struct {
	Node struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Name   string `json:"name"`
	} `json:"node"`
}

// GetSubscriptionStatus queries the platform for the current status of a
// subscription gid. An unknown node yields "UNKNOWN", never an upgrade.
func (c *Client) GetSubscriptionStatus(ctx context.Context, shopDomain, accessToken, subscriptionGID string) (string, error) {
	resp, status, err := PostGraphQL[appSubscriptionStatusData](ctx, c, shopDomain, accessToken, appSubscriptionStatusQuery, map[string]any{
		"id": subscriptionGID,
	})
	if err != nil {
		return "", fmt.Errorf("subscription status: %w", err)
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("subscription status: status %d", status)
	}
	if msg := resp.FirstErrorMessage(); msg != "" {
		return "", fmt.Errorf("subscription status: %s", msg)
	}

	s := strings.TrimSpace(resp.Data.Node.Status)
	if s == "" {
		return "UNKNOWN", nil
	}
	return s, nil
}
