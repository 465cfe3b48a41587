package shopify

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const ordersSinceQuery = `
query OrdersSince($first: Int!, $after: String, $q: String!) {
  orders(first: $first, after: $after, query: $q, sortKey: PROCESSED_AT) {
    edges {
      cursor
      node {
        id
        processedAt
        totalPriceSet { shopMoney { amount currencyCode } }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

type ordersSinceData struct {
	Orders struct {
		Edges []struct {
			Cursor string `json:"cursor"`
			Node   struct {
				ID            string `json:"id"`
				ProcessedAt   string `json:"processedAt"`
				TotalPriceSet struct {
					ShopMoney Money `json:"shopMoney"`
				} `json:"totalPriceSet"`
			} `json:"node"`
		} `json:"edges"`
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
	} `json:"orders"`
}

// DailyTotal aggregates one shop-day of order revenue.
type DailyTotal struct {
	Date     string // YYYY-MM-DD
	Revenue  float64
	Orders   int
	Currency string
}

// GetDailyTotals pages through orders processed on or after since and sums
// revenue per calendar day (UTC). Used by the snapshot ETL.
func (c *Client) GetDailyTotals(ctx context.Context, shopDomain, accessToken string, since time.Time) (map[string]DailyTotal, error) {
	totals := map[string]DailyTotal{}
	q := fmt.Sprintf("processed_at:>=%s", since.UTC().Format(time.RFC3339))

	var after *string
	for {
		resp, status, err := PostGraphQL[ordersSinceData](ctx, c, shopDomain, accessToken, ordersSinceQuery, map[string]any{
			"first": 100,
			"after": after,
			"q":     q,
		})
		if err != nil {
			return nil, fmt.Errorf("orders query: %w", err)
		}
		if status < 200 || status >= 300 {
			return nil, fmt.Errorf("orders query: status %d", status)
		}
		if msg := resp.FirstErrorMessage(); msg != "" {
			return nil, fmt.Errorf("orders query: %s", msg)
		}

		for _, e := range resp.Data.Orders.Edges {
			n := e.Node
			amt, perr := strconv.ParseFloat(n.TotalPriceSet.ShopMoney.Amount, 64)
			if perr != nil {
				continue
			}
			tm, perr := time.Parse(time.RFC3339, n.ProcessedAt)
			if perr != nil {
				continue
			}
			day := tm.UTC().Format("2006-01-02")

			t := totals[day]
			t.Date = day
			t.Revenue += amt
			t.Orders++
			if t.Currency == "" {
				t.Currency = n.TotalPriceSet.ShopMoney.CurrencyCode
			}
			totals[day] = t
		}

		pi := resp.Data.Orders.PageInfo
		if !pi.HasNextPage || pi.EndCursor == "" {
			break
		}
		cursor := pi.EndCursor
		after = &cursor
	}
	return totals, nil
}
