package shopify

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

const dashboardQuery = `
query getDashboardData($ordersQuery: String) {
  orders(first: 5, sortKey: PROCESSED_AT, reverse: true, query: $ordersQuery) {
    edges {
      node {
        id
        name
        fullyPaid
        totalPriceSet { shopMoney { amount currencyCode } }
        customer { firstName lastName email }
      }
    }
  }
  shop {
    currencyFormats { moneyFormat }
    analytics {
      totalSales(last: 30) { amount currencyCode }
      totalOrders(last: 30)
      averageOrderValue(last: 30) { amount currencyCode }
    }
  }
}`

type dashboardData struct {
	Orders struct {
		Edges []struct {
			Node struct {
				ID            string `json:"id"`
				Name          string `json:"name"`
				FullyPaid     bool   `json:"fullyPaid"`
				TotalPriceSet struct {
					ShopMoney Money `json:"shopMoney"`
				} `json:"totalPriceSet"`
				Customer struct {
					FirstName string `json:"firstName"`
					LastName  string `json:"lastName"`
					Email     string `json:"email"`
				} `json:"customer"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"orders"`
	Shop struct {
		Analytics struct {
			TotalSales        []Money `json:"totalSales"`
			TotalOrders       int     `json:"totalOrders"`
			AverageOrderValue Money   `json:"averageOrderValue"`
		} `json:"analytics"`
	} `json:"shop"`
}

type RecentSale struct {
	ID           string `json:"id"`
	OrderName    string `json:"orderName"`
	CustomerName string `json:"customerName"`
	Email        string `json:"email"`
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// DashboardMetrics is the 30-day store summary shown on the dashboard.
type DashboardMetrics struct {
	TotalSales        Money        `json:"totalSales"`
	TotalOrders       int          `json:"totalOrders"`
	AverageOrderValue Money        `json:"averageOrderValue"`
	RecentSales       []RecentSale `json:"recentSales"`
}

func (c *Client) GetDashboardMetrics(ctx context.Context, shopDomain, accessToken string) (*DashboardMetrics, error) {
	resp, status, err := PostGraphQL[dashboardData](ctx, c, shopDomain, accessToken, dashboardQuery, map[string]any{
		"ordersQuery": "financial_status:paid",
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard query: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("dashboard query: status %d", status)
	}
	if msg := resp.FirstErrorMessage(); msg != "" {
		return nil, fmt.Errorf("dashboard query: %s", msg)
	}

	a := resp.Data.Shop.Analytics
	out := &DashboardMetrics{
		TotalOrders:       a.TotalOrders,
		AverageOrderValue: a.AverageOrderValue,
	}
	if len(a.TotalSales) > 0 {
		out.TotalSales = a.TotalSales[0]
	}
	for _, e := range resp.Data.Orders.Edges {
		n := e.Node
		name := n.Customer.FirstName
		if n.Customer.LastName != "" {
			if name != "" {
				name += " "
			}
			name += n.Customer.LastName
		}
		email := n.Customer.Email
		if email == "" {
			email = "No email"
		}
		out.RecentSales = append(out.RecentSales, RecentSale{
			ID:           n.ID,
			OrderName:    n.Name,
			CustomerName: name,
			Email:        email,
			Amount:       n.TotalPriceSet.ShopMoney.Amount,
			CurrencyCode: n.TotalPriceSet.ShopMoney.CurrencyCode,
		})
	}
	return out, nil
}

const productsQuery = `
query getProducts($first: Int!) {
  products(first: $first) {
    edges {
      node {
        id
        title
        handle
        variants(first: 1) {
          edges { node { price } }
        }
        totalInventory
      }
    }
  }
}`

type productsData struct {
	Products struct {
		Edges []struct {
			Node struct {
				ID       string `json:"id"`
				Title    string `json:"title"`
				Handle   string `json:"handle"`
				Variants struct {
					Edges []struct {
						Node struct {
							Price string `json:"price"`
						} `json:"node"`
					} `json:"edges"`
				} `json:"variants"`
				TotalInventory int `json:"totalInventory"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"products"`
}

type Product struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Inventory int     `json:"inventory"`
}

func (c *Client) GetProducts(ctx context.Context, shopDomain, accessToken string, count int) ([]Product, error) {
	if count <= 0 {
		count = 20
	}
	resp, status, err := PostGraphQL[productsData](ctx, c, shopDomain, accessToken, productsQuery, map[string]any{"first": count})
	if err != nil {
		return nil, fmt.Errorf("products query: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("products query: status %d", status)
	}
	if msg := resp.FirstErrorMessage(); msg != "" {
		return nil, fmt.Errorf("products query: %s", msg)
	}

	products := make([]Product, 0, len(resp.Data.Products.Edges))
	for _, e := range resp.Data.Products.Edges {
		n := e.Node
		price := 0.0
		if len(n.Variants.Edges) > 0 {
			price, _ = strconv.ParseFloat(n.Variants.Edges[0].Node.Price, 64)
		}
		products = append(products, Product{
			ID:        n.ID,
			Name:      n.Title,
			Price:     price,
			Inventory: n.TotalInventory,
		})
	}
	return products, nil
}

const discountCodesQuery = `
query getDiscountCodes($first: Int) {
  codeDiscountNodes(first: $first) {
    edges {
      node {
        id
        codeDiscount {
          ... on DiscountCodeBasic {
            title
            status
            asyncUsageCount
          }
        }
      }
    }
  }
}`

type discountCodesData struct {
	CodeDiscountNodes struct {
		Edges []struct {
			Node struct {
				ID           string `json:"id"`
				CodeDiscount struct {
					Title           string `json:"title"`
					Status          string `json:"status"`
					AsyncUsageCount int    `json:"asyncUsageCount"`
				} `json:"codeDiscount"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"codeDiscountNodes"`
}

type Discount struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Status     string `json:"status"`
	UsageCount int    `json:"usageCount"`
}

func (c *Client) GetDiscountCodes(ctx context.Context, shopDomain, accessToken string, count int) ([]Discount, error) {
	if count <= 0 {
		count = 20
	}
	resp, status, err := PostGraphQL[discountCodesData](ctx, c, shopDomain, accessToken, discountCodesQuery, map[string]any{"first": count})
	if err != nil {
		return nil, fmt.Errorf("discounts query: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("discounts query: status %d", status)
	}
	if msg := resp.FirstErrorMessage(); msg != "" {
		return nil, fmt.Errorf("discounts query: %s", msg)
	}

	discounts := make([]Discount, 0, len(resp.Data.CodeDiscountNodes.Edges))
	for _, e := range resp.Data.CodeDiscountNodes.Edges {
		discounts = append(discounts, Discount{
			ID:         e.Node.ID,
			Code:       e.Node.CodeDiscount.Title,
			Status:     e.Node.CodeDiscount.Status,
			UsageCount: e.Node.CodeDiscount.AsyncUsageCount,
		})
	}
	return discounts, nil
}

const discountCreateMutation = `
mutation discountCodeBasicCreate($basicCodeDiscount: DiscountCodeBasicInput!) {
  discountCodeBasicCreate(basicCodeDiscount: $basicCodeDiscount) {
    codeDiscountNode {
      codeDiscount {
        ... on DiscountCodeBasic {
          title
        }
      }
    }
    userErrors {
      field
      message
    }
  }
}`

type discountCreateData struct {
	DiscountCodeBasicCreate struct {
		CodeDiscountNode struct {
			CodeDiscount struct {
				Title string `json:"title"`
			} `json:"codeDiscount"`
		} `json:"codeDiscountNode"`
		UserErrors []UserError `json:"userErrors"`
	} `json:"discountCodeBasicCreate"`
}

// DiscountInput describes a basic code discount: a percentage (0-100] or a
// fixed amount in the shop currency.
type DiscountInput struct {
	Code  string
	Type  string // PERCENTAGE or FIXED_AMOUNT
	Value float64
}

// CreateDiscountCode creates a storewide basic code discount applying once
// per customer.
func (c *Client) CreateDiscountCode(ctx context.Context, shopDomain, accessToken string, in DiscountInput) (string, error) {
	var customerGets map[string]any
	switch in.Type {
	case "PERCENTAGE":
		if in.Value <= 0 || in.Value > 100 {
			return "", fmt.Errorf("percentage value must be between 0 and 100")
		}
		customerGets = map[string]any{
			"value": map[string]any{"percentage": in.Value / 100},
			"items": map[string]any{"all": true},
		}
	case "FIXED_AMOUNT":
		customerGets = map[string]any{
			"value": map[string]any{
				"discountAmount": map[string]any{
					// The API requires the amount as a string.
					"amount":       strconv.FormatFloat(in.Value, 'f', 2, 64),
					"currencyCode": "USD",
				},
			},
			"items": map[string]any{"all": true},
		}
	default:
		return "", fmt.Errorf("unknown discount type %q", in.Type)
	}

	variables := map[string]any{
		"basicCodeDiscount": map[string]any{
			"title":                  in.Code,
			"code":                   in.Code,
			"startsAt":               time.Now().UTC().Format(time.RFC3339),
			"customerSelection":      map[string]any{"all": true},
			"customerGets":           customerGets,
			"appliesOncePerCustomer": true,
		},
	}

	resp, status, err := PostGraphQL[discountCreateData](ctx, c, shopDomain, accessToken, discountCreateMutation, variables)
	if err != nil {
		return "", fmt.Errorf("discount create: %w", err)
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("discount create: status %d", status)
	}
	if msg := resp.FirstErrorMessage(); msg != "" {
		return "", fmt.Errorf("discount create: %s", msg)
	}
	if errs := resp.Data.DiscountCodeBasicCreate.UserErrors; len(errs) > 0 {
		return "", fmt.Errorf("discount create: %s", errs[0].Message)
	}
	return resp.Data.DiscountCodeBasicCreate.CodeDiscountNode.CodeDiscount.Title, nil
}
