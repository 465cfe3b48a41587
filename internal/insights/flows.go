package insights

import (
	"context"
	"fmt"
	"strings"
)

// Flow inputs mirror the request bodies the app surfaces accept; outputs
// are the exact JSON schemas the model is asked to produce.

type PredictSalesInput struct {
	ProductName         string  `json:"productName" validate:"required"`
	HistoricalSalesData string  `json:"historicalSalesData" validate:"required"`
	MarketTrends        string  `json:"marketTrends"`
	InventoryLevel      float64 `json:"inventoryLevel" validate:"gte=0"`
}

type PredictSalesOutput struct {
	PredictedSales  float64 `json:"predictedSales"`
	ConfidenceLevel float64 `json:"confidenceLevel"`
	Explanation     string  `json:"explanation"`
}

type PricingSuggestionInput struct {
	ProductName         string  `json:"productName" validate:"required"`
	HistoricalSalesData string  `json:"historicalSalesData" validate:"required"`
	CurrentPrice        float64 `json:"currentPrice" validate:"gt=0"`
	CostPrice           float64 `json:"costPrice" validate:"gte=0"`
	InventoryLevel      float64 `json:"inventoryLevel" validate:"gte=0"`
	MarketTrends        string  `json:"marketTrends"`
}

type PricingSuggestionOutput struct {
	SuggestedPrice    float64 `json:"suggestedPrice"`
	SuggestedDiscount float64 `json:"suggestedDiscount"`
	Reasoning         string  `json:"reasoning"`
	ExpectedImpact    string  `json:"expectedImpact"`
}

type AOVProduct struct {
	Name           string  `json:"name" validate:"required"`
	Price          float64 `json:"price" validate:"gte=0"`
	SalesLastMonth float64 `json:"salesLastMonth" validate:"gte=0"`
}

type OptimizeAOVInput struct {
	StoreName         string       `json:"storeName" validate:"required"`
	AverageOrderValue float64      `json:"averageOrderValue" validate:"gte=0"`
	Products          []AOVProduct `json:"products" validate:"min=1,dive"`
}

type OptimizeAOVOutput struct {
	Recommendations []string `json:"recommendations"`
	ExpectedImpact  string   `json:"expectedImpact"`
}

const jsonOnlyRule = "OUTPUT: valid JSON ONLY, matching the schema below. No prose, no markdown fencing."

func predictSalesPrompt(in PredictSalesInput, recentMetrics string) string {
	return fmt.Sprintf(`You are an AI sales prediction expert. Analyze the provided data to predict sales for the given product.

%s

Product Name: %s
Historical Sales Data: %s
Market Trends: %s
Current Inventory Level: %.0f
%s
Consider all factors to provide an accurate sales prediction, a confidence level (0-1), and a clear explanation of your reasoning.

Return JSON:
{
  "predictedSales": 0.0,
  "confidenceLevel": 0.0,
  "explanation": "..."
}
`, jsonOnlyRule, in.ProductName, in.HistoricalSalesData, in.MarketTrends, in.InventoryLevel, metricsSection(recentMetrics))
}

func pricingSuggestionPrompt(in PricingSuggestionInput, recentMetrics string) string {
	return fmt.Sprintf(`You are an AI assistant that helps store owners maximize their profits by suggesting optimal prices and discounts for their products.

%s

Consider the following information about the product:
Product Name: %s
Historical Sales Data: %s
Current Price: %.2f
Cost Price: %.2f
Inventory Level: %.0f
Market Trends: %s
%s
Based on this information, suggest a price and a discount percentage that will maximize profits.
In your reasoning, explain the factors you considered, such as sales history, market trends, and inventory levels.
Also, explain the expected impact of your suggestions on sales and profit margins.

Return JSON:
{
  "suggestedPrice": 0.0,
  "suggestedDiscount": 0.0,
  "reasoning": "...",
  "expectedImpact": "..."
}
`, jsonOnlyRule, in.ProductName, in.HistoricalSalesData, in.CurrentPrice, in.CostPrice, in.InventoryLevel, in.MarketTrends, metricsSection(recentMetrics))
}

func optimizeAOVPrompt(in OptimizeAOVInput, recentMetrics string) string {
	var products strings.Builder
	for _, p := range in.Products {
		fmt.Fprintf(&products, "- %s: price %.2f, sales last month %.0f\n", p.Name, p.Price, p.SalesLastMonth)
	}
	return fmt.Sprintf(`You are an e-commerce growth expert. Suggest concrete tactics to raise the store's average order value.

%s

Store Name: %s
Current Average Order Value: %.2f
Products:
%s%s
Suggest bundles, upsells, cross-sells, or threshold offers grounded in the product list above. Each recommendation must be a single actionable sentence.

Return JSON:
{
  "recommendations": ["..."],
  "expectedImpact": "..."
}
`, jsonOnlyRule, in.StoreName, in.AverageOrderValue, products.String(), metricsSection(recentMetrics))
}

func metricsSection(recentMetrics string) string {
	if strings.TrimSpace(recentMetrics) == "" {
		return ""
	}
	return "\nRecent daily store metrics:\n" + recentMetrics + "\n"
}

// PredictSales forecasts unit sales for one product. recentMetrics is an
// optional pre-formatted block of the shop's recent daily totals.
func (e *Engine) PredictSales(ctx context.Context, in PredictSalesInput, recentMetrics string) (*PredictSalesOutput, error) {
	var out PredictSalesOutput
	if err := e.runJSONFlow(ctx, predictSalesPrompt(in, recentMetrics), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SuggestPricing proposes a price point and discount percentage.
func (e *Engine) SuggestPricing(ctx context.Context, in PricingSuggestionInput, recentMetrics string) (*PricingSuggestionOutput, error) {
	var out PricingSuggestionOutput
	if err := e.runJSONFlow(ctx, pricingSuggestionPrompt(in, recentMetrics), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OptimizeAOV returns order-value recommendations for the whole store.
func (e *Engine) OptimizeAOV(ctx context.Context, in OptimizeAOVInput, recentMetrics string) (*OptimizeAOVOutput, error) {
	var out OptimizeAOVOutput
	if err := e.runJSONFlow(ctx, optimizeAOVPrompt(in, recentMetrics), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
