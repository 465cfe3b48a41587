package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds all process configuration, built once at cold start and passed
// into handlers. Business logic never reads the environment directly.
type Config struct {
	AppEnv string

	ShopifyAPIKey        string
	ShopifyAPISecret     string
	ShopifyWebhookSecret string
	ShopifyScopes        string
	ShopifyAPIVersion    string
	PublicHost           string

	ShopsTable         string
	OAuthStateTable    string
	WebhookDedupeTable string
	InsightsCacheTable string

	TokenEncKeyB64  string
	SupportTopicARN string

	BedrockModelID    string
	AnalyticsBucket   string
	GlueDatabase      string
	SalesMetricsTable string
	AthenaWorkgroup   string
	AthenaOutput      string

	BillingTestMode bool
}

// ssmAPI is the slice of the SSM client the loader uses.
type ssmAPI interface {
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// Load reads configuration from the environment (and .env for local runs),
// then overlays secrets from SSM Parameter Store when KORA_SSM_PREFIX is set.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if prefix := strings.TrimSpace(k.String("KORA_SSM_PREFIX")); prefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("aws config for ssm overlay: %w", err)
		}
		if err := overlaySSM(ctx, k, ssm.NewFromConfig(awsCfg), prefix); err != nil {
			return nil, err
		}
	}

	return build(k)
}

// overlaySSM reads every parameter under prefix and sets it on k, keyed by
// the last path segment (e.g. /kora/prod/SHOPIFY_API_SECRET -> SHOPIFY_API_SECRET).
// SSM values win over plain env so secrets never need to live in Lambda env vars.
func overlaySSM(ctx context.Context, k *koanf.Koanf, client ssmAPI, prefix string) error {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var nextToken *string
	for {
		out, err := client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:           &prefix,
			WithDecryption: boolPtr(true),
			NextToken:      nextToken,
		})
		if err != nil {
			return fmt.Errorf("ssm GetParametersByPath %s: %w", prefix, err)
		}
		for _, p := range out.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			name := *p.Name
			if i := strings.LastIndex(name, "/"); i >= 0 {
				name = name[i+1:]
			}
			if name == "" {
				continue
			}
			if err := k.Set(name, *p.Value); err != nil {
				return fmt.Errorf("ssm overlay set %s: %w", name, err)
			}
		}
		if out.NextToken == nil || *out.NextToken == "" {
			return nil
		}
		nextToken = out.NextToken
	}
}

func build(k *koanf.Koanf) (*Config, error) {
	cfg := &Config{
		AppEnv: valueOrDefault(k.String("APP_ENV"), "development"),

		ShopifyAPIKey:        strings.TrimSpace(k.String("SHOPIFY_API_KEY")),
		ShopifyAPISecret:     strings.TrimSpace(k.String("SHOPIFY_API_SECRET")),
		ShopifyWebhookSecret: strings.TrimSpace(k.String("SHOPIFY_WEBHOOK_SECRET")),
		ShopifyScopes:        valueOrDefault(k.String("SHOPIFY_SCOPES"), "read_orders,read_products,write_discounts"),
		ShopifyAPIVersion:    valueOrDefault(k.String("SHOPIFY_API_VERSION"), "2024-04"),
		PublicHost:           strings.TrimRight(strings.TrimSpace(k.String("PUBLIC_HOST")), "/"),

		ShopsTable:         strings.TrimSpace(k.String("SHOPS_TABLE")),
		OAuthStateTable:    strings.TrimSpace(k.String("OAUTH_STATE_TABLE")),
		WebhookDedupeTable: strings.TrimSpace(k.String("WEBHOOK_DEDUPE_TABLE")),
		InsightsCacheTable: strings.TrimSpace(k.String("INSIGHTS_CACHE_TABLE")),

		TokenEncKeyB64:  strings.TrimSpace(k.String("TOKEN_ENC_KEY_B64")),
		SupportTopicARN: strings.TrimSpace(k.String("SUPPORT_TOPIC_ARN")),

		BedrockModelID:    strings.TrimSpace(k.String("BEDROCK_MODEL_ID")),
		AnalyticsBucket:   strings.TrimSpace(k.String("ANALYTICS_BUCKET")),
		GlueDatabase:      strings.TrimSpace(k.String("GLUE_DATABASE")),
		SalesMetricsTable: valueOrDefault(k.String("SALES_METRICS_TABLE"), "sales_daily_metrics"),
		AthenaWorkgroup:   valueOrDefault(k.String("ATHENA_WORKGROUP"), "primary"),
		AthenaOutput:      strings.TrimSpace(k.String("ATHENA_OUTPUT")),

		BillingTestMode: parseBool(k.String("BILLING_TEST_MODE")),
	}

	if cfg.ShopifyAPIKey == "" {
		return nil, errors.New("SHOPIFY_API_KEY is required")
	}
	if cfg.ShopifyAPISecret == "" {
		return nil, errors.New("SHOPIFY_API_SECRET is required")
	}
	if cfg.PublicHost == "" {
		return nil, errors.New("PUBLIC_HOST is required")
	}
	if cfg.ShopsTable == "" {
		return nil, errors.New("SHOPS_TABLE is required")
	}

	return cfg, nil
}

// Production reports whether cookies must be marked Secure.
func (c *Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func boolPtr(b bool) *bool { return &b }
