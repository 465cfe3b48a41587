package config

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKoanf(t *testing.T, values map[string]string) *koanf.Koanf {
	t.Helper()
	k := koanf.New(".")
	for key, v := range values {
		require.NoError(t, k.Set(key, v))
	}
	return k
}

func validValues() map[string]string {
	return map[string]string{
		"SHOPIFY_API_KEY":    "key",
		"SHOPIFY_API_SECRET": "secret",
		"PUBLIC_HOST":        "https://kora.example.com/",
		"SHOPS_TABLE":        "kora-shops",
	}
}

func TestBuildDefaults(t *testing.T) {
	cfg, err := build(newKoanf(t, validValues()))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "2024-04", cfg.ShopifyAPIVersion)
	assert.Equal(t, "https://kora.example.com", cfg.PublicHost, "trailing slash trimmed")
	assert.Equal(t, "primary", cfg.AthenaWorkgroup)
	assert.False(t, cfg.BillingTestMode)
	assert.False(t, cfg.Production())
}

func TestBuildRequiredValues(t *testing.T) {
	for _, missing := range []string{"SHOPIFY_API_KEY", "SHOPIFY_API_SECRET", "PUBLIC_HOST", "SHOPS_TABLE"} {
		values := validValues()
		delete(values, missing)
		_, err := build(newKoanf(t, values))
		assert.ErrorContains(t, err, missing)
	}
}

func TestBuildProductionFlag(t *testing.T) {
	values := validValues()
	values["APP_ENV"] = "production"
	values["BILLING_TEST_MODE"] = "true"
	cfg, err := build(newKoanf(t, values))
	require.NoError(t, err)
	assert.True(t, cfg.Production())
	assert.True(t, cfg.BillingTestMode)
}

type fakeSSM struct {
	pages []*ssm.GetParametersByPathOutput
	calls int
}

func (f *fakeSSM) GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	out := f.pages[f.calls]
	f.calls++
	return out, nil
}

func TestOverlaySSM(t *testing.T) {
	k := newKoanf(t, validValues())

	fake := &fakeSSM{pages: []*ssm.GetParametersByPathOutput{
		{
			Parameters: []ssmtypes.Parameter{
				{Name: aws.String("/kora/prod/SHOPIFY_API_SECRET"), Value: aws.String("from-ssm")},
			},
			NextToken: aws.String("more"),
		},
		{
			Parameters: []ssmtypes.Parameter{
				{Name: aws.String("/kora/prod/SHOPIFY_WEBHOOK_SECRET"), Value: aws.String("hook-from-ssm")},
			},
		},
	}}

	require.NoError(t, overlaySSM(context.Background(), k, fake, "/kora/prod"))
	assert.Equal(t, 2, fake.calls)

	cfg, err := build(k)
	require.NoError(t, err)
	assert.Equal(t, "from-ssm", cfg.ShopifyAPISecret, "ssm wins over env")
	assert.Equal(t, "hook-from-ssm", cfg.ShopifyWebhookSecret)
}
