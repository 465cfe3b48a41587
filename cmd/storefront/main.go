package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"korawallet/internal/config"
	"korawallet/internal/handlers"
	"korawallet/internal/security"
	"korawallet/internal/shopify"
	"korawallet/internal/store"
	"korawallet/internal/support"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	ddb := dynamodb.NewFromConfig(awsCfg)

	cipher, err := security.NewTokenCipher(cfg.TokenEncKeyB64)
	if err != nil {
		log.Fatalf("init token cipher: %v", err)
	}

	h := &handlers.StorefrontHandler{
		Cfg:      cfg,
		Shopify:  &shopify.Client{APIVersion: cfg.ShopifyAPIVersion},
		Shops:    store.NewShopStore(ddb, cfg.ShopsTable),
		Tokens:   cipher,
		Notifier: support.NewNotifier(sns.NewFromConfig(awsCfg), cfg.SupportTopicARN),
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		Log:      zerolog.New(os.Stdout).With().Timestamp().Str("service", "storefront").Logger(),
	}
	lambda.Start(h.Handle)
}
