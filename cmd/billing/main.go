package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"korawallet/internal/config"
	"korawallet/internal/db"
	"korawallet/internal/handlers"
	"korawallet/internal/security"
	"korawallet/internal/shopify"
	"korawallet/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ddb, err := db.NewDynamoClient(ctx)
	if err != nil {
		log.Fatalf("init dynamodb: %v", err)
	}

	cipher, err := security.NewTokenCipher(cfg.TokenEncKeyB64)
	if err != nil {
		log.Fatalf("init token cipher: %v", err)
	}

	h := &handlers.BillingHandler{
		Cfg:      cfg,
		Shopify:  &shopify.Client{APIVersion: cfg.ShopifyAPIVersion},
		Shops:    store.NewShopStore(ddb, cfg.ShopsTable),
		Tokens:   cipher,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		Log:      zerolog.New(os.Stdout).With().Timestamp().Str("service", "billing").Logger(),
	}
	lambda.Start(h.Handle)
}
