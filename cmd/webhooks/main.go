package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"

	"korawallet/internal/config"
	"korawallet/internal/handlers"
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

	h := &handlers.WebhookHandler{
		Cfg:      cfg,
		Shops:    store.NewShopStore(ddb, cfg.ShopsTable),
		Dedupe:   store.NewDedupeStore(ddb, cfg.WebhookDedupeTable),
		Notifier: support.NewNotifier(sns.NewFromConfig(awsCfg), cfg.SupportTopicARN),
		Log:      zerolog.New(os.Stdout).With().Timestamp().Str("service", "webhooks").Logger(),
	}
	lambda.Start(h.Handle)
}
