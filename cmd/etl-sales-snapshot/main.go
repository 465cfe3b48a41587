package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"korawallet/internal/config"
	"korawallet/internal/etl"
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

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	cipher, err := security.NewTokenCipher(cfg.TokenEncKeyB64)
	if err != nil {
		log.Fatalf("init token cipher: %v", err)
	}

	snap := &etl.SalesSnapshot{
		Shops:  store.NewShopStore(dynamodb.NewFromConfig(awsCfg), cfg.ShopsTable),
		Orders: &shopify.Client{APIVersion: cfg.ShopifyAPIVersion},
		Tokens: cipher,
		S3:     s3.NewFromConfig(awsCfg),
		Glue:   glue.NewFromConfig(awsCfg),
		Athena: athena.NewFromConfig(awsCfg),
		Opts: etl.SnapshotOptions{
			Bucket:    cfg.AnalyticsBucket,
			Database:  cfg.GlueDatabase,
			Table:     cfg.SalesMetricsTable,
			Workgroup: cfg.AthenaWorkgroup,
			Output:    cfg.AthenaOutput,
		},
		Log: zerolog.New(os.Stdout).With().Timestamp().Str("service", "etl-sales-snapshot").Logger(),
	}

	lambda.Start(func(ctx context.Context, _ events.CloudWatchEvent) (*etl.SnapshotResult, error) {
		return snap.Run(ctx, time.Now().UTC())
	})
}
