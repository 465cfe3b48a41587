package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	bedrockruntime "github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"korawallet/internal/config"
	"korawallet/internal/handlers"
	"korawallet/internal/insights"
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
	ddb := dynamodb.NewFromConfig(awsCfg)

	engine, err := insights.NewEngine(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	if err != nil {
		log.Fatalf("init bedrock engine: %v", err)
	}

	h := &handlers.InsightsHandler{
		Cfg:    cfg,
		Shops:  store.NewShopStore(ddb, cfg.ShopsTable),
		Engine: engine,
		Cache:  insights.NewCache(ddb, cfg.InsightsCacheTable),
		Metrics: &insights.MetricsFetcher{
			Client: athena.NewFromConfig(awsCfg),
			Opts: insights.MetricsQueryOptions{
				Database:       cfg.GlueDatabase,
				Table:          cfg.SalesMetricsTable,
				Workgroup:      cfg.AthenaWorkgroup,
				OutputLocation: cfg.AthenaOutput,
			},
		},
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		Log:      zerolog.New(os.Stdout).With().Timestamp().Str("service", "insights").Logger(),
	}
	lambda.Start(h.Handle)
}
