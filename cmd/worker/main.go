package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"line-relay/handler"
	"line-relay/internal/app"
	"line-relay/internal/config"
	"line-relay/internal/integrations/paramstore"
	"line-relay/internal/logger"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.New(false, false).Fatal("invalid configuration", zap.Error(err))
	}
	log := logger.New(cfg.Debug, false)
	defer func() { _ = log.Sync() }()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error("failed to load AWS config", zap.Error(err))
		os.Exit(1)
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		log.Error("failed to create SSM client", zap.Error(err))
		os.Exit(1)
	}

	rt, err := app.Build(ctx, cfg, awsCfg, ssmClient, log)
	if err != nil {
		log.Error("failed to build relay", zap.Error(err))
		os.Exit(1)
	}

	w, err := handler.NewWorker(rt.Relay, log)
	if err != nil {
		log.Error("failed to create worker", zap.Error(err))
		os.Exit(1)
	}

	lambda.Start(w.Handle)
}
