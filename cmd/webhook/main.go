package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"line-relay/handler"
	"line-relay/internal/app"
	"line-relay/internal/config"
	"line-relay/internal/dispatch"
	"line-relay/internal/integrations/line"
	"line-relay/internal/integrations/paramstore"
	"line-relay/internal/logger"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		logger.New(false, false).Fatal("invalid configuration", zap.Error(err))
	}
	log := logger.New(cfg.Debug, false)
	defer func() { _ = log.Sync() }()

	// ---- AWS SDK config ----
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

	// ---- Handler ----
	var h *handler.Handler
	switch cfg.Dispatch.Mode {
	case config.DispatchSQS:
		// The webhook only verifies and enqueues; the worker owns the relay.
		secrets, err := app.LoadSecrets(ctx, ssmClient, cfg.ParamPrefix)
		if err != nil {
			log.Error("failed to load LINE secrets", zap.Error(err))
			os.Exit(1)
		}
		verifier, err := line.NewVerifier(secrets.ChannelSecret)
		if err != nil {
			log.Error("failed to create verifier", zap.Error(err))
			os.Exit(1)
		}
		queue, err := dispatch.NewSQSQueue(awssqs.NewFromConfig(awsCfg), cfg.Dispatch.QueueURL)
		if err != nil {
			log.Error("failed to create queue", zap.Error(err))
			os.Exit(1)
		}
		h, err = handler.NewHandler(verifier, nil, queue, log)
		if err != nil {
			log.Error("failed to create handler", zap.Error(err))
			os.Exit(1)
		}
	default:
		if cfg.Dispatch.Mode == config.DispatchLocal {
			log.Warn("local dispatch does not survive a Lambda freeze; running turns inline")
		}
		rt, err := app.Build(ctx, cfg, awsCfg, ssmClient, log)
		if err != nil {
			log.Error("failed to build relay", zap.Error(err))
			os.Exit(1)
		}
		h, err = handler.NewHandler(rt.Verifier, rt.Relay, nil, log)
		if err != nil {
			log.Error("failed to create handler", zap.Error(err))
			os.Exit(1)
		}
	}

	lambda.Start(h.Handle)
}
