// The worker consumes the domain event queue and fans projection-table
// changes out to the shared event bus.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"golang.org/x/sync/errgroup"

	"github.com/bkmark/slack-integration"
	"github.com/bkmark/slack-integration/bookmarks"
	"github.com/bkmark/slack-integration/database"
	"github.com/bkmark/slack-integration/dispatch"
	"github.com/bkmark/slack-integration/eventlog"
	"github.com/bkmark/slack-integration/fanout"
	"github.com/bkmark/slack-integration/queue"
	"github.com/bkmark/slack-integration/slack"
	"github.com/bkmark/slack-integration/store"
)

func main() {
	logger := bkmark.NewLogger(bkmark.DefaultEventSource)

	cfg, err := bkmark.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load AWS configuration")
	}

	db := database.New(store.NewDynamoDBStore(dynamodb.NewFromConfig(awsCfg), cfg.ProjectionTable), logger)
	events := eventlog.New(dynamodb.NewFromConfig(awsCfg), cfg.InternalEventsTable, logger)
	bookmarkClient := bookmarks.New(sts.NewFromConfig(awsCfg), cfg.BaseURL, cfg.ServiceRoleARN, cfg.Region, logger)
	handlers := slack.NewHandlers(db, events, bookmarkClient, cfg.AppDomain, logger)
	dispatcher := dispatch.New(db, handlers, logger)

	consumer := queue.New(sqs.NewFromConfig(awsCfg), cfg.QueueName, dispatcher.HandleMessage, logger)
	if err := consumer.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to resolve queue URL")
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return consumer.Run(ctx)
	})

	if cfg.StreamARN != "" {
		publisher := fanout.New(eventbridge.NewFromConfig(awsCfg), cfg.EventBusName, cfg.EventSource, logger)
		streamer := fanout.NewStreamer(dynamodbstreams.NewFromConfig(awsCfg), cfg.StreamARN, publisher, logger)
		group.Go(func() error {
			return streamer.Run(ctx)
		})
	}

	logger.Info().Msg("Worker started")
	if err := group.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("Worker stopped with error")
	}
	logger.Info().Msg("Worker stopped")
}
