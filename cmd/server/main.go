// The server exposes the HTTP API: the authenticated integration
// endpoints used by the product's frontend and the signed endpoints
// Slack delivers workspace events and slash commands to.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/bkmark/slack-integration"
	"github.com/bkmark/slack-integration/bookmarks"
	"github.com/bkmark/slack-integration/database"
	"github.com/bkmark/slack-integration/eventlog"
	"github.com/bkmark/slack-integration/server"
	"github.com/bkmark/slack-integration/slack"
	"github.com/bkmark/slack-integration/store"
)

func main() {
	logger := bkmark.NewLogger(bkmark.DefaultEventSource)

	cfg, err := bkmark.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load AWS configuration")
	}

	db := database.New(store.NewDynamoDBStore(dynamodb.NewFromConfig(awsCfg), cfg.ProjectionTable), logger)
	events := eventlog.New(dynamodb.NewFromConfig(awsCfg), cfg.InternalEventsTable, logger)
	bookmarkClient := bookmarks.New(sts.NewFromConfig(awsCfg), cfg.BaseURL, cfg.ServiceRoleARN, cfg.Region, logger)
	handlers := slack.NewHandlers(db, events, bookmarkClient, cfg.AppDomain, logger)
	srv := server.New(db, events, handlers, cfg.JWTSecret, cfg.SlackSigningSecret, logger)

	go func() {
		if err := srv.Listen(":3000"); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	if err := srv.Shutdown(5 * time.Second); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	logger.Info().Msg("Server stopped")
}
