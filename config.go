package bkmark

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds the service's runtime configuration, read from the
// environment.
type Config struct {
	Region string

	// Storage
	ProjectionTable     string
	InternalEventsTable string

	// Event bus
	EventBusName string
	EventSource  string
	StreamARN    string

	// Queue
	QueueName string

	// Bookmarking / search service
	BaseURL        string
	ServiceRoleARN string

	// Frontend
	AppDomain string

	// Auth
	JWTSecret          string
	SlackSigningSecret string
}

// DefaultEventSource identifies this service on the event bus.
const DefaultEventSource = "bkmark-slack-integration-service"

// LoadConfig reads configuration from the environment. A .env file is
// loaded first when present, so local runs don't need exported variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Region:              os.Getenv("AWS_REGION"),
		ProjectionTable:     os.Getenv("PROJECTION_TABLE"),
		InternalEventsTable: os.Getenv("INTERNAL_EVENTS_TABLE"),
		EventBusName:        os.Getenv("EVENT_BUS_NAME"),
		EventSource:         os.Getenv("EVENT_SOURCE"),
		StreamARN:           os.Getenv("STREAM_ARN"),
		QueueName:           os.Getenv("QUEUE_NAME"),
		BaseURL:             os.Getenv("BASE_URL"),
		ServiceRoleARN:      os.Getenv("SERVICE_ROLE"),
		AppDomain:           os.Getenv("DOMAIN"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		SlackSigningSecret:  os.Getenv("SLACK_SIGNING_SECRET"),
	}

	if cfg.EventSource == "" {
		cfg.EventSource = DefaultEventSource
	}

	if cfg.ProjectionTable == "" {
		return nil, fmt.Errorf("PROJECTION_TABLE is not set")
	}
	if cfg.InternalEventsTable == "" {
		return nil, fmt.Errorf("INTERNAL_EVENTS_TABLE is not set")
	}

	return cfg, nil
}
