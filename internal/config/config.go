package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Server
	ApiPort string

	// AWS
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string

	// Queues consumed
	PlacementQueueURL           string
	ProgrammeMembershipQueueURL string
	CojReceivedQueueURL         string
	AccountConfirmedQueueURL    string
	FormUpdatedQueueURL         string
	ProfileMoveQueueURL         string

	// Broadcast topic
	ActionTopicArn string
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "actions")
	cfg.ApiPort = getEnv("API_PORT", "8080")

	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "eu-west-2")

	// Empty queue URLs disable the corresponding consumer, useful for
	// local runs against a partial environment.
	cfg.PlacementQueueURL = getEnv("PLACEMENT_SYNCED_QUEUE_URL", "")
	cfg.ProgrammeMembershipQueueURL = getEnv("PROGRAMME_MEMBERSHIP_SYNCED_QUEUE_URL", "")
	cfg.CojReceivedQueueURL = getEnv("COJ_RECEIVED_QUEUE_URL", "")
	cfg.AccountConfirmedQueueURL = getEnv("ACCOUNT_CONFIRMED_QUEUE_URL", "")
	cfg.FormUpdatedQueueURL = getEnv("FORM_UPDATED_QUEUE_URL", "")
	cfg.ProfileMoveQueueURL = getEnv("PROFILE_MOVE_QUEUE_URL", "")

	cfg.ActionTopicArn, err = getRequiredEnv("ACTION_BROADCAST_TOPIC_ARN")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
