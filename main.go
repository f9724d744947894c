package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/Health-Education-England/tis-trainee-actions/internal/api"
	"github.com/Health-Education-England/tis-trainee-actions/internal/config"
	"github.com/Health-Education-England/tis-trainee-actions/internal/db"
	"github.com/Health-Education-England/tis-trainee-actions/internal/events"
	"github.com/Health-Education-England/tis-trainee-actions/internal/repository"
	"github.com/Health-Education-England/tis-trainee-actions/internal/services"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'events' (queue consumers), 'all' (default)")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureActionIndexes(indexCtx, mongoDb); err != nil {
		cancelIndex()
		log.Fatalf("Failed to create indexes: %v", err)
	}
	cancelIndex()

	// Initialize AWS clients for the event source and broadcast topic.
	awsOpts := []func(*aws_config.LoadOptions) error{
		aws_config.WithRegion(cfg.AwsRegion),
	}
	if cfg.AwsAccessKeyID != "" {
		awsOpts = append(awsOpts, aws_config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKeyID, cfg.AwsSecretAccessKey, "")))
	}
	awsCfg, err := aws_config.LoadDefaultConfig(context.Background(), awsOpts...)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}
	snsClient := sns.NewFromConfig(awsCfg)
	sqsClient := sqs.NewFromConfig(awsCfg)

	// Initialize service dependencies
	actionRepository := repository.NewMongoActionRepository(mongoDb)
	publisher := events.NewSnsPublisher(snsClient, cfg.ActionTopicArn)
	actionService := services.NewActionService(actionRepository, publisher)

	// Root context cancelled on shutdown, stops the queue consumers.
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	var wg sync.WaitGroup
	var apiSrv *http.Server

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	apiMode := func() {
		fmt.Println("Starting API server...")
		router := api.SetupRouter(actionService)
		apiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("API listening on :%s\n", cfg.ApiPort)
			if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("API ListenAndServe error: %v", err)
			}
			fmt.Println("API server stopped.")
		}()
	}

	eventsMode := func() {
		fmt.Println("Starting queue consumers...")
		consumer := events.NewConsumer(sqsClient)

		placementListener := events.NewPlacementListener(actionService)
		pmListener := events.NewProgrammeMembershipListener(actionService)
		accountListener := events.NewUserAccountListener(actionService)
		formListener := events.NewFormListener(actionService)
		profileMoveListener := events.NewProfileMoveListener(actionService)

		consumer.Handle(cfg.PlacementQueueURL, placementListener.HandlePlacementSync)
		consumer.Handle(cfg.ProgrammeMembershipQueueURL, pmListener.HandleProgrammeMembershipSync)
		consumer.Handle(cfg.CojReceivedQueueURL, pmListener.HandleCojReceived)
		consumer.Handle(cfg.AccountConfirmedQueueURL, accountListener.HandleAccountConfirmation)
		consumer.Handle(cfg.FormUpdatedQueueURL, formListener.HandleFormUpdate)
		consumer.Handle(cfg.ProfileMoveQueueURL, profileMoveListener.HandleProfileMove)

		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(rootCtx)
			fmt.Println("Queue consumers stopped.")
		}()
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "events":
		eventsMode()
	case "all":
		apiMode()
		eventsMode()
	default:
		log.Fatalf("Invalid run mode specified: %s.", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)

	cancelRoot()

	if apiSrv != nil {
		ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()
		fmt.Println("Shutting down API server...")
		if err := apiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
	}

	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}
