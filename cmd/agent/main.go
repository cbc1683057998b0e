package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/benmeehan/heros-path/internal/service_registry"
	"github.com/benmeehan/heros-path/internal/store"
	"github.com/benmeehan/heros-path/internal/utils"
	"github.com/benmeehan/heros-path/pkg/file"
	"github.com/benmeehan/heros-path/pkg/identity"
	"github.com/benmeehan/heros-path/pkg/mqtt"
	"github.com/benmeehan/heros-path/pkg/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	// Set up structured logging with JSON output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	configPath := "configs/config.yaml"
	if p := os.Getenv("HEROS_PATH_CONFIG"); p != "" {
		configPath = p
	}
	config, err := utils.LoadConfig(configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(config.Agent.LogLevel)
	if err != nil {
		logger.Warn().Str("log_level", config.Agent.LogLevel).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	// Resolve the device identity, generating a persistent one on first run
	deviceInfo := identity.NewDeviceInfo(config.Agent.DeviceFile, fileClient)
	deviceID, err := deviceInfo.Resolve(config.Agent.DeviceID)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load device information")
	}
	logger = logger.With().Str("device_id", deviceID).Logger()

	// Generate a unique MQTT Client ID by appending a UUID
	config.MQTT.ClientID = config.MQTT.ClientID + "-" + uuid.New().String()
	logger.Info().Str("client_id", config.MQTT.ClientID).Msg("Using MQTT Client ID")

	// Initialize the shared MQTT connection
	mqttClient := mqtt.NewMqttService(fileClient)
	err = mqttClient.Initialize(mqtt.Options{
		Broker:        config.MQTT.Broker,
		ClientID:      config.MQTT.ClientID,
		CACertificate: config.MQTT.CACertificate,
		Username:      config.MQTT.Username,
		Password:      config.MQTT.Password,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
	}

	placeStore, err := buildPlaceStore(config, fileClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize place storage")
	}

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, placeStore, logger)

	// Register all services based on the configuration
	if err := serviceRegistry.RegisterServices(config, deviceID); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register services")
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}
	logger.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Some services failed to stop cleanly")
	}
	mqttClient.Disconnect(250)
}

// buildPlaceStore connects every enabled storage backend. It returns nil
// when none is enabled.
func buildPlaceStore(config *utils.Config, fileClient file.FileOperations, logger zerolog.Logger) (store.PlaceStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var backends []store.PlaceStore
	s := config.Storage

	if s.File.Enabled {
		backends = append(backends, store.NewFileStore(s.File.Dir, fileClient))
		logger.Info().Str("dir", s.File.Dir).Msg("File place store enabled")
	}

	if s.S3.Enabled {
		objectStorage := s3.NewObjectStorage()
		if err := objectStorage.Connect(ctx, s.S3.Endpoint, s.S3.AccessKeyID, s.S3.SecretAccessKey, s.S3.UseSSL); err != nil {
			return nil, err
		}
		if err := objectStorage.EnsureBucket(ctx, s.S3.Bucket, s.S3.Region); err != nil {
			return nil, err
		}
		backends = append(backends, store.NewObjectStore(objectStorage, s.S3.Bucket, s.S3.Prefix))
		logger.Info().Str("endpoint", s.S3.Endpoint).Str("bucket", s.S3.Bucket).Msg("Object place store enabled")
	}

	if s.DynamoDB.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.DynamoDB.Region))
		if err != nil {
			return nil, err
		}
		backends = append(backends, store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), s.DynamoDB.Table))
		logger.Info().Str("table", s.DynamoDB.Table).Str("region", s.DynamoDB.Region).Msg("DynamoDB place store enabled")
	}

	if len(backends) == 0 {
		logger.Warn().Msg("No place store enabled, consolidated places will only be summarized")
		return nil, nil
	}
	return store.NewMultiStore(backends...), nil
}
