package main

import (
	"lectio/internal/directory"
	"lectio/internal/scheduling/events"
	"lectio/internal/scheduling/handler"
	"lectio/internal/scheduling/repository"
	"lectio/internal/scheduling/service"
	"lectio/internal/scheduling/validator"
	"lectio/pkg/app"
	"lectio/pkg/config"
	pkgkafka "lectio/pkg/kafka"
	kafka_config "lectio/pkg/kafka/config"
)

const (
	ServiceName = "scheduling"

	bookingEventsTopic = "lecture-bookings"
)

func main() {
	cfg := config.Load(ServiceName)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal("Invalid configuration", "error", err)
	}

	// Log all configuration values
	cfg.LogConfiguration()

	cfg.Log.Info("Starting Scheduling service")
	cfg.SetMongo()

	publisher := initPublisher(cfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			cfg.Log.Warn("Failed to close event publisher", "error", err)
		}
	}()

	bookingService, availabilityService := initServices(cfg, publisher)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		handler.NewSchedulingHandler(bookingService, availabilityService, cfg.Log),
		handler.NewHealthHandler(cfg.Client.Mongo, cfg.Log),
	)
	serverApp.Run()
}

func initServices(cfg *config.Config, publisher events.Publisher) (service.BookingService, service.AvailabilityService) {
	bookingValidator := validator.NewBookingValidator(cfg.Log)
	bookingRepo := repository.NewMongoBookingRepository(cfg)
	lockRepo := repository.NewResourceLockRepository(cfg)
	dir := directory.NewHTTPDirectory(cfg.DirectoryBaseURL, cfg.DirectoryTimeout, cfg.Log)

	bookingService := service.NewBookingService(
		bookingRepo,
		lockRepo,
		dir,
		bookingValidator,
		publisher,
		cfg,
	)
	availabilityService := service.NewAvailabilityService(
		bookingRepo,
		dir,
		bookingValidator,
		cfg,
	)

	cfg.Log.Info("Scheduling services initialized",
		"database", cfg.MongoDatabaseName,
		"directory", cfg.DirectoryBaseURL,
	)
	return bookingService, availabilityService
}

func initPublisher(cfg *config.Config) events.Publisher {
	kafkaCfg := kafka_config.Load()
	if kafkaCfg == nil {
		cfg.Log.Info("Kafka brokers not configured, event publishing disabled")
		return events.NewNopPublisher()
	}

	producer, err := pkgkafka.NewProducer(kafkaCfg, bookingEventsTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}

	cfg.Log.Info("Kafka event publishing enabled", "topic", bookingEventsTopic, "brokers", kafkaCfg.Brokers)
	return events.NewKafkaPublisher(producer)
}
