//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/schoolbus-tracking/service-tracking/internal/application"
	trackingEvents "github.com/schoolbus-tracking/service-tracking/internal/events"
	"github.com/schoolbus-tracking/service-tracking/internal/fleet"
	"github.com/schoolbus-tracking/service-tracking/internal/messages"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/database"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/kafka"
	"github.com/schoolbus-tracking/service-tracking/internal/repository"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// trackingStack holds wired-up tracking service components.
type trackingStack struct {
	Repo            *repository.GormVehicleRepository
	State           *fleet.State
	Hub             *fleet.Hub
	Ingest          *application.IngestService
	Authoring       *application.AuthoringService
	Consumer        *trackingEvents.LocationEventConsumer
	Relay           *trackingEvents.FanoutRelay
	CleanupProducer func()
}

// setupContainers starts PostgreSQL and Kafka testcontainers, applies the SQL
// migrations and returns a connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_tracking",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dbConfig := database.PostgresConfig{
		Host:     pgHost,
		Port:     pgPort.Port(),
		User:     "test",
		Password: "test",
		DBName:   "test_tracking",
		SSLMode:  "disable",
	}

	// Poll until the database accepts connections.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = database.Connect(dbConfig, logger)
		return err == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, database.RunMigrations(dbConfig.DatabaseURL(), "migrations", logger))

	// Start Kafka container using confluent-local (supports KRaft natively).
	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, messages.TopicDriverLocations, messages.TopicTrackingEvents)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupTrackingStack wires the tracking core onto the containers.
func setupTrackingStack(t *testing.T, db *gorm.DB, brokers []string) *trackingStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	repo := repository.NewGormVehicleRepository(db)
	hub := fleet.NewHub(fleet.HubOptions{Buffer: 16}, logger)
	state := fleet.NewState(hub, logger)
	producer := kafka.NewProducer(brokers, logger)

	ingest := application.NewIngestService(repo, state, time.Minute, logger)
	authoring := application.NewAuthoringService(repo, producer, messages.TopicTrackingEvents, logger)

	groupID := fmt.Sprintf("test-tracking-%s", uuid.New().String()[:8])
	consumer := trackingEvents.NewLocationEventConsumer(brokers, groupID, messages.TopicDriverLocations, ingest, logger)
	relay := trackingEvents.NewFanoutRelay(hub, producer, messages.TopicTrackingEvents, logger)

	return &trackingStack{
		Repo:            repo,
		State:           state,
		Hub:             hub,
		Ingest:          ingest,
		Authoring:       authoring,
		Consumer:        consumer,
		Relay:           relay,
		CleanupProducer: func() { _ = producer.Close() },
	}
}

// seedVehicle inserts a registered, active vehicle.
func seedVehicle(t *testing.T, db *gorm.DB, id, driverID string) {
	t.Helper()
	now := time.Now().UTC()
	model := repository.VehicleModel{
		ID:        id,
		Label:     "Bus " + id,
		DriverID:  driverID,
		Active:    true,
		Status:    "stopped",
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(&model).Error, "failed to seed vehicle")
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType, subject string, data interface{}) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")

	err = producer.PublishEvent(context.Background(), topic, ce.WithSubject(subject))
	require.NoError(t, err, "failed to publish event")
}

// waitForPosition polls the vehicles table until the stored position is at ts.
func waitForPosition(t *testing.T, db *gorm.DB, vehicleID string, ts time.Time, timeout time.Duration) repository.VehicleModel {
	t.Helper()
	var result repository.VehicleModel
	require.Eventually(t, func() bool {
		var model repository.VehicleModel
		if err := db.Where("id = ?", vehicleID).First(&model).Error; err != nil {
			return false
		}
		if model.PositionAt != nil && model.PositionAt.Equal(ts) {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "vehicle %s did not reach position at %s", vehicleID, ts)
	return result
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
