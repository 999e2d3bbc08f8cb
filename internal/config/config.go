package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DeliveryMode selects how stream subscribers receive fleet updates.
type DeliveryMode string

const (
	DeliveryPush DeliveryMode = "push"
	DeliveryPoll DeliveryMode = "poll"
)

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required"`
	User     string `validate:"required"`
	Password string
	DBName   string `validate:"required"`
	SSLMode  string `validate:"oneof=disable require verify-ca verify-full"`
}

// JWTConfig holds the shared secret of the identity provider.
type JWTConfig struct {
	Secret   string        `validate:"required"`
	TokenTTL time.Duration `validate:"gt=0"`
}

// KafkaConfig holds broker and topic settings.
type KafkaConfig struct {
	Brokers       []string `validate:"required,min=1,dive,required"`
	GroupPrefix   string
	LocationTopic string `validate:"required"`
	EventsTopic   string `validate:"required"`
}

// TrackingConfig tunes the live-tracking core.
type TrackingConfig struct {
	DeliveryMode     DeliveryMode  `validate:"oneof=push poll"`
	PollInterval     time.Duration `validate:"gt=0"`
	ClockSkew        time.Duration `validate:"gte=0"`
	SubscriberBuffer int           `validate:"gt=0"`
	MaxPending       int           `validate:"gte=0"`
}

// ServiceConfig holds all configuration for the tracking service.
type ServiceConfig struct {
	Port           string `validate:"required"`
	AppEnv         string `validate:"required"`
	MigrationsDir  string
	DBConfig       DatabaseConfig
	JWTConfig      JWTConfig
	KafkaConfig    KafkaConfig
	TrackingConfig TrackingConfig
}

// Load reads configuration from the environment (and an optional .env file).
func Load() (*ServiceConfig, error) {
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("TRACKING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("SERVICE_PORT", ":8084")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tracking")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("JWT_TOKEN_TTL", "15m")

	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_PREFIX", "")
	v.SetDefault("LOCATION_TOPIC", "driver.locations")
	v.SetDefault("EVENTS_TOPIC", "tracking.events")

	v.SetDefault("DELIVERY_MODE", string(DeliveryPush))
	v.SetDefault("POLL_INTERVAL", "5s")
	v.SetDefault("CLOCK_SKEW", "60s")
	v.SetDefault("SUBSCRIBER_BUFFER", 64)
	v.SetDefault("SUBSCRIBER_MAX_PENDING", 1024)
	return v
}

// FromViper builds and validates a ServiceConfig from v.
func FromViper(v *viper.Viper) (*ServiceConfig, error) {
	cfg := &ServiceConfig{
		Port:          v.GetString("SERVICE_PORT"),
		AppEnv:        v.GetString("APP_ENV"),
		MigrationsDir: v.GetString("MIGRATIONS_DIR"),
		DBConfig: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		JWTConfig: JWTConfig{
			Secret:   v.GetString("JWT_SECRET"),
			TokenTTL: v.GetDuration("JWT_TOKEN_TTL"),
		},
		KafkaConfig: KafkaConfig{
			Brokers:       splitList(v.GetString("KAFKA_BROKERS")),
			GroupPrefix:   v.GetString("KAFKA_GROUP_PREFIX"),
			LocationTopic: v.GetString("LOCATION_TOPIC"),
			EventsTopic:   v.GetString("EVENTS_TOPIC"),
		},
		TrackingConfig: TrackingConfig{
			DeliveryMode:     DeliveryMode(strings.ToLower(v.GetString("DELIVERY_MODE"))),
			PollInterval:     v.GetDuration("POLL_INTERVAL"),
			ClockSkew:        v.GetDuration("CLOCK_SKEW"),
			SubscriberBuffer: v.GetInt("SUBSCRIBER_BUFFER"),
			MaxPending:       v.GetInt("SUBSCRIBER_MAX_PENDING"),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
