// Package config loads service configuration from a config file and
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
	Outbox   OutboxConfig
	Auth     AuthConfig
	OCR      OCRConfig
	Steps    StepsConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type PostgresConfig struct {
	// URL is a pgx connection string. When empty the service runs on an
	// in-memory store.
	URL string
}

type KafkaConfig struct {
	Brokers           []string
	SchemaRegistryURL string
}

type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

type OCRConfig struct {
	InvokeURL string
	SecretKey string
}

type StepsConfig struct {
	// TZOffsetHours fixes the day boundary used for same-day upserts.
	TZOffsetHours int
	TeamCapacity  int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/steprelay")

	viper.SetEnvPrefix("STEPRELAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.readTimeout", 15*time.Second)
	viper.SetDefault("server.writeTimeout", 30*time.Second)

	viper.SetDefault("postgres.url", "")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.schemaRegistryURL", "http://localhost:8081")

	viper.SetDefault("outbox.pollInterval", 2*time.Second)
	viper.SetDefault("outbox.batchSize", 100)

	viper.SetDefault("auth.jwtSecret", "")
	viper.SetDefault("auth.jwtIssuer", "steprelay")

	viper.SetDefault("ocr.invokeURL", "")
	viper.SetDefault("ocr.secretKey", "")

	viper.SetDefault("steps.tzOffsetHours", 9)
	viper.SetDefault("steps.teamCapacity", 3)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
