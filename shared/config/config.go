// shared/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CommonConfig holds the infrastructure every TAC process connects to.
type CommonConfig struct {
	// Database (PostgreSQL)
	DB_USER     string
	DB_PASSWORD string
	DB_NAME     string
	DB_HOST     string
	DB_PORT     string
	DB_SSLMODE  string

	// Kafka
	KAFKA_TOPIC  string
	KAFKA_BROKER string

	// RabbitMQ
	RABBITMQ_USER     string
	RABBITMQ_PASSWORD string
	RABBITMQ_HOST     string
	RABBITMQ_PORT     string

	// Redis backs the scan rate limiter.
	REDIS_ADDR     string
	REDIS_PASSWORD string

	// Temporal runs the tracking event retries.
	TEMPORAL_HOSTPORT  string
	TEMPORAL_NAMESPACE string

	LOG_LEVEL string
}

// LoadCommonConfig reads the shared infrastructure config from the environment.
func LoadCommonConfig() *CommonConfig {
	return &CommonConfig{
		DB_USER:     os.Getenv("DB_USER"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_NAME:     os.Getenv("DB_NAME"),
		DB_SSLMODE:  GetEnv("DB_SSLMODE", "disable"),

		KAFKA_TOPIC:  os.Getenv("KAFKA_TOPIC"),
		KAFKA_BROKER: os.Getenv("KAFKA_BROKER"),

		RABBITMQ_USER:     os.Getenv("RABBITMQ_USER"),
		RABBITMQ_PASSWORD: os.Getenv("RABBITMQ_PASSWORD"),
		RABBITMQ_HOST:     os.Getenv("RABBITMQ_HOST"),
		RABBITMQ_PORT:     os.Getenv("RABBITMQ_PORT"),

		REDIS_ADDR:     os.Getenv("REDIS_ADDR"),
		REDIS_PASSWORD: os.Getenv("REDIS_PASSWORD"),

		TEMPORAL_HOSTPORT:  os.Getenv("TEMPORAL_HOSTPORT"),
		TEMPORAL_NAMESPACE: GetEnv("TEMPORAL_NAMESPACE", "default"),

		LOG_LEVEL: GetEnv("LOG_LEVEL", "info"),
	}
}

// HasDB reports whether enough is set to reach Postgres. Without it the
// services fall back to the in-memory store.
func (c *CommonConfig) HasDB() bool {
	return c.DB_HOST != "" && c.DB_NAME != ""
}

// GetDBURL formats the config into a PostgreSQL connection string.
func (c *CommonConfig) GetDBURL() string {
	port := c.DB_PORT
	if port == "" {
		port = "5432"
	}
	sslmode := c.DB_SSLMODE
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.DB_USER, c.DB_PASSWORD, c.DB_HOST, port, c.DB_NAME, sslmode)
}

// GetRabbitMQURL formats the config into a RabbitMQ connection string.
func (c *CommonConfig) GetRabbitMQURL() string {
	host := c.RABBITMQ_HOST
	if host == "" {
		host = "localhost"
	}
	port := c.RABBITMQ_PORT
	if port == "" {
		port = "5672"
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.RABBITMQ_USER, c.RABBITMQ_PASSWORD, host, port)
}

// GetKafkaBrokers splits KAFKA_BROKER on commas.
func (c *CommonConfig) GetKafkaBrokers() []string {
	var out []string
	for _, b := range strings.Split(c.KAFKA_BROKER, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (c *CommonConfig) GetRedisAddr() string {
	if c.REDIS_ADDR == "" {
		return "localhost:6379"
	}
	return c.REDIS_ADDR
}

func (c *CommonConfig) GetTemporalHostPort() string {
	if c.TEMPORAL_HOSTPORT == "" {
		return "localhost:7233"
	}
	return c.TEMPORAL_HOSTPORT
}

func GetEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func GetEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func GetEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
