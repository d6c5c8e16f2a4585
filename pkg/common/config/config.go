package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort   string
	ServerHost   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers  []string
	KafkaRunTopic string

	// Coupa
	CoupaBaseURL        string
	CoupaTokenURL       string
	CoupaClientID       string
	CoupaClientSecret   string
	CoupaScope          string
	CoupaRequestTimeout time.Duration
	CoupaRateLimit      int
	CoupaRateWindow     time.Duration

	// SFTP
	SFTPHost         string
	SFTPPort         string
	SFTPUser         string
	SFTPPassword     string
	SFTPIncomingPath string

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	// Scheduler
	SchedulerTimezone string
	SeedConfigPath    string
}

func Load() *Config {
	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ServerHost:   getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "erpbridge"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "erpbridge123"),
		PostgresDB:       getEnv("POSTGRES_DB", "erpbridge"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:  getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaRunTopic: getEnv("KAFKA_RUN_TOPIC", "integration.runs"),

		CoupaBaseURL:        getEnv("COUPA_BASE_URL", "https://sandbox.coupahost.com"),
		CoupaTokenURL:       getEnv("COUPA_OAUTH_TOKEN_URL", "https://sandbox.coupahost.com/oauth2/token"),
		CoupaClientID:       getEnv("COUPA_OAUTH_CLIENT_ID", ""),
		CoupaClientSecret:   getEnv("COUPA_OAUTH_CLIENT_SECRET", ""),
		CoupaScope:          getEnv("COUPA_OAUTH_SCOPE", ""),
		CoupaRequestTimeout: getDuration("COUPA_REQUEST_TIMEOUT", 30*time.Second),
		CoupaRateLimit:      getIntEnv("COUPA_RATE_LIMIT", 100),
		CoupaRateWindow:     getDuration("COUPA_RATE_WINDOW", time.Minute),

		SFTPHost:         getEnv("SFTP_HOST", "localhost"),
		SFTPPort:         getEnv("SFTP_PORT", "22"),
		SFTPUser:         getEnv("SFTP_USER", "erpbridge"),
		SFTPPassword:     getEnv("SFTP_PASSWORD", ""),
		SFTPIncomingPath: getEnv("SFTP_INCOMING_PATH", "/incoming"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getIntEnv("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "integration-hub@erpbridge.local"),

		SchedulerTimezone: getEnv("TZ", "UTC"),
		SeedConfigPath:    getEnv("SEED_CONFIG_PATH", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
