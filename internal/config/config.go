package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

type Config struct {
	HTTPAddr string

	StoreBackend     string
	DBPath           string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisKeyPrefix   string
	DynamoTable      string
	DynamoEndpoint   string
	AWSRegion        string
	KafkaEnabled     bool
	KafkaBrokers     string
	AlertTopic       string
	AckTopic         string
	ConsumerGroup    string
	MQTTEnabled      bool
	MQTTBroker       string
	MQTTClientID     string
	MQTTUsername     string
	MQTTPassword     string
	MQTTTopicPrefix  string
	WebhookURL       string
	WebhookAPIKey    string
	JWTSecret        string
	CaregiverAPIKey  string
	AllowedOrigins   []string
	TickInterval     time.Duration
	ConnectDelay     time.Duration
	PersistInterval  time.Duration
	SaveTimeout      time.Duration
	HistoryLoadLimit int
	AutoStart        bool
	SimulatorSeed    int64
	LogLevel         string
	LogFormat        string
	LogFile          string
	LogToConsole     bool
}

func LoadConfig() *Config {
	err := godotenv.Load() // Looks for ".env" in the current directory
	if err != nil {
		log.Println("No .env file found, using environment variables or default values")
	}

	return &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", BackendSQLite)),
		DBPath:           getEnv("DB_PATH", "companion.db"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix:   getEnv("REDIS_KEY_PREFIX", "companion:"),
		DynamoTable:      getEnv("DYNAMODB_TABLE", "companion-readings"),
		DynamoEndpoint:   getEnv("DYNAMODB_ENDPOINT", ""),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		KafkaEnabled:     getEnvBool("KAFKA_ENABLED", false),
		KafkaBrokers:     getEnv("KAFKA_BROKERS", "localhost:9092"),
		AlertTopic:       getEnv("ALERT_TOPIC", "patient-emergency-alerts"),
		AckTopic:         getEnv("ACK_TOPIC", "patient-emergency-acks"),
		ConsumerGroup:    getEnv("CONSUMER_GROUP", "caregiver_companion"),
		MQTTEnabled:      getEnvBool("MQTT_ENABLED", false),
		MQTTBroker:       getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID:     getEnv("MQTT_CLIENT_ID", "caregiver_companion_local"),
		MQTTUsername:     getEnv("MQTT_USERNAME", ""),
		MQTTPassword:     getEnv("MQTT_PASSWORD", ""),
		MQTTTopicPrefix:  getEnv("MQTT_TOPIC_PREFIX", "companion"),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		WebhookAPIKey:    getEnv("WEBHOOK_API_KEY", ""),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		CaregiverAPIKey:  getEnv("CAREGIVER_API_KEY", ""),
		AllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS"),
		TickInterval:     getEnvDuration("TICK_INTERVAL", time.Second),
		ConnectDelay:     getEnvDuration("CONNECT_DELAY", 2*time.Second),
		PersistInterval:  getEnvDuration("PERSIST_INTERVAL", 30*time.Second),
		SaveTimeout:      getEnvDuration("SAVE_TIMEOUT", 10*time.Second),
		HistoryLoadLimit: getEnvInt("HISTORY_LOAD_LIMIT", 20),
		AutoStart:        getEnvBool("AUTO_START", false),
		SimulatorSeed:    int64(getEnvInt("SIMULATOR_SEED", 0)),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		LogFile:          getEnv("LOG_FILE", "./logs/companion.log"),
		LogToConsole:     getEnvBool("LOG_TO_CONSOLE", false),
	}
}

// Validate rejects settings the monitor cannot run with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendSQLite, BackendRedis, BackendDynamoDB, BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	intervals := map[string]time.Duration{
		"TICK_INTERVAL":    c.TickInterval,
		"CONNECT_DELAY":    c.ConnectDelay,
		"PERSIST_INTERVAL": c.PersistInterval,
		"SAVE_TIMEOUT":     c.SaveTimeout,
	}
	for key, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if c.HistoryLoadLimit <= 0 {
		return fmt.Errorf("HISTORY_LOAD_LIMIT must be positive, got %d", c.HistoryLoadLimit)
	}
	return nil
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return strings.EqualFold(value, "true") || value == "1"
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("1s", "500ms") or bare seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	log.Printf("Invalid duration for %s=%q, using %s", key, value, fallback)
	return fallback
}
