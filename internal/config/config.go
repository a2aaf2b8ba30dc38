package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPublishPoolMax  = 10
	defaultRegion          = "us-phoenix-1"
	defaultDomain          = "oraclecloud.com"
	defaultReferenceBucket = "infx-shared"
)

type Config struct {
	Addr                 string
	Env                  string
	StorageEndpoint      string
	StorageSecure        bool
	StorageAccessKey     string
	StorageSecretKey     string
	StorageNamespace     string
	StorageRegion        string
	StorageDomain        string
	DatalakeBucket       string
	ReferenceBucket      string
	PublishPoolMax       int
	PublishItemTimeout   time.Duration
	PostgresDSN          string
	KafkaBrokers         []string
	TopicObjectPublished string
	JwtIssuer            string
	JwtAudience          string
	JwtSecret            string
}

// OutboxEnabled reports whether published objects should be recorded and
// relayed to Kafka.
func (c Config) OutboxEnabled() bool {
	return c.PostgresDSN != "" && len(c.KafkaBrokers) > 0
}

func Load() (Config, error) {
	cfg := Config{
		Addr:                 getEnvDefault("DATALAKE_ADDR", ":8080"),
		Env:                  getEnvDefault("ENV", "local"),
		StorageAccessKey:     os.Getenv("STORAGE_ACCESS_KEY"),
		StorageSecretKey:     os.Getenv("STORAGE_SECRET_KEY"),
		StorageNamespace:     os.Getenv("STORAGE_NAMESPACE"),
		StorageRegion:        getEnvDefault("STORAGE_REGION", defaultRegion),
		StorageDomain:        getEnvDefault("STORAGE_DOMAIN", defaultDomain),
		DatalakeBucket:       os.Getenv("DATALAKE_BUCKET"),
		ReferenceBucket:      getEnvDefault("REFERENCE_BUCKET", defaultReferenceBucket),
		PostgresDSN:          buildPostgresDSN(),
		TopicObjectPublished: os.Getenv("TOPIC_OBJECT_PUBLISHED"),
		JwtIssuer:            os.Getenv("JWT_ISSUER"),
		JwtAudience:          os.Getenv("JWT_AUDIENCE"),
		JwtSecret:            os.Getenv("JWT_SECRET"),
	}

	endpoint, secure, err := parseEndpoint(os.Getenv("STORAGE_ENDPOINT"))
	if err != nil {
		return Config{}, err
	}
	cfg.StorageEndpoint = endpoint
	cfg.StorageSecure = secure

	poolMax, err := strconv.Atoi(getEnvDefault("PUBLISH_POOL_MAX", strconv.Itoa(defaultPublishPoolMax)))
	if err != nil || poolMax < 1 {
		return Config{}, fmt.Errorf("invalid PUBLISH_POOL_MAX: must be a positive integer")
	}
	cfg.PublishPoolMax = poolMax

	itemTimeout, err := time.ParseDuration(getEnvDefault("PUBLISH_ITEM_TIMEOUT", "0s"))
	if err != nil || itemTimeout < 0 {
		return Config{}, fmt.Errorf("invalid PUBLISH_ITEM_TIMEOUT: must be a non-negative duration")
	}
	cfg.PublishItemTimeout = itemTimeout

	for _, broker := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		trimmed := strings.TrimSpace(broker)
		if trimmed != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, trimmed)
		}
	}

	if cfg.StorageAccessKey == "" || cfg.StorageSecretKey == "" {
		return Config{}, fmt.Errorf("missing STORAGE_ACCESS_KEY or STORAGE_SECRET_KEY")
	}
	if cfg.StorageNamespace == "" {
		return Config{}, fmt.Errorf("missing STORAGE_NAMESPACE")
	}
	if cfg.DatalakeBucket == "" {
		return Config{}, fmt.Errorf("missing DATALAKE_BUCKET")
	}
	if (cfg.PostgresDSN == "") != (len(cfg.KafkaBrokers) == 0) {
		return Config{}, fmt.Errorf("POSTGRES configuration and KAFKA_BROKERS must be set together")
	}
	if cfg.OutboxEnabled() && cfg.TopicObjectPublished == "" {
		return Config{}, fmt.Errorf("missing TOPIC_OBJECT_PUBLISHED")
	}
	if cfg.JwtIssuer == "" || cfg.JwtAudience == "" || cfg.JwtSecret == "" {
		return Config{}, fmt.Errorf("missing JWT_ISSUER, JWT_AUDIENCE, or JWT_SECRET")
	}

	return cfg, nil
}

func buildPostgresDSN() string {
	host := os.Getenv("POSTGRES_HOST")
	port := os.Getenv("POSTGRES_PORT")
	db := os.Getenv("POSTGRES_DB")
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	if host == "" || port == "" || db == "" || user == "" || pass == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, db)
}

func parseEndpoint(raw string) (string, bool, error) {
	if raw == "" {
		return "", false, fmt.Errorf("missing STORAGE_ENDPOINT")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("invalid STORAGE_ENDPOINT: %w", err)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("invalid STORAGE_ENDPOINT: missing host")
		}
		return parsed.Host, parsed.Scheme == "https", nil
	}
	return raw, false, nil
}

func getEnvDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}
