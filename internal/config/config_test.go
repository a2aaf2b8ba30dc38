package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_ENDPOINT", "https://namespace.compat.objectstorage.us-phoenix-1.oraclecloud.com")
	t.Setenv("STORAGE_ACCESS_KEY", "access")
	t.Setenv("STORAGE_SECRET_KEY", "secret")
	t.Setenv("STORAGE_NAMESPACE", "namespace")
	t.Setenv("DATALAKE_BUCKET", "datalake")
	t.Setenv("JWT_ISSUER", "issuer")
	t.Setenv("JWT_AUDIENCE", "datalake-api")
	t.Setenv("JWT_SECRET", "secret")
	for _, key := range []string{
		"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_DB", "POSTGRES_USER", "POSTGRES_PASSWORD",
		"KAFKA_BROKERS", "TOPIC_OBJECT_PUBLISHED", "PUBLISH_POOL_MAX", "PUBLISH_ITEM_TIMEOUT",
		"STORAGE_REGION", "STORAGE_DOMAIN", "REFERENCE_BUCKET", "DATALAKE_ADDR", "ENV",
	} {
		t.Setenv(key, "")
	}
}

func setOutboxEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_PORT", "5432")
	t.Setenv("POSTGRES_DB", "datalake")
	t.Setenv("POSTGRES_USER", "datalake")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("TOPIC_OBJECT_PUBLISHED", "datalake.object.published.v1")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "namespace.compat.objectstorage.us-phoenix-1.oraclecloud.com", cfg.StorageEndpoint)
	assert.True(t, cfg.StorageSecure)
	assert.Equal(t, "us-phoenix-1", cfg.StorageRegion)
	assert.Equal(t, "oraclecloud.com", cfg.StorageDomain)
	assert.Equal(t, "infx-shared", cfg.ReferenceBucket)
	assert.Equal(t, 10, cfg.PublishPoolMax)
	assert.Zero(t, cfg.PublishItemTimeout)
	assert.False(t, cfg.OutboxEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	setOutboxEnv(t)
	t.Setenv("STORAGE_ENDPOINT", "localhost:9000")
	t.Setenv("PUBLISH_POOL_MAX", "4")
	t.Setenv("PUBLISH_ITEM_TIMEOUT", "20s")
	t.Setenv("STORAGE_REGION", "us-ashburn-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:9000", cfg.StorageEndpoint)
	assert.False(t, cfg.StorageSecure)
	assert.Equal(t, 4, cfg.PublishPoolMax)
	assert.Equal(t, 20*time.Second, cfg.PublishItemTimeout)
	assert.Equal(t, "us-ashburn-1", cfg.StorageRegion)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "postgres://datalake:pw@localhost:5432/datalake?sslmode=disable", cfg.PostgresDSN)
	assert.True(t, cfg.OutboxEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"missing endpoint", "STORAGE_ENDPOINT", "", "missing STORAGE_ENDPOINT"},
		{"endpoint without host", "STORAGE_ENDPOINT", "https://", "missing host"},
		{"missing namespace", "STORAGE_NAMESPACE", "", "missing STORAGE_NAMESPACE"},
		{"missing bucket", "DATALAKE_BUCKET", "", "missing DATALAKE_BUCKET"},
		{"missing secret", "STORAGE_SECRET_KEY", "", "STORAGE_SECRET_KEY"},
		{"zero pool", "PUBLISH_POOL_MAX", "0", "PUBLISH_POOL_MAX"},
		{"bad pool", "PUBLISH_POOL_MAX", "ten", "PUBLISH_POOL_MAX"},
		{"bad timeout", "PUBLISH_ITEM_TIMEOUT", "soon", "PUBLISH_ITEM_TIMEOUT"},
		{"missing jwt", "JWT_SECRET", "", "JWT_SECRET"},
		{"kafka without postgres", "KAFKA_BROKERS", "kafka:9092", "set together"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_OutboxNeedsTopic(t *testing.T) {
	setRequiredEnv(t)
	setOutboxEnv(t)
	t.Setenv("TOPIC_OBJECT_PUBLISHED", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOPIC_OBJECT_PUBLISHED")
}
