package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printfarm-system/internal/common/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db.local
  port: 5433
  user: printfarm
  password: secret
  database: printfarm

rabbitmq:
  host: mq.local
  user: guest
  password: guest

dispatch:
  transport: rabbitmq
  offer_timeout_seconds: 30
  http_port: 8080
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db.local", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "mq.local", cfg.Rabbit.Host)
	assert.Equal(t, 5672, cfg.Rabbit.Port, "default rabbit port applies")
	assert.Equal(t, "/", cfg.Rabbit.VHost)
	assert.Equal(t, 30, cfg.Dispatch.OfferTimeoutSeconds)
	assert.Equal(t, 8080, cfg.Dispatch.HTTPPort)
}

func TestLoadKafkaTransport(t *testing.T) {
	path := writeConfig(t, `
kafka:
  brokers: broker-1:9092, broker-2:9092
  group_id: responses

dispatch:
  transport: kafka
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "responses", cfg.Kafka.GroupID)
	assert.Equal(t, 25, cfg.Dispatch.OfferTimeoutSeconds, "default timeout applies")
}

func TestLoadRejectsMissingBroker(t *testing.T) {
	path := writeConfig(t, `
dispatch:
  transport: kafka
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RABBITMQ_HOST", "mq-override")
	t.Setenv("DISPATCH_TRANSPORT", "rabbitmq")

	path := writeConfig(t, `
rabbitmq:
  host: mq.local
  user: guest
  password: guest
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mq-override", cfg.Rabbit.Host)
	assert.Equal(t, "rabbitmq", cfg.Dispatch.Transport)
}
