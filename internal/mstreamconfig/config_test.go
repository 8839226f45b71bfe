package mstreamconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `
[[services]]
name = "mongo-main"
kind = "mongodb"
settings = { uri = "mongodb://localhost:27017" }

[[services]]
name = "kafka-main"
kind = "kafka"
settings = { brokers = ["localhost:9092"] }

[[connectors]]
name = "orders-to-kafka"
batch_size = 32
is_batching_enabled = true

[connectors.source]
service_name = "mongo-main"
resource = "orders"
schema_id = "orders-v1"

[[connectors.schemas]]
id = "orders-v1"
service_name = "mongo-main"
resource = "schemas.orders"

[[connectors.sinks]]
service_name = "kafka-main"
resource = "orders-topic"
schema_id = "orders-v1"

[system]
[system.logs]
level = "debug"
format = "json"
`

func TestLoadParsesConnectorsAndServices(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mstream-config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Services, 2)
	require.Len(t, cfg.Connectors, 1)

	conn := cfg.Connectors[0].ToConnector()
	require.Equal(t, "orders-to-kafka", conn.Name)
	require.Equal(t, 32, conn.BatchSize)
	require.True(t, conn.IsBatchingEnabled)
	require.Equal(t, "mongo-main", conn.Source.ServiceName)
	require.Equal(t, "orders-v1", conn.Source.SchemaID)
	require.Len(t, conn.Sinks, 1)
}

func TestValidateRejectsDuplicateConnectorNames(t *testing.T) {
	cfg := &Config{
		Connectors: []ConnectorConfig{
			{Name: "dup"},
			{Name: "dup"},
		},
	}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownSchemaID(t *testing.T) {
	cfg := &Config{
		Connectors: []ConnectorConfig{
			{
				Name:   "c1",
				Source: ServiceRefConfig{ServiceName: "m1", SchemaID: "missing"},
			},
		},
	}
	require.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/mstream-config.toml")
	require.Error(t, err)
}
