// Package mstreamconfig loads the streamer's TOML configuration file: named
// services, connector declarations, and the optional system block, per
// spec §6.
package mstreamconfig

import (
	"fmt"
	"os"

	"github.com/mstreamio/mstream/internal/svcerr"
	"github.com/pelletier/go-toml/v2"
)

// ServiceConfig is one named entry in the config file's [[services]] list.
type ServiceConfig struct {
	Name     string         `toml:"name"`
	Kind     string         `toml:"kind"`
	Settings map[string]any `toml:"settings"`
}

// ConnectorConfig mirrors core.Connector in its TOML-serialisable form.
type ConnectorConfig struct {
	Name              string                   `toml:"name"`
	BatchSize         int                      `toml:"batch_size"`
	IsBatchingEnabled bool                     `toml:"is_batching_enabled"`
	FailFast          bool                     `toml:"fail_fast"`
	Source            ServiceRefConfig         `toml:"source"`
	Schemas           []SchemaRefConfig        `toml:"schemas"`
	Middlewares       []ServiceRefConfig       `toml:"middlewares"`
	Sinks             []ServiceRefConfig       `toml:"sinks"`
}

// ServiceRefConfig is the TOML form of core.ServiceReference.
type ServiceRefConfig struct {
	ServiceName    string `toml:"service_name"`
	Resource       string `toml:"resource"`
	SchemaID       string `toml:"schema_id"`
	OutputEncoding string `toml:"output_encoding"`
}

// SchemaRefConfig is the TOML form of core.SchemaReference.
type SchemaRefConfig struct {
	ID          string `toml:"id"`
	ServiceName string `toml:"service_name"`
	Resource    string `toml:"resource"`
}

// JobLifecycleConfig names the service backing job/checkpoint persistence
// and the startup reconciliation policy, per spec §4.7.
type JobLifecycleConfig struct {
	ServiceName  string `toml:"service_name"`
	Resource     string `toml:"resource"`
	StartupState string `toml:"startup_state"`
}

// LogsConfig configures the ambient logger.
type LogsConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// SystemConfig is the optional [system] block.
type SystemConfig struct {
	JobLifecycle *JobLifecycleConfig `toml:"job_lifecycle"`
	Logs         *LogsConfig         `toml:"logs"`
}

// Config is the top-level TOML document.
type Config struct {
	Services   []ServiceConfig   `toml:"services"`
	Connectors []ConnectorConfig `toml:"connectors"`
	System     *SystemConfig     `toml:"system"`
}

// DefaultConfigPath is the file the CLI loads when --config is not given.
const DefaultConfigPath = "mstream-config.toml"

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.CodeConfigError, fmt.Sprintf("reading config %q", path), err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, svcerr.Wrap(svcerr.CodeConfigError, fmt.Sprintf("parsing config %q", path), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the structural invariants spec §3 requires: connector
// names are unique and every schema_id a connector references appears in
// its own schemas list.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Connectors))
	for _, conn := range c.Connectors {
		if conn.Name == "" {
			return svcerr.New(svcerr.CodeConfigError, "connector missing name")
		}
		if seen[conn.Name] {
			return svcerr.New(svcerr.CodeConfigError, fmt.Sprintf("duplicate connector name %q", conn.Name))
		}
		seen[conn.Name] = true

		known := make(map[string]bool, len(conn.Schemas))
		for _, s := range conn.Schemas {
			known[s.ID] = true
		}
		for _, ref := range refsWithSchemaID(conn) {
			if ref != "" && !known[ref] {
				return svcerr.New(svcerr.CodeConfigError,
					fmt.Sprintf("connector %q references unknown schema_id %q", conn.Name, ref))
			}
		}
	}
	return nil
}

func refsWithSchemaID(conn ConnectorConfig) []string {
	ids := make([]string, 0, len(conn.Middlewares)+len(conn.Sinks)+1)
	if conn.Source.SchemaID != "" {
		ids = append(ids, conn.Source.SchemaID)
	}
	for _, m := range conn.Middlewares {
		if m.SchemaID != "" {
			ids = append(ids, m.SchemaID)
		}
	}
	for _, s := range conn.Sinks {
		if s.SchemaID != "" {
			ids = append(ids, s.SchemaID)
		}
	}
	return ids
}
