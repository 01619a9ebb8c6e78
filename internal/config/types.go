// Package config provides configuration loading for loomd.
package config

import (
	"fmt"
	"time"

	"github.com/loomlabs/loomd/internal/catalog"
	"github.com/loomlabs/loomd/internal/dryrun"
	"github.com/loomlabs/loomd/internal/graph"
	"github.com/loomlabs/loomd/internal/llm"
	"github.com/loomlabs/loomd/internal/memory"
	"github.com/loomlabs/loomd/internal/orchestrator"
	"github.com/loomlabs/loomd/internal/policy"
	"github.com/loomlabs/loomd/internal/validation"
)

// Config is the complete loomd configuration.
type Config struct {
	Server     ServerConfig        `koanf:"server"`
	Logging    LoggingConfig       `koanf:"logging"`
	Policy     policy.Config       `koanf:"policy"`
	Validation validation.Config   `koanf:"validation"`
	LLM        llm.Config          `koanf:"llm"`
	Graph      graph.Config        `koanf:"graph"`
	Catalog    catalog.Config      `koanf:"catalog"`
	Memory     memory.Config       `koanf:"memory"`
	DryRun     dryrun.Config       `koanf:"dry_run"`
	Pipeline   orchestrator.Config `koanf:"pipeline"`
	NATS       NATSConfig          `koanf:"nats"`
	Bus        BusConfig           `koanf:"bus"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Port is the HTTP listen port.
	Port int `koanf:"port"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// NATSConfig configures the optional NATS connection used for the event
// mirror and durable memory.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

// BusConfig configures the in-process event bus.
type BusConfig struct {
	// SubscriberTimeout bounds how long a publish waits on one subscriber.
	SubscriberTimeout time.Duration `koanf:"subscriber_timeout"`
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level invalid: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format invalid: %q", c.Logging.Format)
	}
	if c.Validation.SemanticErrorThreshold < 0 || c.Validation.SemanticErrorThreshold > 1 {
		return fmt.Errorf("validation.semantic_error_threshold out of range: %f", c.Validation.SemanticErrorThreshold)
	}
	switch c.Memory.Provider {
	case "", memory.ProviderInMem:
	case memory.ProviderNATS:
		if !c.NATS.Enabled {
			return fmt.Errorf("memory.provider %q requires nats.enabled", c.Memory.Provider)
		}
	default:
		return fmt.Errorf("memory.provider invalid: %q", c.Memory.Provider)
	}
	switch c.Graph.Provider {
	case "", graph.ProviderChromem, graph.ProviderHTTP:
	default:
		return fmt.Errorf("graph.provider invalid: %q", c.Graph.Provider)
	}
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key required when llm.enabled")
	}
	return nil
}
