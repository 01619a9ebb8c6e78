package memory

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Provider names accepted by the factory.
const (
	ProviderInMem = "inmem"
	ProviderNATS  = "nats"
)

// Config selects and configures the shared-memory backend.
type Config struct {
	// Provider is "inmem" (embedded, default) or "nats" (JetStream KV,
	// durable across restarts).
	Provider string `koanf:"provider"`

	NATS NATSConfig `koanf:"nats"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderInMem
	}
	c.NATS.ApplyDefaults()
}

// NewStore creates the configured store. The NATS connection may be nil when
// the inmem provider is selected.
func NewStore(cfg Config, nc *nats.Conn, logger *zap.Logger) (Store, error) {
	cfg.ApplyDefaults()

	switch cfg.Provider {
	case ProviderInMem:
		return NewInMemStore(), nil
	case ProviderNATS:
		return NewNATSStore(nc, cfg.NATS, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
